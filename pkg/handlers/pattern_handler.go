package handlers

import (
	"net/http"
	"strconv"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"
	"dinecast-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// PatternHandler パターン発見・検証・学習API
type PatternHandler struct {
	discovery *services.DiscoveryService
	validator *services.ValidatorService
	learning  *services.GlobalLearningService
	patterns  repository.PatternRepository
	index     services.PatternIndex
}

// NewPatternHandler 新しいPatternHandler
func NewPatternHandler(discovery *services.DiscoveryService, validator *services.ValidatorService,
	learning *services.GlobalLearningService, patterns repository.PatternRepository, index services.PatternIndex) *PatternHandler {
	if index == nil {
		index = services.NoopPatternIndex{}
	}
	return &PatternHandler{discovery: discovery, validator: validator, learning: learning, patterns: patterns, index: index}
}

// DiscoverRequest 発見期間
type DiscoverRequest struct {
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// Discover POST /restaurants/:id/discover
func (h *PatternHandler) Discover(c *gin.Context) {
	var req DiscoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "start_date and end_date are required"})
		return
	}
	var result *models.DiscoveryResult
	var err error
	if isDateKey(req.StartDate) && isDateKey(req.EndDate) {
		result, err = h.discovery.DiscoverDates(c.Request.Context(), c.Param("id"), req.StartDate, req.EndDate)
	} else {
		result, err = h.discoverInstants(c, req)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

func (h *PatternHandler) discoverInstants(c *gin.Context, req DiscoverRequest) (*models.DiscoveryResult, error) {
	start, err := parseDateParam(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDateParam(req.EndDate)
	if err != nil {
		return nil, err
	}
	return h.discovery.Discover(c.Request.Context(), c.Param("id"), start, end)
}

// Validate POST /restaurants/:id/validate
func (h *PatternHandler) Validate(c *gin.Context) {
	result, err := h.validator.ValidatePatterns(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// Contribute POST /restaurants/:id/contribute
func (h *PatternHandler) Contribute(c *gin.Context) {
	result, err := h.learning.Contribute(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ListRestaurantPatterns GET /restaurants/:id/patterns?type=&active=&min_confidence=
func (h *PatternHandler) ListRestaurantPatterns(c *gin.Context) {
	minConf, err := queryFloat(c, "min_confidence", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	filter := models.PatternFilter{
		Type:          models.FactorType(c.Query("type")),
		ActiveOnly:    queryBool(c, "active"),
		MinConfidence: minConf,
	}
	patterns, err := h.patterns.FindRestaurantPatterns(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"patterns": patterns, "count": len(patterns)})
}

// ListScope GET /patterns?scope=global&min_confidence=
func (h *PatternHandler) ListScope(c *gin.Context) {
	minConf, err := queryFloat(c, "min_confidence", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	scope := models.PatternScope(c.DefaultQuery("scope", string(models.ScopeGlobal)))
	patterns, err := h.patterns.FindByScope(c.Request.Context(), scope, minConf)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"patterns": patterns, "count": len(patterns)})
}

// GetPattern GET /patterns/:id
func (h *PatternHandler) GetPattern(c *gin.Context) {
	p, err := h.patterns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, p)
}

// SimilarPatterns GET /patterns/:id/similar?limit=5
func (h *PatternHandler) SimilarPatterns(c *gin.Context) {
	p, err := h.patterns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := strconv.ParseUint(c.DefaultQuery("limit", "5"), 10, 64)
	if err != nil || limit == 0 {
		limit = 5
	}
	similar, err := h.index.Similar(c.Request.Context(), p, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"pattern_id": p.ID, "similar": similar})
}

// SupersedeRequest 新バージョンで変更する項目
type SupersedeRequest struct {
	Description    *string  `json:"description"`
	Recommendation *string  `json:"recommendation"`
	Change         *float64 `json:"change"`
}

// SupersedePattern POST /patterns/:id/supersede
func (h *PatternHandler) SupersedePattern(c *gin.Context) {
	var req SupersedeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	now := time.Now().UTC()
	next, err := h.patterns.Supersede(c.Request.Context(), c.Param("id"), func(p *models.Pattern) {
		if req.Description != nil {
			p.Pattern.Description = *req.Description
		}
		if req.Recommendation != nil {
			p.Pattern.Recommendation = *req.Recommendation
		}
		if req.Change != nil {
			p.BusinessOutcome.Change = *req.Change
			p.BusinessOutcome.Value = p.BusinessOutcome.Baseline * (1 + *req.Change/100)
		}
		p.Learning.LastUpdated = now
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if next.Scope != models.ScopeRestaurant {
		if err := h.index.Upsert(c.Request.Context(), next); err != nil {
			log.Warn().Err(err).Str("pattern_id", next.ID).Msg("⚠️ パターンインデックスの更新に失敗しました")
		}
		if err := h.index.Remove(c.Request.Context(), c.Param("id")); err != nil {
			log.Warn().Err(err).Str("pattern_id", c.Param("id")).Msg("⚠️ 旧バージョンのインデックス削除に失敗しました")
		}
	}
	respondOK(c, http.StatusCreated, next)
}
