package handlers

import (
	"context"
	"net/http"
	"sync/atomic"

	config "dinecast-api/configs"
	"dinecast-api/pkg/models"
	"dinecast-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// isMaintenanceMode はサーバーがメンテナンスモードかどうかを示します。
var isMaintenanceMode atomic.Bool

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	AdminUsername string
	AdminPassword string
	job           *services.DiscoveryJob
	// jobCtx バックグラウンド実行のジョブに渡すコンテキスト（サーバー停止でキャンセル）
	jobCtx context.Context
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(cfg *config.Config, job *services.DiscoveryJob, jobCtx context.Context) *AdminHandler {
	if jobCtx == nil {
		jobCtx = context.Background()
	}
	return &AdminHandler{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		job:           job,
		jobCtx:        jobCtx,
	}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AdminHandler) authorize(c *gin.Context) bool {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return false
	}
	if h.AdminPassword == "" || input.Username != h.AdminUsername || input.Password != h.AdminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return false
	}
	return true
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	isMaintenanceMode.Store(true)
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	isMaintenanceMode.Store(false)
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped"})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"isMaintenanceMode": isMaintenanceMode.Load(),
		"jobRunning":        h.job != nil && h.job.Running(),
	})
}

// RunDiscoveryJob POST /admin/jobs/discovery (?wait=true で完了まで待つ)
func (h *AdminHandler) RunDiscoveryJob(c *gin.Context) {
	if h.job == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "discovery job is not configured"})
		return
	}
	if queryBool(c, "wait") {
		report, err := h.job.Run(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, report)
		return
	}
	if h.job.Running() {
		respondError(c, models.ErrJobRunning)
		return
	}

	go func() {
		if _, err := h.job.Run(h.jobCtx); err != nil {
			log.Error().Err(err).Msg("❌ 管理APIからのジョブ実行に失敗しました")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"success": true, "message": "discovery job started"})
}

// GetDiscoveryJob GET /admin/jobs/discovery
func (h *AdminHandler) GetDiscoveryJob(c *gin.Context) {
	if h.job == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "discovery job is not configured"})
		return
	}
	respondOK(c, http.StatusOK, gin.H{"running": h.job.Running(), "last_report": h.job.LastReport()})
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func HealthCheck(c *gin.Context) {
	if isMaintenanceMode.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
