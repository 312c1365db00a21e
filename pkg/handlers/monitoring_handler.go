package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MonitoringHandler リクエストログとジョブ履歴の参照API
type MonitoringHandler struct {
	Service *services.MonitoringService
}

// NewMonitoringHandler 新しいMonitoringHandler
func NewMonitoringHandler(service *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{Service: service}
}

var periodHours = map[string]int{"1h": 1, "24h": 24, "7d": 24 * 7, "30d": 24 * 30}

// parsePeriod period クエリを時間数に変換する。未指定なら def
func parsePeriod(c *gin.Context, def int) (int, error) {
	v := c.Query("period")
	if v == "" {
		return def, nil
	}
	h, ok := periodHours[v]
	if !ok {
		return 0, fmt.Errorf("%w: period must be one of 1h, 24h, 7d, 30d", models.ErrInvalidInput)
	}
	return h, nil
}

// GetLogs GET /monitoring/logs?period=24h
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	hours, err := parsePeriod(c, 24)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.Service.GetDashboardData(hours))
}

// GetJobs GET /monitoring/jobs?period=7d&failed=true&limit=10
func (h *MonitoringHandler) GetJobs(c *gin.Context) {
	hours, err := parsePeriod(c, 0)
	if err != nil {
		respondError(c, err)
		return
	}
	limit := 0
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondError(c, fmt.Errorf("%w: limit must be a non-negative integer", models.ErrInvalidInput))
			return
		}
	}

	jobs, summary := h.Service.JobHistory(services.JobFilter{
		PeriodHours: hours,
		FailedOnly:  queryBool(c, "failed"),
		Limit:       limit,
	})
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "summary": summary})
}
