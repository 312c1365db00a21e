package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dinecast-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondOK 成功レスポンス
func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondError エラー種別に応じたステータスで返す
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("❌ リクエスト処理に失敗しました")
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrRestaurantNotFound), errors.Is(err, models.ErrPatternNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidDateRange), errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConcurrentUpdate), errors.Is(err, models.ErrJobRunning):
		return http.StatusConflict
	case errors.Is(err, models.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isDateKey YYYY-MM-DD 形式の日付のみか
func isDateKey(value string) bool {
	_, err := time.Parse(models.DateLayout, value)
	return err == nil
}

// parseDateParam YYYY-MM-DD または RFC3339
func parseDateParam(value string) (time.Time, error) {
	if t, err := time.Parse(models.DateLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", models.ErrInvalidInput, value)
}

func queryFloat(c *gin.Context, key string, def float64) (float64, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", models.ErrInvalidInput, key)
	}
	return f, nil
}

func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.Query(key))
	return b
}
