package handlers

import (
	"net/http"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// ForecastHandler 予測API
type ForecastHandler struct {
	prediction *services.PredictionService
}

// NewForecastHandler 新しいForecastHandler
func NewForecastHandler(prediction *services.PredictionService) *ForecastHandler {
	return &ForecastHandler{prediction: prediction}
}

// PredictRequest 予測条件。天気・イベント・祝日は任意
type PredictRequest struct {
	Date         string                  `json:"date" binding:"required"`
	Weather      *models.WeatherSnapshot `json:"weather"`
	Events       []models.Event          `json:"events"`
	Holiday      *models.Holiday         `json:"holiday"`
	HasMajorGame bool                    `json:"has_major_game"`
}

// Predict POST /restaurants/:id/predict
func (h *ForecastHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "date is required"})
		return
	}
	date, err := parseDateParam(req.Date)
	if err != nil {
		respondError(c, err)
		return
	}

	preds, err := h.prediction.Predict(c.Request.Context(), models.PredictionInput{
		RestaurantID: c.Param("id"),
		Date:         date,
		Weather:      req.Weather,
		Events:       req.Events,
		Holiday:      req.Holiday,
		HasMajorGame: req.HasMajorGame,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"date": req.Date, "predictions": preds})
}

// WeekForecast GET /restaurants/:id/forecast/week
func (h *ForecastHandler) WeekForecast(c *gin.Context) {
	wf, err := h.prediction.GenerateWeekForecast(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, wf)
}

// Baseline GET /restaurants/:id/baseline
func (h *ForecastHandler) Baseline(c *gin.Context) {
	b, err := h.prediction.Baseline(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, b)
}
