package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	config "dinecast-api/configs"
	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"
	"dinecast-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testApp struct {
	router   *gin.Engine
	patterns *repository.MemoryPatternRepository
	job      *services.DiscoveryJob
}

func newTestApp(t *testing.T, apiKey string) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lat, lon := 34.05, -118.24
	restaurants := repository.NewMemoryRestaurantRepository(&models.Restaurant{
		ID: "r1", Name: "Taco Stand", Latitude: &lat, Longitude: &lon, State: "CA", Active: true,
	})
	transactions := repository.NewMemoryTransactionRepository()
	patterns := repository.NewMemoryPatternRepository()

	reg := prometheus.NewRegistry()
	metrics := services.NewMetrics(reg)
	weather := services.NewFallbackWeatherProvider(nil, services.NewSeasonalWeatherModel(), nil, nil, metrics)
	collector := services.NewContextCollector(weather, nil, nil, services.NewCalendarHolidayProvider(), nil, 2)

	discovery := services.NewDiscoveryService(restaurants, transactions, patterns, collector, metrics)
	validator := services.NewValidatorService(restaurants, transactions, patterns, collector, metrics, 30)
	learning := services.NewGlobalLearningService(restaurants, patterns, services.NoopPatternIndex{}, metrics)
	prediction := services.NewPredictionService(services.PredictionDeps{
		Restaurants: restaurants,
		Patterns:    patterns,
		Baselines:   services.NewBaselineService(transactions),
		Collector:   collector,
		Narrative:   services.NewNarrativeService(nil),
	})
	monitoring := services.NewMonitoringService()
	job := services.NewDiscoveryJob(restaurants, discovery, validator, learning, metrics, 90).WithRecorder(monitoring)

	cfg := &config.Config{AdminUsername: "admin", AdminPassword: "secret"}
	router := NewRouter(RouterDeps{
		APIKey:     apiKey,
		Patterns:   NewPatternHandler(discovery, validator, learning, patterns, nil),
		Forecasts:  NewForecastHandler(prediction),
		Imports:    NewImportHandler(services.NewTransactionImportService(restaurants, transactions)),
		Admin:      NewAdminHandler(cfg, job, context.Background()),
		Monitoring: NewMonitoringHandler(monitoring),
		Gatherer:   reg,
	})
	return &testApp{router: router, patterns: patterns, job: job}
}

func (a *testApp) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp(t, "")
	w := app.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "status")
}

func TestDiscoverRejectsMalformedRange(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(http.MethodPost, "/api/v1/restaurants/r1/discover",
		gin.H{"start_date": "2026-03-01", "end_date": "2026-02-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodPost, "/api/v1/restaurants/r1/discover",
		gin.H{"start_date": "yesterday", "end_date": "2026-02-01"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodPost, "/api/v1/restaurants/r1/discover", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiscoverUnknownRestaurant(t *testing.T) {
	app := newTestApp(t, "")
	w := app.do(http.MethodPost, "/api/v1/restaurants/nope/discover",
		gin.H{"start_date": "2026-01-01", "end_date": "2026-02-01"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "restaurant not found")
}

func TestDiscoverWithoutTransactionsReturnsEmpty(t *testing.T) {
	app := newTestApp(t, "")
	w := app.do(http.MethodPost, "/api/v1/restaurants/r1/discover",
		gin.H{"start_date": "2026-01-01", "end_date": "2026-02-01"})
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                   `json:"success"`
		Data    models.DiscoveryResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Empty(t, body.Data.Patterns)
}

func TestPatternEndpoints(t *testing.T) {
	app := newTestApp(t, "")
	p := &models.Pattern{
		Scope:           models.ScopeRestaurant,
		RestaurantID:    "r1",
		Type:            models.FactorWeather,
		ExternalFactor:  models.ExternalFactor{Type: models.ExtPrecipitation, Condition: models.ConditionRain},
		BusinessOutcome: models.BusinessOutcome{Metric: models.MetricRevenue, Change: -20, Baseline: 1000},
		Pattern:         models.PatternDescription{Description: "Rain lowers revenue"},
		IsActive:        true,
		Confidence:      75,
	}
	require.NoError(t, app.patterns.Create(context.Background(), p))

	w := app.do(http.MethodGet, "/api/v1/patterns/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(http.MethodGet, "/api/v1/patterns/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(http.MethodGet, "/api/v1/restaurants/r1/patterns?active=true&min_confidence=70", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = app.do(http.MethodGet, "/api/v1/restaurants/r1/patterns?min_confidence=high", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodPost, "/api/v1/patterns/"+p.ID+"/supersede", gin.H{"change": -25.0})
	require.Equal(t, http.StatusCreated, w.Code)
	var body struct {
		Data models.Pattern `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Data.Version)
	assert.Equal(t, p.ID, body.Data.PreviousVersionID)
	assert.Equal(t, -25.0, body.Data.BusinessOutcome.Change)

	old, err := app.patterns.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)

	// 退役済みのバージョンは再度置き換えられない
	w = app.do(http.MethodPost, "/api/v1/patterns/"+p.ID+"/supersede", gin.H{"change": -30.0})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPredictValidation(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(http.MethodPost, "/api/v1/restaurants/r1/predict", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodPost, "/api/v1/restaurants/r1/predict", gin.H{"date": "06/01/2026"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodPost, "/api/v1/restaurants/nope/predict", gin.H{"date": "2026-06-01"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(http.MethodPost, "/api/v1/restaurants/r1/predict", gin.H{"date": "2026-06-01"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "predictions")

	w = app.do(http.MethodPost, "/api/v1/restaurants/r1/predict", gin.H{
		"date":    "2026-06-01",
		"weather": gin.H{"temperature": 500, "condition": "clear"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodPost, "/api/v1/restaurants/r1/predict", gin.H{
		"date":   "2026-06-01",
		"events": []gin.H{{"name": "Parade", "category": "festival", "impact_level": "enormous"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(http.MethodPost, "/api/v1/restaurants/r1/predict", gin.H{
		"date":    "2026-06-01",
		"weather": gin.H{"temperature": 72, "condition": "clear"},
		"events":  []gin.H{{"name": "Parade", "category": "festival", "impact_level": "high"}},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWeekForecastAndBaseline(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(http.MethodGet, "/api/v1/restaurants/r1/forecast/week", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data models.WeekForecast `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data.Days, 7)
	assert.LessOrEqual(t, len(body.Data.ActionItems), 5)

	w = app.do(http.MethodGet, "/api/v1/restaurants/nope/baseline", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestImportTransactions(t *testing.T) {
	app := newTestApp(t, "")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "pos.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("date,total,item\n2026-04-01 12:00,25.5,Burrito\n2026-04-01 13:00,9,Taco\n"))
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/restaurants/r1/transactions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"imported":2`)

	w = app.do(http.MethodPost, "/api/v1/restaurants/r1/transactions/import", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	app := newTestApp(t, "k-123")

	w := app.do(http.MethodGet, "/api/v1/patterns", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/patterns?scope=global", nil)
	req.Header.Set("X-API-KEY", "k-123")
	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// ヘルスチェックとメトリクスは認証不要
	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/health", nil).Code)
	w = app.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dinecast_")
}

func TestAdminDiscoveryJob(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(http.MethodPost, "/api/v1/admin/jobs/discovery?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":1`)

	w = app.do(http.MethodGet, "/api/v1/admin/jobs/discovery", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "last_report")

	w = app.do(http.MethodGet, "/api/v1/monitoring/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"processed":1`)
	assert.Contains(t, w.Body.String(), `"runs":1`)

	w = app.do(http.MethodGet, "/api/v1/monitoring/jobs?period=7d&failed=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"jobs":[]`)

	assert.Equal(t, http.StatusBadRequest, app.do(http.MethodGet, "/api/v1/monitoring/jobs?period=fortnight", nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(http.MethodGet, "/api/v1/monitoring/jobs?limit=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(http.MethodGet, "/api/v1/monitoring/logs?period=2h", nil).Code)
}

func TestAdminMaintenanceRequiresCredentials(t *testing.T) {
	app := newTestApp(t, "")

	w := app.do(http.MethodPost, "/api/v1/admin/maintenance/start", gin.H{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(http.MethodPost, "/api/v1/admin/maintenance/start", gin.H{"username": "admin", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusServiceUnavailable, app.do(http.MethodGet, "/health", nil).Code)

	w = app.do(http.MethodPost, "/api/v1/admin/maintenance/stop", gin.H{"username": "admin", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusOK, app.do(http.MethodGet, "/health", nil).Code)
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err      error
		expected int
	}{
		{models.ErrPatternNotFound, http.StatusNotFound},
		{models.ErrInvalidDateRange, http.StatusBadRequest},
		{models.ErrConcurrentUpdate, http.StatusConflict},
		{models.ErrJobRunning, http.StatusConflict},
		{models.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, statusFor(tc.err), tc.err.Error())
	}
}

type failingIndex struct{ services.NoopPatternIndex }

func (failingIndex) Upsert(context.Context, *models.Pattern) error { return errors.New("qdrant down") }
func (failingIndex) Remove(context.Context, ...string) error      { return errors.New("qdrant down") }

func TestSupersedeLogsIndexFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var logs bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&logs)
	defer func() { log.Logger = orig }()

	patterns := repository.NewMemoryPatternRepository()
	p := &models.Pattern{
		Scope:          models.ScopeGlobal,
		Type:           models.FactorHoliday,
		ExternalFactor: models.ExternalFactor{Type: models.ExtHoliday, HolidayName: "Thanksgiving"},
		IsActive:       true,
		Confidence:     80,
	}
	require.NoError(t, patterns.Create(context.Background(), p))

	r := gin.New()
	r.POST("/patterns/:id/supersede", NewPatternHandler(nil, nil, nil, patterns, failingIndex{}).SupersedePattern)

	req, _ := http.NewRequest(http.MethodPost, "/patterns/"+p.ID+"/supersede", bytes.NewBufferString(`{"change": 12}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, logs.String(), "qdrant down")
	assert.Contains(t, logs.String(), p.ID)
}
