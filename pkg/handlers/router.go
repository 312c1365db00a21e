package handlers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// RouterDeps ルーター構築に必要なハンドラ
type RouterDeps struct {
	APIKey     string
	Patterns   *PatternHandler
	Forecasts  *ForecastHandler
	Imports    *ImportHandler
	Admin      *AdminHandler
	Monitoring *MonitoringHandler
	// Gatherer nilなら /metrics を公開しない
	Gatherer prometheus.Gatherer
}

// AuthMiddleware X-API-KEY ヘッダーを検証する（キー未設定なら素通し）
func AuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			log.Warn().Str("path", c.Request.URL.Path).Msg("❌ [認証] 無効なAPI Key")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// NewRouter cmd/server と api/index.go で共有するルーティング
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if deps.Monitoring != nil {
		r.Use(deps.Monitoring.Service.LoggingMiddleware())
	}
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "X-API-KEY")
	r.Use(cors.New(corsConfig))

	r.GET("/health", HealthCheck)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(deps.APIKey))
	{
		restaurants := v1.Group("/restaurants/:id")
		{
			if deps.Patterns != nil {
				restaurants.POST("/discover", deps.Patterns.Discover)
				restaurants.POST("/validate", deps.Patterns.Validate)
				restaurants.POST("/contribute", deps.Patterns.Contribute)
				restaurants.GET("/patterns", deps.Patterns.ListRestaurantPatterns)
			}
			if deps.Forecasts != nil {
				restaurants.POST("/predict", deps.Forecasts.Predict)
				restaurants.GET("/forecast/week", deps.Forecasts.WeekForecast)
				restaurants.GET("/baseline", deps.Forecasts.Baseline)
			}
			if deps.Imports != nil {
				restaurants.POST("/transactions/import", deps.Imports.ImportTransactions)
			}
		}

		if deps.Patterns != nil {
			patterns := v1.Group("/patterns")
			{
				patterns.GET("", deps.Patterns.ListScope)
				patterns.GET("/:id", deps.Patterns.GetPattern)
				patterns.GET("/:id/similar", deps.Patterns.SimilarPatterns)
				patterns.POST("/:id/supersede", deps.Patterns.SupersedePattern)
			}
		}

		// 管理者向けAPI
		if deps.Admin != nil {
			admin := v1.Group("/admin")
			{
				admin.GET("/health-status", deps.Admin.GetHealthStatus)
				admin.POST("/maintenance/start", deps.Admin.StartMaintenance)
				admin.POST("/maintenance/stop", deps.Admin.StopMaintenance)
				admin.POST("/jobs/discovery", deps.Admin.RunDiscoveryJob)
				admin.GET("/jobs/discovery", deps.Admin.GetDiscoveryJob)
			}
		}

		// モニタリングAPI
		if deps.Monitoring != nil {
			monitoring := v1.Group("/monitoring")
			{
				monitoring.GET("/logs", deps.Monitoring.GetLogs)
				monitoring.GET("/jobs", deps.Monitoring.GetJobs)
			}
		}
	}
	return r
}
