// Package container wires repositories, providers and services from configuration.
package container

import (
	"context"
	"fmt"

	config "dinecast-api/configs"
	"dinecast-api/internal/database"
	"dinecast-api/pkg/azure"
	"dinecast-api/pkg/handlers"
	"dinecast-api/pkg/repository"
	"dinecast-api/pkg/repository/postgres"
	"dinecast-api/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Container はアプリケーションの依存関係を保持します
type Container struct {
	Config *config.Config

	DB       *sqlx.DB
	Registry *prometheus.Registry
	Metrics  *services.Metrics

	Restaurants  repository.RestaurantRepository
	Transactions repository.TransactionRepository
	Patterns     repository.PatternRepository
	Index        services.PatternIndex

	Guard      *services.ProviderGuard
	Collector  *services.ContextCollector
	Discovery  *services.DiscoveryService
	Validator  *services.ValidatorService
	Learning   *services.GlobalLearningService
	Prediction *services.PredictionService
	Importer   *services.TransactionImportService
	Monitoring *services.MonitoringService
	Job        *services.DiscoveryJob
}

// New 設定からすべての依存関係を構築する
// DATABASE_URL 未設定ならメモリストア、QDRANT_URL 未設定なら類似検索なし
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	c := &Container{Config: cfg, Registry: prometheus.NewRegistry()}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = services.NewMetrics(c.Registry)

	if err := c.initRepositories(ctx); err != nil {
		return nil, err
	}
	c.initIndex(ctx)
	c.initServices()
	return c, nil
}

func (c *Container) initRepositories(ctx context.Context) error {
	if c.Config.DatabaseURL == "" {
		log.Warn().Msg("⚠️ DATABASE_URL が未設定のためメモリストアを使用します（再起動でデータは失われます）")
		c.Restaurants = repository.NewMemoryRestaurantRepository()
		c.Transactions = repository.NewMemoryTransactionRepository()
		c.Patterns = repository.NewMemoryPatternRepository()
		return nil
	}

	db, err := postgres.Open(ctx, c.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if _, err := database.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	c.DB = db
	c.Restaurants = postgres.NewRestaurantRepo(db, postgres.DefaultQueryTimeout)
	c.Transactions = postgres.NewTransactionRepo(db, postgres.DefaultQueryTimeout)
	c.Patterns = postgres.NewPatternRepo(db, postgres.DefaultQueryTimeout)
	log.Info().Msg("✅ PostgreSQLストアを使用します")
	return nil
}

func (c *Container) initIndex(ctx context.Context) {
	c.Index = services.NoopPatternIndex{}
	if c.Config.QdrantURL == "" {
		return
	}
	idx, err := services.NewQdrantPatternIndex(ctx, c.Config.QdrantURL, c.Config.QdrantAPIKey)
	if err != nil {
		log.Error().Err(err).Msg("❌ Qdrantパターンインデックスの初期化に失敗しました（類似検索は無効）")
		return
	}
	c.Index = idx
}

func (c *Container) initServices() {
	cfg := c.Config
	c.Guard = services.NewProviderGuard(cfg.ProviderRPS, cfg.ProviderBurst, cfg.ProviderTimeout, c.Metrics)
	cache := services.NewContextCache(cfg.RedisAddr)

	owm := cfg.OpenWeatherMap()
	weather := services.NewFallbackWeatherProvider(
		services.NewOpenWeatherMapProvider(owm.APIKey, owm.BaseURL),
		services.NewSeasonalWeatherModel(), c.Guard, cache, c.Metrics)
	ev, sp := cfg.Events(), cfg.Sports()
	c.Collector = services.NewContextCollector(weather,
		services.NewEventsAPIProvider(ev.BaseURL, ev.APIKey),
		services.NewSportsAPIProvider(sp.BaseURL, sp.APIKey),
		services.NewCalendarHolidayProvider(), c.Guard, cfg.ContextConcurrency)

	c.Discovery = services.NewDiscoveryService(c.Restaurants, c.Transactions, c.Patterns, c.Collector, c.Metrics)
	c.Validator = services.NewValidatorService(c.Restaurants, c.Transactions, c.Patterns, c.Collector, c.Metrics, cfg.ValidationWindowDays)
	c.Learning = services.NewGlobalLearningService(c.Restaurants, c.Patterns, c.Index, c.Metrics)

	var llm services.ForecastSummarizer
	client := azure.NewOpenAIClient(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIAPIKey, cfg.AzureOpenAIAPIVersion, cfg.AzureOpenAIChatDeploymentName)
	if client.Configured() {
		llm = client
	}
	c.Prediction = services.NewPredictionService(services.PredictionDeps{
		Restaurants: c.Restaurants,
		Patterns:    c.Patterns,
		Baselines:   services.NewBaselineService(c.Transactions),
		Collector:   c.Collector,
		Narrative:   services.NewNarrativeService(llm),
	})
	c.Importer = services.NewTransactionImportService(c.Restaurants, c.Transactions)
	c.Monitoring = services.NewMonitoringService()
	c.Job = services.NewDiscoveryJob(c.Restaurants, c.Discovery, c.Validator, c.Learning, c.Metrics, cfg.JobLookbackDays).
		WithRecorder(c.Monitoring)
}

// Router HTTPルーターを構築する。jobCtx は管理APIから起動したジョブに渡される
func (c *Container) Router(jobCtx context.Context) *gin.Engine {
	return handlers.NewRouter(handlers.RouterDeps{
		APIKey:     c.Config.APIKey,
		Patterns:   handlers.NewPatternHandler(c.Discovery, c.Validator, c.Learning, c.Patterns, c.Index),
		Forecasts:  handlers.NewForecastHandler(c.Prediction),
		Imports:    handlers.NewImportHandler(c.Importer),
		Admin:      handlers.NewAdminHandler(c.Config, c.Job, jobCtx),
		Monitoring: handlers.NewMonitoringHandler(c.Monitoring),
		Gatherer:   c.Registry,
	})
}

// Close 外部リソースを解放
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
