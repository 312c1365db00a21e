package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// テスト用の環境変数を設定
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("DATABASE_URL", "postgres://localhost/dinecast")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("PROVIDER_RPS", "2.5")
	t.Setenv("CONTEXT_CONCURRENCY", "8")
	t.Setenv("JOB_INTERVAL", "24h")
	t.Setenv("EVENTS_API_URL", "https://events.example.com")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "postgres://localhost/dinecast", cfg.DatabaseURL)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 2.5, cfg.ProviderRPS)
	assert.Equal(t, 8, cfg.ContextConcurrency)
	assert.Equal(t, 24*time.Hour, cfg.JobInterval)
	assert.True(t, cfg.Events().Enabled())
	assert.False(t, cfg.Sports().Enabled())
}

func TestLoadConfigDefaults(t *testing.T) {
	// 空文字はデフォルト扱い
	for _, key := range []string{"PORT", "ENVIRONMENT", "PROVIDER_TIMEOUT", "JOB_LOOKBACK_DAYS", "CONTEXT_CONCURRENCY"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 90, cfg.JobLookbackDays)
	assert.Equal(t, 4, cfg.ContextConcurrency)
	assert.Equal(t, time.Duration(0), cfg.JobInterval)
}

func TestLoadConfigInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("PROVIDER_BURST", "many")
	t.Setenv("PROVIDER_TIMEOUT", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.ProviderBurst)
	assert.Equal(t, 8*time.Second, cfg.ProviderTimeout)
}

func TestSetupLogger(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	SetupLogger(&Config{LogLevel: "warn", Environment: "production"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	SetupLogger(&Config{LogLevel: "nonsense", Environment: "production"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
