package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port        string
	Environment string
	LogLevel    string
	APIKey      string

	AdminUsername string
	AdminPassword string

	DatabaseURL  string
	RedisAddr    string
	QdrantURL    string
	QdrantAPIKey string

	AzureOpenAIEndpoint           string
	AzureOpenAIAPIKey             string
	AzureOpenAIAPIVersion         string
	AzureOpenAIChatDeploymentName string

	OpenWeatherMapAPIKey  string
	OpenWeatherMapBaseURL string
	EventsAPIURL          string
	EventsAPIKey          string
	SportsAPIURL          string
	SportsAPIKey          string

	ProviderTimeout    time.Duration
	ProviderRPS        float64
	ProviderBurst      int
	ContextConcurrency int

	JobInterval          time.Duration
	JobLookbackDays      int
	ValidationWindowDays int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		APIKey:      getEnv("API_KEY", ""),

		AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisAddr:    getEnv("REDIS_ADDR", ""),
		QdrantURL:    getEnv("QDRANT_URL", ""),
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),

		AzureOpenAIEndpoint:           getEnv("AZURE_OPENAI_ENDPOINT", ""),
		AzureOpenAIAPIKey:             getEnv("AZURE_OPENAI_API_KEY", ""),
		AzureOpenAIAPIVersion:         getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
		AzureOpenAIChatDeploymentName: getEnv("AZURE_OPENAI_CHAT_DEPLOYMENT_NAME", "gpt-4o-mini"),

		OpenWeatherMapAPIKey:  getEnv("OPENWEATHERMAP_API_KEY", ""),
		OpenWeatherMapBaseURL: getEnv("OPENWEATHERMAP_BASE_URL", "https://api.openweathermap.org/data/3.0"),
		EventsAPIURL:          getEnv("EVENTS_API_URL", ""),
		EventsAPIKey:          getEnv("EVENTS_API_KEY", ""),
		SportsAPIURL:          getEnv("SPORTS_API_URL", ""),
		SportsAPIKey:          getEnv("SPORTS_API_KEY", ""),

		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 8*time.Second),
		ProviderRPS:        getEnvFloat("PROVIDER_RPS", 5),
		ProviderBurst:      getEnvInt("PROVIDER_BURST", 5),
		ContextConcurrency: getEnvInt("CONTEXT_CONCURRENCY", 4),

		JobInterval:          getEnvDuration("JOB_INTERVAL", 0),
		JobLookbackDays:      getEnvInt("JOB_LOOKBACK_DAYS", 90),
		ValidationWindowDays: getEnvInt("VALIDATION_WINDOW_DAYS", 30),
	}
}

// IsDevelopment 開発環境かどうか
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
