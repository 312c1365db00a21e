package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute メモリストア構成でコマンドを実行し出力を返す
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "QDRANT_URL", "REDIS_ADDR", "OPENWEATHERMAP_API_KEY", "EVENTS_API_URL", "SPORTS_API_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRestaurantUpsert(t *testing.T) {
	out, err := execute(t, "restaurant", "upsert", "--id", "r9", "--name", "Harbor Grill", "--lat", "42.36", "--lon", "-71.06", "--state", "MA")
	require.NoError(t, err)
	assert.Contains(t, out, "restaurant r9 saved")
}

func TestRestaurantImportMissingFile(t *testing.T) {
	_, err := execute(t, "restaurant", "import", "--id", "r9", "--file", "does-not-exist.csv")
	assert.Error(t, err)
}

func TestRunPrintsReport(t *testing.T) {
	out, err := execute(t, "run", "--lookback-days", "30")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.EqualValues(t, 0, report["processed"])
	assert.Equal(t, 30, cfg.JobLookbackDays)
}

func TestCheckProvidersUsesSeasonalModel(t *testing.T) {
	out, err := execute(t, "check-providers", "--lat", "35.68", "--lon", "139.69", "--date", "2026-08-01")
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Contains(t, result, "climate_band")
	assert.Contains(t, result, "seasonal_model")
	assert.Equal(t, "closed", result["weather_breaker"])
}

func TestCheckProvidersRejectsBadDate(t *testing.T) {
	_, err := execute(t, "check-providers", "--date", "08/01/2026")
	assert.Error(t, err)
}

func TestDiscoverUnknownRestaurant(t *testing.T) {
	_, err := execute(t, "discover", "--id", "ghost", "--days", "30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "restaurant not found")
}

func TestValidateRequiresID(t *testing.T) {
	_, err := execute(t, "validate", "--id", "")
	assert.Error(t, err)
}
