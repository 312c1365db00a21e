package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dinecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeasonalModelBandsDiffer(t *testing.T) {
	m := NewSeasonalWeatherModel()
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	tropical := m.Estimate(10, -80, jan)
	cool := m.Estimate(50, -80, jan)
	assert.Equal(t, "tropical", BandFor(10).Name)
	assert.Equal(t, "cool_temperate", BandFor(50).Name)
	assert.Greater(t, tropical.Temperature, cool.Temperature+20)

	// 南半球は季節が反転する
	north := m.Estimate(40, 0, jan)
	south := m.Estimate(-40, 0, jan)
	assert.Greater(t, south.Temperature, north.Temperature)
}

func TestSeasonalModelDeterministic(t *testing.T) {
	m := NewSeasonalWeatherModel()
	d := time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)

	a := m.Estimate(40.7, -74.0, d)
	b := m.Estimate(40.7, -74.0, d)
	assert.Equal(t, a, b)
	assert.True(t, a.Estimated)
	assert.Equal(t, SeasonalDataSource, a.DataSource)
	assert.Equal(t, "2026-07-04", a.Date)
	assert.GreaterOrEqual(t, a.Humidity, 0.0)
	assert.LessOrEqual(t, a.Humidity, 100.0)
	assert.NoError(t, validateStruct(&a))
}

func TestOpenWeatherMapHistorical(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/onecall/timemachine", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "imperial", r.URL.Query().Get("units"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"dt":1783166400,"temp":78.5,"humidity":60,"weather":[{"main":"Rain"}]}]}`))
	}))
	defer server.Close()

	p := NewOpenWeatherMapProvider("test-key", server.URL)
	s, err := p.GetHistoricalWeather(context.Background(), 40.7, -74.0, time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 78.5, s.Temperature)
	assert.Equal(t, models.ConditionRain, s.Condition)
	assert.True(t, s.IsRaining)
	assert.Equal(t, "openweathermap", s.DataSource)
}

func TestOpenWeatherMapForecastDailyTemp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"timezone":"UTC","daily":[
			{"dt":1783166400,"temp":{"day":81},"humidity":40,"weather":[{"main":"Clear"}]},
			{"dt":1783252800,"temp":{"day":70},"humidity":55,"weather":[{"main":"Clouds"}]},
			{"dt":1783339200,"temp":{"day":65},"humidity":70,"weather":[{"main":"Drizzle"}]}]}`))
	}))
	defer server.Close()

	p := NewOpenWeatherMapProvider("k", server.URL)
	days, err := p.GetForecast(context.Background(), 40.7, -74.0, time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC), 2)
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, 81.0, days[0].Temperature)
	assert.Equal(t, models.ConditionClear, days[0].Condition)
	assert.Equal(t, models.ConditionCloudy, days[1].Condition)
}

func TestOpenWeatherMapErrors(t *testing.T) {
	_, err := NewOpenWeatherMapProvider("", "http://unused").GetCurrentWeather(context.Background(), 0, 0)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()
	_, err = NewOpenWeatherMapProvider("k", server.URL).GetCurrentWeather(context.Background(), 0, 0)
	assert.Error(t, err)
}

// countingWeather 呼び出し回数を数える
type countingWeather struct {
	fakeWeather
	calls atomic.Int32
}

func (c *countingWeather) GetHistoricalWeather(ctx context.Context, lat, lon float64, date time.Time) (*models.WeatherSnapshot, error) {
	c.calls.Add(1)
	return c.fakeWeather.GetHistoricalWeather(ctx, lat, lon, date)
}

func TestFallbackWeatherUsesSeasonalModelOnFailure(t *testing.T) {
	primary := &fakeWeather{failing: true}
	f := NewFallbackWeatherProvider(primary, NewSeasonalWeatherModel(), nil, nil, nil)

	s, err := f.GetHistoricalWeather(context.Background(), 40.7, -74.0, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, s.Estimated)
	assert.Equal(t, SeasonalDataSource, s.DataSource)

	noPrimary := NewFallbackWeatherProvider(nil, NewSeasonalWeatherModel(), nil, nil, nil)
	days, err := noPrimary.GetForecast(context.Background(), 40.7, -74.0, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), 7)
	require.NoError(t, err)
	assert.Len(t, days, 7)
}

func TestFallbackForecastStartsAtRequestedLocalDay(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	seasonal := NewSeasonalWeatherModel()
	// サーバ時刻では既に翌日
	seasonal.now = func() time.Time { return time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC) }
	f := NewFallbackWeatherProvider(&fakeWeather{failing: true}, seasonal, nil, nil, nil)

	days, err := f.GetForecast(context.Background(), 34.05, -118.24, time.Date(2026, 10, 16, 0, 0, 0, 0, la), 7)
	require.NoError(t, err)
	require.Len(t, days, 7)
	assert.Equal(t, "2026-10-16", days[0].Date)
	assert.Equal(t, "2026-10-22", days[6].Date)
	for _, d := range days {
		assert.True(t, d.Estimated)
	}
}

func TestFallbackWeatherCachesHistorical(t *testing.T) {
	primary := &countingWeather{fakeWeather: fakeWeather{byDate: func(time.Time) *models.WeatherSnapshot {
		return &models.WeatherSnapshot{Temperature: 61, Condition: models.ConditionClear, DataSource: "openweathermap"}
	}}}
	f := NewFallbackWeatherProvider(primary, NewSeasonalWeatherModel(), nil, NewMemoryContextCache(), nil)
	d := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s, err := f.GetHistoricalWeather(context.Background(), 40.7, -74.0, d)
		require.NoError(t, err)
		assert.Equal(t, 61.0, s.Temperature)
	}
	assert.Equal(t, int32(1), primary.calls.Load())
}
