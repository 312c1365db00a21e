package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"time"

	"dinecast-api/pkg/models"
)

// SeasonalDataSource 季節モデル由来であることを示すデータソース名
const SeasonalDataSource = "seasonal_model"

// ClimateBand 緯度帯ごとの気候パラメータ（°F）
type ClimateBand struct {
	Name        string
	MaxLatitude float64
	MeanTemp    float64
	Amplitude   float64
	RainBase    float64
	RainSwing   float64
	WetPeakDoy  float64
}

// 北半球基準。南半球は半年ずらす
var climateBands = []ClimateBand{
	{Name: "tropical", MaxLatitude: 23.5, MeanTemp: 80, Amplitude: 4, RainBase: 0.35, RainSwing: 0.20, WetPeakDoy: 200},
	{Name: "subtropical", MaxLatitude: 35, MeanTemp: 68, Amplitude: 15, RainBase: 0.20, RainSwing: 0.08, WetPeakDoy: 15},
	{Name: "temperate", MaxLatitude: 45, MeanTemp: 56, Amplitude: 20, RainBase: 0.28, RainSwing: 0.05, WetPeakDoy: 100},
	{Name: "cool_temperate", MaxLatitude: 55, MeanTemp: 46, Amplitude: 24, RainBase: 0.33, RainSwing: 0.05, WetPeakDoy: 320},
	{Name: "subarctic", MaxLatitude: 90, MeanTemp: 33, Amplitude: 28, RainBase: 0.30, RainSwing: 0.05, WetPeakDoy: 250},
}

// 最も寒い日（北半球）
const coldestDoy = 15.0

// SeasonalWeatherModel 日付と緯度帯から天気を決定的に推定するモデル
// 実測値ではないため、結果は Estimated=true として扱う
type SeasonalWeatherModel struct {
	now func() time.Time
}

// NewSeasonalWeatherModel 新しい季節モデル
func NewSeasonalWeatherModel() *SeasonalWeatherModel {
	return &SeasonalWeatherModel{now: time.Now}
}

// BandFor 緯度に対応する気候帯
func BandFor(lat float64) ClimateBand {
	abs := math.Abs(lat)
	for _, b := range climateBands {
		if abs < b.MaxLatitude {
			return b
		}
	}
	return climateBands[len(climateBands)-1]
}

// Estimate 指定日の推定天気
func (m *SeasonalWeatherModel) Estimate(lat, lon float64, date time.Time) models.WeatherSnapshot {
	band := BandFor(lat)
	doy := float64(date.YearDay())
	phase := 0.0
	if lat < 0 {
		phase = 365.25 / 2
	}

	temp := band.MeanTemp - band.Amplitude*math.Cos(2*math.Pi*(doy-coldestDoy-phase)/365.25)
	rainP := band.RainBase + band.RainSwing*math.Cos(2*math.Pi*(doy-band.WetPeakDoy-phase)/365.25)

	dateKey := date.Format(models.DateLayout)
	u := unitHash(fmt.Sprintf("%s|%.0f|%.0f", dateKey, math.Round(lat), math.Round(lon)))
	// ±4°F の日々の揺らぎ
	temp += (unitHash(dateKey+"|t|"+band.Name) - 0.5) * 8

	s := models.WeatherSnapshot{
		Date:        dateKey,
		Temperature: math.Round(temp*10) / 10,
		Estimated:   true,
		DataSource:  SeasonalDataSource,
	}
	switch {
	case u < rainP:
		s.IsRaining = true
		s.Condition = models.ConditionRain
		if temp < 32 {
			s.Condition = models.ConditionSnow
		}
	case u < rainP+0.2:
		s.Condition = models.ConditionCloudy
	case u < rainP+0.35:
		s.Condition = models.ConditionPartlyCloudy
	default:
		s.Condition = models.ConditionClear
	}
	s.Humidity = clampRange(45+40*rainP+boolTo(s.IsRaining, 20), 0, 100)
	return s
}

// GetCurrentWeather WeatherProvider 実装
func (m *SeasonalWeatherModel) GetCurrentWeather(_ context.Context, lat, lon float64) (*models.WeatherSnapshot, error) {
	s := m.Estimate(lat, lon, m.now())
	return &s, nil
}

// GetHistoricalWeather WeatherProvider 実装
func (m *SeasonalWeatherModel) GetHistoricalWeather(_ context.Context, lat, lon float64, date time.Time) (*models.WeatherSnapshot, error) {
	s := m.Estimate(lat, lon, date)
	return &s, nil
}

// GetForecast WeatherProvider 実装
func (m *SeasonalWeatherModel) GetForecast(_ context.Context, lat, lon float64, start time.Time, days int) ([]models.WeatherSnapshot, error) {
	out := make([]models.WeatherSnapshot, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, m.Estimate(lat, lon, start.AddDate(0, 0, i)))
	}
	return out, nil
}

func unitHash(s string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return float64(h.Sum64()%10000) / 10000
}

func boolTo(b bool, v float64) float64 {
	if b {
		return v
	}
	return 0
}
