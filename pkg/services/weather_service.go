package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dinecast-api/pkg/models"

	"github.com/rs/zerolog/log"
)

// WeatherProvider 気象データの取得元
type WeatherProvider interface {
	GetCurrentWeather(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error)
	GetHistoricalWeather(ctx context.Context, lat, lon float64, date time.Time) (*models.WeatherSnapshot, error)
	// GetForecast start（店舗現地の日付）から days 日分
	GetForecast(ctx context.Context, lat, lon float64, start time.Time, days int) ([]models.WeatherSnapshot, error)
}

// OpenWeatherMapProvider OpenWeatherMap One Call API クライアント
type OpenWeatherMapProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenWeatherMapProvider 新しいOpenWeatherMapクライアントを作成
func NewOpenWeatherMapProvider(apiKey, baseURL string) *OpenWeatherMapProvider {
	return &OpenWeatherMapProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type owmWeather struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type owmPoint struct {
	Dt       int64           `json:"dt"`
	Temp     json.RawMessage `json:"temp"`
	Humidity float64         `json:"humidity"`
	Rain     json.RawMessage `json:"rain,omitempty"`
	Weather  []owmWeather    `json:"weather"`
}

// owmResponse onecall と timemachine の両方の形式を受ける
type owmResponse struct {
	Timezone string     `json:"timezone"`
	Current  *owmPoint  `json:"current,omitempty"`
	Data     []owmPoint `json:"data,omitempty"`
	Daily    []owmPoint `json:"daily,omitempty"`
}

func (p *OpenWeatherMapProvider) fetch(ctx context.Context, path string, params url.Values) (*owmResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: openweathermap api key not configured", models.ErrProviderUnavailable)
	}
	params.Set("appid", p.apiKey)
	params.Set("units", "imperial")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成エラー: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenWeatherMap API呼び出しエラー: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenWeatherMap API エラー: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取りエラー: %w", err)
	}
	var data owmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("JSONパースエラー: %w", err)
	}
	return &data, nil
}

func coordParams(lat, lon float64) url.Values {
	v := url.Values{}
	v.Set("lat", fmt.Sprintf("%.4f", lat))
	v.Set("lon", fmt.Sprintf("%.4f", lon))
	return v
}

// GetCurrentWeather 現在の天気
func (p *OpenWeatherMapProvider) GetCurrentWeather(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error) {
	params := coordParams(lat, lon)
	params.Set("exclude", "minutely,hourly,daily,alerts")
	data, err := p.fetch(ctx, "/onecall", params)
	if err != nil {
		return nil, err
	}
	if data.Current == nil {
		return nil, fmt.Errorf("%w: openweathermap returned no current block", models.ErrProviderUnavailable)
	}
	return toSnapshot(*data.Current, "openweathermap")
}

// GetHistoricalWeather 指定日の過去天気
func (p *OpenWeatherMapProvider) GetHistoricalWeather(ctx context.Context, lat, lon float64, date time.Time) (*models.WeatherSnapshot, error) {
	params := coordParams(lat, lon)
	// 現地の昼頃を代表値とする
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, date.Location())
	params.Set("dt", fmt.Sprintf("%d", noon.Unix()))
	data, err := p.fetch(ctx, "/onecall/timemachine", params)
	if err != nil {
		return nil, err
	}
	switch {
	case len(data.Data) > 0:
		return toSnapshot(data.Data[0], "openweathermap")
	case data.Current != nil:
		return toSnapshot(*data.Current, "openweathermap")
	}
	return nil, fmt.Errorf("%w: no historical weather for %s", models.ErrProviderUnavailable, date.Format(models.DateLayout))
}

// GetForecast 日次予報（最大8日）。API は地点の当日から返すため start より前の日は除く
func (p *OpenWeatherMapProvider) GetForecast(ctx context.Context, lat, lon float64, start time.Time, days int) ([]models.WeatherSnapshot, error) {
	params := coordParams(lat, lon)
	params.Set("exclude", "current,minutely,hourly,alerts")
	data, err := p.fetch(ctx, "/onecall", params)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if data.Timezone != "" {
		if l, err := time.LoadLocation(data.Timezone); err == nil {
			loc = l
		}
	}

	first := start.Format(models.DateLayout)
	forecast := make([]models.WeatherSnapshot, 0, days)
	for i, d := range data.Daily {
		if len(forecast) >= days {
			break
		}
		s, err := toSnapshotIn(d, "openweathermap", loc)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("⚠️ 予報データを検証できませんでした")
			continue
		}
		if s.Date < first {
			continue
		}
		forecast = append(forecast, *s)
	}
	return forecast, nil
}

func toSnapshot(pt owmPoint, source string) (*models.WeatherSnapshot, error) {
	return toSnapshotIn(pt, source, time.UTC)
}

func toSnapshotIn(pt owmPoint, source string, loc *time.Location) (*models.WeatherSnapshot, error) {
	temp, err := parseOWMTemp(pt.Temp)
	if err != nil {
		return nil, err
	}
	main := ""
	if len(pt.Weather) > 0 {
		main = pt.Weather[0].Main
	}
	condition := mapOWMCondition(main)
	s := &models.WeatherSnapshot{
		Date:        time.Unix(pt.Dt, 0).In(loc).Format(models.DateLayout),
		Temperature: temp,
		Condition:   condition,
		IsRaining:   condition == models.ConditionRain || condition == models.ConditionStorm || len(pt.Rain) > 0,
		Humidity:    pt.Humidity,
		DataSource:  source,
	}
	if err := validateStruct(s); err != nil {
		return nil, fmt.Errorf("気象データの検証エラー: %w", err)
	}
	return s, nil
}

// parseOWMTemp 数値または日次予報の {day: ...} 形式
func parseOWMTemp(raw json.RawMessage) (float64, error) {
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return v, nil
	}
	var daily struct {
		Day float64 `json:"day"`
	}
	if err := json.Unmarshal(raw, &daily); err != nil {
		return 0, fmt.Errorf("気温の解析に失敗: %w", err)
	}
	return daily.Day, nil
}

func mapOWMCondition(main string) string {
	switch strings.ToLower(main) {
	case "clear":
		return models.ConditionClear
	case "clouds":
		return models.ConditionCloudy
	case "rain", "drizzle":
		return models.ConditionRain
	case "thunderstorm":
		return models.ConditionStorm
	case "snow":
		return models.ConditionSnow
	default:
		return models.ConditionPartlyCloudy
	}
}

// FallbackWeatherProvider 実データ取得に失敗した場合は季節モデルで補完する
type FallbackWeatherProvider struct {
	primary  WeatherProvider
	seasonal *SeasonalWeatherModel
	guard    *ProviderGuard
	cache    ContextCache
	metrics  *Metrics
}

// NewFallbackWeatherProvider primaryがnilなら常に季節モデルを使う
func NewFallbackWeatherProvider(primary WeatherProvider, seasonal *SeasonalWeatherModel, guard *ProviderGuard, cache ContextCache, metrics *Metrics) *FallbackWeatherProvider {
	if cache == nil {
		cache = NewMemoryContextCache()
	}
	return &FallbackWeatherProvider{primary: primary, seasonal: seasonal, guard: guard, cache: cache, metrics: metrics}
}

func (f *FallbackWeatherProvider) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if f.primary == nil {
		return nil, fmt.Errorf("%w: no live weather provider", models.ErrProviderUnavailable)
	}
	if f.guard == nil {
		return fn(ctx)
	}
	return f.guard.Do(ctx, "weather", fn)
}

func (f *FallbackWeatherProvider) fallback(err error, lat, lon float64, date time.Time) *models.WeatherSnapshot {
	if f.metrics != nil {
		f.metrics.WeatherFallbacks.Inc()
	}
	if f.primary != nil {
		log.Debug().Err(err).Str("date", date.Format(models.DateLayout)).Msg("⚠️ 実天気を取得できないため季節モデルを使用")
	}
	s := f.seasonal.Estimate(lat, lon, date)
	return &s
}

// GetCurrentWeather 現在の天気
func (f *FallbackWeatherProvider) GetCurrentWeather(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error) {
	res, err := f.call(ctx, func(ctx context.Context) (any, error) {
		return f.primary.GetCurrentWeather(ctx, lat, lon)
	})
	if err != nil {
		return f.fallback(err, lat, lon, f.seasonal.now()), nil
	}
	return res.(*models.WeatherSnapshot), nil
}

// GetHistoricalWeather 過去の天気（キャッシュ付き）
func (f *FallbackWeatherProvider) GetHistoricalWeather(ctx context.Context, lat, lon float64, date time.Time) (*models.WeatherSnapshot, error) {
	key := fmt.Sprintf("weather:%.3f:%.3f:%s", lat, lon, date.Format(models.DateLayout))
	if b, ok := f.cache.Get(ctx, key); ok {
		var s models.WeatherSnapshot
		if err := json.Unmarshal(b, &s); err == nil {
			return &s, nil
		}
	}

	res, err := f.call(ctx, func(ctx context.Context) (any, error) {
		return f.primary.GetHistoricalWeather(ctx, lat, lon, date)
	})
	if err != nil {
		return f.fallback(err, lat, lon, date), nil
	}
	s := res.(*models.WeatherSnapshot)
	if b, err := json.Marshal(s); err == nil {
		// 過去の観測値は変わらない
		f.cache.Set(ctx, key, b, 30*24*time.Hour)
	}
	return s, nil
}

// GetForecast 予報（不足分は季節モデル）
func (f *FallbackWeatherProvider) GetForecast(ctx context.Context, lat, lon float64, start time.Time, days int) ([]models.WeatherSnapshot, error) {
	var live []models.WeatherSnapshot
	res, err := f.call(ctx, func(ctx context.Context) (any, error) {
		return f.primary.GetForecast(ctx, lat, lon, start, days)
	})
	if err == nil {
		live = res.([]models.WeatherSnapshot)
	}

	byDate := make(map[string]models.WeatherSnapshot, len(live))
	for _, s := range live {
		byDate[s.Date] = s
	}
	out := make([]models.WeatherSnapshot, 0, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		if s, ok := byDate[d.Format(models.DateLayout)]; ok {
			out = append(out, s)
			continue
		}
		out = append(out, *f.fallback(err, lat, lon, d))
	}
	return out, nil
}
