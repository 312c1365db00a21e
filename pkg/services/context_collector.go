package services

import (
	"context"
	"sync"
	"time"

	"dinecast-api/pkg/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ContextCollector 日ごとの外部コンテキストを並列に収集する
type ContextCollector struct {
	weather     WeatherProvider
	events      EventsProvider
	sports      SportsProvider
	holidays    HolidayProvider
	guard       *ProviderGuard
	concurrency int
}

// NewContextCollector 新しいコレクター
func NewContextCollector(weather WeatherProvider, events EventsProvider, sports SportsProvider, holidays HolidayProvider, guard *ProviderGuard, concurrency int) *ContextCollector {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ContextCollector{
		weather:     weather,
		events:      events,
		sports:      sports,
		holidays:    holidays,
		guard:       guard,
		concurrency: concurrency,
	}
}

func (c *ContextCollector) guarded(ctx context.Context, provider string, fn func(ctx context.Context) (any, error)) (any, error) {
	if c.guard == nil {
		return fn(ctx)
	}
	return c.guard.Do(ctx, provider, fn)
}

// Collect 日付ごとのコンテキストを返す（キーは YYYY-MM-DD）
// 位置情報がない店舗は天気・イベント・スポーツを取得しない
func (c *ContextCollector) Collect(ctx context.Context, restaurant *models.Restaurant, dates []time.Time) (map[string]*models.ContextSnapshot, error) {
	return c.collect(ctx, restaurant, dates, nil)
}

// CollectForecast 予報天気を使って今後の日付のコンテキストを収集する
func (c *ContextCollector) CollectForecast(ctx context.Context, restaurant *models.Restaurant, dates []time.Time) (map[string]*models.ContextSnapshot, error) {
	forecast := make(map[string]*models.WeatherSnapshot, len(dates))
	if restaurant.HasLocation() && c.weather != nil && len(dates) > 0 {
		snaps, err := c.weather.GetForecast(ctx, *restaurant.Latitude, *restaurant.Longitude, dates[0], len(dates))
		if err != nil {
			log.Warn().Err(err).Str("restaurant_id", restaurant.ID).Msg("⚠️ 天気予報の取得に失敗")
		}
		for i := range snaps {
			forecast[snaps[i].Date] = &snaps[i]
		}
	}
	return c.collect(ctx, restaurant, dates, forecast)
}

func (c *ContextCollector) collect(ctx context.Context, restaurant *models.Restaurant, dates []time.Time,
	forecast map[string]*models.WeatherSnapshot) (map[string]*models.ContextSnapshot, error) {
	out := make(map[string]*models.ContextSnapshot, len(dates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, d := range dates {
		date := d
		g.Go(func() error {
			snap := c.collectDay(gctx, restaurant, date, forecast)
			mu.Lock()
			out[snap.Date] = snap
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	partial := 0
	for _, s := range out {
		if s.Partial {
			partial++
		}
	}
	log.Debug().Str("restaurant_id", restaurant.ID).Int("days", len(out)).Int("partial_days", partial).
		Msg("🔍 コンテキスト収集完了")
	return out, nil
}

// collectDay forecast が nil の場合は過去の天気を取得する
func (c *ContextCollector) collectDay(ctx context.Context, restaurant *models.Restaurant, date time.Time,
	forecast map[string]*models.WeatherSnapshot) *models.ContextSnapshot {
	snap := &models.ContextSnapshot{
		Date:   date.Format(models.DateLayout),
		Events: []models.Event{},
		Games:  []models.Game{},
	}

	if c.holidays != nil {
		if h, err := c.holidays.GetHoliday(ctx, date); err == nil {
			snap.Holiday = h
		}
	}

	if !restaurant.HasLocation() {
		return snap
	}
	lat, lon := *restaurant.Latitude, *restaurant.Longitude

	if forecast != nil {
		if w, ok := forecast[snap.Date]; ok {
			snap.Weather = w
		} else {
			snap.Partial = true
		}
	} else if c.weather != nil {
		w, err := c.weather.GetHistoricalWeather(ctx, lat, lon, date)
		if err != nil {
			snap.Partial = true
		} else {
			snap.Weather = w
		}
	}

	if c.events != nil {
		res, err := c.guarded(ctx, "events", func(ctx context.Context) (any, error) {
			return c.events.GetMajorEvents(ctx, lat, lon, date)
		})
		if err != nil {
			snap.Partial = true
			log.Debug().Err(err).Str("date", snap.Date).Msg("⚠️ イベント取得失敗、イベントなしとして扱います")
		} else {
			snap.Events = res.([]models.Event)
		}
	}

	if c.sports != nil {
		res, err := c.guarded(ctx, "sports", func(ctx context.Context) (any, error) {
			return c.sports.GetGamesOnDate(ctx, date, lat, lon, sportsRadiusMiles)
		})
		if err != nil {
			snap.Partial = true
			log.Debug().Err(err).Str("date", snap.Date).Msg("⚠️ 試合情報取得失敗、試合なしとして扱います")
		} else {
			snap.Games = res.([]models.Game)
			snap.HasMajorGame = hasMajorGame(snap.Games)
		}
	}
	return snap
}
