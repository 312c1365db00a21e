package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"

	"github.com/rs/zerolog/log"
)

// 予測に使うパターンの最低信頼度
const minApplyConfidence = 60.0

// PredictionService パターンを用いた売上予測
type PredictionService struct {
	restaurants repository.RestaurantRepository
	patterns    repository.PatternRepository
	baselines   *BaselineService
	collector   *ContextCollector
	narrative   *NarrativeService
	now         func() time.Time
}

// PredictionDeps 予測サービスの依存関係
type PredictionDeps struct {
	Restaurants repository.RestaurantRepository
	Patterns    repository.PatternRepository
	Baselines   *BaselineService
	Collector   *ContextCollector
	Narrative   *NarrativeService
}

// NewPredictionService 新しい予測サービス
func NewPredictionService(deps PredictionDeps) *PredictionService {
	return &PredictionService{
		restaurants: deps.Restaurants,
		patterns:    deps.Patterns,
		baselines:   deps.Baselines,
		collector:   deps.Collector,
		narrative:   deps.Narrative,
		now:         time.Now,
	}
}

// Baseline 店舗の現在のベースライン
func (s *PredictionService) Baseline(ctx context.Context, restaurantID string) (*models.Baseline, error) {
	r, err := s.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	return s.baselines.Compute(ctx, r, s.now())
}

// Predict 指定日の指標予測
func (s *PredictionService) Predict(ctx context.Context, in models.PredictionInput) ([]models.Prediction, error) {
	if in.Date.IsZero() {
		return nil, fmt.Errorf("%w: date is required", models.ErrInvalidInput)
	}
	r, err := s.restaurants.Get(ctx, in.RestaurantID)
	if err != nil {
		return nil, err
	}
	baseline, err := s.baselines.Compute(ctx, r, s.now())
	if err != nil {
		return nil, err
	}
	patterns, err := s.applicablePatterns(ctx, r)
	if err != nil {
		return nil, err
	}

	date := models.CivilDate(in.Date, r.Location())
	weather, err := validateConditions(in, date)
	if err != nil {
		return nil, err
	}

	day := dayContext{
		Date:         date,
		Weather:      weather,
		Events:       in.Events,
		HasMajorGame: in.HasMajorGame,
		Holiday:      in.Holiday,
	}
	preds, applied := predictDay(baseline, patterns, day)
	s.markApplied(ctx, applied)

	log.Info().Str("restaurant_id", r.ID).Str("date", day.Date.Format(models.DateLayout)).
		Int("patterns_applied", len(applied)).Msg("🔮 予測を生成しました")
	return preds, nil
}

// validateConditions 呼び出し側が指定した天気とイベントを検証する。天気の日付は省略可
func validateConditions(in models.PredictionInput, date time.Time) (*models.WeatherSnapshot, error) {
	var weather *models.WeatherSnapshot
	if in.Weather != nil {
		w := *in.Weather
		if w.Date == "" {
			w.Date = date.Format(models.DateLayout)
		}
		if err := validateStruct(&w); err != nil {
			return nil, err
		}
		weather = &w
	}
	for i := range in.Events {
		if err := validateStruct(&in.Events[i]); err != nil {
			return nil, err
		}
	}
	return weather, nil
}

// applicablePatterns 店舗に適用可能なパターンを具体性の高い順に取得し重複を除く
func (s *PredictionService) applicablePatterns(ctx context.Context, r *models.Restaurant) ([]*models.Pattern, error) {
	all, err := s.patterns.FindActiveForRestaurant(ctx, r.ID, r.State, r.CuisineType)
	if err != nil {
		return nil, fmt.Errorf("適用パターンの取得に失敗: %w", err)
	}
	return selectPatterns(all), nil
}

// specificityRank 店舗 → 地域+業態 → 地域 → グローバル+業態 → グローバル
func specificityRank(p *models.Pattern) int {
	switch p.Scope {
	case models.ScopeRestaurant:
		return 0
	case models.ScopeRegional:
		if p.CuisineType != "" {
			return 1
		}
		return 2
	default:
		if p.CuisineType != "" {
			return 3
		}
		return 4
	}
}

// selectPatterns 同じ要因のパターンは信頼度の最も高いものを残す
func selectPatterns(all []*models.Pattern) []*models.Pattern {
	sorted := append([]*models.Pattern(nil), all...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := specificityRank(sorted[i]), specificityRank(sorted[j])
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	best := make(map[string]int)
	out := make([]*models.Pattern, 0, len(sorted))
	for _, p := range sorted {
		if !p.IsActive {
			continue
		}
		key := string(p.Type) + "|" + p.ExternalFactor.Type + "|" + p.ExternalFactor.Discriminator()
		if idx, ok := best[key]; ok {
			if p.Confidence > out[idx].Confidence {
				out[idx] = p
			}
			continue
		}
		best[key] = len(out)
		out = append(out, p)
	}
	return out
}

// contribution 1パターン分の予測値
type contribution struct {
	value      float64
	confidence float64
	factor     models.PredictionFactor
}

type metricGroup struct {
	base          float64
	contributions []contribution
}

// metricBase パターンの指標に対するベースライン値
func metricBase(p *models.Pattern, b *models.Baseline, weekday time.Weekday) (key string, base float64) {
	dow, hasDow := b.DayOfWeekPatterns[weekday.String()]
	switch p.BusinessOutcome.Metric {
	case models.MetricAvgTicket:
		return models.MetricAvgTicket, b.AvgTicket
	case models.MetricTraffic:
		if hasDow && dow.Occurrences > 0 {
			return models.MetricTraffic, dow.AvgTransactions
		}
		return models.MetricTraffic, b.DailyAvgTransactions
	case models.MetricItemSales:
		return models.MetricItemSales + ":" + p.ExternalFactor.ItemName, p.BusinessOutcome.Baseline
	default:
		return models.MetricRevenue, revenueBase(b, weekday)
	}
}

func revenueBase(b *models.Baseline, weekday time.Weekday) float64 {
	if dow, ok := b.DayOfWeekPatterns[weekday.String()]; ok && dow.Occurrences > 0 {
		return dow.AvgRevenue
	}
	return b.DailyAvgRevenue
}

// baselineConfidence パターンが適用されない場合の信頼度
func baselineConfidence(b *models.Baseline) float64 {
	return round2(50 * clampRange(float64(b.DaysObserved)/baselineWindowDays, 0, 1))
}

// predictDay 条件が成立するパターンを適用し指標ごとに合成する
func predictDay(b *models.Baseline, patterns []*models.Pattern, day dayContext) ([]models.Prediction, []*models.Pattern) {
	groups := make(map[string]*metricGroup)
	var applied []*models.Pattern

	for _, p := range patterns {
		if p.Confidence < minApplyConfidence {
			continue
		}
		if matched, ok := matchesCondition(p, day); !ok || !matched {
			continue
		}
		key, base := metricBase(p, b, day.Date.Weekday())
		if base <= 0 {
			continue
		}
		change := p.BusinessOutcome.Change
		g := groups[key]
		if g == nil {
			g = &metricGroup{base: base}
			groups[key] = g
		}
		g.contributions = append(g.contributions, contribution{
			value:      base * (1 + change/100),
			confidence: p.Confidence,
			factor: models.PredictionFactor{
				Type:          string(p.Type),
				Description:   p.Pattern.Description,
				Impact:        round2(change),
				SourcePattern: p.ID,
				Scope:         string(p.Scope),
			},
		})
		applied = append(applied, p)
	}

	if _, ok := groups[models.MetricRevenue]; !ok {
		groups[models.MetricRevenue] = &metricGroup{base: revenueBase(b, day.Date.Weekday())}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == models.MetricRevenue || keys[j] == models.MetricRevenue {
			return keys[i] == models.MetricRevenue
		}
		return keys[i] < keys[j]
	})

	preds := make([]models.Prediction, 0, len(keys))
	for _, k := range keys {
		preds = append(preds, combine(k, groups[k], b))
	}
	return preds, applied
}

// combine 信頼度加重平均で合成
func combine(metric string, g *metricGroup, b *models.Baseline) models.Prediction {
	pred := models.Prediction{
		Metric:   metric,
		Baseline: round2(g.base),
		Factors:  []models.PredictionFactor{},
	}
	if len(g.contributions) == 0 {
		pred.PredictedValue = round2(g.base)
		pred.Confidence = baselineConfidence(b)
		return pred
	}

	var weighted, weights, confSum float64
	for _, c := range g.contributions {
		weighted += c.value * c.confidence
		weights += c.confidence
		confSum += c.confidence
		pred.Factors = append(pred.Factors, c.factor)
	}
	value := g.base
	if weights > 0 {
		value = weighted / weights
	}
	pred.PredictedValue = round2(value)
	pred.Confidence = round2(confSum / float64(len(g.contributions)))
	pred.Change = round2(percentChange(value, g.base))
	return pred
}

// markApplied 適用回数を記録（失敗しても予測は返す）
func (s *PredictionService) markApplied(ctx context.Context, applied []*models.Pattern) {
	now := s.now()
	seen := make(map[string]bool, len(applied))
	for _, p := range applied {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		_, err := repository.MergeUpdate(ctx, s.patterns, p.ID, func(stored *models.Pattern) error {
			stored.TimesApplied++
			t := now
			stored.LastApplied = &t
			return nil
		})
		if err != nil {
			log.Warn().Err(err).Str("pattern_id", p.ID).Msg("⚠️ パターン適用回数の更新に失敗")
		}
	}
}
