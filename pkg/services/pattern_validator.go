package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"

	"github.com/rs/zerolog/log"
)

// 検証の閾値
const (
	minRetestGroupDays    = 2
	minRetestTempDays     = 5
	deactivateAccuracy    = 40.0
	deactivateMinOutcomes = 20
)

// ValidatorService パターンを新しいデータで再検証する
type ValidatorService struct {
	restaurants  repository.RestaurantRepository
	transactions repository.TransactionRepository
	patterns     repository.PatternRepository
	collector    *ContextCollector
	metrics      *Metrics
	windowDays   int
	now          func() time.Time
}

// NewValidatorService 新しい検証サービス
func NewValidatorService(restaurants repository.RestaurantRepository, transactions repository.TransactionRepository,
	patterns repository.PatternRepository, collector *ContextCollector, metrics *Metrics, windowDays int) *ValidatorService {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &ValidatorService{
		restaurants:  restaurants,
		transactions: transactions,
		patterns:     patterns,
		collector:    collector,
		metrics:      metrics,
		windowDays:   windowDays,
		now:          time.Now,
	}
}

// RecordOutcome 検証結果を学習履歴に反映する
// accuracy < 40 かつ 合計 > 20 で無効化する
func RecordOutcome(p *models.Pattern, validated bool, now time.Time) {
	if validated {
		p.Learning.TimesValidated++
	} else {
		p.Learning.TimesInvalidated++
	}
	total := p.Learning.TimesValidated + p.Learning.TimesInvalidated
	p.Learning.Accuracy = float64(p.Learning.TimesValidated) / float64(total) * 100
	p.Confidence = math.Min(p.Learning.Accuracy*0.7+math.Min(float64(total)/100, 1)*30, 100)
	p.Learning.LastUpdated = now
	if p.Learning.Accuracy < deactivateAccuracy && total > deactivateMinOutcomes {
		p.IsActive = false
	}
}

// ValidatePatterns 直近の取引ウィンドウで再検証する
func (v *ValidatorService) ValidatePatterns(ctx context.Context, restaurantID string) (*models.ValidationResult, error) {
	end := v.now()
	start := end.AddDate(0, 0, -v.windowDays)
	txs, err := v.transactions.ListByRange(ctx, restaurantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("取引の取得に失敗: %w", err)
	}
	return v.Validate(ctx, restaurantID, txs)
}

type validationDay struct {
	ctx dayContext
	agg models.DailyAggregate
}

// Validate 店舗から見えるアクティブなパターンを新しい取引で再検証する
func (v *ValidatorService) Validate(ctx context.Context, restaurantID string, fresh []models.Transaction) (*models.ValidationResult, error) {
	restaurant, err := v.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	result := &models.ValidationResult{}
	if len(fresh) == 0 {
		return result, nil
	}

	patterns, err := v.patterns.FindActiveForRestaurant(ctx, restaurant.ID, restaurant.State, restaurant.CuisineType)
	if err != nil {
		return nil, fmt.Errorf("パターンの取得に失敗: %w", err)
	}
	if len(patterns) == 0 {
		return result, nil
	}

	loc := restaurant.Location()
	daily := AggregateDaily(fresh, loc)
	dates := make([]time.Time, 0, len(daily))
	for _, d := range daily {
		dates = append(dates, parseLocalDate(d.Date, loc))
	}
	contexts, err := v.collector.Collect(ctx, restaurant, dates)
	if err != nil {
		return nil, fmt.Errorf("コンテキスト収集に失敗: %w", err)
	}
	days := make([]validationDay, 0, len(daily))
	for i, agg := range daily {
		days = append(days, validationDay{ctx: fromSnapshot(dates[i], contexts[agg.Date]), agg: agg})
	}

	for _, p := range patterns {
		validated, ok := retest(p, days)
		if !ok {
			result.Skipped++
			continue
		}
		updated, err := repository.MergeUpdate(ctx, v.patterns, p.ID, func(cur *models.Pattern) error {
			if !cur.IsActive {
				return fmt.Errorf("pattern %s is no longer active", cur.ID)
			}
			RecordOutcome(cur, validated, v.now().UTC())
			return nil
		})
		if err != nil {
			result.Errors++
			log.Warn().Err(err).Str("pattern_id", p.ID).Msg("⚠️ パターン検証の更新に失敗しました")
			continue
		}
		if validated {
			result.Validated++
		} else {
			result.Invalidated++
		}
		if !updated.IsActive {
			result.Deactivated++
			log.Info().Str("pattern_id", p.ID).Float64("accuracy", updated.Learning.Accuracy).
				Msg("📉 精度低下によりパターンを無効化しました")
		}
		if v.metrics != nil {
			v.metrics.PatternsValidated.WithLabelValues(validationLabel(validated)).Inc()
		}
	}

	log.Info().Str("restaurant_id", restaurantID).Int("validated", result.Validated).
		Int("invalidated", result.Invalidated).Int("skipped", result.Skipped).Msg("✅ パターン検証が完了しました")
	return result, nil
}

func validationLabel(validated bool) string {
	if validated {
		return "validated"
	}
	return "invalidated"
}

// retest 新しいウィンドウで観測された方向が予測と一致するか
func retest(p *models.Pattern, days []validationDay) (validated, ok bool) {
	if p.ExternalFactor.Type == models.ExtTemperature {
		var temps, revenue []float64
		for _, d := range days {
			if d.ctx.Weather != nil {
				temps = append(temps, d.ctx.Weather.Temperature)
				revenue = append(revenue, d.agg.Revenue)
			}
		}
		if len(temps) < minRetestTempDays {
			return false, false
		}
		r, ok := pearsonCorrelation(temps, revenue)
		if !ok || r == 0 {
			return false, false
		}
		return sameDirection(r, p.BusinessOutcome.Change), true
	}

	var values []float64
	var flags []bool
	for _, d := range days {
		matched, known := matchesCondition(p, d.ctx)
		if !known {
			continue
		}
		if !matched && !inComparisonPool(p, d.ctx) {
			continue
		}
		values = append(values, metricValue(p, d.agg))
		flags = append(flags, matched)
	}
	g := compareGroups(values, flags)
	if len(g.matched) < minRetestGroupDays || len(g.others) < minRetestGroupDays || g.othersMean == 0 || g.changePct == 0 {
		return false, false
	}
	return sameDirection(g.changePct, p.BusinessOutcome.Change), true
}

// metricValue パターンの指標に対応する日次の値
func metricValue(p *models.Pattern, agg models.DailyAggregate) float64 {
	switch p.BusinessOutcome.Metric {
	case models.MetricAvgTicket:
		return agg.AvgTicket()
	case models.MetricTraffic:
		return float64(agg.TransactionCount)
	case models.MetricItemSales:
		return agg.ItemCounts[p.ExternalFactor.ItemCategory][p.ExternalFactor.ItemName]
	}
	return agg.Revenue
}
