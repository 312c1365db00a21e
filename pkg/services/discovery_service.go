package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"

	"github.com/rs/zerolog/log"
)

// 発見に必要な最小取引数
const minDiscoveryTransactions = 30

// DiscoveryService 相関パターン発見エンジン
type DiscoveryService struct {
	restaurants  repository.RestaurantRepository
	transactions repository.TransactionRepository
	patterns     repository.PatternRepository
	collector    *ContextCollector
	metrics      *Metrics
	now          func() time.Time
}

// NewDiscoveryService 新しい発見サービス
func NewDiscoveryService(restaurants repository.RestaurantRepository, transactions repository.TransactionRepository,
	patterns repository.PatternRepository, collector *ContextCollector, metrics *Metrics) *DiscoveryService {
	return &DiscoveryService{
		restaurants:  restaurants,
		transactions: transactions,
		patterns:     patterns,
		collector:    collector,
		metrics:      metrics,
		now:          time.Now,
	}
}

// analysisInput 1回の発見処理で共有する入力
type analysisInput struct {
	restaurant *models.Restaurant
	loc        *time.Location
	txs        []models.Transaction
	daily      []models.DailyAggregate
	contexts   map[string]*models.ContextSnapshot
}

func (in *analysisInput) day(agg models.DailyAggregate) dayContext {
	return fromSnapshot(parseLocalDate(agg.Date, in.loc), in.contexts[agg.Date])
}

func (in *analysisInput) revenueMean() float64 {
	if len(in.daily) == 0 {
		return 0
	}
	var sum float64
	for _, d := range in.daily {
		sum += d.Revenue
	}
	return sum / float64(len(in.daily))
}

func emptyDiscoveryResult() *models.DiscoveryResult {
	return &models.DiscoveryResult{Patterns: []*models.Pattern{}}
}

// Discover 期間 [start, end) の取引と外部要因から相関パターンを発見する
func (s *DiscoveryService) Discover(ctx context.Context, restaurantID string, start, end time.Time) (*models.DiscoveryResult, error) {
	if !start.Before(end) {
		return nil, models.ErrInvalidDateRange
	}
	restaurant, err := s.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	txs, err := s.transactions.ListByRange(ctx, restaurantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("取引の取得に失敗: %w", err)
	}
	if len(txs) < minDiscoveryTransactions {
		log.Info().Str("restaurant_id", restaurantID).Int("transactions", len(txs)).
			Msg("📊 取引数が不足しているため発見をスキップします")
		return emptyDiscoveryResult(), nil
	}

	loc := restaurant.Location()
	in := &analysisInput{
		restaurant: restaurant,
		loc:        loc,
		txs:        txs,
		daily:      AggregateDaily(txs, loc),
	}

	dates := make([]time.Time, 0, len(in.daily))
	for _, d := range in.daily {
		dates = append(dates, parseLocalDate(d.Date, loc))
	}
	in.contexts, err = s.collector.Collect(ctx, restaurant, dates)
	if err != nil {
		return nil, fmt.Errorf("コンテキスト収集に失敗: %w", err)
	}

	candidates := s.analyze(in)
	log.Info().Str("restaurant_id", restaurantID).Int("days", len(in.daily)).Int("candidates", len(candidates)).
		Msg("🔍 相関分析が完了しました")

	return s.persist(ctx, candidates)
}

// DiscoverDates 店舗現地の日付キー [startKey, endKey) で発見を実行する
func (s *DiscoveryService) DiscoverDates(ctx context.Context, restaurantID, startKey, endKey string) (*models.DiscoveryResult, error) {
	restaurant, err := s.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	loc := restaurant.Location()
	start, err := time.ParseInLocation(models.DateLayout, startKey, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", models.ErrInvalidInput, startKey)
	}
	end, err := time.ParseInLocation(models.DateLayout, endKey, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", models.ErrInvalidInput, endKey)
	}
	return s.Discover(ctx, restaurantID, start, end)
}

// analyze 各要因ごとの分析を実行
func (s *DiscoveryService) analyze(in *analysisInput) []*models.Pattern {
	var stages []func(*analysisInput) []*models.Pattern
	if in.restaurant.HasLocation() {
		stages = append(stages,
			single(analyzeTemperature),
			single(analyzePrecipitation),
			single(analyzeWeatherQuality),
			single(analyzeEvents),
			single(analyzeSports),
			analyzeMenuItemWeather,
			analyzeMultiFactor,
		)
	} else {
		log.Warn().Str("restaurant_id", in.restaurant.ID).Msg("⚠️ 位置情報がないため天気に依存する分析をスキップします")
	}
	stages = append(stages, single(analyzeHolidays))

	now := s.now().UTC()
	out := make([]*models.Pattern, 0)
	for _, stage := range stages {
		for _, p := range stage(in) {
			finalizeCandidate(p, in.restaurant, now)
			out = append(out, p)
		}
	}
	return out
}

func single(fn func(*analysisInput) *models.Pattern) func(*analysisInput) []*models.Pattern {
	return func(in *analysisInput) []*models.Pattern {
		if p := fn(in); p != nil {
			return []*models.Pattern{p}
		}
		return nil
	}
}

// finalizeCandidate 店舗スコープの新規パターンとして共通項目を埋める
func finalizeCandidate(p *models.Pattern, r *models.Restaurant, now time.Time) {
	p.Scope = models.ScopeRestaurant
	p.RestaurantID = r.ID
	p.Region = r.State
	p.CuisineType = r.CuisineType
	p.IsActive = true
	p.Version = 1
	p.Confidence = p.Statistics.Confidence
	p.Learning = models.Learning{
		FirstDiscovered:         now,
		LastUpdated:             now,
		DataPoints:              p.Statistics.SampleSize,
		RestaurantsContributing: 1,
	}
	p.Normalize()
	p.Key = p.BuildKey()
}

// persist 既存パターンは方向の一致で検証し、新規は保存する
func (s *DiscoveryService) persist(ctx context.Context, candidates []*models.Pattern) (*models.DiscoveryResult, error) {
	result := emptyDiscoveryResult()
	for _, c := range candidates {
		existing, err := s.patterns.FindByKey(ctx, c.Key)
		switch {
		case errors.Is(err, models.ErrPatternNotFound):
			if err := s.patterns.Create(ctx, c); err != nil {
				return nil, fmt.Errorf("パターン保存に失敗: %w", err)
			}
			result.NewCount++
			result.Patterns = append(result.Patterns, c)
			s.count(c, "new")
		case err != nil:
			return nil, fmt.Errorf("既存パターンの検索に失敗: %w", err)
		case !existing.IsActive:
			// 無効化済みのパターンは新しいバージョンとして再発見する
			next, err := s.patterns.Supersede(ctx, existing.ID, func(p *models.Pattern) {
				p.BusinessOutcome = c.BusinessOutcome
				p.Statistics = c.Statistics
				p.Pattern = c.Pattern
				p.ExternalFactor = c.ExternalFactor
				p.Learning = c.Learning
				p.Confidence = c.Confidence
				p.TimesApplied = 0
				p.LastApplied = nil
			})
			if err != nil {
				return nil, fmt.Errorf("パターンの再作成に失敗: %w", err)
			}
			result.NewCount++
			result.Patterns = append(result.Patterns, next)
			s.count(next, "new")
		default:
			agrees := sameDirection(existing.BusinessOutcome.Change, c.BusinessOutcome.Change)
			updated, err := repository.MergeUpdate(ctx, s.patterns, existing.ID, func(p *models.Pattern) error {
				RecordOutcome(p, agrees, s.now().UTC())
				p.Learning.DataPoints += c.Statistics.SampleSize
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("既存パターンの更新に失敗: %w", err)
			}
			if agrees {
				result.ValidatedCount++
				s.count(updated, "validated")
			} else {
				result.InvalidatedCount++
				s.count(updated, "invalidated")
			}
			result.Patterns = append(result.Patterns, updated)
		}
	}
	return result, nil
}

func (s *DiscoveryService) count(p *models.Pattern, outcome string) {
	if s.metrics != nil {
		s.metrics.PatternsDiscovered.WithLabelValues(string(p.Type), outcome).Inc()
	}
}

func sameDirection(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}

// correlationStats 相関係数から統計量を組み立てる
func correlationStats(r float64, n int) models.Statistics {
	r = clampRange(r, -1, 1)
	p := simplifiedPValue(r, n)
	return models.Statistics{
		Correlation: round4(r),
		PValue:      round4(p),
		SampleSize:  n,
		Confidence:  round2(confidenceFromStats(p, n)),
		RSquared:    round4(r * r),
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func changeWord(change float64) string {
	if change >= 0 {
		return "increases"
	}
	return "decreases"
}

func outcomeText(metric string, change float64) string {
	return fmt.Sprintf("%s %s by %.1f%%", metricLabel(metric), changeWord(change), math.Abs(change))
}

func metricLabel(metric string) string {
	switch metric {
	case models.MetricAvgTicket:
		return "average ticket"
	case models.MetricItemSales:
		return "item sales"
	case models.MetricTraffic:
		return "traffic"
	}
	return "revenue"
}
