package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dinecast-api/pkg/models"
	"dinecast-api/pkg/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// グローバル学習への貢献条件
const (
	minContributionAccuracy   = 70.0
	minContributionDataPoints = 20
)

// GlobalLearningService 高精度な店舗パターンを地域・グローバルに集約する
type GlobalLearningService struct {
	restaurants repository.RestaurantRepository
	patterns    repository.PatternRepository
	index       PatternIndex
	metrics     *Metrics
	now         func() time.Time
}

// NewGlobalLearningService 新しい集約サービス
func NewGlobalLearningService(restaurants repository.RestaurantRepository, patterns repository.PatternRepository, index PatternIndex, metrics *Metrics) *GlobalLearningService {
	if index == nil {
		index = NoopPatternIndex{}
	}
	return &GlobalLearningService{
		restaurants: restaurants,
		patterns:    patterns,
		index:       index,
		metrics:     metrics,
		now:         time.Now,
	}
}

// poolTarget 集約先のスコープ
type poolTarget struct {
	scope   models.PatternScope
	region  string
	cuisine string
}

// Contribute 店舗パターンをグローバル（および地域）パターンに反映する
func (s *GlobalLearningService) Contribute(ctx context.Context, restaurantID string) (*models.ContributionResult, error) {
	restaurant, err := s.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	own, err := s.patterns.FindRestaurantPatterns(ctx, restaurantID, models.PatternFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("店舗パターンの取得に失敗: %w", err)
	}

	targets := []poolTarget{{scope: models.ScopeGlobal}}
	if restaurant.State != "" {
		targets = append(targets, poolTarget{scope: models.ScopeRegional, region: restaurant.State, cuisine: restaurant.CuisineType})
	}

	result := &models.ContributionResult{}
	for _, p := range own {
		if p.Learning.Accuracy < minContributionAccuracy || p.Learning.DataPoints < minContributionDataPoints {
			result.Skipped++
			continue
		}
		for _, t := range targets {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			pooled, created, err := s.mergeInto(ctx, p, t)
			if err != nil {
				return result, err
			}
			if pooled == nil {
				result.Skipped++
				continue
			}
			if created {
				result.Created++
			} else {
				result.Merged++
			}
			if err := s.index.Upsert(ctx, pooled); err != nil {
				log.Warn().Err(err).Str("pattern_id", pooled.ID).Msg("⚠️ パターンインデックスの更新に失敗しました")
			}
		}
	}

	log.Info().Str("restaurant_id", restaurantID).Int("merged", result.Merged).Int("created", result.Created).
		Msg("🌐 グローバル学習への貢献が完了しました")
	return result, nil
}

// 集約パターン作成競合時の再試行回数
const poolCreateRetries = 3

// mergeInto 既存の集約パターンに統合、なければ複製して作成
// 同じ店舗の二重計上はしない（pooled=nil を返す）
// 同時作成で負けた場合は勝った側のパターンを探し直して統合する
func (s *GlobalLearningService) mergeInto(ctx context.Context, p *models.Pattern, t poolTarget) (pooled *models.Pattern, created bool, err error) {
	var existing *models.Pattern
	for attempt := 0; existing == nil; attempt++ {
		existing, err = s.patterns.FindPooled(ctx, t.scope, t.region, t.cuisine, p.Type, p.ExternalFactor.Type)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrPatternNotFound) {
			return nil, false, fmt.Errorf("集約パターンの検索に失敗: %w", err)
		}
		if attempt >= poolCreateRetries {
			return nil, false, fmt.Errorf("集約パターンの作成が競合し続けました: %w", models.ErrConcurrentUpdate)
		}

		clone := s.clonePooled(p, t)
		err = s.patterns.Create(ctx, clone)
		if err == nil {
			s.count(t.scope, "created")
			return clone, true, nil
		}
		if !errors.Is(err, models.ErrConcurrentUpdate) {
			return nil, false, fmt.Errorf("集約パターンの作成に失敗: %w", err)
		}
		log.Debug().Str("scope", string(t.scope)).Str("region", t.region).
			Msg("🔁 集約パターンが同時に作成されたため再検索します")
	}

	alreadyCounted := false
	merged, err := repository.MergeUpdate(ctx, s.patterns, existing.ID, func(cur *models.Pattern) error {
		alreadyCounted = cur.Learning.HasContributor(p.RestaurantID)
		if alreadyCounted {
			return nil
		}
		MergePooled(cur, p, s.now().UTC())
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("集約パターンの更新に失敗: %w", err)
	}
	if alreadyCounted {
		return nil, false, nil
	}
	s.count(t.scope, "merged")
	return merged, false, nil
}

// MergePooled 集約パターンに店舗パターンを取り込む
// 相関は n = 加算後の店舗数 での移動平均
func MergePooled(pooled, incoming *models.Pattern, now time.Time) {
	pooled.Learning.DataPoints += incoming.Learning.DataPoints
	pooled.Learning.RestaurantsContributing++
	n := float64(pooled.Learning.RestaurantsContributing)
	pooled.Statistics.Correlation = (pooled.Statistics.Correlation*(n-1) + incoming.Statistics.Correlation) / n
	pooled.Statistics.RSquared = pooled.Statistics.Correlation * pooled.Statistics.Correlation
	pooled.BusinessOutcome.Change = (pooled.BusinessOutcome.Change*(n-1) + incoming.BusinessOutcome.Change) / n
	pooled.Statistics.SampleSize += incoming.Statistics.SampleSize
	pooled.Learning.LastUpdated = now
	if incoming.RestaurantID != "" {
		pooled.Learning.ContributorIDs = append(pooled.Learning.ContributorIDs, incoming.RestaurantID)
	}
}

func (s *GlobalLearningService) clonePooled(p *models.Pattern, t poolTarget) *models.Pattern {
	now := s.now().UTC()
	c := p.Clone()
	c.ID = uuid.New().String()
	c.Scope = t.scope
	c.RestaurantID = ""
	c.Region = t.region
	c.CuisineType = t.cuisine
	c.Version = 1
	c.PreviousVersionID = ""
	c.TimesApplied = 0
	c.LastApplied = nil
	c.IsActive = true
	c.Learning.RestaurantsContributing = 1
	c.Learning.ContributorIDs = []string{p.RestaurantID}
	c.Learning.FirstDiscovered = now
	c.Learning.LastUpdated = now
	c.CreatedAt = time.Time{}
	c.Key = c.BuildKey()
	return c
}

func (s *GlobalLearningService) count(scope models.PatternScope, action string) {
	if s.metrics != nil {
		s.metrics.PatternsPooled.WithLabelValues(string(scope), action).Inc()
	}
}
