// Package repository defines persistence ports for patterns, transactions
// and restaurant metadata, plus in-memory implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dinecast-api/pkg/models"
)

// PatternRepository パターンストア
type PatternRepository interface {
	Create(ctx context.Context, p *models.Pattern) error
	Get(ctx context.Context, id string) (*models.Pattern, error)
	// FindByKey 同一キーの最新バージョン（無効化済みを含む）
	FindByKey(ctx context.Context, key string) (*models.Pattern, error)
	// FindActiveForRestaurant 店舗自身・地域・グローバルのアクティブなパターン
	FindActiveForRestaurant(ctx context.Context, restaurantID, region, cuisine string) ([]*models.Pattern, error)
	FindByScope(ctx context.Context, scope models.PatternScope, minConfidence float64) ([]*models.Pattern, error)
	FindRestaurantPatterns(ctx context.Context, restaurantID string, filter models.PatternFilter) ([]*models.Pattern, error)
	// FindPooled 集約先となるアクティブな地域/グローバルパターン
	FindPooled(ctx context.Context, scope models.PatternScope, region, cuisine string, factorType models.FactorType, extType string) (*models.Pattern, error)
	// Update Revisionが一致する場合のみ保存し、Revisionを進める
	Update(ctx context.Context, p *models.Pattern) error
	// Supersede 新しいバージョンを作成し旧バージョンを無効化する
	Supersede(ctx context.Context, id string, changes func(p *models.Pattern)) (*models.Pattern, error)
}

// TransactionRepository 取引データ
type TransactionRepository interface {
	ListByRange(ctx context.Context, restaurantID string, start, end time.Time) ([]models.Transaction, error)
	CountByRange(ctx context.Context, restaurantID string, start, end time.Time) (int, error)
	InsertBatch(ctx context.Context, txs []models.Transaction) (int, error)
}

// RestaurantRepository 店舗メタデータ
type RestaurantRepository interface {
	Get(ctx context.Context, id string) (*models.Restaurant, error)
	ListActive(ctx context.Context) ([]*models.Restaurant, error)
	Upsert(ctx context.Context, r *models.Restaurant) error
}

// 楽観的更新の再試行回数
const mergeRetries = 5

// MergeUpdate 読み込み・変更・条件付き保存を競合時に再試行する
func MergeUpdate(ctx context.Context, repo PatternRepository, id string, fn func(p *models.Pattern) error) (*models.Pattern, error) {
	var lastErr error
	for attempt := 0; attempt < mergeRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(p); err != nil {
			return nil, err
		}
		err = repo.Update(ctx, p)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, models.ErrConcurrentUpdate) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("merge update %s: %w", id, lastErr)
}

// SamePool 集約パターンの識別子 (scope, region, cuisine, type, ext_type) が一致するか
// 有効な集約パターンはこの識別子ごとに1つだけ
func SamePool(a, b *models.Pattern) bool {
	return a.Scope == b.Scope && a.Region == b.Region && a.CuisineType == b.CuisineType &&
		a.Type == b.Type && a.ExternalFactor.Type == b.ExternalFactor.Type
}

// visibleTo 店舗から参照可能なパターンか
func visibleTo(p *models.Pattern, restaurantID, region, cuisine string) bool {
	switch p.Scope {
	case models.ScopeRestaurant:
		return p.RestaurantID == restaurantID
	case models.ScopeRegional:
		return region != "" && p.Region == region && (p.CuisineType == "" || p.CuisineType == cuisine)
	case models.ScopeGlobal:
		return p.CuisineType == "" || p.CuisineType == cuisine
	}
	return false
}
