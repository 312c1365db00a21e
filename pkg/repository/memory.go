package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dinecast-api/pkg/models"

	"github.com/google/uuid"
)

// MemoryPatternRepository メモリ上のパターンストア
type MemoryPatternRepository struct {
	mu       sync.RWMutex
	patterns map[string]*models.Pattern
}

// NewMemoryPatternRepository 新しいメモリストア
func NewMemoryPatternRepository() *MemoryPatternRepository {
	return &MemoryPatternRepository{patterns: make(map[string]*models.Pattern)}
}

func (r *MemoryPatternRepository) Create(_ context.Context, p *models.Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	} else if _, exists := r.patterns[p.ID]; exists {
		return models.ErrConcurrentUpdate
	}
	if p.IsActive && p.Scope != models.ScopeRestaurant {
		for _, cur := range r.patterns {
			if cur.IsActive && SamePool(cur, p) {
				return models.ErrConcurrentUpdate
			}
		}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Revision = 1
	p.Normalize()
	r.patterns[p.ID] = p.Clone()
	return nil
}

func (r *MemoryPatternRepository) Get(_ context.Context, id string) (*models.Pattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patterns[id]
	if !ok {
		return nil, models.ErrPatternNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryPatternRepository) FindByKey(_ context.Context, key string) (*models.Pattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *models.Pattern
	for _, p := range r.patterns {
		if p.Key != key {
			continue
		}
		if latest == nil || p.Version > latest.Version {
			latest = p
		}
	}
	if latest == nil {
		return nil, models.ErrPatternNotFound
	}
	return latest.Clone(), nil
}

func (r *MemoryPatternRepository) FindActiveForRestaurant(_ context.Context, restaurantID, region, cuisine string) ([]*models.Pattern, error) {
	return r.filter(func(p *models.Pattern) bool {
		return p.IsActive && visibleTo(p, restaurantID, region, cuisine)
	}), nil
}

func (r *MemoryPatternRepository) FindByScope(_ context.Context, scope models.PatternScope, minConfidence float64) ([]*models.Pattern, error) {
	return r.filter(func(p *models.Pattern) bool {
		return p.IsActive && p.Scope == scope && p.Confidence >= minConfidence
	}), nil
}

func (r *MemoryPatternRepository) FindRestaurantPatterns(_ context.Context, restaurantID string, f models.PatternFilter) ([]*models.Pattern, error) {
	return r.filter(func(p *models.Pattern) bool {
		if p.Scope != models.ScopeRestaurant || p.RestaurantID != restaurantID {
			return false
		}
		if f.ActiveOnly && !p.IsActive {
			return false
		}
		if f.Type != "" && p.Type != f.Type {
			return false
		}
		return p.Confidence >= f.MinConfidence
	}), nil
}

func (r *MemoryPatternRepository) FindPooled(_ context.Context, scope models.PatternScope, region, cuisine string, factorType models.FactorType, extType string) (*models.Pattern, error) {
	found := r.filter(func(p *models.Pattern) bool {
		return p.IsActive && p.Scope == scope && p.Region == region && p.CuisineType == cuisine &&
			p.Type == factorType && p.ExternalFactor.Type == extType
	})
	if len(found) == 0 {
		return nil, models.ErrPatternNotFound
	}
	return found[0], nil
}

func (r *MemoryPatternRepository) Update(_ context.Context, p *models.Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(p)
}

func (r *MemoryPatternRepository) updateLocked(p *models.Pattern) error {
	cur, ok := r.patterns[p.ID]
	if !ok {
		return models.ErrPatternNotFound
	}
	if cur.Revision != p.Revision {
		return models.ErrConcurrentUpdate
	}
	// version はSupersede以外で変えない
	p.Version = cur.Version
	p.Revision++
	p.UpdatedAt = time.Now().UTC()
	p.Normalize()
	r.patterns[p.ID] = p.Clone()
	return nil
}

func (r *MemoryPatternRepository) Supersede(_ context.Context, id string, changes func(p *models.Pattern)) (*models.Pattern, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.patterns[id]
	if !ok {
		return nil, models.ErrPatternNotFound
	}
	if !old.IsActive {
		return nil, fmt.Errorf("pattern %s is not the active version: %w", id, models.ErrConcurrentUpdate)
	}
	for _, p := range r.patterns {
		if p.Key == old.Key && p.Version > old.Version {
			return nil, fmt.Errorf("pattern %s already superseded by %s: %w", id, p.ID, models.ErrConcurrentUpdate)
		}
	}
	next := NextVersion(old, changes)

	retired := old.Clone()
	retired.IsActive = false
	if err := r.updateLocked(retired); err != nil {
		return nil, err
	}
	r.patterns[next.ID] = next.Clone()
	return next, nil
}

// NextVersion 旧パターンから次のバージョンを作る（IDは新規、Version+1）
func NextVersion(old *models.Pattern, changes func(p *models.Pattern)) *models.Pattern {
	now := time.Now().UTC()
	next := old.Clone()
	if changes != nil {
		changes(next)
	}
	next.ID = uuid.New().String()
	next.Version = old.Version + 1
	next.PreviousVersionID = old.ID
	next.IsActive = true
	next.Revision = 1
	next.CreatedAt = now
	next.UpdatedAt = now
	next.Key = ""
	next.Normalize()
	return next
}

func (r *MemoryPatternRepository) filter(pred func(p *models.Pattern) bool) []*models.Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Pattern, 0)
	for _, p := range r.patterns {
		if pred(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MemoryTransactionRepository メモリ上の取引ストア
type MemoryTransactionRepository struct {
	mu  sync.RWMutex
	txs map[string][]models.Transaction
}

// NewMemoryTransactionRepository 新しい取引ストア
func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{txs: make(map[string][]models.Transaction)}
}

func (r *MemoryTransactionRepository) ListByRange(_ context.Context, restaurantID string, start, end time.Time) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Transaction, 0)
	for _, tx := range r.txs[restaurantID] {
		if !tx.TransactionDate.Before(start) && tx.TransactionDate.Before(end) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.Before(out[j].TransactionDate) })
	return out, nil
}

func (r *MemoryTransactionRepository) CountByRange(ctx context.Context, restaurantID string, start, end time.Time) (int, error) {
	txs, err := r.ListByRange(ctx, restaurantID, start, end)
	return len(txs), err
}

func (r *MemoryTransactionRepository) InsertBatch(_ context.Context, txs []models.Transaction) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		} else if r.hasLocked(tx.RestaurantID, tx.ID) {
			continue
		}
		r.txs[tx.RestaurantID] = append(r.txs[tx.RestaurantID], tx)
		inserted++
	}
	return inserted, nil
}

func (r *MemoryTransactionRepository) hasLocked(restaurantID, id string) bool {
	for _, tx := range r.txs[restaurantID] {
		if tx.ID == id {
			return true
		}
	}
	return false
}

// MemoryRestaurantRepository メモリ上の店舗ストア
type MemoryRestaurantRepository struct {
	mu          sync.RWMutex
	restaurants map[string]*models.Restaurant
}

// NewMemoryRestaurantRepository 新しい店舗ストア
func NewMemoryRestaurantRepository(restaurants ...*models.Restaurant) *MemoryRestaurantRepository {
	r := &MemoryRestaurantRepository{restaurants: make(map[string]*models.Restaurant)}
	for _, rest := range restaurants {
		c := *rest
		r.restaurants[rest.ID] = &c
	}
	return r
}

func (r *MemoryRestaurantRepository) Get(_ context.Context, id string) (*models.Restaurant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rest, ok := r.restaurants[id]
	if !ok {
		return nil, models.ErrRestaurantNotFound
	}
	c := *rest
	return &c, nil
}

func (r *MemoryRestaurantRepository) ListActive(_ context.Context) ([]*models.Restaurant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Restaurant, 0, len(r.restaurants))
	for _, rest := range r.restaurants {
		if rest.Active {
			c := *rest
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRestaurantRepository) Upsert(_ context.Context, rest *models.Restaurant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *rest
	r.restaurants[rest.ID] = &c
	return nil
}
