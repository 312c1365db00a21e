package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"dinecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPattern(scope models.PatternScope, restaurantID string, confidence float64) *models.Pattern {
	return &models.Pattern{
		Scope:          scope,
		RestaurantID:   restaurantID,
		Type:           models.FactorWeather,
		ExternalFactor: models.ExternalFactor{Type: models.ExtTemperature},
		IsActive:       true,
		Confidence:     confidence,
	}
}

func TestMemoryPatternRepository_UpdateRejectsStaleRevision(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPatternRepository()
	p := newPattern(models.ScopeRestaurant, "r1", 60)
	require.NoError(t, repo.Create(ctx, p))
	assert.Equal(t, 1, p.Revision)

	a, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	b, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)

	a.Confidence = 70
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, 2, a.Revision)

	b.Confidence = 40
	assert.ErrorIs(t, repo.Update(ctx, b), models.ErrConcurrentUpdate)

	stored, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 70.0, stored.Confidence)

	assert.ErrorIs(t, repo.Update(ctx, &models.Pattern{ID: "missing"}), models.ErrPatternNotFound)
}

func TestMemoryPatternRepository_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPatternRepository()
	p := newPattern(models.ScopeGlobal, "", 80)
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	got.Confidence = 1

	again, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 80.0, again.Confidence)
}

func TestMergeUpdate_NoLostUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPatternRepository()
	p := newPattern(models.ScopeRestaurant, "r1", 70)
	require.NoError(t, repo.Create(ctx, p))

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := MergeUpdate(ctx, repo, p.ID, func(p *models.Pattern) error {
				p.TimesApplied++
				return nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	final, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Positive(t, succeeded)
	assert.Equal(t, succeeded, final.TimesApplied)
	assert.Equal(t, 1+succeeded, final.Revision)
}

func TestMergeUpdate_PropagatesErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPatternRepository()

	_, err := MergeUpdate(ctx, repo, "missing", func(*models.Pattern) error { return nil })
	assert.ErrorIs(t, err, models.ErrPatternNotFound)

	p := newPattern(models.ScopeRestaurant, "r1", 70)
	require.NoError(t, repo.Create(ctx, p))
	boom := errors.New("boom")
	_, err = MergeUpdate(ctx, repo, p.ID, func(*models.Pattern) error { return boom })
	assert.ErrorIs(t, err, boom)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = MergeUpdate(cancelled, repo, p.ID, func(*models.Pattern) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryPatternRepository_Supersede(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPatternRepository()
	p := newPattern(models.ScopeRestaurant, "r1", 75)
	p.BusinessOutcome.Change = 10
	require.NoError(t, repo.Create(ctx, p))

	next, err := repo.Supersede(ctx, p.ID, func(n *models.Pattern) { n.BusinessOutcome.Change = 14 })
	require.NoError(t, err)
	assert.NotEqual(t, p.ID, next.ID)
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, p.ID, next.PreviousVersionID)
	assert.Equal(t, 1, next.Revision)
	assert.True(t, next.IsActive)

	old, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, old.IsActive)
	assert.Equal(t, 1, old.Version)
	assert.Equal(t, 10.0, old.BusinessOutcome.Change)

	latest, err := repo.FindByKey(ctx, p.Key)
	require.NoError(t, err)
	assert.Equal(t, next.ID, latest.ID)

	_, err = repo.Supersede(ctx, "missing", nil)
	assert.ErrorIs(t, err, models.ErrPatternNotFound)

	// 退役済みバージョンからは分岐させない
	_, err = repo.Supersede(ctx, p.ID, nil)
	assert.ErrorIs(t, err, models.ErrConcurrentUpdate)

	active, err := repo.FindRestaurantPatterns(ctx, "r1", models.PatternFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, next.ID, active[0].ID)
}

func TestMemoryPatternRepository_SupersedeRequiresLatestVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPatternRepository()
	p := newPattern(models.ScopeRestaurant, "r1", 75)
	require.NoError(t, repo.Create(ctx, p))

	// 旧バージョンが有効なまま残っていても、新しいバージョンがあれば拒否する
	stale := p.Clone()
	stale.ID = "stale"
	stale.Version = 1
	v2 := p.Clone()
	v2.ID = "v2"
	v2.Version = 2
	repo.patterns[stale.ID] = stale
	repo.patterns[v2.ID] = v2

	_, err := repo.Supersede(ctx, stale.ID, nil)
	assert.ErrorIs(t, err, models.ErrConcurrentUpdate)
}

func TestMemoryPatternRepository_OneActivePooledPattern(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPatternRepository()

	first := newPattern(models.ScopeGlobal, "", 70)
	require.NoError(t, repo.Create(ctx, first))

	second := newPattern(models.ScopeGlobal, "", 60)
	assert.ErrorIs(t, repo.Create(ctx, second), models.ErrConcurrentUpdate)

	// 地域・料理が異なれば別の集約パターン
	regional := newPattern(models.ScopeRegional, "", 60)
	regional.Region = "CA"
	require.NoError(t, repo.Create(ctx, regional))

	// 店舗スコープは対象外
	require.NoError(t, repo.Create(ctx, newPattern(models.ScopeRestaurant, "r1", 60)))
	require.NoError(t, repo.Create(ctx, newPattern(models.ScopeRestaurant, "r1", 65)))

	dup := newPattern(models.ScopeRestaurant, "r1", 65)
	dup.ID = first.ID
	assert.ErrorIs(t, repo.Create(ctx, dup), models.ErrConcurrentUpdate)
}

func TestNextVersion(t *testing.T) {
	threshold := 75.0
	old := newPattern(models.ScopeRestaurant, "r1", 80)
	old.ID = "p1"
	old.Version = 3
	old.Revision = 9
	old.ExternalFactor.Threshold = &threshold

	next := NextVersion(old, func(n *models.Pattern) { *n.ExternalFactor.Threshold = 85 })
	assert.Equal(t, 4, next.Version)
	assert.Equal(t, 1, next.Revision)
	assert.Equal(t, "p1", next.PreviousVersionID)
	assert.Equal(t, 85.0, *next.ExternalFactor.Threshold)
	assert.Equal(t, 75.0, *old.ExternalFactor.Threshold)
	assert.NotEmpty(t, next.Key)
}

func TestMemoryPatternRepository_Visibility(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPatternRepository()

	own := newPattern(models.ScopeRestaurant, "r1", 60)
	other := newPattern(models.ScopeRestaurant, "r2", 90)
	regional := newPattern(models.ScopeRegional, "", 70)
	regional.Region = "northeast"
	regionalSushi := newPattern(models.ScopeRegional, "", 65)
	regionalSushi.Region = "northeast"
	regionalSushi.CuisineType = "sushi"
	global := newPattern(models.ScopeGlobal, "", 85)
	inactive := newPattern(models.ScopeGlobal, "", 99)
	inactive.IsActive = false
	for _, p := range []*models.Pattern{own, other, regional, regionalSushi, global, inactive} {
		require.NoError(t, repo.Create(ctx, p))
	}

	found, err := repo.FindActiveForRestaurant(ctx, "r1", "northeast", "italian")
	require.NoError(t, err)
	ids := make([]string, 0, len(found))
	for _, p := range found {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{global.ID, regional.ID, own.ID}, ids)

	found, err = repo.FindActiveForRestaurant(ctx, "r1", "", "sushi")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, global.ID, found[0].ID)

	pooled, err := repo.FindPooled(ctx, models.ScopeRegional, "northeast", "sushi", models.FactorWeather, models.ExtTemperature)
	require.NoError(t, err)
	assert.Equal(t, regionalSushi.ID, pooled.ID)

	_, err = repo.FindPooled(ctx, models.ScopeRegional, "west", "", models.FactorWeather, models.ExtTemperature)
	assert.ErrorIs(t, err, models.ErrPatternNotFound)
}

func TestMemoryTransactionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryTransactionRepository()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	n, err := repo.InsertBatch(ctx, []models.Transaction{
		{ID: "t1", RestaurantID: "r1", TransactionDate: start.Add(36 * time.Hour), TotalAmount: 20},
		{ID: "t2", RestaurantID: "r1", TransactionDate: start.Add(12 * time.Hour), TotalAmount: 10},
		{RestaurantID: "r1", TransactionDate: start.AddDate(0, 0, 7), TotalAmount: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = repo.InsertBatch(ctx, []models.Transaction{{ID: "t1", RestaurantID: "r1", TransactionDate: start}})
	require.NoError(t, err)
	assert.Zero(t, n)

	txs, err := repo.ListByRange(ctx, "r1", start, start.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "t2", txs[0].ID)

	count, err := repo.CountByRange(ctx, "r1", start, start.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = repo.CountByRange(ctx, "r2", start, start.AddDate(0, 0, 8))
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryRestaurantRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRestaurantRepository(
		&models.Restaurant{ID: "b", Active: true},
		&models.Restaurant{ID: "a", Active: true},
		&models.Restaurant{ID: "c", Active: false},
	)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)

	require.NoError(t, repo.Upsert(ctx, &models.Restaurant{ID: "c", Name: "Reopened", Active: true}))
	got, err := repo.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, "Reopened", got.Name)

	_, err = repo.Get(ctx, "zzz")
	assert.ErrorIs(t, err, models.ErrRestaurantNotFound)
}
