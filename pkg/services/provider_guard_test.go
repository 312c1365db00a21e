package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"dinecast-api/pkg/models"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderGuardTripsAfterConsecutiveFailures(t *testing.T) {
	g := NewProviderGuard(1000, 10, time.Second, nil)
	ctx := context.Background()
	calls := 0
	failing := func(context.Context) (any, error) {
		calls++
		return nil, errors.New("upstream 502")
	}

	for i := 0; i < 3; i++ {
		_, err := g.Do(ctx, "events", failing)
		assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State("events"))

	_, err := g.Do(ctx, "events", failing)
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.Equal(t, 3, calls, "open circuit must not call the provider")

	// 別プロバイダーは影響を受けない
	res, err := g.Do(ctx, "sports", func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, gobreaker.StateClosed, g.State("sports"))
}

func TestProviderGuardAppliesTimeout(t *testing.T) {
	g := NewProviderGuard(1000, 10, 20*time.Millisecond, nil)
	_, err := g.Do(context.Background(), "weather", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestProviderGuardCancelledContext(t *testing.T) {
	g := NewProviderGuard(0.001, 1, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	_, _ = g.Do(ctx, "weather", func(context.Context) (any, error) { return nil, nil })
	cancel()

	_, err := g.Do(ctx, "weather", func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}
