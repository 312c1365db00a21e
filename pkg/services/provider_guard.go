package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dinecast-api/pkg/models"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ProviderGuard 外部プロバイダー呼び出しのレート制限・サーキットブレーカー・タイムアウト
type ProviderGuard struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
	rps      float64
	burst    int
	timeout  time.Duration
	metrics  *Metrics
}

// NewProviderGuard 新しいガードを作成
func NewProviderGuard(rps float64, burst int, timeout time.Duration, metrics *Metrics) *ProviderGuard {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &ProviderGuard{
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		rps:      rps,
		burst:    burst,
		timeout:  timeout,
		metrics:  metrics,
	}
}

func (g *ProviderGuard) get(provider string) (*rate.Limiter, *gobreaker.CircuitBreaker) {
	g.mu.RLock()
	l, lok := g.limiters[provider]
	b, bok := g.breakers[provider]
	g.mu.RUnlock()
	if lok && bok {
		return l, b
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[provider]; ok {
		return l, g.breakers[provider]
	}

	l = rate.NewLimiter(rate.Limit(g.rps), g.burst)
	st := gobreaker.Settings{
		Name:     provider,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).
				Msg("⚠️ プロバイダーのサーキット状態が変化しました")
		},
	}
	b = gobreaker.NewCircuitBreaker(st)
	g.limiters[provider] = l
	g.breakers[provider] = b
	return l, b
}

// Do ガード付きでプロバイダーを呼び出す
// 失敗は ErrProviderUnavailable でラップされる
func (g *ProviderGuard) Do(ctx context.Context, provider string, fn func(ctx context.Context) (any, error)) (any, error) {
	limiter, breaker := g.get(provider)

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s rate limit wait: %v", models.ErrProviderUnavailable, provider, err)
	}

	res, err := breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		if g.metrics != nil {
			g.metrics.ProviderFailures.WithLabelValues(provider).Inc()
		}
		if errors.Is(err, models.ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", models.ErrProviderUnavailable, provider, err)
	}
	return res, nil
}

// State サーキットの状態
func (g *ProviderGuard) State(provider string) gobreaker.State {
	_, b := g.get(provider)
	return b.State()
}
