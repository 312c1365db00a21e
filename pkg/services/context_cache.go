package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ContextCache プロバイダー応答のキャッシュ
type ContextCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memoryEntry struct {
	b   []byte
	exp time.Time
}

// MemoryContextCache プロセス内キャッシュ
type MemoryContextCache struct {
	mu sync.RWMutex
	m  map[string]memoryEntry
}

// NewMemoryContextCache 新しいメモリキャッシュ
func NewMemoryContextCache() *MemoryContextCache {
	return &MemoryContextCache{m: make(map[string]memoryEntry)}
}

func (c *MemoryContextCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *MemoryContextCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

// RedisContextCache 実行をまたいで共有するキャッシュ
type RedisContextCache struct {
	client redis.Cmdable
	prefix string
}

// NewRedisContextCache Redisキャッシュを作成
func NewRedisContextCache(client redis.Cmdable) *RedisContextCache {
	return &RedisContextCache{client: client, prefix: "dinecast:ctx:"}
}

func (r *RedisContextCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("key", key).Msg("Redisキャッシュ取得に失敗")
		}
		return nil, false
	}
	return v, true
}

func (r *RedisContextCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, val, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Redisキャッシュ保存に失敗")
	}
}

// NewContextCache REDIS_ADDRがあればRedis、なければメモリ
func NewContextCache(redisAddr string) ContextCache {
	if redisAddr != "" {
		log.Info().Str("addr", redisAddr).Msg("✅ Redisコンテキストキャッシュを使用します")
		return NewRedisContextCache(redis.NewClient(&redis.Options{Addr: redisAddr}))
	}
	return NewMemoryContextCache()
}
