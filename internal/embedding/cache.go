package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/agenthands/tuberag/internal/config"
)

// Cache stores query embeddings keyed by exact text. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vec []float32) error
}

// NewCache returns nil when caching is disabled.
func NewCache(ctx context.Context, cfg config.CacheConfig) (Cache, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(cfg.TTL.Duration), nil
	case "redis":
		c, err := NewRedisCache(ctx, cfg.RedisAddr, cfg.TTL.Duration)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryCache{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	vec, ok := v.([]float32)
	return vec, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	cp := make([]float32, len(vec))
	copy(cp, vec)
	m.c.SetDefault(key, cp)
	return nil
}

const redisKeyPrefix = "tuberag:qemb:"

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisCacheWithClient(client, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	b, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error reading cached embedding: %w", err)
	}
	vec, err := DecodeVector(b)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	if err := r.client.Set(ctx, redisKeyPrefix+key, EncodeVector(vec), r.ttl).Err(); err != nil {
		return fmt.Errorf("error caching embedding: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

type cached struct {
	Embedder
	cache Cache
}

// WithCache memoises query embeddings. Cache failures are logged and
// bypassed; hits with the wrong dimension count as misses.
func WithCache(e Embedder, c Cache) Embedder {
	if c == nil {
		return e
	}
	return cached{Embedder: e, cache: c}
}

func (c cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.Model(), text)

	vec, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("embedding cache read failed", "error", err)
	} else if ok && CheckVector(vec, c.Dimension()) == nil {
		return vec, nil
	}

	vec, err = c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, vec); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// CacheKey scopes entries by model so a model change never reuses vectors.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return model + ":" + hex.EncodeToString(sum[:])
}
