package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/tuberag/internal/config"
)

func TestWithCache_HitSkipsEmbedder(t *testing.T) {
	inner := &MockEmbedder{Vector: []float32{1, 0, 0}, Dim: 3}
	e := WithCache(inner, NewMemoryCache(time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		vec, err := e.Embed(ctx, "what is a join?")
		require.NoError(t, err)
		assert.Equal(t, []float32{1, 0, 0}, vec)
	}
	assert.Equal(t, 1, inner.Calls)

	_, err := e.Embed(ctx, "what is a JOIN?")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Calls, "keys are exact text")
}

func TestWithCache_WrongDimensionIsMiss(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, CacheKey("mock-v1", "q"), []float32{1, 2}))

	inner := &MockEmbedder{Vector: []float32{1, 0, 0}, Dim: 3}
	vec, err := WithCache(inner, c).Embed(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
	assert.Equal(t, 1, inner.Calls)
}

func TestWithCache_FailingCacheIsBypassed(t *testing.T) {
	inner := &MockEmbedder{Vector: []float32{0, 1}, Dim: 2}
	vec, err := WithCache(inner, failingCache{}).Embed(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestWithCache_NilCache(t *testing.T) {
	inner := &MockEmbedder{Vector: []float32{0, 1}, Dim: 2}
	assert.Same(t, inner, WithCache(inner, nil))
}

func TestCacheKey_ScopedByModel(t *testing.T) {
	assert.NotEqual(t, CacheKey("a", "q"), CacheKey("b", "q"))
	assert.Equal(t, CacheKey("a", "q"), CacheKey("a", "q"))
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(context.Background(), config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = NewCache(context.Background(), config.CacheConfig{Backend: "memory", TTL: config.Duration{Duration: time.Minute}})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = NewCache(context.Background(), config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}
