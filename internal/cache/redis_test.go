package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/cartsync/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cache := NewRedisCache(client, 0)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return cache, mr, cleanup
}

func items() []domain.LineItem {
	return []domain.LineItem{
		{ProductID: "1", Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
		{ProductID: "2", Quantity: 3, UnitPrice: decimal.NewFromInt(20)},
	}
}

func TestGet_Success(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	data, _ := json.Marshal(items())
	require.NoError(t, mr.Set(cacheKey("user123"), string(data)))

	result, err := cache.Get(context.Background(), "user123")
	require.NoError(t, err)
	assert.Len(t, result, 2)
	assert.Equal(t, "1", result[0].ProductID)
	assert.Equal(t, 3, result[1].Quantity)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _, cleanup := setupTestRedis(t)
	defer cleanup()

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	data, _ := json.Marshal(items())
	require.NoError(t, mr.Set(cacheKey("user123"), string(data[:10])))

	_, err := cache.Get(context.Background(), "user123")
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestSet_WithTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, cache.Set(context.Background(), "user789", nil))

	stored, err := mr.Get(cacheKey("user789"))
	require.NoError(t, err)
	assert.Equal(t, "[]", stored)

	ttl := mr.TTL(cacheKey("user789"))
	assert.True(t, ttl >= 15*time.Minute, "TTL should be at least base TTL")
	assert.True(t, ttl < 20*time.Minute, "TTL should be below base + max jitter")
}

func TestSet_ExpiresAfterTTL(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "u1", items()))
	mr.FastForward(21 * time.Minute)

	_, err := cache.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestDelete(t *testing.T) {
	cache, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "user999", items()))
	assert.True(t, mr.Exists(cacheKey("user999")))

	require.NoError(t, cache.Delete(ctx, "user999"))
	assert.False(t, mr.Exists(cacheKey("user999")))

	assert.NoError(t, cache.Delete(ctx, "nonexistent"))
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "cart:user:test123", cacheKey("test123"))
}
