package carts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, 15*time.Minute), mr
}

func TestRedisCache_SetGet(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	cart := &Cart{UserID: "u1", Items: []CartItem{{ProductID: "X", Quantity: 1}}, Version: 3}
	require.NoError(t, cache.Set(ctx, "u1", cart))
	assert.True(t, mr.Exists("cart:u1"))

	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, cart.Items, got.Items)
	assert.Equal(t, int64(3), got.Version)
}

func TestRedisCache_Miss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	got, err := cache.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, got)
}

func TestRedisCache_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)

	data, err := json.Marshal(&Cart{UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, mr.Set("cart:u1", string(data[:5])))

	_, err = cache.Get(context.Background(), "u1")
	assert.ErrorContains(t, err, "unmarshal cart failed")
}

func TestRedisCache_TTLWithJitter(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), "u1", &Cart{UserID: "u1"}))

	ttl := mr.TTL("cart:u1")
	assert.GreaterOrEqual(t, ttl, 15*time.Minute)
	assert.LessOrEqual(t, ttl, 20*time.Minute)
}

func TestRedisCache_Invalidate(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "u1", &Cart{UserID: "u1", Version: 1}))
	require.NoError(t, cache.Invalidate(ctx, "u1", 2))
	assert.False(t, mr.Exists("cart:u1"))

	assert.NoError(t, cache.Invalidate(ctx, "never-set", 1))
}

func TestRedisCache_SetOlderThanInvalidatedIsDropped(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Invalidate(ctx, "u1", 5))

	require.NoError(t, cache.Set(ctx, "u1", &Cart{UserID: "u1", Version: 4}))
	assert.False(t, mr.Exists("cart:u1"))

	require.NoError(t, cache.Set(ctx, "u1", &Cart{UserID: "u1", Version: 5}))
	got, err := cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.Version)
}

func TestRedisCache_InvalidateNeverLowersFloor(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Invalidate(ctx, "u1", 7))
	require.NoError(t, cache.Invalidate(ctx, "u1", 3))

	floor, err := mr.Get("cart:u1:floor")
	require.NoError(t, err)
	assert.Equal(t, "7", floor)

	require.NoError(t, cache.Set(ctx, "u1", &Cart{UserID: "u1", Version: 6}))
	assert.False(t, mr.Exists("cart:u1"))
}
