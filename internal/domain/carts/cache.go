package carts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	// Set stores cart unless a newer version was already invalidated.
	Set(ctx context.Context, userID string, cart *Cart) error
	// Invalidate drops the cached cart and refuses later Sets of any version
	// older than version.
	Invalidate(ctx context.Context, userID string, version int64) error
}

const jitterMax = 5 * time.Minute

// setIfCurrent writes the cart only when its version is not below the floor
// left by the last invalidation.
var setIfCurrent = redis.NewScript(`
local floor = redis.call('GET', KEYS[2])
if floor and tonumber(floor) > tonumber(ARGV[2]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// raiseFloor never lowers an existing floor.
var raiseFloor = redis.NewScript(`
local floor = redis.call('GET', KEYS[2])
if not floor or tonumber(floor) < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
end
redis.call('DEL', KEYS[1])
return 1
`)

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: ttl,
	}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, cart *Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	// jitter spreads expiry so hot carts do not all miss at once
	jitter := time.Duration(rand.Int63n(int64(jitterMax)))
	ttl := r.baseTTL + jitter
	keys := []string{cacheKey(userID), floorKey(userID)}
	if err := setIfCurrent.Run(ctx, r.client, keys, data, cart.Version, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, userID string, version int64) error {
	// The floor must outlive any cart entry a racing reader could still write.
	ttl := r.baseTTL + jitterMax
	keys := []string{cacheKey(userID), floorKey(userID)}
	if err := raiseFloor.Run(ctx, r.client, keys, version, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}

func floorKey(userID string) string {
	return fmt.Sprintf("cart:%s:floor", userID)
}
