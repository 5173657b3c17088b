package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix = "idempotency:create-order:"
	idempotencyKeyTTL    = 24 * time.Hour
	pendingMarker        = "pending"
)

// RedisIdempotencyCache remembers which order an Idempotency-Key created.
type RedisIdempotencyCache struct {
	client redis.UniversalClient
}

func NewRedisIdempotencyCache(client redis.UniversalClient) *RedisIdempotencyCache {
	return &RedisIdempotencyCache{client: client}
}

func (r *RedisIdempotencyCache) Reserve(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, idempotencyKeyPrefix+key, pendingMarker, idempotencyKeyTTL).Result()
}

func (r *RedisIdempotencyCache) Complete(ctx context.Context, key string, orderID int64) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, orderID, idempotencyKeyTTL).Err()
}

func (r *RedisIdempotencyCache) Lookup(ctx context.Context, key string) (int64, bool, error) {
	value, err := r.client.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) || value == pendingMarker {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	orderID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return orderID, true, nil
}

func (r *RedisIdempotencyCache) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
