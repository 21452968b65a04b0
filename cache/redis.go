package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beacondeck/beacon-go/internal/logging"
)

const redisKeyPrefix = "beacon:"

// Redis is a durable Store backed by a Redis server, for deployments that
// share one rule-set cache across processes. Expiry is delegated to Redis
// key TTLs. All keys are namespaced under "beacon:" so Clear never
// touches unrelated data.
type Redis struct {
	client *redis.Client
	log    *slog.Logger
}

// NewRedis wraps an already-connected client. The store never closes the
// client; its lifecycle belongs to the caller.
func NewRedis(client *redis.Client, log *slog.Logger) *Redis {
	if log == nil {
		log = logging.Discard()
	}
	return &Redis{client: client, log: log}
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	value, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("redis cache read failed", "key", key, "error", err)
		}
		return "", false
	}
	return value, true
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		r.log.Warn("redis cache write failed", "key", key, "error", err)
	}
}

// Has implements Store.
func (r *Redis) Has(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		r.log.Warn("redis cache exists failed", "key", key, "error", err)
		return false
	}
	return n > 0
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		r.log.Warn("redis cache delete failed", "key", key, "error", err)
	}
}

// Clear implements Store. Removes every key in the beacon namespace.
func (r *Redis) Clear(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.log.Warn("redis cache clear failed", "key", iter.Val(), "error", err)
		}
	}
	if err := iter.Err(); err != nil {
		r.log.Warn("redis cache scan failed", "error", err)
	}
}
