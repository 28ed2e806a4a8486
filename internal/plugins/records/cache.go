package records

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// distinctKeyPrefix is the Redis key prefix for cached distinct values.
const distinctKeyPrefix = "stream:distinct:"

// redisDistinctCache keeps DistinctValues results in Redis for a short TTL.
// Filter dropdowns hit this on every page load, and the underlying query
// scans the whole stream table.
type redisDistinctCache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisDistinctCache creates a DistinctCache. A non-positive ttl
// disables caching and returns nil.
func NewRedisDistinctCache(rdb *redis.Client, ttl time.Duration) DistinctCache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &redisDistinctCache{redis: rdb, ttl: ttl}
}

// Get returns cached values. Redis errors count as a miss.
func (c *redisDistinctCache) Get(ctx context.Context, column string) ([]string, bool) {
	data, err := c.redis.Get(ctx, distinctKeyPrefix+column).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("distinct cache read failed", slog.String("column", column), slog.Any("error", err))
		return nil, false
	}

	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		slog.Warn("distinct cache entry is corrupt", slog.String("column", column), slog.Any("error", err))
		return nil, false
	}
	return values, true
}

// Set stores values under the column key.
func (c *redisDistinctCache) Set(ctx context.Context, column string, values []string) {
	data, err := json.Marshal(values)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, distinctKeyPrefix+column, data, c.ttl).Err(); err != nil {
		slog.Warn("distinct cache write failed", slog.String("column", column), slog.Any("error", err))
	}
}
