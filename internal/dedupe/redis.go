package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis, so duplicate-result detection
// survives an orchestrator restart. Each task id is recorded as a key with
// the given TTL; SETNX semantics make the check-and-mark atomic.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache constructs a RedisCache using client, namespacing keys
// under prefix (e.g. "taskmesh:dedupe:").
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// SeenAndMark implements Cache using SETNX: the first caller to mark a
// task id gets ok=true from SetNX (meaning it was not seen before) and we
// report seen=false; every subsequent caller within ttl gets ok=false and
// we report seen=true.
func (c *RedisCache) SeenAndMark(ctx context.Context, taskID string, ttl time.Duration) (bool, error) {
	key := c.prefix + taskID
	ok, err := c.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !ok, nil
}
