// Package dedupe guards the orchestrator's result handling against
// duplicate delivery of the same Result under the broker's at-least-once
// semantics, independent of the in-process correlation table (which
// already drops a second delivery within a single process lifetime but
// not across an orchestrator restart).
package dedupe

import (
	"context"
	"sync"
	"time"
)

// Cache records task ids that have already been processed, for a bounded
// TTL, and reports whether a given task id was already seen.
type Cache interface {
	// SeenAndMark reports whether taskID was already recorded, then
	// records it (with ttl) regardless of the prior state, so a second
	// call for the same id within ttl returns true.
	SeenAndMark(ctx context.Context, taskID string, ttl time.Duration) (bool, error)
}

// InMemoryCache is a process-local Cache, used when no Redis URL is
// configured. It does not survive a restart, unlike RedisCache.
type InMemoryCache struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// NewInMemoryCache constructs an empty InMemoryCache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{expires: make(map[string]time.Time)}
}

// SeenAndMark implements Cache.
func (c *InMemoryCache) SeenAndMark(_ context.Context, taskID string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if expiry, ok := c.expires[taskID]; ok && expiry.After(now) {
		return true, nil
	}
	c.expires[taskID] = now.Add(ttl)
	return false, nil
}
