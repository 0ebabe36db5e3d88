package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Cache is a process-wide TTL cache. It owns its own state and expiry check
// and is injected into callers rather than shared as a package global.
type Cache[V any] struct {
	mu   sync.RWMutex
	data map[string]entry[V]
	ttl  time.Duration
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{data: map[string]entry[V]{}, ttl: ttl}
}

// Get returns the cached value for key, or ok=false when the key is absent
// or its entry has outlived the TTL.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || time.Since(e.storedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, resetting its TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry[V]{value: value, storedAt: time.Now()}
}
