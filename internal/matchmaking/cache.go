package matchmaking

import (
	"sync"
	"time"
)

// Cache is a tiny in-memory cache for hint lists keyed by corridor, so the
// dashboard can poll without hammering the store.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	v  []Hint
	ts time.Time
}

// NewCache creates a cache with the provided TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

// Get returns the cached list and true if present and not expired.
func (c *Cache) Get(corridor string) ([]Hint, bool) {
	c.mu.RLock()
	e, ok := c.store[corridor]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, corridor)
		c.mu.Unlock()
		return nil, false
	}
	return e.v, true
}

// Set stores a list in the cache.
func (c *Cache) Set(corridor string, v []Hint) {
	c.mu.Lock()
	c.store[corridor] = cacheEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}
