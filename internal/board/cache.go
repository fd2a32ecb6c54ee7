package board

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value any
	at    time.Time
}

// cache keeps responses by request key so revisiting a coin or range within
// the stale time does not refetch.
type cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newCache() *cache {
	return &cache{entries: make(map[string]cacheEntry)}
}

// get returns the value stored under key if it is younger than ttl.
// Expired entries are dropped.
func (c *cache) get(key string, ttl time.Duration, now time.Time) (any, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	if now.Sub(e.at) >= ttl {
		delete(c.entries, key)
		return nil, time.Time{}, false
	}
	return e.value, e.at, true
}

func (c *cache) put(key string, v any, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: v, at: at}
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
