package estimate

import (
	"sync"
	"time"

	"github.com/wattwise/wattwise/pkg/types"
)

// Cache memoizes estimate responses. It is an explicitly owned object passed
// into the Orchestrator, never package-level state, so tests construct a
// fresh instance per case. Hits and misses are observably identical in
// result value: the cache is a boundary optimization, not part of the
// correctness contract.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	resp      types.EstimateResponse
	expiresAt time.Time
}

// NewCache creates a cache with the given TTL and entry cap.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Cache{
		ttl:     ttl,
		maxSize: maxSize,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached response for key if present and unexpired.
func (c *Cache) Get(key string) (types.EstimateResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return types.EstimateResponse{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return types.EstimateResponse{}, false
	}
	return e.resp, true
}

// Put stores a response. At capacity, expired entries are dropped first and
// then the soonest-to-expire entry.
func (c *Cache) Put(key string, resp types.EstimateResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.maxSize {
		for k, e := range c.entries {
			if now.After(e.expiresAt) {
				delete(c.entries, k)
			}
		}
		for len(c.entries) >= c.maxSize {
			var oldestKey string
			var oldest time.Time
			for k, e := range c.entries {
				if oldestKey == "" || e.expiresAt.Before(oldest) {
					oldestKey = k
					oldest = e.expiresAt
				}
			}
			delete(c.entries, oldestKey)
		}
	}

	c.entries[key] = cacheEntry{resp: resp, expiresAt: now.Add(c.ttl)}
}

// Len returns the number of entries currently held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
