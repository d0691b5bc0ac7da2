package cache

import (
	"context"
	"sync"
	"time"

	"modelstream/internal/core"
)

// MemoryCache implements Cache with an in-process map and per-entry TTL.
// Suitable for a single process; entries are evicted lazily on access.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	resp      core.ChatResponse
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache. A zero ttl means DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
	}
}

// Get retrieves a cached response, dropping it when expired.
func (c *MemoryCache) Get(_ context.Context, key string) (*core.ChatResponse, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}

	resp := entry.resp
	return &resp, nil
}

// Set stores a copy of the response.
func (c *MemoryCache) Set(_ context.Context, key string, resp *core.ChatResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		resp:      *resp,
		expiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

// Close is a no-op for the memory cache.
func (c *MemoryCache) Close() error {
	return nil
}
