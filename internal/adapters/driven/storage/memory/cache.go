package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.Cache = (*Cache)(nil)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache is an in-memory implementation of driven.Cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewCache creates a new in-memory cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// SetNX stores the key only if it is absent or expired.
func (c *Cache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if e, ok := c.entries[key]; ok && e.expiresAt.After(now) {
		return false, nil
	}
	c.entries[key] = cacheEntry{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

// Get returns the value of a live key.
func (c *Cache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.expiresAt.After(c.now()) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Delete removes a key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// PurgeExpired removes expired keys.
func (c *Cache) PurgeExpired(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for key, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, key)
			n++
		}
	}
	return n, nil
}
