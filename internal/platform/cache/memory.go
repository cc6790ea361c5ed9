package cache

import (
	"context"
	"time"
)

// MemoryCache adapts a Store to the Cache interface for use as the L1
// of a LayeredCache. Unlike the typed stores owned by providers, values
// pass through as interface{} so the layered backend can treat memory
// and Redis uniformly.
type MemoryCache struct {
	store *Store[string, interface{}]
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		store: NewStore[string, interface{}](),
	}
}

// Get retrieves a value from cache
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	val, ok := c.store.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return val, nil
}

// Set stores a value in cache with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.store.Set(key, value, ttl)
	return nil
}

// Delete removes a key from cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.store.Remove(key)
	return nil
}

// Close closes the cache
func (c *MemoryCache) Close() error {
	c.store.Clear()
	return nil
}

// PurgeExpired removes expired entries and returns how many were removed
func (c *MemoryCache) PurgeExpired() int {
	return c.store.PurgeExpired()
}

// Len returns the number of entries, expired ones included
func (c *MemoryCache) Len() int {
	return c.store.Len()
}
