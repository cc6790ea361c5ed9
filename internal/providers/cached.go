// Package providers layers TTL caching and request coalescing over the
// backend API client. Each resource gets its own cache instance and
// validity window, so clearing or tuning one never disturbs another.
package providers

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/whytheybuy/marketdata/internal/platform/cache"
	"github.com/whytheybuy/marketdata/internal/platform/observability"
)

// Cached wraps a fetch function with a TTL cache and singleflight
// coalescing. Concurrent misses for the same key share one upstream
// call. Failed fetches are never cached, so the next read retries.
type Cached[V any] struct {
	store    *cache.Store[string, V]
	group    singleflight.Group
	ttl      time.Duration
	resource string
	fetch    func(ctx context.Context, key string) (V, error)
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewCached creates a cached fetch-through for one resource type
func NewCached[V any](resource string, ttl time.Duration, fetch func(ctx context.Context, key string) (V, error), logger *observability.Logger, metrics *observability.Metrics) *Cached[V] {
	return &Cached[V]{
		store:    cache.NewStore[string, V](),
		ttl:      ttl,
		resource: resource,
		fetch:    fetch,
		logger:   logger,
		metrics:  metrics,
	}
}

// Get returns the cached value for key, fetching from upstream on a miss
// or when the entry has outlived its TTL.
func (c *Cached[V]) Get(ctx context.Context, key string) (V, error) {
	if val, ok := c.store.Get(key); ok {
		if c.metrics != nil {
			c.metrics.RecordCacheHit(ctx, c.resource)
		}
		return val, nil
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss(ctx, c.resource)
	}

	res, err, shared := c.group.Do(key, func() (interface{}, error) {
		// Another goroutine may have filled the entry while this one
		// waited on the singleflight lock
		if val, ok := c.store.Get(key); ok {
			return val, nil
		}

		val, err := c.fetch(ctx, key)
		if err != nil {
			return nil, err
		}

		c.store.Set(key, val, c.ttl)
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	if shared && c.logger != nil {
		c.logger.Debug("coalesced upstream fetch", "resource", c.resource, "key", key)
	}

	return res.(V), nil
}

// Peek returns the cached value without fetching on a miss.
func (c *Cached[V]) Peek(key string) (V, bool) {
	return c.store.Get(key)
}

// Invalidate removes one entry.
func (c *Cached[V]) Invalidate(key string) {
	c.store.Remove(key)
}

// Clear removes all entries.
func (c *Cached[V]) Clear() {
	c.store.Clear()
}

// PurgeExpired removes entries past their TTL and returns the count.
func (c *Cached[V]) PurgeExpired() int {
	return c.store.PurgeExpired()
}

// Len returns the number of entries, expired ones included.
func (c *Cached[V]) Len() int {
	return c.store.Len()
}
