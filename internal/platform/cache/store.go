package cache

import (
	"sync"
	"time"
)

// entry is an immutable snapshot of a cached value. A new Set for the
// same key replaces the entry rather than mutating it.
type entry[V any] struct {
	value    V
	cachedAt time.Time
	ttl      time.Duration
}

func (e entry[V]) expired(now time.Time) bool {
	return now.Sub(e.cachedAt) > e.ttl
}

// Store is a keyed in-memory TTL store. Each logical resource kind owns
// its own instance, so keys never collide across kinds. The TTL is
// supplied per Set call, not fixed on the store.
//
// Expired entries are reported as misses by Get but stay in the map
// until PurgeExpired or Remove; reads never mutate the store.
type Store[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		entries: make(map[K]entry[V]),
		now:     time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set inserts or replaces the entry for key with a fresh timestamp and
// the given ttl.
func (s *Store[K, V]) Set(key K, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = entry[V]{
		value:    value,
		cachedAt: s.now(),
		ttl:      ttl,
	}
}

// Remove deletes the entry for key if present.
func (s *Store[K, V]) Remove(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
}

// Clear deletes all entries.
func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[K]entry[V])
}

// PurgeExpired deletes every expired entry and returns how many were
// removed. Unexpired entries are retained unchanged.
func (s *Store[K, V]) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, expired ones included.
func (s *Store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Age returns how long ago the entry for key was written, if present.
// Expired entries still report an age until purged.
func (s *Store[K, V]) Age(key K) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	return s.now().Sub(e.cachedAt), true
}
