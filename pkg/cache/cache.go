// Package cache provides a content-addressed, TTL-bounded result cache.
//
// Entries are keyed by an opaque string (typically a document path or a
// settings fingerprint) and carry the content digest of the input they were
// computed from. A lookup only succeeds when the stored digest matches the
// query digest and the entry is within its TTL; expiry takes precedence
// over a digest match.
package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultTTL is how long an entry is valid after it was written.
	DefaultTTL = 30 * time.Minute

	// DefaultMaxEntries bounds the number of cached entries. The LRU
	// evicts the least recently used entry beyond this.
	DefaultMaxEntries = 256
)

type entry[V any] struct {
	payload   V
	digest    string
	createdAt time.Time
}

// Cache is a digest-validated TTL cache. Safe for concurrent use.
type Cache[V any] struct {
	ttl time.Duration
	now func() time.Time

	mu  sync.Mutex
	lru *expirable.LRU[string, entry[V]]
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithClock overrides the time source. Used by tests to force expiry
// without sleeping.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// New creates a cache with the given TTL and capacity. ttl <= 0 falls back
// to DefaultTTL; maxEntries <= 0 falls back to DefaultMaxEntries.
func New[V any](ttl time.Duration, maxEntries int, opts ...Option[V]) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	c := &Cache[V]{
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	// The LRU's own reaper is a backstop for memory; validity is decided
	// by the explicit createdAt check so expiry is exact, not granular.
	c.lru = expirable.NewLRU[string, entry[V]](maxEntries, nil, ttl)
	return c
}

// Set stores a value computed from content with the given digest. Any
// existing entry for key is overwritten (last-write-wins).
func (c *Cache[V]) Set(key string, value V, digest string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry[V]{
		payload:   value,
		digest:    digest,
		createdAt: c.now(),
	})
}

// Get returns the cached value for key if it is still within its TTL.
// Expired entries are evicted and reported as absent.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		var zero V
		return zero, false
	}
	return e.payload, true
}

// ValidForDigest reports whether key holds an unexpired entry whose stored
// digest matches the query digest. Expired entries are evicted even when
// the digest matches.
func (c *Cache[V]) ValidForDigest(key, digest string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Peek(key)
	if !ok {
		return false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		return false
	}
	return e.digest == digest
}

// Remove drops the entry for key, if any.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats describes the cache contents for operator visibility.
type Stats struct {
	Size int      `json:"size"`
	Keys []string `json:"keys"`
}

// Stats returns the current entry count and keys. Expired-but-unreaped
// entries may still be counted; they resolve to misses on access.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size: c.lru.Len(),
		Keys: c.lru.Keys(),
	}
}

func (c *Cache[V]) expired(e entry[V]) bool {
	return c.now().Sub(e.createdAt) > c.ttl
}
