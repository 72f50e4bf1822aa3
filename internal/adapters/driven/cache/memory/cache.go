// Package memory provides an in-memory result cache with TTL expiry and
// LRU eviction.
package memory

import (
	"sync"
	"time"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure ResultCache implements the interface.
var _ driven.ResultCache = (*ResultCache)(nil)

// Cache defaults.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 512
)

// entry is one cached result set.
type entry struct {
	results      domain.ResultSet
	expiresAt    time.Time
	lastAccessed time.Time
}

// ResultCache is a thread-safe in-memory cache keyed by query
// fingerprint. Entries expire after the TTL; when the cache is full the
// least recently used entry makes room.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	ttl        time.Duration
	maxEntries int

	// now is the clock, swappable in tests.
	now func() time.Time
}

// NewResultCache creates a cache with the given TTL and capacity.
// Non-positive arguments fall back to the defaults.
func NewResultCache(ttl time.Duration, maxEntries int) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &ResultCache{
		entries:    make(map[string]*entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached result set for a key, if present and fresh.
// Expired entries are removed on access.
func (c *ResultCache) Get(key string) (domain.ResultSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.ResultSet{}, false
	}

	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		return domain.ResultSet{}, false
	}

	e.lastAccessed = now
	return e.results, true
}

// Set stores a result set under a key. An existing entry for the key is
// replaced; otherwise, at capacity, the least recently used entry is
// evicted first.
func (c *ResultCache) Set(key string, results domain.ResultSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	c.entries[key] = &entry{
		results:      results,
		expiresAt:    now.Add(c.ttl),
		lastAccessed: now,
	}
}

// Purge drops all entries.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
}

// evictLRU removes the entry with the oldest access time.
// Caller must hold the lock.
func (c *ResultCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	first := true
	for key, e := range c.entries {
		if first || e.lastAccessed.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccessed
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
