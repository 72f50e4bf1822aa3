package memory

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// setupCache returns a cache with a controllable clock. Advance the
// returned time pointer to move the clock.
func setupCache(ttl time.Duration, maxEntries int) (*ResultCache, *time.Time) {
	cache := NewResultCache(ttl, maxEntries)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := &now
	cache.now = func() time.Time { return *current }
	return cache, current
}

func cachedResults(chunkID string) domain.ResultSet {
	return domain.ResultSet{
		Results: []domain.Result{{DocumentID: "doc-a", ChunkID: chunkID, Score: 0.9}},
	}
}

func TestNewResultCache_Defaults(t *testing.T) {
	cache := NewResultCache(0, 0)
	require.NotNil(t, cache)
	assert.Equal(t, DefaultTTL, cache.ttl)
	assert.Equal(t, DefaultMaxEntries, cache.maxEntries)

	custom := NewResultCache(time.Minute, 8)
	assert.Equal(t, time.Minute, custom.ttl)
	assert.Equal(t, 8, custom.maxEntries)
}

func TestResultCache_SetAndGet(t *testing.T) {
	cache, _ := setupCache(5*time.Minute, 100)

	cache.Set("query-fp", cachedResults("doc-a#0"))

	got, ok := cache.Get("query-fp")
	require.True(t, ok)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "doc-a#0", got.Results[0].ChunkID)

	_, ok = cache.Get("other-fp")
	assert.False(t, ok)
}

func TestResultCache_ExpiresAfterTTL(t *testing.T) {
	cache, now := setupCache(5*time.Minute, 100)

	cache.Set("query-fp", cachedResults("doc-a#0"))

	*now = now.Add(4 * time.Minute)
	_, ok := cache.Get("query-fp")
	assert.True(t, ok, "entry should still be fresh")

	*now = now.Add(2 * time.Minute)
	_, ok = cache.Get("query-fp")
	assert.False(t, ok, "entry should have expired")

	// Expired entries are removed, not just hidden.
	assert.Empty(t, cache.entries)
}

func TestResultCache_ReplacesExisting(t *testing.T) {
	cache, _ := setupCache(5*time.Minute, 100)

	cache.Set("query-fp", cachedResults("doc-a#0"))
	cache.Set("query-fp", cachedResults("doc-a#3"))

	got, ok := cache.Get("query-fp")
	require.True(t, ok)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "doc-a#3", got.Results[0].ChunkID)
	assert.Len(t, cache.entries, 1)
}

func TestResultCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache, now := setupCache(time.Hour, 2)

	cache.Set("fp-a", cachedResults("doc-a#0"))
	*now = now.Add(time.Second)
	cache.Set("fp-b", cachedResults("doc-b#0"))

	// Touch fp-a so fp-b becomes the stalest entry.
	*now = now.Add(time.Second)
	_, ok := cache.Get("fp-a")
	require.True(t, ok)

	*now = now.Add(time.Second)
	cache.Set("fp-c", cachedResults("doc-c#0"))

	_, ok = cache.Get("fp-a")
	assert.True(t, ok, "recently used entry survives")
	_, ok = cache.Get("fp-b")
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = cache.Get("fp-c")
	assert.True(t, ok)
}

func TestResultCache_UpdateAtCapacityDoesNotEvict(t *testing.T) {
	cache, now := setupCache(time.Hour, 2)

	cache.Set("fp-a", cachedResults("doc-a#0"))
	*now = now.Add(time.Second)
	cache.Set("fp-b", cachedResults("doc-b#0"))

	// Overwriting an existing key needs no room.
	*now = now.Add(time.Second)
	cache.Set("fp-a", cachedResults("doc-a#1"))

	_, ok := cache.Get("fp-a")
	assert.True(t, ok)
	_, ok = cache.Get("fp-b")
	assert.True(t, ok)
}

func TestResultCache_Purge(t *testing.T) {
	cache, _ := setupCache(5*time.Minute, 100)

	for i := 0; i < 3; i++ {
		cache.Set("fp-"+strconv.Itoa(i), cachedResults("doc-a#0"))
	}

	cache.Purge()

	assert.Empty(t, cache.entries)
	_, ok := cache.Get("fp-0")
	assert.False(t, ok)
}

func TestResultCache_ConcurrentAccess(t *testing.T) {
	cache := NewResultCache(5*time.Minute, 16)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "fp-" + strconv.Itoa(n%4)
			cache.Set(key, cachedResults("doc-a#0"))
			_, _ = cache.Get(key)
		}(i)
	}
	wg.Wait()

	got, ok := cache.Get("fp-0")
	require.True(t, ok)
	assert.Len(t, got.Results, 1)
}
