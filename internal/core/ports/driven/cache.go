package driven

import "github.com/custodia-labs/searchlight/internal/core/domain"

// ResultCache memoises fused query results for a short window.
// This is an optional service - when nil, every query is computed fresh.
//
// Keys are opaque fingerprints computed by the query engine from the
// normalised query text, filters, and limit. Entries expire by TTL only;
// sync cycles do not invalidate them, so a hit may be up to one TTL
// staler than the index.
type ResultCache interface {
	// Get returns the cached result set for a key, if present and fresh.
	Get(key string) (domain.ResultSet, bool)

	// Set stores a result set under a key.
	Set(key string, results domain.ResultSet)

	// Purge drops all entries.
	Purge()
}
