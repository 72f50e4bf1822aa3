package domain

import (
	"context"
	"errors"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input. Requests
	// failing this way are rejected immediately and never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransientDependency indicates a provider or embedder timeout.
	// Operations failing this way are retried with bounded backoff; on
	// exhaustion the affected unit is skipped and flagged, never aborting
	// the whole cycle or request.
	ErrTransientDependency = errors.New("transient dependency failure")

	// ErrRateLimited indicates an upstream API rate limit was exceeded.
	// Treated as transient.
	ErrRateLimited = errors.New("rate limited")

	// ErrConsistency indicates the vector index and metadata store
	// disagree about a document's chunk set. The document is flagged for
	// a full re-chunk/re-embed on the next cycle; never process-fatal.
	ErrConsistency = errors.New("index and store are inconsistent")

	// ErrSyncInProgress indicates a sync cycle is already running.
	// Overlapping cycles are skipped, not queued.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured or unreachable. Queries degrade to keyword-only search.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrKeywordUnavailable indicates the keyword index is not configured.
	ErrKeywordUnavailable = errors.New("keyword index unavailable")

	// ErrVectorUnavailable indicates the vector index is not configured.
	ErrVectorUnavailable = errors.New("vector index unavailable")
)

// IsTransient reports whether an error is worth retrying: explicit
// transient classifications, rate limits, and deadline expiry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientDependency) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}
