package driven

import (
	"context"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// KeywordIndex provides full-text search operations.
// Backed by bleve for BM25 keyword search.
type KeywordIndex interface {
	// Index adds or updates chunks in the search index.
	Index(ctx context.Context, chunks []domain.Chunk) error

	// Delete removes chunks from the search index. Unknown IDs are ignored.
	Delete(ctx context.Context, chunkIDs ...string) error

	// DeleteByDocument removes all chunks belonging to a document.
	// Deleting a document with no indexed chunks is a no-op.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Search performs a keyword search among chunks matching the filters
	// and returns matching chunk IDs with BM25 scores. Filtering happens
	// before ranking. Hits are ordered by descending score with ties
	// broken by ascending chunk ID.
	Search(ctx context.Context, query string, limit int, filters domain.Filters) ([]KeywordHit, error)

	// Count returns the number of indexed chunks.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// KeywordHit represents a keyword search result.
type KeywordHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the BM25 relevance score.
	Score float64
}
