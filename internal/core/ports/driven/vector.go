package driven

import (
	"context"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// VectorIndex provides semantic similarity search operations.
// Backed by chromem for exhaustive cosine-similarity search.
type VectorIndex interface {
	// Upsert inserts or replaces vectors for the given chunks.
	// Chunks must carry non-empty embeddings. Re-upserting an existing
	// chunk ID overwrites the stored vector and metadata.
	Upsert(ctx context.Context, chunks []domain.Chunk) error

	// Delete removes vectors from the index. Unknown IDs are ignored.
	Delete(ctx context.Context, chunkIDs ...string) error

	// DeleteByDocument removes all vectors belonging to a document.
	// Deleting a document with no indexed vectors is a no-op.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Search finds the k nearest neighbours to the query vector among
	// chunks matching the filters. Filtering happens before ranking, so
	// a full result page never hides eligible matches. Hits are ordered
	// by descending similarity with ties broken by ascending chunk ID.
	Search(ctx context.Context, query []float32, k int, filters domain.Filters) ([]VectorHit, error)

	// Count returns the number of indexed vectors.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}
