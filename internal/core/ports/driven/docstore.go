package driven

import (
	"context"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Backed by SQLite for metadata storage.
type DocumentStore interface {
	// ReplaceDocument stores a document and its chunks in a single
	// transaction, removing any chunks from a previous version. Either
	// the whole document commits or none of it does.
	ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document, ordered by ordinal.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// DeleteDocument removes a document and its chunks.
	// Deleting an absent document is a no-op.
	DeleteDocument(ctx context.Context, id string) error

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)
}
