package driven

import (
	"context"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// SyncStateStore persists sync progress.
type SyncStateStore interface {
	// SaveState stores or updates the source watermark.
	SaveState(ctx context.Context, state domain.SyncState) error

	// GetState retrieves the source watermark.
	// Returns domain.ErrNotFound before the first sync.
	GetState(ctx context.Context) (*domain.SyncState, error)

	// SaveDocumentState stores or updates per-document sync bookkeeping.
	SaveDocumentState(ctx context.Context, state domain.DocumentSyncState) error

	// GetDocumentState retrieves per-document sync bookkeeping.
	// Returns domain.ErrNotFound for documents never synced.
	GetDocumentState(ctx context.Context, documentID string) (*domain.DocumentSyncState, error)

	// DeleteDocumentState removes bookkeeping for a deleted document.
	// Deleting absent state is a no-op.
	DeleteDocumentState(ctx context.Context, documentID string) error

	// ListRetryable returns IDs of documents flagged for reprocessing:
	// those with failed embeddings or a pending forced re-chunk. The
	// sync engine revisits these even when the change feed is silent
	// about them.
	ListRetryable(ctx context.Context) ([]string, error)
}
