package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// SyncOrchestrator coordinates content synchronisation from the source.
type SyncOrchestrator interface {
	// RunCycle executes one full sync cycle and reports what it did.
	// Returns domain.ErrSyncInProgress when a cycle is already running.
	RunCycle(ctx context.Context, trigger domain.SyncTrigger) (*domain.SyncRun, error)

	// Status returns the engine's current state and index counts.
	Status(ctx context.Context) (*SyncStatus, error)

	// History returns recent sync cycles, most recent first.
	History(ctx context.Context, limit int) ([]domain.SyncRun, error)
}

// SyncStatus represents the current state of the sync engine.
type SyncStatus struct {
	// Phase is the engine's current lifecycle phase.
	Phase domain.SyncPhase

	// Watermark is the timestamp up to which changes are fully committed.
	Watermark time.Time

	// LastSync is when the last cycle finished.
	LastSync time.Time

	// Documents is the number of stored documents.
	Documents int

	// Chunks is the number of stored chunks.
	Chunks int

	// PendingRetries is the number of documents flagged for reprocessing.
	PendingRetries int
}
