package driven

import (
	"context"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// SyncRunStore persists sync cycle history for diagnostics.
type SyncRunStore interface {
	// RecordRun logs a completed sync cycle.
	RecordRun(ctx context.Context, run domain.SyncRun) error

	// ListRuns returns recent sync cycles, most recent first.
	ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)

	// PruneRuns removes old cycles beyond the retention limit.
	// Keeps the most recent 'keep' runs.
	PruneRuns(ctx context.Context, keep int) error
}
