package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure SyncRunStore implements the interface.
var _ driven.SyncRunStore = (*SyncRunStore)(nil)

// SyncRunStore is an in-memory implementation of driven.SyncRunStore.
type SyncRunStore struct {
	mu   sync.RWMutex
	runs []domain.SyncRun
}

// NewSyncRunStore creates a new in-memory sync run store.
func NewSyncRunStore() *SyncRunStore {
	return &SyncRunStore{}
}

// RecordRun logs a completed sync cycle.
func (s *SyncRunStore) RecordRun(_ context.Context, run domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// ListRuns returns recent sync cycles, most recent first.
func (s *SyncRunStore) ListRuns(_ context.Context, limit int) ([]domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SyncRun, len(s.runs))
	copy(out, s.runs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneRuns removes old cycles beyond the retention limit.
func (s *SyncRunStore) PruneRuns(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep <= 0 || len(s.runs) <= keep {
		return nil
	}

	sort.SliceStable(s.runs, func(i, j int) bool {
		return s.runs[i].StartedAt.After(s.runs[j].StartedAt)
	})
	s.runs = s.runs[:keep]
	return nil
}
