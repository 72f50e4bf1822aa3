package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure SyncStateStore implements the interface.
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

// SyncStateStore is an in-memory implementation of driven.SyncStateStore.
type SyncStateStore struct {
	mu        sync.RWMutex
	state     *domain.SyncState
	docStates map[string]domain.DocumentSyncState
}

// NewSyncStateStore creates a new in-memory sync state store.
func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{
		docStates: make(map[string]domain.DocumentSyncState),
	}
}

// SaveState stores or updates the source watermark.
func (s *SyncStateStore) SaveState(_ context.Context, state domain.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &state
	return nil
}

// GetState retrieves the source watermark.
func (s *SyncStateStore) GetState(_ context.Context) (*domain.SyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, domain.ErrNotFound
	}
	state := *s.state
	return &state, nil
}

// SaveDocumentState stores or updates per-document sync bookkeeping.
func (s *SyncStateStore) SaveDocumentState(_ context.Context, state domain.DocumentSyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docStates[state.DocumentID] = state
	return nil
}

// GetDocumentState retrieves per-document sync bookkeeping.
func (s *SyncStateStore) GetDocumentState(_ context.Context, documentID string) (*domain.DocumentSyncState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.docStates[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// DeleteDocumentState removes bookkeeping for a deleted document.
func (s *SyncStateStore) DeleteDocumentState(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docStates, documentID)
	return nil
}

// ListRetryable returns IDs of documents flagged for reprocessing,
// sorted for deterministic iteration.
func (s *SyncStateStore) ListRetryable(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, state := range s.docStates {
		if state.EmbedFailed || state.ReindexRequested {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
