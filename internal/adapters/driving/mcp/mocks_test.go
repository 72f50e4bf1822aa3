package mcp

import (
	"context"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	set       domain.ResultSet
	err       error
	lastQuery domain.Query
}

func (m *mockSearchService) Search(_ context.Context, q domain.Query) (domain.ResultSet, error) {
	m.lastQuery = q
	if m.err != nil {
		return domain.ResultSet{}, m.err
	}
	return m.set, nil
}

// mockSyncOrchestrator is a mock implementation of driving.SyncOrchestrator.
type mockSyncOrchestrator struct {
	run        *domain.SyncRun
	runErr     error
	status     *driving.SyncStatus
	statusErr  error
	history    []domain.SyncRun
	historyErr error
	lastLimit  int
}

func (m *mockSyncOrchestrator) RunCycle(_ context.Context, _ domain.SyncTrigger) (*domain.SyncRun, error) {
	return m.run, m.runErr
}

func (m *mockSyncOrchestrator) Status(_ context.Context) (*driving.SyncStatus, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	if m.status != nil {
		return m.status, nil
	}
	return &driving.SyncStatus{Phase: domain.PhaseIdle}, nil
}

func (m *mockSyncOrchestrator) History(_ context.Context, limit int) ([]domain.SyncRun, error) {
	m.lastLimit = limit
	return m.history, m.historyErr
}
