package cli

import (
	"context"
	"time"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

var cliTestTime = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

// mockSearchService implements driving.SearchService for command tests.
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

// mockSyncOrchestrator implements driving.SyncOrchestrator for command tests.
type mockSyncOrchestrator struct {
	run        *domain.SyncRun
	runErr     error
	status     *driving.SyncStatus
	statusErr  error
	history    []domain.SyncRun
	historyErr error
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
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	if limit < len(m.history) {
		return m.history[:limit], nil
	}
	return m.history, nil
}

// setupTestServices installs canned mock services and returns a cleanup
// that restores the previous wiring.
func setupTestServices() func() {
	oldSearch, oldSync := searchService, syncOrchestrator

	searchService = &mockSearchService{
		set: domain.ResultSet{
			Results: []domain.Result{
				{
					DocumentID:   "doc-1",
					ChunkID:      "doc-1:0",
					Title:        "Deploy Guide",
					Link:         "https://wiki.example.com/doc-1",
					Space:        "eng",
					LastModified: cliTestTime,
					Score:        0.91,
					Snippet:      "Deploys roll forward only.",
				},
			},
		},
	}
	syncOrchestrator = &mockSyncOrchestrator{
		run: &domain.SyncRun{
			ID:               "run-1",
			Trigger:          domain.TriggerManual,
			StartedAt:        cliTestTime,
			EndedAt:          cliTestTime.Add(1200 * time.Millisecond),
			Phase:            domain.PhaseIdle,
			DocumentsSeen:    5,
			DocumentsIndexed: 3,
			DocumentsDeleted: 1,
			DocumentsSkipped: 1,
			Watermark:        cliTestTime,
		},
		status: &driving.SyncStatus{
			Phase:     domain.PhaseIdle,
			Watermark: cliTestTime,
			LastSync:  cliTestTime,
			Documents: 12,
			Chunks:    57,
		},
	}

	return func() {
		searchService, syncOrchestrator = oldSearch, oldSync
	}
}

// resetSearchFlags clears flag state that persists between executions.
func resetSearchFlags() {
	searchLimit = 10
	searchJSON = false
	searchSpace = ""
	searchScopes = nil
	searchAfter = ""
	searchBefore = ""
	for _, name := range []string{"limit", "json", "space", "scope", "after", "before"} {
		if f := searchCmd.Flags().Lookup(name); f != nil {
			f.Changed = false
		}
	}
}

// resetStatusFlags clears flag state that persists between executions.
func resetStatusFlags() {
	statusHistory = 0
	if f := statusCmd.Flags().Lookup("history"); f != nil {
		f.Changed = false
	}
}
