package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

func TestStatusCmd_Use(t *testing.T) {
	assert.Equal(t, "status", statusCmd.Use)
}

func TestStatusCmd_ShowsEngineState(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Phase:           idle")
	assert.Contains(t, buf.String(), "Watermark:       2025-05-01T12:00:00Z")
	assert.Contains(t, buf.String(), "Documents:       12")
	assert.Contains(t, buf.String(), "Chunks:          57")
	assert.NotContains(t, buf.String(), "Pending retries")
	assert.NotContains(t, buf.String(), "Recent sync runs")
}

func TestStatusCmd_ShowsPendingRetries(t *testing.T) {
	oldSearch, oldSync := searchService, syncOrchestrator
	searchService = &mockSearchService{}
	syncOrchestrator = &mockSyncOrchestrator{
		status: &driving.SyncStatus{
			Phase:          domain.PhaseIdle,
			PendingRetries: 3,
		},
	}
	defer func() {
		searchService, syncOrchestrator = oldSearch, oldSync
	}()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Pending retries: 3")
	assert.Contains(t, buf.String(), "Watermark:       none (no completed sync yet)")
}

func TestStatusCmd_ShowsHistory(t *testing.T) {
	oldSearch, oldSync := searchService, syncOrchestrator
	searchService = &mockSearchService{}
	syncOrchestrator = &mockSyncOrchestrator{
		status: &driving.SyncStatus{Phase: domain.PhaseIdle},
		history: []domain.SyncRun{
			{
				ID:               "run-2",
				Trigger:          domain.TriggerScheduled,
				StartedAt:        cliTestTime,
				EndedAt:          cliTestTime,
				Phase:            domain.PhaseIdle,
				DocumentsIndexed: 4,
			},
			{
				ID:        "run-1",
				Trigger:   domain.TriggerManual,
				StartedAt: cliTestTime.Add(-time.Hour),
				EndedAt:   cliTestTime.Add(-time.Hour),
				Phase:     domain.PhaseFailed,
				Error:     "boom",
			},
		},
	}
	defer func() {
		searchService, syncOrchestrator = oldSearch, oldSync
	}()
	defer resetStatusFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"status", "--history", "5"})
	defer func() {
		rootCmd.SetArgs(nil)
	}()

	err := rootCmd.Execute()

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "Recent sync runs:")
	assert.Contains(t, buf.String(), "scheduled")
	assert.Contains(t, buf.String(), "4 indexed")
	assert.Contains(t, buf.String(), "failed: boom")
}

func TestRunStatus_EmptyHistory(t *testing.T) {
	oldSync := syncOrchestrator
	syncOrchestrator = &mockSyncOrchestrator{
		status: &driving.SyncStatus{Phase: domain.PhaseIdle},
	}
	defer func() {
		syncOrchestrator = oldSync
	}()
	defer resetStatusFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	statusHistory = 3

	err := runStatus(statusCmd, nil)

	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "(none)")
}

func TestRunStatus_ServiceNotConfigured(t *testing.T) {
	oldSync := syncOrchestrator
	syncOrchestrator = nil
	defer func() {
		syncOrchestrator = oldSync
	}()

	err := runStatus(statusCmd, nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sync service not configured")
}
