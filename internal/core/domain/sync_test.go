package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncPhase_CanTransition_HappyPath(t *testing.T) {
	assert.True(t, PhaseIdle.CanTransition(PhaseFetchingChanges))
	assert.True(t, PhaseFetchingChanges.CanTransition(PhaseProcessingBatch))
	assert.True(t, PhaseProcessingBatch.CanTransition(PhaseCommitting))
	assert.True(t, PhaseCommitting.CanTransition(PhaseIdle))
}

func TestSyncPhase_CanTransition_FailedReachableFromActivePhases(t *testing.T) {
	for _, phase := range []SyncPhase{PhaseFetchingChanges, PhaseProcessingBatch, PhaseCommitting} {
		assert.True(t, phase.CanTransition(PhaseFailed), "from %s", phase)
	}
	assert.True(t, PhaseFailed.CanTransition(PhaseIdle))
}

func TestSyncPhase_CanTransition_RejectsSkips(t *testing.T) {
	assert.False(t, PhaseIdle.CanTransition(PhaseCommitting))
	assert.False(t, PhaseIdle.CanTransition(PhaseFailed))
	assert.False(t, PhaseCommitting.CanTransition(PhaseFetchingChanges))
	assert.False(t, PhaseFailed.CanTransition(PhaseProcessingBatch))
}

func TestChangeOp_IsValid(t *testing.T) {
	assert.True(t, ChangeCreated.IsValid())
	assert.True(t, ChangeUpdated.IsValid())
	assert.True(t, ChangeDeleted.IsValid())
	assert.False(t, ChangeOp("renamed").IsValid())
	assert.False(t, ChangeOp("").IsValid())
}

func TestDocumentSyncState_NeedsReprocess(t *testing.T) {
	state := DocumentSyncState{DocumentID: "D1", ContentHash: "abc"}

	assert.False(t, state.NeedsReprocess("abc"), "unchanged hash is a no-op")
	assert.True(t, state.NeedsReprocess("def"), "changed hash reprocesses")

	state.EmbedFailed = true
	assert.True(t, state.NeedsReprocess("abc"), "embed failure forces retry")

	state.EmbedFailed = false
	state.ReindexRequested = true
	assert.True(t, state.NeedsReprocess("abc"), "consistency repair forces reprocess")
}

func TestSyncRun_Duration(t *testing.T) {
	start := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	run := SyncRun{StartedAt: start, EndedAt: start.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, run.Duration())

	assert.Zero(t, SyncRun{StartedAt: start}.Duration())
}

func TestSyncRun_Succeeded(t *testing.T) {
	assert.True(t, SyncRun{Phase: PhaseIdle}.Succeeded())
	assert.False(t, SyncRun{Phase: PhaseFailed}.Succeeded())
}
