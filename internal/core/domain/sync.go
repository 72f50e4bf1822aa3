package domain

import "time"

// ChangeOp is the kind of change the content provider reports.
type ChangeOp string

// Change operations.
const (
	ChangeCreated ChangeOp = "created"
	ChangeUpdated ChangeOp = "updated"
	ChangeDeleted ChangeOp = "deleted"
)

// IsValid reports whether the operation is one the engine understands.
func (op ChangeOp) IsValid() bool {
	switch op {
	case ChangeCreated, ChangeUpdated, ChangeDeleted:
		return true
	}
	return false
}

// Change is one entry in the provider's change feed.
type Change struct {
	// DocumentID identifies the changed document.
	DocumentID string

	// Op says what happened to it.
	Op ChangeOp

	// Timestamp is the provider's change time. The watermark advances to
	// the highest timestamp whose change was fully committed.
	Timestamp time.Time
}

// SyncPhase is a state in the sync cycle's state machine.
type SyncPhase string

// Sync cycle phases. A cycle walks Idle -> FetchingChanges ->
// ProcessingBatch -> Committing -> Idle; Failed is reachable from any
// phase and returns to Idle after logging.
const (
	PhaseIdle            SyncPhase = "idle"
	PhaseFetchingChanges SyncPhase = "fetching_changes"
	PhaseProcessingBatch SyncPhase = "processing_batch"
	PhaseCommitting      SyncPhase = "committing"
	PhaseFailed          SyncPhase = "failed"
)

// phaseTransitions holds the legal moves of the sync state machine.
var phaseTransitions = map[SyncPhase][]SyncPhase{
	PhaseIdle:            {PhaseFetchingChanges},
	PhaseFetchingChanges: {PhaseProcessingBatch, PhaseFailed},
	PhaseProcessingBatch: {PhaseCommitting, PhaseFailed},
	PhaseCommitting:      {PhaseIdle, PhaseFailed},
	PhaseFailed:          {PhaseIdle},
}

// CanTransition reports whether moving from p to next is legal.
// Failed is additionally reachable from every non-terminal phase.
func (p SyncPhase) CanTransition(next SyncPhase) bool {
	if next == PhaseFailed && p != PhaseIdle && p != PhaseFailed {
		return true
	}
	for _, allowed := range phaseTransitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SyncState is the persisted watermark. There is exactly one; only the
// sync engine writes it, and only after a batch is fully committed.
type SyncState struct {
	// Watermark is the timestamp of the last fully committed change.
	// Zero means no sync has completed yet and the next cycle processes
	// the full corpus.
	Watermark time.Time

	// LastSync is when the last successful cycle finished.
	LastSync time.Time
}

// DocumentSyncState is the engine's per-document bookkeeping, persisted so
// restarts keep no-op detection and retry flags.
type DocumentSyncState struct {
	// DocumentID identifies the document.
	DocumentID string

	// ContentHash is the sha256 of the body as last processed. A matching
	// hash on re-sync short-circuits chunking and embedding entirely.
	ContentHash string

	// EmbedFailed records that at least one chunk's embedding failed last
	// cycle; the document is reprocessed next cycle even if unchanged.
	EmbedFailed bool

	// ReindexRequested forces a full re-chunk/re-embed next cycle. Set
	// when a consistency check finds the stores disagreeing about this
	// document's chunk set.
	ReindexRequested bool

	// SyncedAt is when the document was last committed.
	SyncedAt time.Time
}

// NeedsReprocess reports whether a document with the given current hash
// has to go through the pipeline again.
func (s DocumentSyncState) NeedsReprocess(currentHash string) bool {
	return s.ContentHash != currentHash || s.EmbedFailed || s.ReindexRequested
}

// SyncTrigger says what started a cycle.
type SyncTrigger string

// Sync triggers.
const (
	TriggerScheduled SyncTrigger = "scheduled"
	TriggerManual    SyncTrigger = "manual"
)

// SyncRun is the history record for one sync cycle.
type SyncRun struct {
	// ID is a unique run identifier.
	ID string

	// Trigger says whether the scheduler or an operator started the run.
	Trigger SyncTrigger

	// StartedAt / EndedAt bound the cycle.
	StartedAt time.Time
	EndedAt   time.Time

	// Phase is the final phase the cycle reached (Idle on success,
	// Failed otherwise).
	Phase SyncPhase

	// Counters for the status surfaces.
	DocumentsSeen    int
	DocumentsIndexed int
	DocumentsDeleted int
	DocumentsSkipped int
	DocumentsFailed  int

	// Watermark is the cursor after the run.
	Watermark time.Time

	// Error holds the failure message when Phase is Failed.
	Error string
}

// Duration is how long the run took.
func (r SyncRun) Duration() time.Duration {
	if r.EndedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run completed its cycle.
func (r SyncRun) Succeeded() bool {
	return r.Phase == PhaseIdle
}
