package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/chunker"
	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

// Ensure SyncEngine implements the interface.
var _ driving.SyncOrchestrator = (*SyncEngine)(nil)

// defaultHistoryKeep is how many sync runs to retain.
const defaultHistoryKeep = 50

// SyncEngine pulls changes from the provider and reconciles the local
// store and indexes against them.
//
// A cycle moves through fetching, processing, and committing phases.
// Each document commits independently; one failure never blocks the
// rest of the batch. The watermark only advances to the highest change
// timestamp with no failure at or before it, so failed changes are
// re-delivered by the next cycle and the content-hash check makes that
// re-delivery cheap.
type SyncEngine struct {
	provider         driven.Provider
	docStore         driven.DocumentStore
	syncStore        driven.SyncStateStore
	runStore         driven.SyncRunStore
	keywordIndex     driven.KeywordIndex
	vectorIndex      driven.VectorIndex
	embeddingService driven.EmbeddingService
	splitter         *chunker.Chunker
	logger           *zap.Logger

	historyKeep int
	now         func() time.Time

	// runMu serialises cycles; a held lock means a cycle is in flight.
	runMu sync.Mutex

	phaseMu sync.RWMutex
	phase   domain.SyncPhase
}

// NewSyncEngine creates a new sync engine.
// The vectorIndex and embeddingService parameters are optional (can be
// nil); without them documents are stored and keyword-indexed only.
func NewSyncEngine(
	provider driven.Provider,
	docStore driven.DocumentStore,
	syncStore driven.SyncStateStore,
	runStore driven.SyncRunStore,
	keywordIndex driven.KeywordIndex,
	vectorIndex driven.VectorIndex,
	embeddingService driven.EmbeddingService,
	splitter *chunker.Chunker,
	logger *zap.Logger,
) *SyncEngine {
	return &SyncEngine{
		provider:         provider,
		docStore:         docStore,
		syncStore:        syncStore,
		runStore:         runStore,
		keywordIndex:     keywordIndex,
		vectorIndex:      vectorIndex,
		embeddingService: embeddingService,
		splitter:         splitter,
		logger:           logger.Named("sync"),
		historyKeep:      defaultHistoryKeep,
		now:              time.Now,
		phase:            domain.PhaseIdle,
	}
}

// SetHistoryKeep overrides how many sync runs to retain.
func (e *SyncEngine) SetHistoryKeep(n int) {
	if n > 0 {
		e.historyKeep = n
	}
}

// RunCycle executes one full sync cycle and reports what it did.
// Returns domain.ErrSyncInProgress when a cycle is already running.
func (e *SyncEngine) RunCycle(ctx context.Context, trigger domain.SyncTrigger) (*domain.SyncRun, error) {
	if e.provider == nil {
		return nil, errors.New("run sync: no provider configured")
	}

	if !e.runMu.TryLock() {
		return nil, domain.ErrSyncInProgress
	}
	defer e.runMu.Unlock()

	run := &domain.SyncRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: e.now(),
	}

	e.logger.Info("sync cycle starting",
		zap.String("run_id", run.ID),
		zap.String("trigger", string(trigger)))

	err := e.cycle(ctx, run)
	run.EndedAt = e.now()

	if err != nil {
		e.failPhase()
		run.Phase = domain.PhaseFailed
		run.Error = err.Error()
		e.logger.Error("sync cycle failed",
			zap.String("run_id", run.ID),
			zap.Duration("duration", run.Duration()),
			zap.Error(err))
	} else {
		run.Phase = domain.PhaseIdle
		e.logger.Info("sync cycle complete",
			zap.String("run_id", run.ID),
			zap.Duration("duration", run.Duration()),
			zap.Int("seen", run.DocumentsSeen),
			zap.Int("indexed", run.DocumentsIndexed),
			zap.Int("deleted", run.DocumentsDeleted),
			zap.Int("skipped", run.DocumentsSkipped),
			zap.Int("failed", run.DocumentsFailed),
			zap.Time("watermark", run.Watermark))
	}

	e.recordRun(ctx, run)

	if err != nil {
		return run, err
	}
	return run, nil
}

// cycle walks one sync pass through its phases.
func (e *SyncEngine) cycle(ctx context.Context, run *domain.SyncRun) error {
	if e.Phase() == domain.PhaseFailed {
		if err := e.transition(domain.PhaseIdle); err != nil {
			return err
		}
	}
	if err := e.transition(domain.PhaseFetchingChanges); err != nil {
		return err
	}

	var since time.Time
	state, err := e.syncStore.GetState(ctx)
	switch {
	case err == nil:
		since = state.Watermark
	case errors.Is(err, domain.ErrNotFound):
		// First sync, a zero watermark requests the full corpus.
	default:
		return fmt.Errorf("get sync state: %w", err)
	}

	changes, err := e.fetchChanges(ctx, since)
	if err != nil {
		return fmt.Errorf("fetch changes: %w", err)
	}

	retryIDs, err := e.syncStore.ListRetryable(ctx)
	if err != nil {
		return fmt.Errorf("list retryable: %w", err)
	}

	e.logger.Info("changes fetched",
		zap.Int("changes", len(changes)),
		zap.Int("retryable", len(retryIDs)),
		zap.Time("since", since))

	if err := e.transition(domain.PhaseProcessingBatch); err != nil {
		return err
	}

	// Changes apply in timestamp order so the watermark advances over a
	// contiguous prefix of successes.
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].Timestamp.Before(changes[j].Timestamp)
	})

	newWatermark := since
	advancing := true
	seen := make(map[string]bool, len(changes))

	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return err
		}

		seen[change.DocumentID] = true
		run.DocumentsSeen++

		if err := e.applyChange(ctx, run, change); err != nil {
			run.DocumentsFailed++
			advancing = false
			e.logger.Warn("change failed, watermark held back",
				zap.String("document", change.DocumentID),
				zap.Time("timestamp", change.Timestamp),
				zap.Error(err))
			continue
		}

		if advancing && change.Timestamp.After(newWatermark) {
			newWatermark = change.Timestamp
		}
	}

	// Documents flagged in earlier cycles reprocess here. They ride on
	// the current watermark and never move it.
	for _, id := range retryIDs {
		if seen[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		run.DocumentsSeen++
		change := domain.Change{DocumentID: id, Op: domain.ChangeUpdated}
		if err := e.applyChange(ctx, run, change); err != nil {
			run.DocumentsFailed++
			e.logger.Warn("retry failed",
				zap.String("document", id),
				zap.Error(err))
		}
	}

	if err := e.transition(domain.PhaseCommitting); err != nil {
		return err
	}

	newState := domain.SyncState{Watermark: newWatermark, LastSync: e.now()}
	if err := e.syncStore.SaveState(ctx, newState); err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	run.Watermark = newWatermark

	return e.transition(domain.PhaseIdle)
}

// fetchChanges pages through the provider's change feed.
func (e *SyncEngine) fetchChanges(ctx context.Context, since time.Time) ([]domain.Change, error) {
	var all []domain.Change
	token := ""

	for {
		page, err := e.provider.ListChanges(ctx, since, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Changes...)

		if page.NextPageToken == "" {
			return all, nil
		}
		token = page.NextPageToken
	}
}

// applyChange reconciles one change against the store and indexes.
func (e *SyncEngine) applyChange(ctx context.Context, run *domain.SyncRun, change domain.Change) error {
	if !change.Op.IsValid() {
		return fmt.Errorf("%w: unknown change op %q", domain.ErrInvalidInput, change.Op)
	}

	if change.Op == domain.ChangeDeleted {
		if err := e.removeDocument(ctx, change.DocumentID); err != nil {
			return err
		}
		run.DocumentsDeleted++
		return nil
	}

	doc, err := e.provider.GetDocument(ctx, change.DocumentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Deleted upstream between feed and fetch. Treat as a delete.
			if err := e.removeDocument(ctx, change.DocumentID); err != nil {
				return err
			}
			run.DocumentsDeleted++
			return nil
		}
		return fmt.Errorf("fetch document: %w", err)
	}

	return e.indexDocument(ctx, run, doc)
}

// indexDocument runs the chunk/embed/commit pipeline for one document.
func (e *SyncEngine) indexDocument(ctx context.Context, run *domain.SyncRun, doc *domain.Document) error {
	hash := doc.ContentHash()

	prior, err := e.syncStore.GetDocumentState(ctx, doc.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("get document state: %w", err)
	}
	if prior != nil && !prior.NeedsReprocess(hash) {
		// Unchanged content with nothing pending. The whole pipeline is
		// skipped: no chunking, no embedding, no index writes.
		run.DocumentsSkipped++
		e.logger.Debug("document unchanged, skipping", zap.String("document", doc.ID))
		return nil
	}

	texts := e.splitter.Split(doc.Body)
	chunks := domain.ChunksFor(*doc, texts)

	embedFailed := false
	if e.embeddingService != nil && e.vectorIndex != nil && len(chunks) > 0 {
		embeddings, err := e.embeddingService.EmbedBatch(ctx, chunkTexts(chunks))
		switch {
		case err != nil:
			// Retries exhausted. Commit without vectors; the document
			// stays keyword-searchable and is flagged for the next cycle.
			e.logger.Warn("embedding failed, committing keyword-only",
				zap.String("document", doc.ID),
				zap.Error(err))
			embedFailed = true
		case len(embeddings) != len(chunks):
			return fmt.Errorf("%w: embedding batch returned %d vectors for %d chunks",
				domain.ErrConsistency, len(embeddings), len(chunks))
		default:
			for i := range chunks {
				chunks[i].Embedding = embeddings[i]
			}
		}
	}

	// The store commit is the document's all-or-nothing point.
	if err := e.docStore.ReplaceDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}

	reindex := false
	if err := e.reindexChunks(ctx, doc.ID, chunks); err != nil {
		// Store and indexes disagree now. Flag the document so the next
		// cycle rebuilds its index entries from the stored content.
		e.logger.Warn("index update failed, flagging for reindex",
			zap.String("document", doc.ID),
			zap.Error(err))
		reindex = true
	}

	state := domain.DocumentSyncState{
		DocumentID:       doc.ID,
		ContentHash:      hash,
		EmbedFailed:      embedFailed,
		ReindexRequested: reindex,
		SyncedAt:         e.now(),
	}
	if err := e.syncStore.SaveDocumentState(ctx, state); err != nil {
		return fmt.Errorf("save document state: %w", err)
	}

	run.DocumentsIndexed++
	return nil
}

// reindexChunks replaces a document's index entries wholesale. Ordinals
// from a previous version may exceed the new chunk count, so delete
// precedes insert.
func (e *SyncEngine) reindexChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	if err := e.keywordIndex.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("clear keyword index: %w", err)
	}
	if len(chunks) > 0 {
		if err := e.keywordIndex.Index(ctx, chunks); err != nil {
			return fmt.Errorf("keyword index: %w", err)
		}
	}

	if e.vectorIndex != nil {
		if err := e.vectorIndex.DeleteByDocument(ctx, documentID); err != nil {
			return fmt.Errorf("clear vector index: %w", err)
		}
		embedded := embeddedOnly(chunks)
		if len(embedded) > 0 {
			if err := e.vectorIndex.Upsert(ctx, embedded); err != nil {
				return fmt.Errorf("vector index: %w", err)
			}
		}
	}

	return nil
}

// removeDocument deletes a document from the indexes, then the store.
// Index deletes run first so a partial failure leaves the document
// re-deletable on the next cycle.
func (e *SyncEngine) removeDocument(ctx context.Context, documentID string) error {
	if err := e.keywordIndex.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete from keyword index: %w", err)
	}
	if e.vectorIndex != nil {
		if err := e.vectorIndex.DeleteByDocument(ctx, documentID); err != nil {
			return fmt.Errorf("delete from vector index: %w", err)
		}
	}
	if err := e.docStore.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := e.syncStore.DeleteDocumentState(ctx, documentID); err != nil {
		return fmt.Errorf("delete document state: %w", err)
	}
	return nil
}

// Status returns the engine's current state and index counts.
func (e *SyncEngine) Status(ctx context.Context) (*driving.SyncStatus, error) {
	status := &driving.SyncStatus{Phase: e.Phase()}

	state, err := e.syncStore.GetState(ctx)
	switch {
	case err == nil:
		status.Watermark = state.Watermark
		status.LastSync = state.LastSync
	case errors.Is(err, domain.ErrNotFound):
		// Never synced, zero values stand.
	default:
		return nil, fmt.Errorf("get sync state: %w", err)
	}

	docs, err := e.docStore.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	status.Documents = docs

	chunks, err := e.docStore.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	status.Chunks = chunks

	retry, err := e.syncStore.ListRetryable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list retryable: %w", err)
	}
	status.PendingRetries = len(retry)

	return status, nil
}

// History returns recent sync cycles, most recent first.
func (e *SyncEngine) History(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if e.runStore == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultHistoryKeep
	}
	return e.runStore.ListRuns(ctx, limit)
}

// Phase returns the engine's current lifecycle phase.
func (e *SyncEngine) Phase() domain.SyncPhase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.phase
}

// transition moves to the next phase, enforcing the lifecycle graph.
func (e *SyncEngine) transition(next domain.SyncPhase) error {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if !e.phase.CanTransition(next) {
		return fmt.Errorf("%w: cannot transition from %s to %s", domain.ErrConsistency, e.phase, next)
	}

	e.logger.Debug("phase transition",
		zap.String("from", string(e.phase)),
		zap.String("to", string(next)))
	e.phase = next
	return nil
}

// failPhase forces the engine into FAILED. Every active phase permits
// the transition; from IDLE there is nothing to fail.
func (e *SyncEngine) failPhase() {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.phase != domain.PhaseIdle {
		e.phase = domain.PhaseFailed
	}
}

// recordRun persists cycle history. Bookkeeping failures are logged,
// never surfaced; the cycle outcome stands on its own.
func (e *SyncEngine) recordRun(ctx context.Context, run *domain.SyncRun) {
	if e.runStore == nil {
		return
	}

	if err := e.runStore.RecordRun(ctx, *run); err != nil {
		e.logger.Warn("recording sync run failed", zap.Error(err))
		return
	}
	if err := e.runStore.PruneRuns(ctx, e.historyKeep); err != nil {
		e.logger.Warn("pruning sync history failed", zap.Error(err))
	}
}

func chunkTexts(chunks []domain.Chunk) []string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	return texts
}

func embeddedOnly(chunks []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) > 0 {
			out = append(out, c)
		}
	}
	return out
}
