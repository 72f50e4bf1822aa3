package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

func TestSyncStateStore_StateRoundTrip(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()

	_, err := store.GetState(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	watermark := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveState(ctx, domain.SyncState{
		Watermark: watermark,
		LastSync:  watermark.Add(time.Minute),
	}))

	state, err := store.GetState(ctx)
	require.NoError(t, err)
	assert.True(t, state.Watermark.Equal(watermark))
}

func TestSyncStateStore_DocumentStates(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()

	_, err := store.GetDocumentState(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.SaveDocumentState(ctx, domain.DocumentSyncState{
		DocumentID:  "doc-1",
		ContentHash: "abc123",
		SyncedAt:    time.Now(),
	}))

	state, err := store.GetDocumentState(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", state.ContentHash)
	assert.False(t, state.EmbedFailed)

	require.NoError(t, store.DeleteDocumentState(ctx, "doc-1"))
	_, err = store.GetDocumentState(ctx, "doc-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Deleting again is a no-op.
	assert.NoError(t, store.DeleteDocumentState(ctx, "doc-1"))
}

func TestSyncStateStore_ListRetryable(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()

	states := []domain.DocumentSyncState{
		{DocumentID: "clean", ContentHash: "h1"},
		{DocumentID: "embed-failed", ContentHash: "h2", EmbedFailed: true},
		{DocumentID: "reindex", ContentHash: "h3", ReindexRequested: true},
		{DocumentID: "both", ContentHash: "h4", EmbedFailed: true, ReindexRequested: true},
	}
	for _, st := range states {
		require.NoError(t, store.SaveDocumentState(ctx, st))
	}

	ids, err := store.ListRetryable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"both", "embed-failed", "reindex"}, ids)
}

func TestSyncRunStore_RecordAndList(t *testing.T) {
	store := NewSyncRunStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordRun(ctx, domain.SyncRun{
			ID:        string(rune('a' + i)),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Phase:     domain.PhaseIdle,
		}))
	}

	runs, err := store.ListRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "e", runs[0].ID)
	assert.Equal(t, "d", runs[1].ID)
	assert.Equal(t, "c", runs[2].ID)
}

func TestSyncRunStore_PruneRuns(t *testing.T) {
	store := NewSyncRunStore()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordRun(ctx, domain.SyncRun{
			ID:        string(rune('a' + i)),
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	require.NoError(t, store.PruneRuns(ctx, 2))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "e", runs[0].ID)
	assert.Equal(t, "d", runs[1].ID)
}
