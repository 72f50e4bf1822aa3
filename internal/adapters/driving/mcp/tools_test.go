package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns search results", func(t *testing.T) {
		mockSearch := &mockSearchService{
			set: domain.ResultSet{
				Results: []domain.Result{
					{
						DocumentID:  "doc-1",
						ChunkID:     "doc-1:2",
						Title:       "Deploy Guide",
						Link:        "https://wiki.example.com/doc-1",
						Space:       "eng",
						Score:       0.95,
						Snippet:     "Deploys roll forward only.",
						AlsoFoundIn: []int{0, 4},
					},
				},
			},
		}

		ports := &Ports{Search: mockSearch}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "deploy", Scopes: []string{"engineers"}, Limit: 10}
		_, output, err := server.handleSearch(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
		assert.Len(t, output.Results, 1)
		assert.Equal(t, "doc-1", output.Results[0].DocumentID)
		assert.Equal(t, "doc-1:2", output.Results[0].ChunkID)
		assert.Equal(t, "Deploy Guide", output.Results[0].Title)
		assert.Equal(t, 0.95, output.Results[0].Score)
		assert.Equal(t, "Deploys roll forward only.", output.Results[0].Snippet)
		assert.Equal(t, []int{0, 4}, output.Results[0].AlsoFoundIn)
		assert.False(t, output.Partial)
	})

	t.Run("passes scopes and space through to the query", func(t *testing.T) {
		mockSearch := &mockSearchService{}
		ports := &Ports{Search: mockSearch}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{
			Query:  "rollback",
			Scopes: []string{"engineers", "sre"},
			Space:  "eng",
			Limit:  5,
		}
		_, _, err = server.handleSearch(ctx, nil, input)

		require.NoError(t, err)
		assert.Equal(t, "rollback", mockSearch.lastQuery.Text)
		assert.Equal(t, []string{"engineers", "sre"}, mockSearch.lastQuery.Filters.Scopes)
		assert.Equal(t, "eng", mockSearch.lastQuery.Filters.Space)
		assert.Equal(t, 5, mockSearch.lastQuery.Limit)
	})

	t.Run("surfaces degraded results", func(t *testing.T) {
		mockSearch := &mockSearchService{
			set: domain.ResultSet{Partial: true},
		}
		ports := &Ports{Search: mockSearch}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "deploy", Scopes: []string{"engineers"}}
		_, output, err := server.handleSearch(ctx, nil, input)

		require.NoError(t, err)
		assert.True(t, output.Partial)
		assert.Equal(t, 0, output.Count)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		mockSearch := &mockSearchService{
			err: errors.New("search failed"),
		}

		ports := &Ports{Search: mockSearch}
		server, err := NewServer(ports)
		require.NoError(t, err)

		input := SearchInput{Query: "deploy", Scopes: []string{"engineers"}}
		_, _, err = server.handleSearch(ctx, nil, input)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "search failed")
	})
}

func TestServer_handleSyncStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("reports engine state", func(t *testing.T) {
		watermark := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
		mockSync := &mockSyncOrchestrator{
			status: &driving.SyncStatus{
				Phase:          domain.PhaseIdle,
				Watermark:      watermark,
				Documents:      12,
				Chunks:         57,
				PendingRetries: 2,
			},
		}

		ports := &Ports{Search: &mockSearchService{}, Sync: mockSync}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, output, err := server.handleSyncStatus(ctx, nil, SyncStatusInput{})

		require.NoError(t, err)
		assert.Equal(t, "idle", output.Phase)
		assert.Equal(t, "2025-05-01T12:00:00Z", output.Watermark)
		assert.Empty(t, output.LastSync)
		assert.Equal(t, 12, output.Documents)
		assert.Equal(t, 57, output.Chunks)
		assert.Equal(t, 2, output.PendingRetries)
	})

	t.Run("returns error on status failure", func(t *testing.T) {
		mockSync := &mockSyncOrchestrator{
			statusErr: errors.New("store unavailable"),
		}

		ports := &Ports{Search: &mockSearchService{}, Sync: mockSync}
		server, err := NewServer(ports)
		require.NoError(t, err)

		_, _, err = server.handleSyncStatus(ctx, nil, SyncStatusInput{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "store unavailable")
	})
}
