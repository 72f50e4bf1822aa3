package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query  string   `json:"query" jsonschema:"the search query to run against the corpus"`
	Scopes []string `json:"scopes" jsonschema:"permission scopes of the requester; only documents sharing a scope are returned"`
	Space  string   `json:"space,omitempty" jsonschema:"restrict results to a single space"`
	Limit  int      `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`

	// Partial is true when a ranking signal was unavailable and the
	// results are keyword-only.
	Partial bool `json:"partial,omitempty"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	DocumentID  string  `json:"document_id"`
	ChunkID     string  `json:"chunk_id"`
	Title       string  `json:"title"`
	Link        string  `json:"link,omitempty"`
	Space       string  `json:"space,omitempty"`
	Score       float64 `json:"score"`
	Snippet     string  `json:"snippet,omitempty"`
	AlsoFoundIn []int   `json:"also_found_in,omitempty"`
}

// SyncStatusInput is the input schema for the sync_status tool.
type SyncStatusInput struct{}

// SyncStatusOutput is the output schema for the sync_status tool.
type SyncStatusOutput struct {
	Phase          string `json:"phase"`
	Watermark      string `json:"watermark,omitempty"`
	LastSync       string `json:"last_sync,omitempty"`
	Documents      int    `json:"documents"`
	Chunks         int    `json:"chunks"`
	PendingRetries int    `json:"pending_retries"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search across all indexed documents",
	}, s.handleSearch)

	if s.ports.Sync != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "sync_status",
			Description: "Report sync engine state and index counts",
		}, s.handleSyncStatus)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	set, err := s.ports.Search.Search(ctx, domain.Query{
		Text:  input.Query,
		Limit: input.Limit,
		Filters: domain.Filters{
			Space:  input.Space,
			Scopes: input.Scopes,
		},
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(set.Results)),
		Count:   len(set.Results),
		Partial: set.Partial,
	}

	for i := range set.Results {
		r := set.Results[i]
		output.Results[i] = SearchResultOutput{
			DocumentID:  r.DocumentID,
			ChunkID:     r.ChunkID,
			Title:       r.Title,
			Link:        r.Link,
			Space:       r.Space,
			Score:       r.Score,
			Snippet:     r.Snippet,
			AlsoFoundIn: r.AlsoFoundIn,
		}
	}

	return nil, output, nil
}

// handleSyncStatus handles the sync_status tool invocation.
func (s *Server) handleSyncStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ SyncStatusInput,
) (*mcp.CallToolResult, SyncStatusOutput, error) {
	status, err := s.ports.Sync.Status(ctx)
	if err != nil {
		return nil, SyncStatusOutput{}, err
	}

	output := SyncStatusOutput{
		Phase:          string(status.Phase),
		Documents:      status.Documents,
		Chunks:         status.Chunks,
		PendingRetries: status.PendingRetries,
	}
	if !status.Watermark.IsZero() {
		output.Watermark = status.Watermark.UTC().Format(time.RFC3339)
	}
	if !status.LastSync.IsZero() {
		output.LastSync = status.LastSync.UTC().Format(time.RFC3339)
	}

	return nil, output, nil
}
