// Package httpapi exposes search and sync over HTTP.
package httpapi

import (
	"time"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// SearchRequest is the request body for POST /api/v1/search.
// After and Before are RFC 3339 timestamps bounding document modification
// time; zero values mean unbounded.
type SearchRequest struct {
	Query  string    `json:"query"`
	Space  string    `json:"space,omitempty"`
	Scopes []string  `json:"scopes"`
	After  time.Time `json:"after,omitempty"`
	Before time.Time `json:"before,omitempty"`
	Limit  int       `json:"limit,omitempty"`
}

// SearchResponse is the response body for POST /api/v1/search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`

	// Partial is true when a ranking signal was unavailable and the
	// results are keyword-only.
	Partial bool `json:"partial"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	DocumentID   string    `json:"document_id"`
	ChunkID      string    `json:"chunk_id"`
	Title        string    `json:"title"`
	Link         string    `json:"link,omitempty"`
	Space        string    `json:"space,omitempty"`
	LastModified time.Time `json:"last_modified"`
	Score        float64   `json:"score"`
	Snippet      string    `json:"snippet,omitempty"`
	AlsoFoundIn  []int     `json:"also_found_in,omitempty"`
}

// SyncRunSummary is one sync cycle's outcome, returned by POST
// /api/v1/sync and in status history.
type SyncRunSummary struct {
	ID               string    `json:"id"`
	Trigger          string    `json:"trigger"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	Phase            string    `json:"phase"`
	DocumentsSeen    int       `json:"documents_seen"`
	DocumentsIndexed int       `json:"documents_indexed"`
	DocumentsDeleted int       `json:"documents_deleted"`
	DocumentsSkipped int       `json:"documents_skipped"`
	DocumentsFailed  int       `json:"documents_failed"`
	Watermark        time.Time `json:"watermark"`
	Error            string    `json:"error,omitempty"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Phase          string           `json:"phase"`
	Watermark      time.Time        `json:"watermark"`
	LastSync       time.Time        `json:"last_sync"`
	Documents      int              `json:"documents"`
	Chunks         int              `json:"chunks"`
	PendingRetries int              `json:"pending_retries"`
	History        []SyncRunSummary `json:"history,omitempty"`
}

// searchResult converts a domain result to its wire shape.
func searchResult(r domain.Result) SearchResult {
	return SearchResult{
		DocumentID:   r.DocumentID,
		ChunkID:      r.ChunkID,
		Title:        r.Title,
		Link:         r.Link,
		Space:        r.Space,
		LastModified: r.LastModified,
		Score:        r.Score,
		Snippet:      r.Snippet,
		AlsoFoundIn:  r.AlsoFoundIn,
	}
}

// syncRun converts a domain sync run to its wire shape.
func syncRun(run *domain.SyncRun) SyncRunSummary {
	return SyncRunSummary{
		ID:               run.ID,
		Trigger:          string(run.Trigger),
		StartedAt:        run.StartedAt,
		EndedAt:          run.EndedAt,
		Phase:            string(run.Phase),
		DocumentsSeen:    run.DocumentsSeen,
		DocumentsIndexed: run.DocumentsIndexed,
		DocumentsDeleted: run.DocumentsDeleted,
		DocumentsSkipped: run.DocumentsSkipped,
		DocumentsFailed:  run.DocumentsFailed,
		Watermark:        run.Watermark,
		Error:            run.Error,
	}
}
