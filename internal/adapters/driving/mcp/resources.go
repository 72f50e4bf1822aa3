package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for searchlight resources.
	uriScheme = "searchlight://"

	// recentRunsLimit caps the runs resource.
	recentRunsLimit = 10
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for the sync engine's state.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "status",
		Name:        "status",
		Description: "Sync engine state and index counts",
		MIMEType:    "application/json",
	}, s.handleStatusResource)

	// Static resource for recent sync cycles.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "runs",
		Name:        "sync-runs",
		Description: "Recent sync cycles, most recent first",
		MIMEType:    "application/json",
	}, s.handleRunsResource)
}

// handleStatusResource returns the sync engine's current state.
func (s *Server) handleStatusResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Sync == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "{}",
			}},
		}, nil
	}

	status, err := s.ports.Sync.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading sync status: %w", err)
	}

	type statusInfo struct {
		Phase          string `json:"phase"`
		Watermark      string `json:"watermark,omitempty"`
		LastSync       string `json:"last_sync,omitempty"`
		Documents      int    `json:"documents"`
		Chunks         int    `json:"chunks"`
		PendingRetries int    `json:"pending_retries"`
	}

	info := statusInfo{
		Phase:          string(status.Phase),
		Documents:      status.Documents,
		Chunks:         status.Chunks,
		PendingRetries: status.PendingRetries,
	}
	if !status.Watermark.IsZero() {
		info.Watermark = status.Watermark.UTC().Format(time.RFC3339)
	}
	if !status.LastSync.IsZero() {
		info.LastSync = status.LastSync.UTC().Format(time.RFC3339)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling status: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleRunsResource returns recent sync cycles.
func (s *Server) handleRunsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Sync == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	runs, err := s.ports.Sync.History(ctx, recentRunsLimit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}

	type runInfo struct {
		ID               string `json:"id"`
		Trigger          string `json:"trigger"`
		StartedAt        string `json:"started_at"`
		Phase            string `json:"phase"`
		DocumentsIndexed int    `json:"documents_indexed"`
		DocumentsFailed  int    `json:"documents_failed"`
		Error            string `json:"error,omitempty"`
	}

	infos := make([]runInfo, len(runs))
	for i := range runs {
		infos[i] = runInfo{
			ID:               runs[i].ID,
			Trigger:          string(runs[i].Trigger),
			StartedAt:        runs[i].StartedAt.UTC().Format(time.RFC3339),
			Phase:            string(runs[i].Phase),
			DocumentsIndexed: runs[i].DocumentsIndexed,
			DocumentsFailed:  runs[i].DocumentsFailed,
			Error:            runs[i].Error,
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling runs: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
