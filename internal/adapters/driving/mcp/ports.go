package mcp

import (
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Search provides search capabilities.
	Search driving.SearchService

	// Sync reports sync engine state. Optional; without it the status
	// surfaces are absent or empty.
	Sync driving.SyncOrchestrator
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Search == nil {
		return ErrMissingSearchService
	}
	return nil
}
