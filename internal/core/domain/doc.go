// Package domain defines the core business entities for Searchlight.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: the engine's read-only mirror of a provider document
//   - Chunk: a bounded-size searchable unit within a document
//   - Change: a created/updated/deleted event from the content provider
//   - Query / Result: the caller-facing search contract
//   - SyncState / SyncRun: watermark and per-cycle bookkeeping
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
