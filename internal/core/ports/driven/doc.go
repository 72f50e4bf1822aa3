// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Provider: the external content source's change feed and fetch API
//   - DocumentStore: document and chunk persistence
//   - SyncStateStore: watermark and per-document sync bookkeeping
//   - SyncRunStore: sync cycle history
//   - KeywordIndex: BM25 keyword search (bleve)
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - VectorIndex: vector storage/search (chromem). Only enabled when
//     EmbeddingService is configured.
//   - EmbeddingService: generates vector embeddings. Without it, queries
//     run keyword-only.
//   - ResultCache: fused result memoisation. Without it, every query is
//     computed fresh.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
