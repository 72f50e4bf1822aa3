// Package chromem provides a vector index adapter backed by chromem-go,
// an embedded vector database with file persistence.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	chromemgo "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

const collectionName = "chunks"

// Metadata keys stored per chunk.
const (
	metaDocumentID = "document_id"
	metaOrdinal    = "ordinal"
	metaSpace      = "space"
	metaScopes     = "scopes"
	metaModified   = "modified"
)

// scopeSep joins scope sets into a single metadata value.
const scopeSep = "\x1f"

// VectorIndex stores chunk embeddings and answers nearest-neighbour
// queries over them.
type VectorIndex struct {
	db         *chromemgo.DB
	collection *chromemgo.Collection
	logger     *zap.Logger
}

// NewVectorIndex opens (or creates) a persistent vector index at path.
func NewVectorIndex(path string, logger *zap.Logger) (*VectorIndex, error) {
	db, err := chromemgo.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("open vector collection: %w", err)
	}

	return &VectorIndex{
		db:         db,
		collection: collection,
		logger:     logger.Named("vector"),
	}, nil
}

// noEmbed refuses implicit embedding. Every chunk arrives with its
// vector already attached; the index never talks to an embedding API.
func noEmbed(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("chromem: implicit embedding is disabled")
}

// Upsert adds or replaces chunk embeddings. Chunks without an embedding
// are skipped; they stay reachable through the keyword index.
func (v *VectorIndex) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	docs := make([]chromemgo.Document, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		docs = append(docs, chromemgo.Document{
			ID:        c.ID,
			Content:   c.Content,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				metaDocumentID: c.DocumentID,
				metaOrdinal:    strconv.Itoa(c.Ordinal),
				metaSpace:      c.Space,
				metaScopes:     strings.Join(c.Scopes, scopeSep),
				metaModified:   c.LastModified.UTC().Format(time.RFC3339Nano),
			},
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if err := v.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// Delete removes chunks by ID. Unknown IDs are ignored.
func (v *VectorIndex) Delete(ctx context.Context, chunkIDs ...string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	if err := v.collection.Delete(ctx, nil, nil, chunkIDs...); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// DeleteByDocument removes every chunk belonging to a document.
func (v *VectorIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	err := v.collection.Delete(ctx, map[string]string{metaDocumentID: documentID}, nil)
	if err != nil {
		return fmt.Errorf("delete document vectors: %w", err)
	}
	return nil
}

// Search returns the k most similar chunks that pass the filters, most
// similar first, ties broken by chunk ID.
//
// Filtering happens here rather than through chromem's where clauses:
// scope sets need OR-matching, which exact-match clauses cannot express,
// and chromem scores the whole collection either way. Candidates are
// filtered before the cut to k, so filters never cost result slots.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int, filters domain.Filters) ([]driven.VectorHit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}
	if k <= 0 {
		return nil, nil
	}

	count := v.collection.Count()
	if count == 0 {
		return nil, nil
	}

	results, err := v.collection.QueryEmbedding(ctx, query, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	hits := make([]driven.VectorHit, 0, k)
	for _, r := range results {
		if !matchesFilters(r.Metadata, filters) {
			continue
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    r.ID,
			Similarity: float64(r.Similarity),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of stored chunk embeddings.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	return v.collection.Count(), nil
}

// Close releases resources. chromem persists on every write, so there is
// nothing to flush.
func (v *VectorIndex) Close() error {
	return nil
}

// matchesFilters applies space, scope, and modification-time filters to
// a chunk's stored metadata.
func matchesFilters(meta map[string]string, filters domain.Filters) bool {
	if filters.Space != "" && meta[metaSpace] != filters.Space {
		return false
	}

	if len(filters.Scopes) > 0 {
		if !scopesOverlap(meta[metaScopes], filters.Scopes) {
			return false
		}
	}

	if !filters.ModifiedAfter.IsZero() || !filters.ModifiedBefore.IsZero() {
		modified, err := time.Parse(time.RFC3339Nano, meta[metaModified])
		if err != nil {
			return false
		}
		if !filters.ModifiedAfter.IsZero() && modified.Before(filters.ModifiedAfter) {
			return false
		}
		if !filters.ModifiedBefore.IsZero() && modified.After(filters.ModifiedBefore) {
			return false
		}
	}

	return true
}

// scopesOverlap reports whether the stored scope set shares a member
// with the requester's scopes.
func scopesOverlap(stored string, requester []string) bool {
	if stored == "" {
		return false
	}
	for _, s := range strings.Split(stored, scopeSep) {
		for _, r := range requester {
			if s == r {
				return true
			}
		}
	}
	return false
}
