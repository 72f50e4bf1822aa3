// Package bleve provides a keyword index adapter backed by bleve's
// full-text engine with BM25 relevance scoring.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure KeywordIndex implements the interface.
var _ driven.KeywordIndex = (*KeywordIndex)(nil)

// deleteBatchSize bounds how many chunk deletions run per batch when
// clearing a document.
const deleteBatchSize = 500

// chunkDoc is the shape bleve indexes per chunk.
type chunkDoc struct {
	Content    string    `json:"content"`
	DocumentID string    `json:"document_id"`
	Space      string    `json:"space"`
	Scopes     []string  `json:"scopes"`
	Modified   time.Time `json:"modified"`
}

// KeywordIndex answers lexical queries over chunk content.
type KeywordIndex struct {
	index  bleve.Index
	logger *zap.Logger
}

// NewKeywordIndex opens (or creates) a persistent keyword index at path.
func NewKeywordIndex(path string, logger *zap.Logger) (*KeywordIndex, error) {
	index, err := bleve.Open(path)
	switch {
	case err == nil:
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		index, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create keyword index: %w", err)
		}
	default:
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	return &KeywordIndex{index: index, logger: logger.Named("keyword")}, nil
}

// NewMemoryKeywordIndex creates an in-memory keyword index. Used by
// tests and ephemeral setups; nothing persists. Scorch is kept as the
// index type so scoring behaves the same as the persistent index.
func NewMemoryKeywordIndex(logger *zap.Logger) (*KeywordIndex, error) {
	index, err := bleve.NewUsing("", buildMapping(), scorch.Name, scorch.Name, nil)
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &KeywordIndex{index: index, logger: logger.Named("keyword")}, nil
}

// buildMapping defines how chunk fields are analysed. Content goes
// through the standard analyzer; filter fields are exact keywords.
func buildMapping() mapping.IndexMapping {
	chunk := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Store = false
	chunk.AddFieldMappingsAt("content", content)

	chunk.AddFieldMappingsAt("document_id", bleve.NewKeywordFieldMapping())
	chunk.AddFieldMappingsAt("space", bleve.NewKeywordFieldMapping())
	chunk.AddFieldMappingsAt("scopes", bleve.NewKeywordFieldMapping())
	chunk.AddFieldMappingsAt("modified", bleve.NewDateTimeFieldMapping())

	m := bleve.NewIndexMapping()
	m.DefaultMapping = chunk
	m.ScoringModel = "bm25"
	return m
}

// Index adds or replaces chunks. Indexing the same chunk ID again
// overwrites the previous entry.
func (k *KeywordIndex) Index(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := k.index.NewBatch()
	for _, c := range chunks {
		doc := chunkDoc{
			Content:    c.Content,
			DocumentID: c.DocumentID,
			Space:      c.Space,
			Scopes:     c.Scopes,
			Modified:   c.LastModified.UTC(),
		}
		if err := batch.Index(c.ID, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", c.ID, err)
		}
	}

	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}

// Delete removes chunks by ID. Unknown IDs are ignored.
func (k *KeywordIndex) Delete(_ context.Context, chunkIDs ...string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	batch := k.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	if err := k.index.Batch(batch); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// DeleteByDocument removes every chunk belonging to a document.
func (k *KeywordIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	for {
		tq := bleve.NewTermQuery(documentID)
		tq.SetField("document_id")
		req := bleve.NewSearchRequestOptions(tq, deleteBatchSize, 0, false)

		res, err := k.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("find document chunks: %w", err)
		}
		if len(res.Hits) == 0 {
			return nil
		}

		batch := k.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := k.index.Batch(batch); err != nil {
			return fmt.Errorf("delete document chunks: %w", err)
		}
	}
}

// Search runs a relevance-ranked match query restricted by the filters.
// Filters narrow the candidate set inside the engine, before ranking and
// the cut to limit. Ties order by chunk ID.
func (k *KeywordIndex) Search(ctx context.Context, query string, limit int, filters domain.Filters) ([]driven.KeywordHit, error) {
	if limit <= 0 {
		return nil, nil
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	boolq := bleve.NewBooleanQuery()
	boolq.AddMust(match)

	if filters.Space != "" {
		tq := bleve.NewTermQuery(filters.Space)
		tq.SetField("space")
		boolq.AddMust(tq)
	}

	if len(filters.Scopes) > 0 {
		scopeAny := bleve.NewBooleanQuery()
		for _, scope := range filters.Scopes {
			tq := bleve.NewTermQuery(scope)
			tq.SetField("scopes")
			scopeAny.AddShould(tq)
		}
		scopeAny.SetMinShould(1)
		boolq.AddMust(scopeAny)
	}

	if !filters.ModifiedAfter.IsZero() || !filters.ModifiedBefore.IsZero() {
		inclusive := true
		dr := bleve.NewDateRangeInclusiveQuery(
			filters.ModifiedAfter.UTC(), filters.ModifiedBefore.UTC(),
			&inclusive, &inclusive,
		)
		dr.SetField("modified")
		boolq.AddMust(dr)
	}

	req := bleve.NewSearchRequestOptions(boolq, limit, 0, false)
	req.SortBy([]string{"-_score", "_id"})

	res, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	hits := make([]driven.KeywordHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, driven.KeywordHit{ChunkID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Count returns the number of indexed chunks.
func (k *KeywordIndex) Count(_ context.Context) (int, error) {
	n, err := k.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return int(n), nil
}

// Close releases the underlying index.
func (k *KeywordIndex) Close() error {
	return k.index.Close()
}
