package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

// Ensure QueryService implements the interface.
var _ driving.SearchService = (*QueryService)(nil)

const (
	// defaultSignalTimeout bounds each retrieval signal independently.
	defaultSignalTimeout = time.Second

	// defaultRecencyHalfLife is the age at which the recency signal halves.
	defaultRecencyHalfLife = 30 * 24 * time.Hour

	// snippetLimit caps snippet length in runes.
	snippetLimit = 200
)

// docCandidate accumulates the matched chunks of one document during
// deduplication. The best-scoring chunk represents the document.
type docCandidate struct {
	doc      *domain.Document
	chunk    *domain.Chunk
	score    float64
	ordinals []int
}

// QueryService provides hybrid retrieval over the indexed corpus.
type QueryService struct {
	docStore         driven.DocumentStore
	keywordIndex     driven.KeywordIndex
	vectorIndex      driven.VectorIndex
	embeddingService driven.EmbeddingService
	cache            driven.ResultCache
	logger           *zap.Logger

	weights         domain.FusionWeights
	signalTimeout   time.Duration
	recencyHalfLife time.Duration
	now             func() time.Time
}

// NewQueryService creates a new query service.
// The vectorIndex and embeddingService parameters are optional (can be nil);
// without them queries run keyword-only.
func NewQueryService(
	docStore driven.DocumentStore,
	keywordIndex driven.KeywordIndex,
	vectorIndex driven.VectorIndex,
	embeddingService driven.EmbeddingService,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		docStore:         docStore,
		keywordIndex:     keywordIndex,
		vectorIndex:      vectorIndex,
		embeddingService: embeddingService,
		logger:           logger.Named("query"),
		weights:          domain.DefaultFusionWeights(),
		signalTimeout:    defaultSignalTimeout,
		recencyHalfLife:  defaultRecencyHalfLife,
		now:              time.Now,
	}
}

// SetCache enables result memoisation.
func (s *QueryService) SetCache(cache driven.ResultCache) {
	s.cache = cache
}

// SetWeights overrides the default fusion weights.
func (s *QueryService) SetWeights(w domain.FusionWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.weights = w
	return nil
}

// SetSignalTimeout overrides the per-signal time budget.
func (s *QueryService) SetSignalTimeout(d time.Duration) {
	if d > 0 {
		s.signalTimeout = d
	}
}

// SetRecencyHalfLife overrides the recency decay half-life.
func (s *QueryService) SetRecencyHalfLife(d time.Duration) {
	if d > 0 {
		s.recencyHalfLife = d
	}
}

// Search performs hybrid search across all indexed documents.
//
// A query embedding failure or a single failed signal degrades the
// response rather than failing it; degraded responses are marked
// Partial. Only when every signal fails does Search return an error.
func (s *QueryService) Search(ctx context.Context, query domain.Query) (domain.ResultSet, error) {
	if err := query.Validate(); err != nil {
		return domain.ResultSet{}, err
	}

	limit := query.EffectiveLimit()
	key := queryFingerprint(query)

	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.logger.Debug("result cache hit", zap.String("fingerprint", key[:12]))
			return cached, nil
		}
	}

	// Embed the query. Failure does not fail the search; it degrades to
	// keyword-only.
	canDoVector := s.vectorIndex != nil && s.embeddingService != nil
	partial := false
	var queryVector []float32
	if canDoVector {
		embedCtx, cancel := context.WithTimeout(ctx, s.signalTimeout)
		vec, err := s.embeddingService.Embed(embedCtx, query.Text)
		cancel()
		if err != nil {
			s.logger.Warn("query embedding failed, degrading to keyword-only", zap.Error(err))
			partial = true
		} else {
			queryVector = vec
		}
	}

	// Overfetch so document-level deduplication still fills the page.
	candidateLimit := limit * 3

	var (
		vectorHits  []driven.VectorHit
		keywordHits []driven.KeywordHit
		vectorErr   error
		keywordErr  error
	)

	var wg sync.WaitGroup
	vectorRan := len(queryVector) > 0
	if vectorRan {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
			defer cancel()
			vectorHits, vectorErr = s.vectorIndex.Search(sctx, queryVector, candidateLimit, query.Filters)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		sctx, cancel := context.WithTimeout(ctx, s.signalTimeout)
		defer cancel()
		keywordHits, keywordErr = s.keywordIndex.Search(sctx, query.Text, candidateLimit, query.Filters)
	}()

	wg.Wait()

	switch {
	case keywordErr != nil && vectorRan && vectorErr != nil:
		return domain.ResultSet{}, fmt.Errorf("search: keyword=%w, vector=%w", keywordErr, vectorErr)
	case keywordErr != nil && !vectorRan:
		return domain.ResultSet{}, fmt.Errorf("keyword search: %w", keywordErr)
	case keywordErr != nil:
		s.logger.Warn("keyword search failed, using vector results only", zap.Error(keywordErr))
		partial = true
		keywordHits = nil
	case vectorRan && vectorErr != nil:
		s.logger.Warn("vector search failed, using keyword results only", zap.Error(vectorErr))
		partial = true
		vectorHits = nil
	}

	// Normalise each signal across its own candidate list so the fused
	// score blends comparable quantities.
	vectorScores := normaliseSignal(vectorSignal(vectorHits))
	keywordScores := normaliseSignal(keywordSignal(keywordHits))
	order := candidateOrder(vectorHits, keywordHits)

	s.logger.Debug("retrieval signals gathered",
		zap.Int("vector_hits", len(vectorHits)),
		zap.Int("keyword_hits", len(keywordHits)),
		zap.Int("candidates", len(order)))

	results, err := s.hydrate(ctx, order, vectorScores, keywordScores, query)
	if err != nil {
		return domain.ResultSet{}, err
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	rs := domain.ResultSet{Results: results, Partial: partial}

	// Degraded responses are never cached; a cache hit must be as good
	// as a fresh query.
	if s.cache != nil && !partial {
		s.cache.Set(key, rs)
	}

	return rs, nil
}

// hydrate resolves candidate chunk IDs against the document store,
// fuses per-signal scores, and deduplicates by parent document. The
// order slice fixes iteration order; map lookups carry the scores.
func (s *QueryService) hydrate(
	ctx context.Context,
	order []string,
	vectorScores, keywordScores map[string]float64,
	query domain.Query,
) ([]domain.Result, error) {
	now := s.now()

	byDoc := make(map[string]*docCandidate)
	docOrder := make([]string, 0, len(order))

	for _, chunkID := range order {
		chunk, err := s.docStore.GetChunk(ctx, chunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Index entry outlived the chunk, skip it.
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", chunkID, err)
		}

		cand, ok := byDoc[chunk.DocumentID]
		if !ok {
			doc, err := s.docStore.GetDocument(ctx, chunk.DocumentID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return nil, fmt.Errorf("get document %s: %w", chunk.DocumentID, err)
			}

			if !doc.VisibleTo(query.Filters.Scopes) {
				// The indexes pre-filter on scopes; this guards the gap
				// between index update and store update.
				s.logger.Debug("dropping result outside requester scopes",
					zap.String("document", doc.ID))
				continue
			}

			cand = &docCandidate{doc: doc}
			byDoc[chunk.DocumentID] = cand
			docOrder = append(docOrder, chunk.DocumentID)
		}

		recency := recencyScore(cand.doc.LastModified, now, s.recencyHalfLife)
		score := s.weights.Vector*vectorScores[chunkID] +
			s.weights.Keyword*keywordScores[chunkID] +
			s.weights.Recency*recency

		cand.ordinals = append(cand.ordinals, chunk.Ordinal)
		better := cand.chunk == nil || score > cand.score ||
			(score == cand.score && chunk.Ordinal < cand.chunk.Ordinal)
		if better {
			cand.chunk = chunk
			cand.score = score
		}
	}

	results := make([]domain.Result, 0, len(docOrder))
	for _, docID := range docOrder {
		results = append(results, buildResult(byDoc[docID], query.Text))
	}

	return results, nil
}

// buildResult turns an accumulated document candidate into a final result.
// AlsoFoundIn lists the ordinals of the document's other matched chunks.
func buildResult(cand *docCandidate, queryText string) domain.Result {
	also := make([]int, 0, len(cand.ordinals))
	for _, o := range cand.ordinals {
		if o != cand.chunk.Ordinal {
			also = append(also, o)
		}
	}
	sort.Ints(also)

	return domain.Result{
		DocumentID:   cand.doc.ID,
		ChunkID:      cand.chunk.ID,
		Title:        cand.doc.Title,
		Link:         cand.doc.Link,
		Space:        cand.doc.Space,
		LastModified: cand.doc.LastModified,
		Score:        cand.score,
		Snippet:      snippetFor(cand.chunk.Content, queryText),
		AlsoFoundIn:  also,
	}
}

// signalScore pairs a chunk with one signal's raw score.
type signalScore struct {
	chunkID string
	raw     float64
}

func vectorSignal(hits []driven.VectorHit) []signalScore {
	scores := make([]signalScore, len(hits))
	for i, h := range hits {
		scores[i] = signalScore{chunkID: h.ChunkID, raw: h.Similarity}
	}
	return scores
}

func keywordSignal(hits []driven.KeywordHit) []signalScore {
	scores := make([]signalScore, len(hits))
	for i, h := range hits {
		scores[i] = signalScore{chunkID: h.ChunkID, raw: h.Score}
	}
	return scores
}

// normaliseSignal rescales raw scores to [0,1] with min-max. A uniform
// list maps to 1.0 so a lone hit keeps full signal weight.
func normaliseSignal(scores []signalScore) map[string]float64 {
	if len(scores) == 0 {
		return nil
	}

	lo, hi := scores[0].raw, scores[0].raw
	for _, s := range scores[1:] {
		if s.raw < lo {
			lo = s.raw
		}
		if s.raw > hi {
			hi = s.raw
		}
	}

	out := make(map[string]float64, len(scores))
	for _, s := range scores {
		if hi == lo {
			out[s.chunkID] = 1.0
			continue
		}
		out[s.chunkID] = (s.raw - lo) / (hi - lo)
	}
	return out
}

// candidateOrder returns the union of both hit lists, vector hits first,
// preserving each list's ranking order.
func candidateOrder(vectorHits []driven.VectorHit, keywordHits []driven.KeywordHit) []string {
	seen := make(map[string]bool, len(vectorHits)+len(keywordHits))
	order := make([]string, 0, len(vectorHits)+len(keywordHits))

	for _, h := range vectorHits {
		if !seen[h.ChunkID] {
			seen[h.ChunkID] = true
			order = append(order, h.ChunkID)
		}
	}
	for _, h := range keywordHits {
		if !seen[h.ChunkID] {
			seen[h.ChunkID] = true
			order = append(order, h.ChunkID)
		}
	}
	return order
}

// recencyScore decays exponentially with document age: 1.0 for a
// document modified now, halving every halfLife. A newer document never
// scores below an older one.
func recencyScore(lastModified, now time.Time, halfLife time.Duration) float64 {
	if lastModified.IsZero() {
		return 0
	}
	age := now.Sub(lastModified)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}

// sortResults orders by fused score descending, breaking ties by
// ascending document ID so equal scores rank deterministically.
func sortResults(results []domain.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocumentID < results[j].DocumentID
	})
}

// snippetFor returns the first sentence containing a query term, trimmed
// to snippetLimit runes, falling back to the chunk prefix.
func snippetFor(content, query string) string {
	terms := strings.Fields(strings.ToLower(query))

	for _, sentence := range splitSentences(content) {
		lower := strings.ToLower(sentence)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				return truncateRunes(sentence, snippetLimit)
			}
		}
	}

	return truncateRunes(strings.TrimSpace(content), snippetLimit)
}

// splitSentences splits content into sentences.
func splitSentences(content string) []string {
	// Simple sentence splitting by common terminators
	var sentences []string
	var current strings.Builder

	for _, r := range content {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			s := strings.TrimSpace(current.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	// Don't forget the last sentence
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// truncateRunes shortens s to at most limit runes, marking the cut.
func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
