package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultQueryLimit is how many results a query returns when the caller
// does not say otherwise.
const DefaultQueryLimit = 10

// Query is the caller-facing search request.
type Query struct {
	// Text is the free-text query. Must not be blank.
	Text string

	// Filters restricts the candidate set before scoring.
	Filters Filters

	// Limit is the maximum number of results (k). Defaults to
	// DefaultQueryLimit when zero or negative.
	Limit int
}

// Filters restricts a query's candidate set. Space and scope restrictions
// are applied before ranking so result counts never leak the existence of
// inaccessible documents.
type Filters struct {
	// Space restricts results to a single namespace when non-empty.
	Space string

	// Scopes is the requester's accessible permission scopes, resolved
	// upstream. A result is only eligible when its own scope set
	// intersects this one.
	Scopes []string

	// ModifiedAfter / ModifiedBefore bound the document modification
	// time. Zero values mean unbounded.
	ModifiedAfter  time.Time
	ModifiedBefore time.Time
}

// Validate rejects malformed queries before any backend work happens.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: query text is empty", ErrInvalidInput)
	}
	if len(q.Filters.Scopes) == 0 {
		return fmt.Errorf("%w: requester scopes are required", ErrInvalidInput)
	}
	if !q.Filters.ModifiedAfter.IsZero() && !q.Filters.ModifiedBefore.IsZero() &&
		q.Filters.ModifiedBefore.Before(q.Filters.ModifiedAfter) {
		return fmt.Errorf("%w: date range is inverted", ErrInvalidInput)
	}
	return nil
}

// EffectiveLimit returns the limit with the default applied.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Result is a single ranked hit, deduplicated to one chunk per document.
type Result struct {
	// DocumentID identifies the parent document.
	DocumentID string

	// ChunkID is the highest-scoring chunk for the document.
	ChunkID string

	// Citation metadata, denormalised for self-contained rendering.
	Title        string
	Link         string
	Space        string
	LastModified time.Time

	// Score is the fused relevance score.
	Score float64

	// Snippet is a sentence-aligned extract from the winning chunk.
	Snippet string

	// AlsoFoundIn lists the ordinals of other chunks of the same
	// document that also matched.
	AlsoFoundIn []int
}

// ResultSet is the response to a search request.
type ResultSet struct {
	// Results is the ranked, deduplicated result list.
	Results []Result

	// Partial is true when the response is degraded: the query embedding
	// failed or one retrieval signal timed out.
	Partial bool
}

// FusionWeights are the relative weights of the three ranking signals.
// They are tunable constants, not fixed algorithm parameters.
type FusionWeights struct {
	Vector  float64
	Keyword float64
	Recency float64
}

// DefaultFusionWeights mirror the design defaults: vector similarity
// dominates, keyword relevance second, recency as a tiebreaker-ish boost.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{Vector: 0.6, Keyword: 0.3, Recency: 0.1}
}

// Validate checks the weights are usable.
func (w FusionWeights) Validate() error {
	if w.Vector < 0 || w.Keyword < 0 || w.Recency < 0 {
		return fmt.Errorf("%w: fusion weights must be non-negative", ErrInvalidInput)
	}
	if w.Vector+w.Keyword+w.Recency == 0 {
		return fmt.Errorf("%w: at least one fusion weight must be positive", ErrInvalidInput)
	}
	return nil
}
