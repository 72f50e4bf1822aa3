package driving

import (
	"context"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// SearchService provides hybrid retrieval to external actors.
type SearchService interface {
	// Search performs hybrid search across all indexed documents.
	// Results are fused from vector, keyword, and recency signals,
	// deduplicated by parent document, and restricted to documents the
	// requester's scopes permit.
	Search(ctx context.Context, query domain.Query) (domain.ResultSet, error)
}
