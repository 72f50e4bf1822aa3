package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/searchlight/internal/core/domain"
)

// ChangePage is one page of a provider's change feed.
type ChangePage struct {
	// Changes lists document changes in ascending timestamp order.
	Changes []domain.Change

	// NextPageToken requests the following page. Empty means this is
	// the last page.
	NextPageToken string
}

// Provider exposes an external content source's change feed and fetch API.
//
// Implementations may include:
//   - REST change-feed APIs (wikis, ticket systems, document stores)
//   - Local directory trees (mtime-based change detection)
//   - In-memory fixtures for tests
type Provider interface {
	// ListChanges returns document changes strictly after the given
	// watermark. A zero watermark requests the full corpus. Pass the
	// previous page's NextPageToken to continue a paginated listing;
	// an empty token starts from the first page.
	ListChanges(ctx context.Context, since time.Time, pageToken string) (*ChangePage, error)

	// GetDocument fetches the current content and metadata of a document.
	// Returns domain.ErrNotFound if the document no longer exists upstream.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// Ping validates the source is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
