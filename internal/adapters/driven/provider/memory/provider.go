// Package memory provides an in-memory content provider used by tests and
// ephemeral runs. Documents are seeded through Put and Delete, which also
// record the corresponding change feed entries.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.Provider = (*Provider)(nil)

// DefaultPageSize bounds a change page when no size is given.
const DefaultPageSize = 100

// Provider is an in-memory implementation of driven.Provider.
type Provider struct {
	mu       sync.RWMutex
	pageSize int
	docs     map[string]domain.Document
	changes  []domain.Change
}

// NewProvider creates an empty in-memory provider.
func NewProvider(pageSize int) *Provider {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Provider{
		pageSize: pageSize,
		docs:     make(map[string]domain.Document),
	}
}

// Put stores or replaces a document and records a created or updated
// change at the document's LastModified time.
func (p *Provider) Put(doc *domain.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()

	op := domain.ChangeCreated
	if _, ok := p.docs[doc.ID]; ok {
		op = domain.ChangeUpdated
	}
	p.docs[doc.ID] = *doc
	p.changes = append(p.changes, domain.Change{
		DocumentID: doc.ID,
		Op:         op,
		Timestamp:  doc.LastModified,
	})
}

// Delete removes a document and records a deleted change.
func (p *Provider) Delete(id string, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.docs, id)
	p.changes = append(p.changes, domain.Change{
		DocumentID: id,
		Op:         domain.ChangeDeleted,
		Timestamp:  at,
	})
}

// ListChanges returns recorded changes strictly after the watermark in
// ascending timestamp order, paginated by pageSize.
func (p *Provider) ListChanges(_ context.Context, since time.Time, pageToken string) (*driven.ChangePage, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var filtered []domain.Change
	for _, c := range p.changes {
		if c.Timestamp.After(since) {
			filtered = append(filtered, c)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.Before(filtered[j].Timestamp)
	})

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 || n > len(filtered) {
			return nil, fmt.Errorf("%w: unknown page token %q", domain.ErrInvalidInput, pageToken)
		}
		offset = n
	}

	end := offset + p.pageSize
	if end > len(filtered) {
		end = len(filtered)
	}

	page := &driven.ChangePage{
		Changes: append([]domain.Change(nil), filtered[offset:end]...),
	}
	if end < len(filtered) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetDocument retrieves a document by id.
func (p *Provider) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	doc, ok := p.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// Ping always succeeds.
func (p *Provider) Ping(_ context.Context) error {
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}
