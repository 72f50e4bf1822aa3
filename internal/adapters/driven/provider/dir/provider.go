// Package dir provides a content provider backed by a local directory tree.
package dir

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.Provider = (*Provider)(nil)

// DefaultSpace is the space assigned to files directly under the root.
const DefaultSpace = "local"

// Provider serves documents from a directory tree. Each regular file is a
// document: its id is the slash-separated path relative to the root, its
// space is the first path element (or DefaultSpace for files at the root),
// and its change timestamp is the file's modification time.
//
// Deletions are detected by comparing successive walks, so a file removed
// while the process was down is not reported as deleted.
type Provider struct {
	root   string
	scopes []string
	logger *zap.Logger

	mu      sync.Mutex
	seen    map[string]struct{}
	pending map[string]time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// NewProvider creates a provider rooted at the given directory. Documents
// carry the given scopes; when none are given they default to DefaultSpace
// so local corpora stay visible.
func NewProvider(root string, scopes []string, logger *zap.Logger) (*Provider, error) {
	if root == "" {
		return nil, fmt.Errorf("dir: root path is required")
	}
	if len(scopes) == 0 {
		scopes = []string{DefaultSpace}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		root:    filepath.Clean(root),
		scopes:  scopes,
		logger:  logger,
		pending: make(map[string]time.Time),
		now:     time.Now,
	}, nil
}

// ListChanges walks the tree and reports files modified strictly after the
// watermark, plus deletions of files present on the previous walk. The page
// token is unused: a walk always returns the full result in one page.
func (p *Provider) ListChanges(ctx context.Context, since time.Time, pageToken string) (*driven.ChangePage, error) {
	if pageToken != "" {
		return nil, fmt.Errorf("%w: unknown page token %q", domain.ErrInvalidInput, pageToken)
	}
	if err := p.validateRoot(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]struct{})
	var changes []domain.Change

	err := filepath.WalkDir(p.root, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if fullPath == p.root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", fullPath, err)
		}

		rel, err := filepath.Rel(p.root, fullPath)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", fullPath, err)
		}
		id := filepath.ToSlash(rel)
		current[id] = struct{}{}

		if !info.ModTime().After(since) {
			return nil
		}

		op := domain.ChangeCreated
		if _, ok := p.seen[id]; ok {
			op = domain.ChangeUpdated
		}
		changes = append(changes, domain.Change{
			DocumentID: id,
			Op:         op,
			Timestamp:  info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", p.root, err)
	}

	// Files that vanished since the previous walk become pending deletions.
	// A pending deletion is replayed until the watermark passes its
	// detection time, then pruned as committed.
	for id := range p.seen {
		if _, ok := current[id]; !ok {
			if _, already := p.pending[id]; !already {
				p.pending[id] = p.now().UTC()
			}
		}
	}
	for id, at := range p.pending {
		if _, ok := current[id]; ok {
			// Recreated before the deletion was consumed.
			delete(p.pending, id)
			continue
		}
		if at.After(since) {
			changes = append(changes, domain.Change{
				DocumentID: id,
				Op:         domain.ChangeDeleted,
				Timestamp:  at,
			})
		} else {
			delete(p.pending, id)
		}
	}
	p.seen = current

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Timestamp.Equal(changes[j].Timestamp) {
			return changes[i].DocumentID < changes[j].DocumentID
		}
		return changes[i].Timestamp.Before(changes[j].Timestamp)
	})

	p.logger.Debug("walked corpus",
		zap.Int("files", len(current)),
		zap.Int("changes", len(changes)))

	return &driven.ChangePage{Changes: changes}, nil
}

// GetDocument reads the file behind the given id. Hidden files and paths
// outside the root are not part of the corpus.
func (p *Provider) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: document id is empty", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	full := filepath.Join(p.root, filepath.FromSlash(id))
	rel, err := filepath.Rel(p.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: document id %q escapes the corpus root", domain.ErrInvalidInput, id)
	}
	if isHidden(id) {
		return nil, fmt.Errorf("%w: document %q", domain.ErrNotFound, id)
	}

	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: document %q", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("stat %s: %w", full, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: document %q", domain.ErrNotFound, id)
	}

	body, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", full, err)
	}

	abs, err := filepath.Abs(full)
	if err != nil {
		abs = full
	}

	return &domain.Document{
		ID:           id,
		Title:        titleFor(id),
		Space:        spaceFor(id),
		Body:         string(body),
		Link:         "file://" + filepath.ToSlash(abs),
		LastModified: info.ModTime().UTC(),
		Scopes:       append([]string(nil), p.scopes...),
	}, nil
}

// Ping checks the root is an existing directory.
func (p *Provider) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.validateRoot()
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

func (p *Provider) validateRoot() error {
	info, err := os.Stat(p.root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("dir: root %q does not exist", p.root)
		}
		return fmt.Errorf("dir: stat root %q: %w", p.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("dir: root %q is not a directory", p.root)
	}
	return nil
}

// titleFor derives a title from the file name, without its extension.
func titleFor(id string) string {
	base := path.Base(id)
	title := strings.TrimSuffix(base, path.Ext(base))
	if title == "" {
		return base
	}
	return title
}

// spaceFor maps the first path element to a space. Files directly under
// the root share DefaultSpace.
func spaceFor(id string) string {
	if i := strings.IndexByte(id, '/'); i > 0 {
		return id[:i]
	}
	return DefaultSpace
}

// isHidden reports whether any path element starts with a dot.
func isHidden(id string) bool {
	for _, part := range strings.Split(id, "/") {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
