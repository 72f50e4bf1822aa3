package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Document is the engine's read-only mirror of a content provider document.
// The provider owns the content; Searchlight only indexes it.
type Document struct {
	// ID is the provider's stable identifier for the document.
	ID string

	// Title is the human-readable title.
	Title string

	// Space is the namespace the document lives in (e.g. a wiki space).
	Space string

	// Body is the full raw text content before chunking.
	Body string

	// Link is the web URL used for citations.
	Link string

	// LastModified is the provider-reported modification time.
	LastModified time.Time

	// Scopes is the permission scope: the set of principals or groups
	// allowed to view this document. Empty means nobody can see it.
	Scopes []string
}

// ContentHash returns the sha256 hex digest of the document body.
// Unchanged hashes let a sync cycle skip re-chunking and re-embedding.
func (d Document) ContentHash() string {
	sum := sha256.Sum256([]byte(d.Body))
	return hex.EncodeToString(sum[:])
}

// VisibleTo reports whether any of the requester's scopes grants access.
func (d Document) VisibleTo(requesterScopes []string) bool {
	return scopesIntersect(d.Scopes, requesterScopes)
}

// Chunk is a bounded-size searchable unit within a document. Metadata is
// denormalised from the parent so a chunk is self-contained at retrieval
// time.
type Chunk struct {
	// ID is the deterministic chunk identifier: "<document id>#<ordinal>".
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Ordinal is the chunk's position within the document, starting at 0.
	Ordinal int

	// Content is the text content of this chunk.
	Content string

	// Embedding is the vector representation for semantic search.
	// Nil when embedding failed for this cycle; the chunk then stays
	// reachable through keyword search only.
	Embedding []float32

	// Denormalised parent metadata.
	Title        string
	Space        string
	Link         string
	LastModified time.Time
	Scopes       []string
}

// ChunkID builds the deterministic chunk identifier for a document ordinal.
// Identical document content always yields identical chunk IDs, which is
// what makes re-syncing idempotent.
func ChunkID(documentID string, ordinal int) string {
	return documentID + "#" + strconv.Itoa(ordinal)
}

// ParseChunkID splits a chunk ID into document ID and ordinal.
func ParseChunkID(id string) (documentID string, ordinal int, err error) {
	i := strings.LastIndex(id, "#")
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("%w: malformed chunk id %q", ErrInvalidInput, id)
	}
	ordinal, err = strconv.Atoi(id[i+1:])
	if err != nil || ordinal < 0 {
		return "", 0, fmt.Errorf("%w: malformed chunk ordinal in %q", ErrInvalidInput, id)
	}
	return id[:i], ordinal, nil
}

// ChunksFor derives the full chunk set for a document from pre-split texts.
// Embeddings are attached later by the sync pipeline.
func ChunksFor(doc Document, texts []string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{
			ID:           ChunkID(doc.ID, i),
			DocumentID:   doc.ID,
			Ordinal:      i,
			Content:      text,
			Title:        doc.Title,
			Space:        doc.Space,
			Link:         doc.Link,
			LastModified: doc.LastModified,
			Scopes:       doc.Scopes,
		}
	}
	return chunks
}

// scopesIntersect reports whether the two scope sets share a member.
func scopesIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
