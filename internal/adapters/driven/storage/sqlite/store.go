package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/searchlight/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

// Store is a unified SQLite-based storage that provides access to the
// metadata store interfaces through wrapper types.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new SQLite store at the given database path.
// If path is empty, defaults to ~/.searchlight/searchlight.db.
func NewStore(path string) (*Store, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".searchlight", "searchlight.db")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:   db,
		path: path,
	}

	// Run migrations
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// SyncStateStore returns a SyncStateStore interface backed by this store.
func (s *Store) SyncStateStore() driven.SyncStateStore {
	return &syncStateStore{store: s}
}

// SyncRunStore returns a SyncRunStore interface backed by this store.
func (s *Store) SyncRunStore() driven.SyncRunStore {
	return &syncRunStore{store: s}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	// Ensure schema_migrations table exists
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	// Find all up migrations
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort and run migrations
	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		// Read and execute migration
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Document Store ====================

// documentStore implements driven.DocumentStore.
type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// ReplaceDocument stores a document and its chunks in a single
// transaction, removing chunks from any previous version.
func (s *documentStore) ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil || doc.ID == "" {
		return domain.ErrInvalidInput
	}

	scopesJSON, err := json.Marshal(doc.Scopes)
	if err != nil {
		return fmt.Errorf("marshalling scopes: %w", err)
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, space, body, link, last_modified, scopes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			space = excluded.space,
			body = excluded.body,
			link = excluded.link,
			last_modified = excluded.last_modified,
			scopes = excluded.scopes
	`, doc.ID, doc.Title, doc.Space, doc.Body,
		doc.Link, formatTime(doc.LastModified), string(scopesJSON))
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
		return fmt.Errorf("clearing previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, ordinal, content, embedding, title, space, link, last_modified, scopes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		chunkScopes, err := json.Marshal(chunk.Scopes)
		if err != nil {
			return fmt.Errorf("marshalling chunk scopes: %w", err)
		}

		embeddingBlob := float32SliceToBytes(chunk.Embedding)

		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Ordinal,
			chunk.Content, embeddingBlob, chunk.Title, chunk.Space, chunk.Link,
			formatTime(chunk.LastModified), string(chunkScopes)); err != nil {
			return fmt.Errorf("saving chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, title, space, body, link, last_modified, scopes
		FROM documents WHERE id = ?
	`, id)

	var doc domain.Document
	var lastModified, scopesJSON string
	if err := row.Scan(&doc.ID, &doc.Title, &doc.Space, &doc.Body,
		&doc.Link, &lastModified, &scopesJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.LastModified = parseTime(lastModified)
	if err := json.Unmarshal([]byte(scopesJSON), &doc.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshalling scopes: %w", err)
	}

	return &doc, nil
}

// GetChunks retrieves all chunks for a document, ordered by ordinal.
func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, document_id, ordinal, content, embedding, title, space, link, last_modified, scopes
		FROM chunks WHERE document_id = ?
		ORDER BY ordinal
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	return chunks, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, document_id, ordinal, content, embedding, title, space, link, last_modified, scopes
		FROM chunks WHERE id = ?
	`, id)

	return scanChunkRow(row)
}

// DeleteDocument removes a document and its chunks. Chunks go with the
// document through the foreign key cascade.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	return nil
}

// CountDocuments returns the number of stored documents.
func (s *documentStore) CountDocuments(ctx context.Context) (int, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// CountChunks returns the number of stored chunks.
func (s *documentStore) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := s.store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// SaveState stores or updates the source watermark. A single row holds
// the state; only the sync engine writes it.
func (s *syncStateStore) SaveState(ctx context.Context, state domain.SyncState) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_state (id, watermark, last_sync)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			watermark = excluded.watermark,
			last_sync = excluded.last_sync
	`, formatNullableTime(state.Watermark), formatNullableTime(state.LastSync))

	if err != nil {
		return fmt.Errorf("saving sync state: %w", err)
	}
	return nil
}

// GetState retrieves the source watermark.
func (s *syncStateStore) GetState(ctx context.Context) (*domain.SyncState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT watermark, last_sync FROM sync_state WHERE id = 1
	`)

	var watermark, lastSync sql.NullString
	if err := row.Scan(&watermark, &lastSync); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning sync state: %w", err)
	}

	return &domain.SyncState{
		Watermark: parseNullableTime(watermark),
		LastSync:  parseNullableTime(lastSync),
	}, nil
}

// SaveDocumentState stores or updates per-document sync bookkeeping.
func (s *syncStateStore) SaveDocumentState(ctx context.Context, state domain.DocumentSyncState) error {
	if state.DocumentID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO document_sync_states (document_id, content_hash, embed_failed, reindex_requested, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			embed_failed = excluded.embed_failed,
			reindex_requested = excluded.reindex_requested,
			synced_at = excluded.synced_at
	`, state.DocumentID, state.ContentHash, boolToInt(state.EmbedFailed),
		boolToInt(state.ReindexRequested), formatNullableTime(state.SyncedAt))

	if err != nil {
		return fmt.Errorf("saving document sync state: %w", err)
	}
	return nil
}

// GetDocumentState retrieves per-document sync bookkeeping.
func (s *syncStateStore) GetDocumentState(ctx context.Context, documentID string) (*domain.DocumentSyncState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT document_id, content_hash, embed_failed, reindex_requested, synced_at
		FROM document_sync_states WHERE document_id = ?
	`, documentID)

	var state domain.DocumentSyncState
	var embedFailed, reindexRequested int
	var syncedAt sql.NullString
	if err := row.Scan(&state.DocumentID, &state.ContentHash,
		&embedFailed, &reindexRequested, &syncedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document sync state: %w", err)
	}

	state.EmbedFailed = embedFailed == 1
	state.ReindexRequested = reindexRequested == 1
	state.SyncedAt = parseNullableTime(syncedAt)

	return &state, nil
}

// DeleteDocumentState removes bookkeeping for a deleted document.
func (s *syncStateStore) DeleteDocumentState(ctx context.Context, documentID string) error {
	_, err := s.store.db.ExecContext(ctx,
		"DELETE FROM document_sync_states WHERE document_id = ?", documentID)
	if err != nil {
		return fmt.Errorf("deleting document sync state: %w", err)
	}
	return nil
}

// ListRetryable returns IDs of documents flagged for reprocessing,
// sorted for deterministic iteration.
func (s *syncStateStore) ListRetryable(ctx context.Context) ([]string, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT document_id FROM document_sync_states
		WHERE embed_failed = 1 OR reindex_requested = 1
		ORDER BY document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying retryable documents: %w", err)
	}
	defer rows.Close()

	var ids []string //nolint:prealloc // size unknown from query
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating retryable documents: %w", err)
	}

	return ids, nil
}

// ==================== Sync Run Store ====================

// syncRunStore implements driven.SyncRunStore.
type syncRunStore struct {
	store *Store
}

var _ driven.SyncRunStore = (*syncRunStore)(nil)

// RecordRun logs a completed sync cycle.
func (s *syncRunStore) RecordRun(ctx context.Context, run domain.SyncRun) error {
	if run.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_runs
			(id, trigger_kind, started_at, ended_at, phase,
			 documents_seen, documents_indexed, documents_deleted, documents_skipped, documents_failed,
			 watermark, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, string(run.Trigger), formatTime(run.StartedAt), formatNullableTime(run.EndedAt),
		string(run.Phase), run.DocumentsSeen, run.DocumentsIndexed, run.DocumentsDeleted,
		run.DocumentsSkipped, run.DocumentsFailed,
		formatNullableTime(run.Watermark), nullString(run.Error))

	if err != nil {
		return fmt.Errorf("recording sync run: %w", err)
	}
	return nil
}

// ListRuns returns recent sync cycles, most recent first.
func (s *syncRunStore) ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, trigger_kind, started_at, ended_at, phase,
			documents_seen, documents_indexed, documents_deleted, documents_skipped, documents_failed,
			watermark, error
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.SyncRun //nolint:prealloc // size unknown from query
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync runs: %w", err)
	}

	return runs, nil
}

// PruneRuns removes old cycles beyond the retention limit.
func (s *syncRunStore) PruneRuns(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}

	_, err := s.store.db.ExecContext(ctx, `
		DELETE FROM sync_runs
		WHERE id NOT IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY started_at DESC) as rn
				FROM sync_runs
			) WHERE rn <= ?
		)
	`, keep)
	if err != nil {
		return fmt.Errorf("pruning sync runs: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

// scanChunk scans a chunk from *sql.Rows.
func scanChunk(rows *sql.Rows) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var embeddingBlob []byte
	var lastModified, scopesJSON string

	if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content,
		&embeddingBlob, &chunk.Title, &chunk.Space, &chunk.Link,
		&lastModified, &scopesJSON); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
	chunk.LastModified = parseTime(lastModified)
	if err := json.Unmarshal([]byte(scopesJSON), &chunk.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshalling chunk scopes: %w", err)
	}

	return &chunk, nil
}

// scanChunkRow scans a chunk from *sql.Row.
func scanChunkRow(row *sql.Row) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var embeddingBlob []byte
	var lastModified, scopesJSON string

	if err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.Content,
		&embeddingBlob, &chunk.Title, &chunk.Space, &chunk.Link,
		&lastModified, &scopesJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	chunk.Embedding = bytesToFloat32Slice(embeddingBlob)
	chunk.LastModified = parseTime(lastModified)
	if err := json.Unmarshal([]byte(scopesJSON), &chunk.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshalling chunk scopes: %w", err)
	}

	return &chunk, nil
}

// scanSyncRun scans a sync run from *sql.Rows.
func scanSyncRun(rows *sql.Rows) (*domain.SyncRun, error) {
	var run domain.SyncRun
	var trigger, phase, startedAt string
	var endedAt, watermark, errMsg sql.NullString

	if err := rows.Scan(&run.ID, &trigger, &startedAt, &endedAt, &phase,
		&run.DocumentsSeen, &run.DocumentsIndexed, &run.DocumentsDeleted,
		&run.DocumentsSkipped, &run.DocumentsFailed, &watermark, &errMsg); err != nil {
		return nil, fmt.Errorf("scanning sync run: %w", err)
	}

	run.Trigger = domain.SyncTrigger(trigger)
	run.Phase = domain.SyncPhase(phase)
	run.StartedAt = parseTime(startedAt)
	run.EndedAt = parseNullableTime(endedAt)
	run.Watermark = parseNullableTime(watermark)
	if errMsg.Valid {
		run.Error = errMsg.String
	}

	return &run, nil
}

// formatTime formats a time as an RFC3339Nano string. Nanosecond
// precision keeps watermark comparisons exact across restarts.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses an RFC3339Nano string. Returns zero time on error.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// formatNullableTime formats a time to RFC3339Nano, or returns nil for zero time.
func formatNullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// parseNullableTime parses a nullable RFC3339Nano string to time.Time.
// Returns zero time if the string is empty or invalid.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	return parseTime(s.String)
}

// nullString returns nil for empty strings, otherwise the string.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// boolToInt converts a bool to 1 (true) or 0 (false).
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
