package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
	"github.com/custodia-labs/searchlight/internal/core/ports/driving"
)

// --- Mock implementations shared by the service tests ---

// mockKeywordIndex implements driven.KeywordIndex for testing.
type mockKeywordIndex struct {
	mu        sync.Mutex
	hits      []driven.KeywordHit
	indexed   map[string]domain.Chunk
	searchErr error
	indexErr  error
	deleteErr error

	searchCalls int
	indexCalls  int
}

func newMockKeywordIndex() *mockKeywordIndex {
	return &mockKeywordIndex{indexed: make(map[string]domain.Chunk)}
}

func (m *mockKeywordIndex) Index(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexCalls++
	if m.indexErr != nil {
		return m.indexErr
	}
	for _, c := range chunks {
		m.indexed[c.ID] = c
	}
	return nil
}

func (m *mockKeywordIndex) Delete(_ context.Context, chunkIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, id := range chunkIDs {
		delete(m.indexed, id)
	}
	return nil
}

func (m *mockKeywordIndex) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for id, c := range m.indexed {
		if c.DocumentID == documentID {
			delete(m.indexed, id)
		}
	}
	return nil
}

func (m *mockKeywordIndex) Search(_ context.Context, _ string, limit int, _ domain.Filters) ([]driven.KeywordHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if limit > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:limit], nil
}

func (m *mockKeywordIndex) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.indexed), nil
}

func (m *mockKeywordIndex) Close() error { return nil }

func (m *mockKeywordIndex) indexedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.indexed)
}

func (m *mockKeywordIndex) hasChunk(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.indexed[id]
	return ok
}

func (m *mockKeywordIndex) setIndexErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexErr = err
}

func (m *mockKeywordIndex) keywordSearchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls
}

// mockVectorIndex implements driven.VectorIndex for testing.
type mockVectorIndex struct {
	mu        sync.Mutex
	hits      []driven.VectorHit
	upserted  map[string]domain.Chunk
	searchErr error
	upsertErr error
	deleteErr error

	searchCalls int
	upsertCalls int
}

func newMockVectorIndex() *mockVectorIndex {
	return &mockVectorIndex{upserted: make(map[string]domain.Chunk)}
}

func (m *mockVectorIndex) Upsert(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, c := range chunks {
		m.upserted[c.ID] = c
	}
	return nil
}

func (m *mockVectorIndex) Delete(_ context.Context, chunkIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for _, id := range chunkIDs {
		delete(m.upserted, id)
	}
	return nil
}

func (m *mockVectorIndex) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for id, c := range m.upserted {
		if c.DocumentID == documentID {
			delete(m.upserted, id)
		}
	}
	return nil
}

func (m *mockVectorIndex) Search(_ context.Context, _ []float32, k int, _ domain.Filters) ([]driven.VectorHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if k > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:k], nil
}

func (m *mockVectorIndex) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserted), nil
}

func (m *mockVectorIndex) Close() error { return nil }

func (m *mockVectorIndex) upsertedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.upserted)
}

func (m *mockVectorIndex) vectorSearchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls
}

// mockEmbeddingService implements driven.EmbeddingService for testing.
type mockEmbeddingService struct {
	mu        sync.Mutex
	embedding []float32
	embedErr  error

	embedCalls      int
	embedBatchCalls int
}

func newMockEmbeddingService() *mockEmbeddingService {
	return &mockEmbeddingService{embedding: []float32{0.1, 0.2, 0.3, 0.4}}
}

func (m *mockEmbeddingService) Embed(_ context.Context, _ string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.embedding, nil
}

func (m *mockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedBatchCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = m.embedding
	}
	return result, nil
}

func (m *mockEmbeddingService) Dimensions() int { return len(m.embedding) }

func (m *mockEmbeddingService) ModelName() string { return "mock-embed" }

func (m *mockEmbeddingService) Ping(_ context.Context) error { return nil }

func (m *mockEmbeddingService) Close() error { return nil }

func (m *mockEmbeddingService) totalEmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls + m.embedBatchCalls
}

func (m *mockEmbeddingService) setEmbedErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedErr = err
}

// mockResultCache implements driven.ResultCache for testing.
type mockResultCache struct {
	mu      sync.Mutex
	entries map[string]domain.ResultSet

	gets int
	hits int
	sets int
}

func newMockResultCache() *mockResultCache {
	return &mockResultCache{entries: make(map[string]domain.ResultSet)}
}

func (m *mockResultCache) Get(key string) (domain.ResultSet, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	rs, ok := m.entries[key]
	if ok {
		m.hits++
	}
	return rs, ok
}

func (m *mockResultCache) Set(key string, results domain.ResultSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.entries[key] = results
}

func (m *mockResultCache) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]domain.ResultSet)
}

// mockProvider implements driven.Provider for testing. ListChanges
// honours the since watermark the way a real change feed would. Setting
// listGate makes ListChanges block until the channel closes, which lets
// tests hold a cycle mid-flight.
type mockProvider struct {
	mu       sync.Mutex
	changes  []domain.Change
	docs     map[string]*domain.Document
	pageSize int
	listGate chan struct{}

	listErr   error
	getErrFor map[string]error

	listCalls int
	getCalls  int
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		docs:      make(map[string]*domain.Document),
		getErrFor: make(map[string]error),
	}
}

func (m *mockProvider) ListChanges(_ context.Context, since time.Time, pageToken string) (*driven.ChangePage, error) {
	m.mu.Lock()
	m.listCalls++
	gate := m.listGate
	m.mu.Unlock()

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	var eligible []domain.Change
	for _, c := range m.changes {
		if c.Timestamp.After(since) {
			eligible = append(eligible, c)
		}
	}

	size := m.pageSize
	if size <= 0 {
		size = len(eligible)
	}

	offset := 0
	if pageToken != "" {
		offset, _ = strconv.Atoi(pageToken)
	}
	if offset >= len(eligible) {
		return &driven.ChangePage{}, nil
	}

	end := offset + size
	next := ""
	if end < len(eligible) {
		next = strconv.Itoa(end)
	} else {
		end = len(eligible)
	}

	return &driven.ChangePage{Changes: eligible[offset:end], NextPageToken: next}, nil
}

func (m *mockProvider) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if err := m.getErrFor[id]; err != nil {
		return nil, err
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (m *mockProvider) Ping(_ context.Context) error { return nil }

func (m *mockProvider) Close() error { return nil }

func (m *mockProvider) addDocument(doc domain.Document, op domain.ChangeOp, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = &doc
	m.changes = append(m.changes, domain.Change{DocumentID: doc.ID, Op: op, Timestamp: ts})
}

func (m *mockProvider) addDeletion(id string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	m.changes = append(m.changes, domain.Change{DocumentID: id, Op: domain.ChangeDeleted, Timestamp: ts})
}

func (m *mockProvider) setGetErr(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.getErrFor, id)
		return
	}
	m.getErrFor[id] = err
}

func (m *mockProvider) listCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// mockSyncOrchestrator implements driving.SyncOrchestrator for the
// scheduler tests.
type mockSyncOrchestrator struct {
	mu       sync.Mutex
	runErr   error
	runCount int
}

func (m *mockSyncOrchestrator) RunCycle(_ context.Context, _ domain.SyncTrigger) (*domain.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCount++
	if m.runErr != nil {
		return nil, m.runErr
	}
	return &domain.SyncRun{ID: strconv.Itoa(m.runCount), Phase: domain.PhaseIdle}, nil
}

func (m *mockSyncOrchestrator) Status(_ context.Context) (*driving.SyncStatus, error) {
	return &driving.SyncStatus{Phase: domain.PhaseIdle}, nil
}

func (m *mockSyncOrchestrator) History(_ context.Context, _ int) ([]domain.SyncRun, error) {
	return nil, nil
}

func (m *mockSyncOrchestrator) cycles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runCount
}
