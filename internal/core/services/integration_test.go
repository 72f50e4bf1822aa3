package services

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachemem "github.com/custodia-labs/searchlight/internal/adapters/driven/cache/memory"
	bleveindex "github.com/custodia-labs/searchlight/internal/adapters/driven/keyword/bleve"
	memprovider "github.com/custodia-labs/searchlight/internal/adapters/driven/provider/memory"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/searchlight/internal/adapters/driven/vector/chromem"
	"github.com/custodia-labs/searchlight/internal/chunker"
	"github.com/custodia-labs/searchlight/internal/core/domain"
	"github.com/custodia-labs/searchlight/internal/core/ports/driven"
)

var pipelineBase = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func pipelineTime(minutes int) time.Time {
	return pipelineBase.Add(time.Duration(minutes) * time.Minute)
}

const hashEmbedderDims = 64

// hashEmbedder maps text to a normalised bag-of-words vector. Texts that
// share vocabulary get similar embeddings, which is enough to drive real
// nearest-neighbour ranking without an embedding API.
type hashEmbedder struct{}

var _ driven.EmbeddingService = hashEmbedder{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashEmbedderDims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%hashEmbedderDims]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec, nil
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (e hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int { return hashEmbedderDims }

func (hashEmbedder) ModelName() string { return "hash-bow" }

func (hashEmbedder) Ping(context.Context) error { return nil }

func (hashEmbedder) Close() error { return nil }

// stepClock hands out strictly increasing timestamps so run ordering and
// recorded sync state stay deterministic.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// Both deploy guide sentences exceed half the chunk budget, so the
// document always splits into exactly two chunks.
const (
	deployGuideBody = "The deploy pipeline promotes every build through staging before production, " +
		"and each deploy records the previous release identifier so a rollback can restore it " +
		"without rebuilding artifacts, which keeps the rollback window short even when " +
		"traffic peaks during a busy release day. " +
		"Operators deploy from the release branch only, never from feature branches, " +
		"because the deploy manifest pins configuration alongside the build and a stale " +
		"manifest is the usual reason a production deploy fails its health checks and " +
		"falls back through the automatic rollback path."

	oncallBody = "The oncall engineer acknowledges every page within five minutes. " +
		"Unacknowledged alerts escalate to the secondary and then to the team lead. " +
		"Weekly handoff notes list open incidents and silenced alerts."

	oncallUpdatedBody = "The oncall engineer acknowledges every page within five minutes. " +
		"Unacknowledged alerts escalate to the secondary and then to the team lead. " +
		"The escalation rotation swaps primary and secondary every Monday morning."

	leavePolicyBody = "Vacation requests go through the portal at least two weeks ahead. " +
		"The annual leave allowance accrues monthly and unused days carry over until March. " +
		"Public holidays never count against the allowance."
)

func deployGuideDoc() *domain.Document {
	return &domain.Document{
		ID:           "eng/deploy-guide",
		Title:        "Deploy Guide",
		Space:        "eng",
		Body:         deployGuideBody,
		Link:         "https://wiki.example.com/eng/deploy-guide",
		LastModified: pipelineTime(10),
		Scopes:       []string{"engineers"},
	}
}

func oncallDoc() *domain.Document {
	return &domain.Document{
		ID:           "eng/oncall",
		Title:        "Oncall Handbook",
		Space:        "eng",
		Body:         oncallBody,
		Link:         "https://wiki.example.com/eng/oncall",
		LastModified: pipelineTime(20),
		Scopes:       []string{"engineers", "sre"},
	}
}

func leavePolicyDoc() *domain.Document {
	return &domain.Document{
		ID:           "hr/leave-policy",
		Title:        "Leave Policy",
		Space:        "hr",
		Body:         leavePolicyBody,
		Link:         "https://wiki.example.com/hr/leave-policy",
		LastModified: pipelineTime(30),
		Scopes:       []string{"everyone"},
	}
}

// pipelineFixture wires the real adapters together end to end: the
// in-memory provider feeds the sync engine, which fills the bleve keyword
// index, the chromem vector index, and the document store; searches then
// run against the same components.
type pipelineFixture struct {
	provider *memprovider.Provider
	keyword  *bleveindex.KeywordIndex
	vector   *chromem.VectorIndex
	engine   *SyncEngine
	query    *QueryService
}

func setupPipeline(t *testing.T) *pipelineFixture {
	t.Helper()

	logger := zap.NewNop()

	keyword, err := bleveindex.NewMemoryKeywordIndex(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	vector, err := chromem.NewVectorIndex(t.TempDir(), logger)
	require.NoError(t, err)

	provider := memprovider.NewProvider(0)
	docStore := memory.NewDocumentStore()
	embedder := hashEmbedder{}

	engine := NewSyncEngine(
		provider, docStore, memory.NewSyncStateStore(), memory.NewSyncRunStore(),
		keyword, vector, embedder, chunker.New(), logger,
	)
	engine.now = (&stepClock{t: pipelineBase}).Now

	query := NewQueryService(docStore, keyword, vector, embedder, logger)
	query.now = func() time.Time { return pipelineBase.Add(2 * time.Hour) }
	query.SetCache(cachemem.NewResultCache(time.Minute, 64))

	return &pipelineFixture{
		provider: provider,
		keyword:  keyword,
		vector:   vector,
		engine:   engine,
		query:    query,
	}
}

func seedCorpus(f *pipelineFixture) {
	f.provider.Put(deployGuideDoc())
	f.provider.Put(oncallDoc())
	f.provider.Put(leavePolicyDoc())
}

func TestPipeline_SyncThenSearch(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()
	seedCorpus(f)

	run, err := f.engine.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)
	require.True(t, run.Succeeded())
	require.Equal(t, 3, run.DocumentsSeen)
	require.Equal(t, 3, run.DocumentsIndexed)
	require.Equal(t, 0, run.DocumentsFailed)
	require.Equal(t, pipelineTime(30), run.Watermark)

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.PhaseIdle, status.Phase)
	require.Equal(t, 3, status.Documents)
	require.Equal(t, 4, status.Chunks)
	require.Equal(t, 0, status.PendingRetries)
	require.False(t, status.LastSync.IsZero())

	kw, err := f.keyword.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, kw)
	vc, err := f.vector.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 4, vc)

	q := domain.Query{
		Text:    "deploy rollback",
		Filters: domain.Filters{Scopes: []string{"engineers"}},
		Limit:   5,
	}
	rs, err := f.query.Search(ctx, q)
	require.NoError(t, err)
	require.False(t, rs.Partial)
	require.Len(t, rs.Results, 2)

	top := rs.Results[0]
	require.Equal(t, "eng/deploy-guide", top.DocumentID)
	require.Equal(t, "Deploy Guide", top.Title)
	require.Equal(t, "https://wiki.example.com/eng/deploy-guide", top.Link)
	require.Equal(t, "eng", top.Space)
	require.Contains(t, strings.ToLower(top.Snippet), "deploy")

	// Both deploy guide chunks matched; the weaker one shows up as a
	// citation on the winner.
	_, bestOrdinal, err := domain.ParseChunkID(top.ChunkID)
	require.NoError(t, err)
	require.Len(t, top.AlsoFoundIn, 1)
	require.NotEqual(t, bestOrdinal, top.AlsoFoundIn[0])

	require.Equal(t, "eng/oncall", rs.Results[1].DocumentID)
	require.Greater(t, top.Score, rs.Results[1].Score)

	// The identical query serves the identical response.
	again, err := f.query.Search(ctx, q)
	require.NoError(t, err)
	require.Equal(t, rs, again)
}

func TestPipeline_ScopeAndSpaceFiltering(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()
	seedCorpus(f)

	_, err := f.engine.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)

	// The leave policy matches the text but is only visible to
	// "everyone", a scope this requester does not hold.
	rs, err := f.query.Search(ctx, domain.Query{
		Text:    "vacation allowance",
		Filters: domain.Filters{Scopes: []string{"engineers"}},
	})
	require.NoError(t, err)
	for _, r := range rs.Results {
		require.NotEqual(t, "hr/leave-policy", r.DocumentID)
	}

	rs, err = f.query.Search(ctx, domain.Query{
		Text:    "vacation allowance",
		Filters: domain.Filters{Space: "hr", Scopes: []string{"everyone"}},
	})
	require.NoError(t, err)
	require.Len(t, rs.Results, 1)
	require.Equal(t, "hr/leave-policy", rs.Results[0].DocumentID)
	require.Equal(t, "hr", rs.Results[0].Space)
	require.Contains(t, rs.Results[0].Snippet, "Vacation requests")
}

func TestPipeline_IncrementalSyncAndReindex(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()
	seedCorpus(f)

	first, err := f.engine.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)

	// Nothing changed upstream: the next cycle is a no-op that holds the
	// watermark.
	second, err := f.engine.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	require.Equal(t, 0, second.DocumentsSeen)
	require.Equal(t, first.Watermark, second.Watermark)

	// One real edit and one touch that re-delivers identical content.
	updated := oncallDoc()
	updated.Body = oncallUpdatedBody
	updated.LastModified = pipelineTime(40)
	f.provider.Put(updated)

	touched := deployGuideDoc()
	touched.LastModified = pipelineTime(45)
	f.provider.Put(touched)

	third, err := f.engine.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	require.Equal(t, 2, third.DocumentsSeen)
	require.Equal(t, 1, third.DocumentsIndexed)
	require.Equal(t, 1, third.DocumentsSkipped)
	require.Equal(t, pipelineTime(45), third.Watermark)

	// The rewritten sentence is searchable under the requester's scope.
	rs, err := f.query.Search(ctx, domain.Query{
		Text:    "escalation rotation",
		Filters: domain.Filters{Scopes: []string{"sre"}},
	})
	require.NoError(t, err)
	require.Len(t, rs.Results, 1)
	require.Equal(t, "eng/oncall#0", rs.Results[0].ChunkID)
	require.Equal(t,
		"The escalation rotation swaps primary and secondary every Monday morning.",
		rs.Results[0].Snippet)

	history, err := f.engine.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, third.ID, history[0].ID)
	require.Equal(t, first.ID, history[2].ID)
}

func TestPipeline_DeletionClearsIndexes(t *testing.T) {
	f := setupPipeline(t)
	ctx := context.Background()
	seedCorpus(f)

	_, err := f.engine.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)

	f.provider.Delete("hr/leave-policy", pipelineTime(50))

	run, err := f.engine.RunCycle(ctx, domain.TriggerScheduled)
	require.NoError(t, err)
	require.Equal(t, 1, run.DocumentsSeen)
	require.Equal(t, 1, run.DocumentsDeleted)
	require.Equal(t, pipelineTime(50), run.Watermark)

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, status.Documents)
	require.Equal(t, 3, status.Chunks)

	kw, err := f.keyword.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, kw)
	vc, err := f.vector.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, vc)

	// Nothing in the hr space remains reachable.
	rs, err := f.query.Search(ctx, domain.Query{
		Text:    "vacation allowance",
		Filters: domain.Filters{Space: "hr", Scopes: []string{"everyone"}},
	})
	require.NoError(t, err)
	require.Empty(t, rs.Results)
}

func TestPipeline_KeywordOnlyConfiguration(t *testing.T) {
	logger := zap.NewNop()
	keyword, err := bleveindex.NewMemoryKeywordIndex(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	provider := memprovider.NewProvider(0)
	docStore := memory.NewDocumentStore()
	engine := NewSyncEngine(
		provider, docStore, memory.NewSyncStateStore(), memory.NewSyncRunStore(),
		keyword, nil, nil, chunker.New(), logger,
	)
	query := NewQueryService(docStore, keyword, nil, nil, logger)

	provider.Put(deployGuideDoc())

	ctx := context.Background()
	run, err := engine.RunCycle(ctx, domain.TriggerManual)
	require.NoError(t, err)
	require.Equal(t, 1, run.DocumentsIndexed)

	// Keyword-only is the configured mode, not a degradation, so the
	// response is not marked partial.
	rs, err := query.Search(ctx, domain.Query{
		Text:    "rollback window",
		Filters: domain.Filters{Scopes: []string{"engineers"}},
	})
	require.NoError(t, err)
	require.False(t, rs.Partial)
	require.Len(t, rs.Results, 1)
	require.Equal(t, "eng/deploy-guide", rs.Results[0].DocumentID)
}
