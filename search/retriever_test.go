package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/attestor/ai/mock"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
	"github.com/poiesic/attestor/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope core.Scope = "tenant"

var policyDoc = []string{
	"Refunds are processed within 30 days.",
	"Shipping is free for orders over fifty dollars.",
	"Support is available on weekdays.",
}

func setupEvidence(t *testing.T) (*badger.EvidenceRepository, *badger.QueueRepository) {
	t.Helper()
	evidence, queue, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return evidence, queue
}

// embedAll completes every queued entry with the embedder's vectors.
func embedAll(t *testing.T, evidence *badger.EvidenceRepository, queue *badger.QueueRepository, embedder *mock.MockEmbedder) {
	t.Helper()
	ctx := context.Background()
	entries, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	for _, e := range entries {
		unit, err := evidence.GetUnit(ctx, e.Scope, e.EvidenceID)
		require.NoError(t, err)
		vector, err := embedder.EmbedText(ctx, unit.Text)
		require.NoError(t, err)
		ok, err := queue.Complete(ctx, unit.ID, unit.Fingerprint, vector)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

type fakeLexical struct {
	hits []core.LaneHit
	err  error
}

func (f *fakeLexical) LexicalSearch(ctx context.Context, scope core.Scope, text string, topK int) ([]core.LaneHit, error) {
	return f.hits, f.err
}

type fakeVector struct {
	hits []core.LaneHit
	err  error
}

func (f *fakeVector) FindSimilar(ctx context.Context, scope core.Scope, vector []float32, topK int) ([]core.LaneHit, error) {
	return f.hits, f.err
}

// recordingMonitor captures lane callbacks.
type recordingMonitor struct {
	mu       sync.Mutex
	started  string
	laneErrs map[core.Lane]error
	merged   int
	finished bool
}

func (m *recordingMonitor) Start(query string) { m.started = query }
func (m *recordingMonitor) AfterLane(lane core.Lane, hits []core.LaneHit, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.laneErrs == nil {
		m.laneErrs = make(map[core.Lane]error)
	}
	m.laneErrs[lane] = err
}
func (m *recordingMonitor) AfterMerge(candidates []*core.Candidate) { m.merged = len(candidates) }
func (m *recordingMonitor) Finish(result *Result)                   { m.finished = true }

func TestNewRetriever(t *testing.T) {
	evidence, _ := setupEvidence(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		r, err := NewRetriever(evidence, evidence, evidence, embedder, WithLogger(nil))
		require.NoError(t, err)
		assert.Equal(t, DefaultTopK, r.topK)
		assert.Equal(t, DefaultLaneTimeout, r.laneTimeout)
		assert.Equal(t, DefaultRerankTop, r.rerankTop)
		assert.NotNil(t, r.cache)
	})

	t.Run("missing collaborators", func(t *testing.T) {
		_, err := NewRetriever(nil, evidence, evidence, embedder)
		assert.Equal(t, ErrEvidenceRepositoryRequired, err)
		_, err = NewRetriever(evidence, nil, evidence, embedder)
		assert.Equal(t, ErrVectorIndexRequired, err)
		_, err = NewRetriever(evidence, evidence, nil, embedder)
		assert.Equal(t, ErrLexicalIndexRequired, err)
		_, err = NewRetriever(evidence, evidence, evidence, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		for _, opt := range []Option{WithTopK(0), WithLaneTimeout(0), WithSameUnitBonus(2), WithRerankTop(-1)} {
			_, err := NewRetriever(evidence, evidence, evidence, embedder, opt)
			assert.ErrorIs(t, err, storage.ErrInvalidQuery)
		}
	})

	t.Run("cache disabled", func(t *testing.T) {
		r, err := NewRetriever(evidence, evidence, evidence, embedder, WithEmbeddingCacheTTL(0))
		require.NoError(t, err)
		assert.Nil(t, r.cache)
	})
}

func TestRetrieve_EmptyStore(t *testing.T) {
	evidence, _ := setupEvidence(t)
	r, err := NewRetriever(evidence, evidence, evidence, mock.NewMockEmbedder())
	require.NoError(t, err)

	result, err := r.Retrieve(context.Background(), testScope, "refund window")
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.Empty(t, result.Degraded)
}

func TestRetrieve_LexicalCoversPendingUnits(t *testing.T) {
	evidence, _ := setupEvidence(t)
	ctx := context.Background()
	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	r, err := NewRetriever(evidence, evidence, evidence, mock.NewMockEmbedder())
	require.NoError(t, err)

	result, err := r.Retrieve(ctx, testScope, "What is the refund window?")
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)

	top := result.Candidates[0]
	assert.Equal(t, policyDoc[0], top.Unit.Text)
	assert.Equal(t, []core.Lane{core.LaneLexical}, top.Lanes, "nothing is embedded yet")
	assert.InDelta(t, 1.0, top.Score, 1e-9, "best lexical hit normalizes to 1")
}

func TestRetrieve_BothLanes(t *testing.T) {
	evidence, queue := setupEvidence(t)
	ctx := context.Background()
	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedAll(t, evidence, queue, embedder)

	r, err := NewRetriever(evidence, evidence, evidence, embedder)
	require.NoError(t, err)

	result, err := r.Retrieve(ctx, testScope, "Refunds are processed within 30 days")
	require.NoError(t, err)
	require.NotEmpty(t, result.Candidates)

	top := result.Candidates[0]
	assert.Equal(t, policyDoc[0], top.Unit.Text)
	assert.True(t, top.InLane(core.LaneVector))
	assert.True(t, top.InLane(core.LaneLexical))
	assert.LessOrEqual(t, top.Score, 1.0)
	for i := 1; i < len(result.Candidates); i++ {
		assert.GreaterOrEqual(t, result.Candidates[i-1].Score, result.Candidates[i].Score, "sorted by score")
	}
}

func TestRetrieve_VectorLaneTimeout(t *testing.T) {
	evidence, _ := setupEvidence(t)
	ctx := context.Background()
	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		// Ignores its context; the retriever must not wait for it
		<-release
		return []float32{1}, nil
	}

	r, err := NewRetriever(evidence, evidence, evidence, embedder, WithLaneTimeout(50*time.Millisecond))
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	start := time.Now()
	result, err := r.RetrieveWithMonitor(ctx, testScope, "refund window", monitor)
	require.NoError(t, err, "one failed lane is not a total failure")
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, result.Degraded, 1)
	assert.Equal(t, core.LaneVector, result.Degraded[0].Lane)
	assert.ErrorIs(t, result.Degraded[0], context.DeadlineExceeded)

	require.NotEmpty(t, result.Candidates)
	assert.Equal(t, policyDoc[0], result.Candidates[0].Unit.Text)
	for _, c := range result.Candidates {
		assert.Equal(t, []core.Lane{core.LaneLexical}, c.Lanes)
	}

	assert.Equal(t, "refund window", monitor.started)
	assert.ErrorIs(t, monitor.laneErrs[core.LaneVector], context.DeadlineExceeded)
	assert.NoError(t, monitor.laneErrs[core.LaneLexical])
	assert.True(t, monitor.finished)
}

func TestRetrieve_TotalFailure(t *testing.T) {
	evidence, _ := setupEvidence(t)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}
	lexical := &fakeLexical{err: errors.New("index unavailable")}

	r, err := NewRetriever(evidence, evidence, lexical, embedder)
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), testScope, "refund window")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrievalTotalFailure)
	assert.True(t, IsRetryable(err))

	var lf *LaneFailure
	require.ErrorAs(t, err, &lf)
	assert.Contains(t, err.Error(), "embedding service down")
	assert.Contains(t, err.Error(), "index unavailable")
}

func TestRetrieve_Unauthorized(t *testing.T) {
	evidence, _ := setupEvidence(t)
	r, err := NewRetriever(evidence, evidence, evidence, mock.NewMockEmbedder())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "", "refund window")
	assert.ErrorIs(t, err, storage.ErrUnauthorized)
	assert.False(t, IsRetryable(err))
}

func TestRetrieve_CallerCancellation(t *testing.T) {
	evidence, _ := setupEvidence(t)
	r, err := NewRetriever(evidence, evidence, evidence, mock.NewMockEmbedder())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Retrieve(ctx, testScope, "refund window")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRetrievalTotalFailure)
}

func TestRetrieve_MergeAndTruncate(t *testing.T) {
	evidence, _ := setupEvidence(t)
	ctx := context.Background()
	diff, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)
	a, b, c := diff.Added[0], diff.Added[1], diff.Added[2]

	vectors := &fakeVector{hits: []core.LaneHit{
		{EvidenceID: a, RawScore: 0.7},
		{EvidenceID: b, RawScore: -0.2}, // negative cosine clamps to 0
	}}
	lexical := &fakeLexical{hits: []core.LaneHit{
		{EvidenceID: c, RawScore: 8},
		{EvidenceID: a, RawScore: 4},
		{EvidenceID: core.ID(424242), RawScore: 2}, // not in the store
	}}

	r, err := NewRetriever(evidence, vectors, lexical, mock.NewMockEmbedder(), WithRerankTop(2))
	require.NoError(t, err)

	result, err := r.Retrieve(ctx, testScope, "anything")
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)

	// c: lexical only, 8/8 = 1.0
	assert.Equal(t, c, result.Candidates[0].Unit.ID)
	assert.InDelta(t, 1.0, result.Candidates[0].Score, 1e-9)

	// a: both lanes, max(0.7, 0.5) + 0.1
	assert.Equal(t, a, result.Candidates[1].Unit.ID)
	assert.InDelta(t, 0.8, result.Candidates[1].Score, 1e-9)
	assert.InDelta(t, 0.7, result.Candidates[1].LaneScores[core.LaneVector], 1e-9)
	assert.InDelta(t, 0.5, result.Candidates[1].LaneScores[core.LaneLexical], 1e-9)
}

func TestRetrieve_TiesBreakByID(t *testing.T) {
	evidence, _ := setupEvidence(t)
	ctx := context.Background()
	diff, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	var hits []core.LaneHit
	for _, id := range diff.Added {
		hits = append(hits, core.LaneHit{EvidenceID: id, RawScore: 0.5})
	}
	r, err := NewRetriever(evidence, &fakeVector{hits: hits}, &fakeLexical{}, mock.NewMockEmbedder())
	require.NoError(t, err)

	result, err := r.Retrieve(ctx, testScope, "anything")
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)
	for i := 1; i < len(result.Candidates); i++ {
		assert.Less(t, result.Candidates[i-1].Unit.ID, result.Candidates[i].Unit.ID)
	}
}

func TestRetrieve_CachesQueryEmbedding(t *testing.T) {
	evidence, _ := setupEvidence(t)
	embedder := mock.NewMockEmbedder()
	r, err := NewRetriever(evidence, evidence, evidence, embedder)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = r.Retrieve(ctx, testScope, "Refund window")
	require.NoError(t, err)
	_, err = r.Retrieve(ctx, testScope, "  refund   WINDOW ")
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.CallCount())
}

func TestMergeScores(t *testing.T) {
	tests := []struct {
		name   string
		scores map[core.Lane]float64
		want   float64
	}{
		{"no lanes", map[core.Lane]float64{}, 0},
		{"vector only", map[core.Lane]float64{core.LaneVector: 0.4}, 0.4},
		{"lexical only", map[core.Lane]float64{core.LaneLexical: 0.9}, 0.9},
		{"both lanes", map[core.Lane]float64{core.LaneVector: 0.4, core.LaneLexical: 0.6}, 0.7},
		{"capped", map[core.Lane]float64{core.LaneVector: 0.95, core.LaneLexical: 0.3}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MergeScores(tt.scores, DefaultSameUnitBonus), 1e-9)
		})
	}
}
