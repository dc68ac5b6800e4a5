package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/attestor/ai/mock"
	"github.com/poiesic/attestor/core"
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

func setupTestRepositories(t *testing.T) (*badger.EvidenceRepository, *badger.QueueRepository) {
	t.Helper()
	evidence, queue, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return evidence, queue
}

// countingTrigger records wake-ups instead of running a worker.
type countingTrigger struct {
	calls atomic.Int64
}

func (c *countingTrigger) Trigger() {
	c.calls.Add(1)
}

func newTestPipeline(t *testing.T, evidence *badger.EvidenceRepository) (*Pipeline, *countingTrigger) {
	t.Helper()
	trig := &countingTrigger{}
	p := &Pipeline{evidence: evidence, worker: trig, logger: slog.Default()}
	return p, trig
}

func TestNewPipeline(t *testing.T) {
	evidence, queue := setupTestRepositories(t)
	worker, err := NewEmbeddingWorker(evidence, queue, mock.NewMockEmbedder())
	require.NoError(t, err)
	defer worker.Close()

	tests := []struct {
		name     string
		evidence *badger.EvidenceRepository
		worker   *EmbeddingWorker
		wantErr  error
	}{
		{"valid", evidence, worker, nil},
		{"missing evidence", nil, worker, ErrEvidenceRepositoryRequired},
		{"missing worker", evidence, nil, ErrWorkerRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p *Pipeline
			var err error
			if tt.evidence == nil {
				p, err = NewPipeline(nil, tt.worker)
			} else {
				p, err = NewPipeline(tt.evidence, tt.worker, WithLogger(nil))
			}
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, p.logger)
		})
	}
}

func TestPipeline_Ingest(t *testing.T) {
	evidence, queue := setupTestRepositories(t)
	p, trig := newTestPipeline(t, evidence)
	ctx := context.Background()

	diff, err := p.Ingest(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)
	assert.Len(t, diff.Added, 3)
	assert.Equal(t, int64(1), trig.calls.Load())

	// Lexically visible before any embedding
	hits, err := evidence.LexicalSearch(ctx, testScope, "refund window days", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, core.UnitID(testScope, "policy", 0), hits[0].EvidenceID)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Depth)
}

func TestPipeline_IngestUnchangedDoesNotTrigger(t *testing.T) {
	evidence, _ := setupTestRepositories(t)
	p, trig := newTestPipeline(t, evidence)
	ctx := context.Background()

	_, err := p.Ingest(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	diff, err := p.Ingest(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Equal(t, 3, diff.Unchanged)
	assert.Equal(t, int64(1), trig.calls.Load(), "no-op reconcile should not wake the worker")
}

func TestPipeline_IngestRemovalOnlyDoesNotTrigger(t *testing.T) {
	evidence, _ := setupTestRepositories(t)
	p, trig := newTestPipeline(t, evidence)
	ctx := context.Background()

	_, err := p.Ingest(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	diff, err := p.Ingest(ctx, testScope, "policy", policyDoc[:2])
	require.NoError(t, err)
	assert.Len(t, diff.Removed, 1)
	assert.Equal(t, int64(1), trig.calls.Load())
}

func TestPipeline_IngestValidation(t *testing.T) {
	evidence, _ := setupTestRepositories(t)
	p, trig := newTestPipeline(t, evidence)

	_, err := p.Ingest(context.Background(), "", "policy", policyDoc)
	assert.ErrorIs(t, err, core.ErrEmptyScope)

	_, err = p.Ingest(context.Background(), testScope, "", policyDoc)
	assert.ErrorIs(t, err, core.ErrEmptyDocumentID)

	assert.Zero(t, trig.calls.Load())
}

func TestPipeline_EndToEnd(t *testing.T) {
	evidence, queue := setupTestRepositories(t)
	embedder := mock.NewMockEmbedder()
	worker, err := NewEmbeddingWorker(evidence, queue, embedder, WithBatchSize(2), WithPoolSize(2), WithRetry(1, time.Millisecond))
	require.NoError(t, err)
	defer worker.Close()

	p, err := NewPipeline(evidence, worker)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Ingest(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	require.NoError(t, worker.Drain(ctx))

	units, err := evidence.ActiveUnits(ctx, testScope, "policy")
	require.NoError(t, err)
	require.Len(t, units, 3)
	for _, u := range units {
		assert.Equal(t, core.EmbeddingEmbedded, u.EmbeddingStatus)
	}

	query, err := embedder.EmbedText(ctx, policyDoc[0])
	require.NoError(t, err)
	hits, err := evidence.FindSimilar(ctx, testScope, query, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, units[0].ID, hits[0].EvidenceID)
}

func TestPipeline_ReconcileError(t *testing.T) {
	evidence, queue, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	worker, err := NewEmbeddingWorker(evidence, queue, mock.NewMockEmbedder())
	require.NoError(t, err)
	defer worker.Close()

	p, err := NewPipeline(evidence, worker)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	_, err = p.Ingest(context.Background(), testScope, "policy", policyDoc)
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrInvalidDocument))
}
