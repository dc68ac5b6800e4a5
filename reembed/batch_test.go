package reembed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope core.Scope = "tenant"

// mockEmbedder for testing
type mockEmbedder struct {
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls          atomic.Int64
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	// Default: return unnormalized vectors for each text
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return result, nil
}

func setupTestDB(t *testing.T) (*badger.EvidenceRepository, *badger.QueueRepository) {
	t.Helper()
	evidence, queue, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return evidence, queue
}

func ingest(t *testing.T, evidence *badger.EvidenceRepository, documentID string, texts ...string) *core.DiffResult {
	t.Helper()
	diff, err := evidence.Reconcile(context.Background(), testScope, documentID, texts)
	require.NoError(t, err)
	return diff
}

func TestBatchProcessor_Process(t *testing.T) {
	evidence, queue := setupTestDB(t)
	ctx := context.Background()

	ingest(t, evidence, "doc", "Refunds are processed within 30 days.", "Shipping takes five days.")

	entries, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	processor := NewBatchProcessor(evidence, queue, &mockEmbedder{}, Backoff{Attempts: 3, BaseDelay: 10 * time.Millisecond})
	result, err := processor.Process(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Embedded: 2}, result)

	for _, e := range entries {
		unit, err := evidence.GetUnit(ctx, testScope, e.EvidenceID)
		require.NoError(t, err)
		assert.Equal(t, core.EmbeddingEmbedded, unit.EmbeddingStatus)
	}

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Depth)
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	evidence, queue := setupTestDB(t)
	embedder := &mockEmbedder{}
	processor := NewBatchProcessor(evidence, queue, embedder, Backoff{Attempts: 3, BaseDelay: 10 * time.Millisecond})

	result, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, result)
	assert.Zero(t, embedder.calls.Load(), "empty batch should not call the embedder")
}

func TestBatchProcessor_EmbeddingError(t *testing.T) {
	evidence, queue := setupTestDB(t)
	ctx := context.Background()

	ingest(t, evidence, "doc", "Refunds are processed within 30 days.")

	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("embedding service unavailable")
		},
	}
	processor := NewBatchProcessor(evidence, queue, embedder, Backoff{Attempts: 2, BaseDelay: time.Millisecond})

	entries, err := queue.Pending(ctx, 0)
	require.NoError(t, err)

	result, err := processor.Process(ctx, entries)
	require.NoError(t, err, "embedding failures are recorded on the queue, not returned")
	assert.Equal(t, BatchResult{Failed: 1}, result)
	assert.Equal(t, int64(2), embedder.calls.Load())

	after, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, 1, after[0].Attempts)

	unit, err := evidence.GetUnit(ctx, testScope, entries[0].EvidenceID)
	require.NoError(t, err)
	assert.Equal(t, core.EmbeddingPending, unit.EmbeddingStatus)
}

func TestBatchProcessor_Retry(t *testing.T) {
	evidence, queue := setupTestDB(t)
	ctx := context.Background()

	ingest(t, evidence, "doc", "Refunds are processed within 30 days.")

	embedder := &mockEmbedder{}
	embedder.embedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if embedder.calls.Load() < 3 {
			return nil, errors.New("temporary error")
		}
		return [][]float32{{1, 0, 0}}, nil
	}
	processor := NewBatchProcessor(evidence, queue, embedder, Backoff{Attempts: 3, BaseDelay: time.Millisecond})

	entries, err := queue.Pending(ctx, 0)
	require.NoError(t, err)

	result, err := processor.Process(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Embedded)
	assert.Equal(t, int64(3), embedder.calls.Load(), "should succeed on the third attempt")
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	evidence, queue := setupTestDB(t)
	ctx := context.Background()

	ingest(t, evidence, "doc", "First sentence here.", "Second sentence here.")

	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
	}
	processor := NewBatchProcessor(evidence, queue, embedder, Backoff{Attempts: 1, BaseDelay: time.Millisecond})

	entries, err := queue.Pending(ctx, 0)
	require.NoError(t, err)

	result, err := processor.Process(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Failed)
	assert.Zero(t, result.Embedded)
}

func TestBatchProcessor_StaleText(t *testing.T) {
	evidence, queue := setupTestDB(t)
	ctx := context.Background()

	ingest(t, evidence, "doc", "Refunds are processed within 30 days.")
	entries, err := queue.Pending(ctx, 0)
	require.NoError(t, err)

	units, err := evidence.GetUnits(ctx, testScope, entries[0].EvidenceID)
	require.NoError(t, err)

	// The document is edited while the batch is in flight
	ingest(t, evidence, "doc", "Refunds are processed within 14 days.")

	processor := NewBatchProcessor(evidence, queue, &mockEmbedder{}, Backoff{Attempts: 1, BaseDelay: time.Millisecond})
	result, err := processor.ProcessUnits(ctx, units)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Stale: 1}, result)

	unit, err := evidence.GetUnit(ctx, testScope, entries[0].EvidenceID)
	require.NoError(t, err)
	assert.Equal(t, core.EmbeddingPending, unit.EmbeddingStatus, "old vector must not be stored for new text")

	after, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, after, 1, "entry stays queued for the new text")
	assert.Equal(t, core.FingerprintText("Refunds are processed within 14 days."), after[0].Fingerprint)
}

func TestBatchProcessor_OrphanedEntry(t *testing.T) {
	evidence, queue := setupTestDB(t)
	ctx := context.Background()

	orphan := core.QueueEntry{EvidenceID: core.ID(999), Scope: testScope, Fingerprint: core.FingerprintText("gone")}

	processor := NewBatchProcessor(evidence, queue, &mockEmbedder{}, Backoff{Attempts: 1, BaseDelay: time.Millisecond})
	result, err := processor.Process(ctx, []core.QueueEntry{orphan})
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Stale: 1}, result)
}

func TestBatchProcessor_ContextCancellation(t *testing.T) {
	evidence, queue := setupTestDB(t)

	ingest(t, evidence, "doc", "Refunds are processed within 30 days.")
	entries, err := queue.Pending(context.Background(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			cancel()
			return nil, ctx.Err()
		},
	}
	processor := NewBatchProcessor(evidence, queue, embedder, Backoff{Attempts: 3, BaseDelay: time.Millisecond})

	_, err = processor.Process(ctx, entries)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1), embedder.calls.Load())
}

func TestBatchProcessor_VectorNormalization(t *testing.T) {
	evidence, queue := setupTestDB(t)
	ctx := context.Background()

	ingest(t, evidence, "doc", "Refunds are processed within 30 days.")
	entries, err := queue.Pending(ctx, 0)
	require.NoError(t, err)

	processor := NewBatchProcessor(evidence, queue, &mockEmbedder{}, Backoff{Attempts: 1, BaseDelay: time.Millisecond})
	_, err = processor.Process(ctx, entries)
	require.NoError(t, err)

	// The stored vector is {1,2,2}/3, so querying with the same direction scores ~1
	hits, err := evidence.FindSimilar(ctx, testScope, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].RawScore, 1e-5)
}

func TestBatchProcessor_DegenerateVector(t *testing.T) {
	evidence, queue := setupTestDB(t)
	ctx := context.Background()

	ingest(t, evidence, "doc", "Refunds are processed within 30 days.", "Shipping takes five business days.")

	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{0, 0, 0}, {0, 3, 4}}, nil
		},
	}
	processor := NewBatchProcessor(evidence, queue, embedder, Backoff{Attempts: 1})

	entries, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	result, err := processor.Process(ctx, entries)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Embedded: 1, Failed: 1}, result)

	after, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, after, 1, "the zero vector is not stored")
	assert.Equal(t, 1, after[0].Attempts)
}
