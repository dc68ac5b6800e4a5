package badger

import (
	"context"
	"testing"

	"github.com/poiesic/attestor/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueIsIdempotent(t *testing.T) {
	evidence, queue, _ := newTestRepos(t)
	ctx := context.Background()

	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	before, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, before, 3)

	id := core.UnitID(testScope, "policy", 0)
	require.NoError(t, queue.Enqueue(ctx, id, id))

	after, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, after, 3)
	for i := range before {
		assert.Equal(t, before[i].EvidenceID, after[i].EvidenceID)
		assert.Equal(t, before[i].EnqueuedAt, after[i].EnqueuedAt)
	}
}

func TestQueue_EnqueueIgnoresTombstoned(t *testing.T) {
	evidence, queue, _ := newTestRepos(t)
	ctx := context.Background()

	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)
	_, err = evidence.Reconcile(ctx, testScope, "policy", nil)
	require.NoError(t, err)

	require.NoError(t, queue.Enqueue(ctx, core.UnitID(testScope, "policy", 0), core.ID(12345)))

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Depth)
	assert.Zero(t, stats.OldestPendingAge)
}

func TestQueue_CompleteMarksEmbedded(t *testing.T) {
	evidence, queue, _ := newTestRepos(t)
	ctx := context.Background()

	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	pending, err := queue.Pending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	entry := pending[0]

	stored, err := queue.Complete(ctx, entry.EvidenceID, entry.Fingerprint, []float32{1, 0, 0})
	require.NoError(t, err)
	assert.True(t, stored)

	unit, err := evidence.GetUnit(ctx, testScope, entry.EvidenceID)
	require.NoError(t, err)
	assert.Equal(t, core.EmbeddingEmbedded, unit.EmbeddingStatus)

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Depth)
	assert.Positive(t, stats.OldestPendingAge)

	hits, err := evidence.FindSimilar(ctx, testScope, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, entry.EvidenceID, hits[0].EvidenceID)
	assert.InDelta(t, 1.0, hits[0].RawScore, 0.0001)
}

func TestQueue_CompleteRejectsStaleFingerprint(t *testing.T) {
	evidence, queue, _ := newTestRepos(t)
	ctx := context.Background()

	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)
	id := core.UnitID(testScope, "policy", 1)
	stale := core.FingerprintText(policyDoc[1])

	// Text changes while the embedding is in flight
	edited := append([]string{}, policyDoc...)
	edited[1] = "Refunds are issued within 14 days."
	_, err = evidence.Reconcile(ctx, testScope, "policy", edited)
	require.NoError(t, err)

	stored, err := queue.Complete(ctx, id, stale, []float32{1, 0})
	require.NoError(t, err)
	assert.False(t, stored)

	unit, err := evidence.GetUnit(ctx, testScope, id)
	require.NoError(t, err)
	assert.Equal(t, core.EmbeddingPending, unit.EmbeddingStatus)

	hits, err := evidence.FindSimilar(ctx, testScope, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// The entry survives with the new fingerprint
	pending, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	var found bool
	for _, entry := range pending {
		if entry.EvidenceID == id {
			found = true
			assert.Equal(t, core.FingerprintText(edited[1]), entry.Fingerprint)
		}
	}
	assert.True(t, found)
}

func TestQueue_FailKeepsEntry(t *testing.T) {
	evidence, queue, _ := newTestRepos(t)
	ctx := context.Background()

	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc[:1])
	require.NoError(t, err)
	id := core.UnitID(testScope, "policy", 0)

	require.NoError(t, queue.Fail(ctx, id))
	require.NoError(t, queue.Fail(ctx, id))

	pending, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)

	// Unknown entries are ignored
	assert.NoError(t, queue.Fail(ctx, core.ID(99)))
}

func TestQueue_PendingOrdersFailedEntriesLast(t *testing.T) {
	evidence, queue, _ := newTestRepos(t)
	ctx := context.Background()

	_, err := evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)
	failing := core.UnitID(testScope, "policy", 0)
	require.NoError(t, queue.Fail(ctx, failing))

	pending, err := queue.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, failing, pending[2].EvidenceID)
	assert.Zero(t, pending[0].Attempts)
	assert.Zero(t, pending[1].Attempts)

	head, err := queue.Pending(ctx, 2)
	require.NoError(t, err)
	for _, entry := range head {
		assert.NotEqual(t, failing, entry.EvidenceID)
	}

	stats, err := queue.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Depth)
	assert.Equal(t, 1, stats.Retrying)

	// New text starts over
	edited := append([]string{}, policyDoc...)
	edited[0] = "Refunds are issued within 14 days."
	_, err = evidence.Reconcile(ctx, testScope, "policy", edited)
	require.NoError(t, err)

	pending, err = queue.Pending(ctx, 0)
	require.NoError(t, err)
	for _, entry := range pending {
		assert.Zero(t, entry.Attempts, "entry %d", entry.EvidenceID)
	}
	stats, err = queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Retrying)
}

func TestFindSimilar_SkipsPendingAndChanged(t *testing.T) {
	evidence, queue, _ := newTestRepos(t)
	ctx := context.Background()

	hits, err := evidence.FindSimilar(ctx, testScope, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = evidence.Reconcile(ctx, testScope, "policy", policyDoc)
	require.NoError(t, err)

	vectors := map[int][]float32{0: {1, 0}, 1: {0.8, 0.6}, 2: {0, 1}}
	for pos, vec := range vectors {
		stored, err := queue.Complete(ctx, core.UnitID(testScope, "policy", pos), core.FingerprintText(policyDoc[pos]), vec)
		require.NoError(t, err)
		require.True(t, stored)
	}

	hits, err = evidence.FindSimilar(ctx, testScope, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, core.UnitID(testScope, "policy", 0), hits[0].EvidenceID)
	assert.Equal(t, core.UnitID(testScope, "policy", 1), hits[1].EvidenceID)
	assert.Equal(t, core.UnitID(testScope, "policy", 2), hits[2].EvidenceID)

	hits, err = evidence.FindSimilar(ctx, testScope, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// Changing a unit hides it from the vector lane until re-embedded
	edited := append([]string{}, policyDoc...)
	edited[0] = "Orders ship the same day."
	_, err = evidence.Reconcile(ctx, testScope, "policy", edited)
	require.NoError(t, err)

	hits, err = evidence.FindSimilar(ctx, testScope, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, hit := range hits {
		assert.NotEqual(t, core.UnitID(testScope, "policy", 0), hit.EvidenceID)
	}

	// Other scopes see nothing
	hits, err = evidence.FindSimilar(ctx, "tenant-b", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
