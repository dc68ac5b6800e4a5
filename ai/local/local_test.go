package local

import (
	"context"
	"testing"

	"github.com/poiesic/attestor/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(0)

	a, err := e.EmbedText(ctx, "Refunds are processed within 30 days.")
	require.NoError(t, err)
	require.Len(t, a, DefaultDimensions)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)

	again, err := e.EmbedText(ctx, "refunds are processed within 30 days")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	related, err := e.EmbedText(ctx, "How long until refunds are processed?")
	require.NoError(t, err)
	unrelated, err := e.EmbedText(ctx, "Gift cards cannot be exchanged for cash.")
	require.NoError(t, err)
	assert.Greater(t, cosine(a, related), cosine(a, unrelated))

	empty, err := e.EmbedText(ctx, "the of and")
	require.NoError(t, err)
	assert.Zero(t, cosine(empty, empty))

	batch, err := e.EmbedTexts(ctx, []string{"one", "two"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)
}

func TestOverlapReranker(t *testing.T) {
	scores, err := OverlapReranker{}.Rerank(context.Background(), "refund window", []string{
		"The refund window is 30 days.",
		"Shipping is free.",
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], scores[1])
	assert.Zero(t, scores[1])

	assert.InDelta(t, 1.0, Dice("refunds window", "window refund"), 1e-9)
}

func TestLexicalJudge(t *testing.T) {
	clause := "Refunds are processed within 30 days."
	got, err := LexicalJudge{}.Judge(context.Background(), clause, []string{
		"Refunds are processed within 30 days.",
		"Refunds are not processed within 30 days.",
		"Refunds are processed within 14 days.",
		"Shipping is free on all orders.",
	})
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, core.EntailmentSupport, got[0].Label)
	assert.InDelta(t, 1.0, got[0].Confidence, 1e-9)
	assert.Equal(t, core.EntailmentContradict, got[1].Label)
	assert.Equal(t, core.EntailmentContradict, got[2].Label)
	assert.Equal(t, core.EntailmentNeutral, got[3].Label)
}

func TestProvider(t *testing.T) {
	p := NewProvider()
	assert.NotNil(t, p.Embedder())
	assert.NotNil(t, p.Reranker())
	assert.NotNil(t, p.EntailmentJudge())
	assert.Nil(t, p.ClauseProposer())
	assert.NoError(t, p.Close())
}
