package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/telemetry"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel/attribute"
)

// embedRequestSize bounds how many texts go into one embedding request.
// Queue batches larger than this are split by langchaingo.
const embedRequestSize = 64

// Embedder implements ai.Embedder against an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
	logger   *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

func newEmbedder(config *ai.Config) (*Embedder, error) {
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.Token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(embedRequestSize),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}

	return &Embedder{
		embedder: embedder,
		model:    config.EmbeddingModel,
		logger:   slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// EmbedText embeds a single query or passage.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds texts in order, one vector per text.
// A response with a different vector count is an error rather than a short result.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "openai.EmbedTexts")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(attribute.String("model", e.model), attribute.Int("texts", len(texts)))

	vectors, err = e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("embedding request failed", "texts", len(texts), "err", err)
		return nil, err
	}
	switch {
	case len(vectors) == 0:
		return nil, ai.ErrEmptyResponse
	case len(vectors) != len(texts):
		return nil, fmt.Errorf("%w: %d embeddings for %d texts", ai.ErrResultMismatch, len(vectors), len(texts))
	}

	e.logger.Debug("embedded texts", "texts", len(texts), "dimensions", len(vectors[0]))
	return vectors, nil
}
