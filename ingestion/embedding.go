package ingestion

import (
	"context"
	"log/slog"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/reembed"
	"github.com/poiesic/attestor/storage"
)

// processor turns queue entries into stored vectors.
type processor interface {
	process(ctx context.Context, entries []core.QueueEntry) (reembed.BatchResult, error)
}

// embeddingProcessor generates embeddings for queued evidence units.
type embeddingProcessor struct {
	batch  *reembed.BatchProcessor
	logger *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(units storage.EvidenceRepository, queue storage.EmbeddingQueue, embedder ai.Embedder,
	backoff reembed.Backoff, logger *slog.Logger) (processor, error) {
	if units == nil {
		return nil, ErrEvidenceRepositoryRequired
	}
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		batch:  reembed.NewBatchProcessor(units, queue, embedder, backoff).WithLogger(logger),
		logger: logger.With("processor", "embeddings"),
	}, nil
}

// process generates embeddings for the units behind the given entries.
func (ep *embeddingProcessor) process(ctx context.Context, entries []core.QueueEntry) (reembed.BatchResult, error) {
	ep.logger.Debug("processing queue entries for embeddings", "entries", len(entries))

	result, err := ep.batch.Process(ctx, entries)
	if err != nil {
		ep.logger.Error("error processing embeddings", "err", err)
		return result, err
	}
	if result.Stale > 0 || result.Failed > 0 {
		ep.logger.Info("embedding batch finished with leftovers",
			"embedded", result.Embedded, "stale", result.Stale, "failed", result.Failed)
	}
	return result, nil
}
