package reembed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
)

// BatchResult counts what happened to the units in one batch.
type BatchResult struct {
	Embedded int // vectors stored and units marked embedded
	Stale    int // units that changed or disappeared before their vector was stored
	Failed   int // units whose embedding call failed; entries stay queued
}

// Add accumulates another result into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Embedded += other.Embedded
	r.Stale += other.Stale
	r.Failed += other.Failed
}

// BatchProcessor embeds batches of evidence units and completes their queue entries.
type BatchProcessor struct {
	units    storage.EvidenceRepository
	queue    storage.EmbeddingQueue
	embedder ai.Embedder
	backoff  Backoff
	logger   *slog.Logger
}

// NewBatchProcessor creates a batch processor that paces and retries
// embedding calls according to backoff.
func NewBatchProcessor(units storage.EvidenceRepository, queue storage.EmbeddingQueue, embedder ai.Embedder, backoff Backoff) *BatchProcessor {
	return &BatchProcessor{
		units:    units,
		queue:    queue,
		embedder: embedder,
		backoff:  backoff,
		logger:   slog.Default().With("component", "batch-processor"),
	}
}

// WithLogger replaces the processor's logger.
func (bp *BatchProcessor) WithLogger(logger *slog.Logger) *BatchProcessor {
	if logger != nil {
		bp.logger = logger.With("component", "batch-processor")
	}
	return bp
}

// Process embeds the units behind a set of queue entries.
// Entries whose unit is gone are dropped from the queue and counted as stale.
func (bp *BatchProcessor) Process(ctx context.Context, entries []core.QueueEntry) (BatchResult, error) {
	var result BatchResult
	if len(entries) == 0 {
		return result, nil
	}

	byScope := make(map[core.Scope][]core.ID)
	var scopes []core.Scope
	for _, e := range entries {
		if _, ok := byScope[e.Scope]; !ok {
			scopes = append(scopes, e.Scope)
		}
		byScope[e.Scope] = append(byScope[e.Scope], e.EvidenceID)
	}

	for _, scope := range scopes {
		ids := byScope[scope]
		units, err := bp.units.GetUnits(ctx, scope, ids...)
		if err != nil {
			return result, fmt.Errorf("failed to load queued units: %w", err)
		}

		found := make(map[core.ID]bool, len(units))
		for _, u := range units {
			found[u.ID] = true
		}
		for _, id := range ids {
			if found[id] {
				continue
			}
			// The zero fingerprint never matches a live unit, so this only drops the entry
			if _, err := bp.queue.Complete(ctx, id, core.Fingerprint{}, nil); err != nil {
				return result, fmt.Errorf("failed to drop orphaned queue entry: %w", err)
			}
			result.Stale++
		}

		batch, err := bp.ProcessUnits(ctx, units)
		result.Add(batch)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// ProcessUnits generates embeddings for a batch of units and stores them
// normalized. An embedding failure marks every unit's entry as failed and a
// degenerate vector fails only its own unit; neither is returned as an
// error. Storage failures are.
func (bp *BatchProcessor) ProcessUnits(ctx context.Context, units []*core.EvidenceUnit) (BatchResult, error) {
	var result BatchResult
	if len(units) == 0 {
		return result, nil
	}

	texts := make([]string, len(units))
	for i, unit := range units {
		texts[i] = unit.Text
	}

	var embeddings [][]float32
	attempts, err := bp.backoff.Do(ctx, bp.logger, func(ctx context.Context) error {
		vectors, err := bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(units) {
			return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(units), len(vectors))
		}
		embeddings = vectors
		return nil
	})

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		bp.logger.Warn("embedding batch failed", "units", len(units), "attempts", attempts, "err", err)
		for _, unit := range units {
			if failErr := bp.queue.Fail(ctx, unit.ID); failErr != nil {
				return result, fmt.Errorf("failed to record embedding failure: %w", failErr)
			}
			result.Failed++
		}
		return result, nil
	}

	for i, unit := range units {
		vector, err := NormalizeVector(embeddings[i])
		if err != nil {
			bp.logger.Warn("discarding embedding", "evidence_id", unit.ID, "err", err)
			if failErr := bp.queue.Fail(ctx, unit.ID); failErr != nil {
				return result, fmt.Errorf("failed to record embedding failure: %w", failErr)
			}
			result.Failed++
			continue
		}
		stored, err := bp.queue.Complete(ctx, unit.ID, unit.Fingerprint, vector)
		if err != nil {
			return result, fmt.Errorf("failed to store vector: %w", err)
		}
		if stored {
			result.Embedded++
		} else {
			result.Stale++
		}
	}
	return result, nil
}
