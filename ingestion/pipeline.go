package ingestion

import (
	"context"
	"log/slog"

	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
)

// trigger is the part of the embedding worker the pipeline depends on.
type trigger interface {
	Trigger()
}

// Pipeline is the ingestion front door: it reconciles documents against the
// evidence store and wakes the embedding worker.
type Pipeline struct {
	evidence storage.EvidenceRepository
	worker   trigger
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(evidence storage.EvidenceRepository, worker *EmbeddingWorker, opts ...Option) (*Pipeline, error) {
	if evidence == nil {
		return nil, ErrEvidenceRepositoryRequired
	}
	if worker == nil {
		return nil, ErrWorkerRequired
	}

	p := &Pipeline{
		evidence: evidence,
		worker:   worker,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Ingest reconciles the ordered evidence texts of one document.
// Every added or changed unit is queued for embedding in the same transaction
// and the worker is woken. Units are searchable lexically as soon as Ingest
// returns; they join the vector lane once embedded.
func (p *Pipeline) Ingest(ctx context.Context, scope core.Scope, documentID string, texts []string) (*core.DiffResult, error) {
	if err := core.ValidateDocument(scope, documentID); err != nil {
		return nil, err
	}

	diff, err := p.evidence.Reconcile(ctx, scope, documentID, texts)
	if err != nil {
		p.logger.Error("error reconciling document", "document", documentID, "err", err)
		return nil, err
	}

	p.logger.Info("document reconciled",
		"document", documentID,
		"added", len(diff.Added),
		"changed", len(diff.Changed),
		"removed", len(diff.Removed),
		"unchanged", diff.Unchanged)

	if len(diff.Added) > 0 || len(diff.Changed) > 0 {
		p.worker.Trigger()
	}
	return diff, nil
}
