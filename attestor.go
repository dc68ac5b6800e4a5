// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package attestor answers questions with clauses that are each backed by
// verified citations into a reconciled evidence store.
//
// Open wires the storage backend, the AI provider and every pipeline stage
// into an Engine:
//
//	engine, err := attestor.Open("/var/lib/attestor", attestor.WithSettings(settings))
//	diff, err := engine.Reconcile(ctx, scope, "handbook.md", sentences)
//	run, err := engine.Query(ctx, scope, "What is the refund window?")
package attestor

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/ai/openai"
	"github.com/poiesic/attestor/citation"
	"github.com/poiesic/attestor/controller"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/ingestion"
	"github.com/poiesic/attestor/planner"
	"github.com/poiesic/attestor/reembed"
	"github.com/poiesic/attestor/search"
	"github.com/poiesic/attestor/storage/badger"
	"github.com/poiesic/attestor/verify"
)

// Engine owns one evidence store and the query pipeline built on top of it.
type Engine struct {
	backend  *badger.Backend
	evidence *badger.EvidenceRepository
	queue    *badger.QueueRepository
	runs     *badger.RunRepository
	provider ai.AIProvider

	worker     *ingestion.EmbeddingWorker
	pipeline   *ingestion.Pipeline
	controller *controller.Controller
	settings   *Settings

	cancel context.CancelFunc
	logger *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	aiConfig   *ai.Config
	settings   *Settings
	inMemory   bool
	provider   ai.AIProvider
	background bool
	logger     *slog.Logger
}

// WithAIConfig overrides the AI section of the settings.
func WithAIConfig(cfg *ai.Config) EngineOption {
	return func(o *engineOptions) {
		o.aiConfig = cfg
	}
}

// WithSettings sets the engine tunables. Default is DefaultSettings().
func WithSettings(s *Settings) EngineOption {
	return func(o *engineOptions) {
		o.settings = s
	}
}

// WithInMemory keeps all data in memory; the path given to Open is ignored.
func WithInMemory() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// WithProvider uses p instead of an OpenAI-compatible provider.
// The engine takes ownership and closes p.
func WithProvider(p ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = p
	}
}

// WithManualEmbedding leaves the embedding worker stopped. Pending units are
// embedded only by DrainEmbeddings.
func WithManualEmbedding() EngineOption {
	return func(o *engineOptions) {
		o.background = false
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open opens or creates the evidence store at path and starts the embedding
// worker.
func Open(path string, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		background: true,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	settings := options.settings
	if settings == nil {
		settings = DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(path, options.inMemory, options.logger)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		aiConfig := options.aiConfig
		if aiConfig == nil {
			aiConfig = settings.AIConfig()
		}
		provider, err = openai.NewProvider(aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	e := &Engine{
		backend:  backend,
		evidence: badger.NewEvidenceRepository(backend),
		queue:    badger.NewQueueRepository(backend),
		runs:     badger.NewRunRepository(backend),
		provider: provider,
		settings: settings,
		logger:   options.logger.With("component", "engine"),
	}
	if err := e.wire(options.logger); err != nil {
		e.closeStorage()
		return nil, err
	}

	if options.background {
		ctx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		if err := e.worker.Start(ctx); err != nil {
			cancel()
			e.worker.Close()
			e.closeStorage()
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) wire(logger *slog.Logger) error {
	s := e.settings
	embedder := e.provider.Embedder()

	workerOpts := []ingestion.WorkerOption{
		ingestion.WithBatchSize(s.Embedding.BatchSize),
		ingestion.WithScanInterval(s.Embedding.ScanInterval),
		ingestion.WithRateLimit(s.Embedding.RequestsPerSecond, s.Embedding.Burst),
		ingestion.WithRetry(s.Embedding.MaxAttempts, s.Embedding.RetryDelay),
		ingestion.WithWorkerLogger(logger),
	}
	if s.Embedding.PoolSize > 0 {
		workerOpts = append(workerOpts, ingestion.WithPoolSize(s.Embedding.PoolSize))
	}
	worker, err := ingestion.NewEmbeddingWorker(e.evidence, e.queue, embedder, workerOpts...)
	if err != nil {
		return err
	}
	e.worker = worker

	pipeline, err := ingestion.NewPipeline(e.evidence, worker, ingestion.WithLogger(logger))
	if err != nil {
		worker.Close()
		return err
	}
	e.pipeline = pipeline

	retriever, err := search.NewRetriever(e.evidence, e.evidence, e.evidence, embedder,
		search.WithLogger(logger),
		search.WithTopK(s.Retrieval.TopK),
		search.WithLaneTimeout(s.Retrieval.LaneTimeout),
		search.WithSameUnitBonus(s.Retrieval.SameUnitBonus),
		search.WithRerankTop(s.Retrieval.RerankTop),
		search.WithEmbeddingCacheTTL(s.Retrieval.EmbeddingCacheTTL),
	)
	if err != nil {
		worker.Close()
		return err
	}

	verifier, err := verify.NewVerifier(e.provider.Reranker(), e.provider.EntailmentJudge(),
		verify.WithLogger(logger),
		verify.WithMinSimilarity(s.Verification.MinSimilarity),
		verify.WithKeepTop(s.Verification.KeepTop),
		verify.WithWeights(s.Verification.Weights),
	)
	if err != nil {
		worker.Close()
		return err
	}

	assembler, err := citation.NewAssembler(e.evidence, e.runs, citation.WithLogger(logger))
	if err != nil {
		worker.Close()
		return err
	}

	ctrl, err := controller.New(e.newPlanner(logger), retriever, verifier, assembler,
		controller.WithLogger(logger),
		controller.WithRouter(controller.Router{FastPathMaxTerms: s.Controller.FastPathMaxTerms}),
		controller.WithMaxRevisions(s.Controller.MaxRevisions),
		controller.WithMaxClauses(s.Controller.MaxClauses),
		controller.WithMinSupport(s.Controller.RequiredMinSupport),
		controller.WithAcceptanceThreshold(s.Verification.AcceptanceThreshold),
		controller.WithDraftCoverage(s.Controller.DraftCoverage),
	)
	if err != nil {
		worker.Close()
		return err
	}
	e.controller = ctrl
	return nil
}

func (e *Engine) newPlanner(logger *slog.Logger) planner.Planner {
	if e.settings.AI.Planner != PlannerModel {
		return planner.NewHeuristicPlanner()
	}
	p, err := planner.NewModelPlanner(e.provider.ClauseProposer(),
		planner.WithTimeout(e.settings.AI.PlannerTimeout),
		planner.WithLogger(logger))
	if err != nil {
		e.logger.Warn("provider cannot propose clauses, planning heuristically", "err", err)
		return planner.NewHeuristicPlanner()
	}
	return p
}

// Close stops the embedding worker and releases storage and the AI provider.
func (e *Engine) Close() error {
	if err := e.worker.Close(); err != nil {
		e.logger.Error("error stopping embedding worker", "err", err)
	}
	if e.cancel != nil {
		e.cancel()
	}
	return e.closeStorage()
}

func (e *Engine) closeStorage() error {
	var errs []error
	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Settings returns the settings the engine was opened with.
func (e *Engine) Settings() *Settings {
	return e.settings
}

// Reconcile replaces the evidence of one document with texts, one unit per
// element, and schedules embedding for new and changed units.
func (e *Engine) Reconcile(ctx context.Context, scope core.Scope, documentID string, texts []string) (*core.DiffResult, error) {
	return e.pipeline.Ingest(ctx, scope, documentID, texts)
}

// Query answers query from the evidence visible to scope. The returned run
// has already been recorded.
func (e *Engine) Query(ctx context.Context, scope core.Scope, query string) (*core.QueryRun, error) {
	return e.controller.Answer(ctx, scope, query)
}

// QueueStats reports the embedding backlog and worker counters.
func (e *Engine) QueueStats(ctx context.Context) (ingestion.WorkerStats, error) {
	return e.worker.Stats(ctx)
}

// DrainEmbeddings attempts every pending unit once. Units that fail stay
// queued.
func (e *Engine) DrainEmbeddings(ctx context.Context) error {
	return e.worker.Drain(ctx)
}

// GetRun returns a recorded run.
func (e *Engine) GetRun(ctx context.Context, scope core.Scope, id core.ID) (*core.QueryRun, error) {
	return e.runs.GetRun(ctx, scope, id)
}

// Citations returns the citation records stored for a run.
func (e *Engine) Citations(ctx context.Context, scope core.Scope, runID core.ID) ([]core.CitationRecord, error) {
	return e.runs.GetCitations(ctx, scope, runID)
}

// Reembed re-embeds every active unit of scope with the current embedder,
// writing progress to progress.
func (e *Engine) Reembed(ctx context.Context, scope core.Scope, progress io.Writer) (reembed.BatchResult, error) {
	cfg := reembed.DefaultConfig()
	cfg.BatchSize = e.settings.Embedding.BatchSize
	cfg.MaxRetries = e.settings.Embedding.MaxAttempts
	cfg.RetryDelay = e.settings.Embedding.RetryDelay
	cfg.RequestsPerSecond = e.settings.Embedding.RequestsPerSecond
	r := reembed.NewReembedder(e.evidence, e.queue, e.provider.Embedder(), cfg, progress).
		WithLogger(e.logger)
	return r.Run(ctx, scope)
}
