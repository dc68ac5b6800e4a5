package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
	"github.com/poiesic/attestor/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultTopK is the number of hits requested from each lane.
	DefaultTopK = 64
	// DefaultLaneTimeout bounds each lane independently.
	DefaultLaneTimeout = 2 * time.Second
	// DefaultSameUnitBonus is added to units returned by both lanes.
	DefaultSameUnitBonus = 0.1
	// DefaultRerankTop is the number of merged candidates handed to verification.
	DefaultRerankTop = 32
	// DefaultEmbeddingCacheTTL is how long query embeddings are reused.
	DefaultEmbeddingCacheTTL = 10 * time.Minute
)

// Retriever runs the vector and lexical lanes and merges their results.
// It only reads from the evidence store.
type Retriever struct {
	units    storage.EvidenceRepository
	vectors  storage.VectorIndex
	lexical  storage.LexicalIndex
	embedder ai.Embedder
	cache    *gocache.Cache

	topK          int
	laneTimeout   time.Duration
	sameUnitBonus float64
	rerankTop     int
	logger        *slog.Logger
}

// Result is the merged output of one retrieval call.
type Result struct {
	Candidates []*core.Candidate
	Degraded   []*LaneFailure // lanes that contributed nothing because they failed
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithTopK sets how many hits each lane returns.
func WithTopK(k int) Option {
	return func(r *Retriever) error {
		if k < 1 {
			return fmt.Errorf("%w: top k must be positive", storage.ErrInvalidQuery)
		}
		r.topK = k
		return nil
	}
}

// WithLaneTimeout sets the per-lane timeout.
func WithLaneTimeout(d time.Duration) Option {
	return func(r *Retriever) error {
		if d <= 0 {
			return fmt.Errorf("%w: lane timeout must be positive", storage.ErrInvalidQuery)
		}
		r.laneTimeout = d
		return nil
	}
}

// WithSameUnitBonus sets the bonus for units found by both lanes.
func WithSameUnitBonus(bonus float64) Option {
	return func(r *Retriever) error {
		if bonus < 0 || bonus > 1 {
			return fmt.Errorf("%w: same unit bonus must be within [0,1]", storage.ErrInvalidQuery)
		}
		r.sameUnitBonus = bonus
		return nil
	}
}

// WithRerankTop sets how many merged candidates are returned.
func WithRerankTop(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("%w: rerank top must be positive", storage.ErrInvalidQuery)
		}
		r.rerankTop = n
		return nil
	}
}

// WithEmbeddingCacheTTL sets how long query embeddings are cached.
// Zero disables the cache.
func WithEmbeddingCacheTTL(ttl time.Duration) Option {
	return func(r *Retriever) error {
		if ttl <= 0 {
			r.cache = nil
			return nil
		}
		r.cache = gocache.New(ttl, 2*ttl)
		return nil
	}
}

// NewRetriever creates a retriever over the given indexes.
// The embedder is shared with the embedding worker, so query and evidence
// vectors live in the same space.
func NewRetriever(
	units storage.EvidenceRepository,
	vectors storage.VectorIndex,
	lexical storage.LexicalIndex,
	embedder ai.Embedder,
	opts ...Option,
) (*Retriever, error) {
	if units == nil {
		return nil, ErrEvidenceRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorIndexRequired
	}
	if lexical == nil {
		return nil, ErrLexicalIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		units:         units,
		vectors:       vectors,
		lexical:       lexical,
		embedder:      embedder,
		cache:         gocache.New(DefaultEmbeddingCacheTTL, 2*DefaultEmbeddingCacheTTL),
		topK:          DefaultTopK,
		laneTimeout:   DefaultLaneTimeout,
		sameUnitBonus: DefaultSameUnitBonus,
		rerankTop:     DefaultRerankTop,
		logger:        slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")

	return r, nil
}

// Retrieve runs both lanes for query within scope and merges the results.
func (r *Retriever) Retrieve(ctx context.Context, scope core.Scope, query string) (*Result, error) {
	return r.RetrieveWithMonitor(ctx, scope, query, nil)
}

type laneResult struct {
	lane core.Lane
	hits []core.LaneHit
	err  error
}

// RetrieveWithMonitor is Retrieve with stage callbacks.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, scope core.Scope, query string, monitor Monitor) (result *Result, err error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if err := core.ValidateScope(scope); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrUnauthorized, err)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "search.Retrieve")
	defer func() { telemetry.End(span, err) }()

	monitor.Start(query)

	results := make(chan laneResult, 2)
	go func() { results <- r.runLane(ctx, core.LaneVector, scope, query) }()
	go func() { results <- r.runLane(ctx, core.LaneLexical, scope, query) }()

	lanes := make(map[core.Lane][]core.LaneHit, 2)
	var degraded []*LaneFailure
	for range 2 {
		lr := <-results
		monitor.AfterLane(lr.lane, lr.hits, lr.err)
		if lr.err != nil {
			degraded = append(degraded, &LaneFailure{Lane: lr.lane, Err: lr.err})
			continue
		}
		lanes[lr.lane] = lr.hits
	}

	// Caller cancellation is not a lane failure
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	slices.SortFunc(degraded, func(a, b *LaneFailure) int { return cmp.Compare(a.Lane, b.Lane) })
	for _, f := range degraded {
		if errors.Is(f.Err, storage.ErrUnauthorized) {
			return nil, f.Err
		}
		r.logger.Warn("retrieval lane degraded", "lane", f.Lane, "err", f.Err)
	}
	if len(degraded) == 2 {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalTotalFailure, errors.Join(degraded[0], degraded[1]))
	}

	candidates, err := r.merge(ctx, scope, lanes)
	if err != nil {
		return nil, err
	}
	monitor.AfterMerge(candidates)

	result = &Result{Candidates: candidates, Degraded: degraded}
	span.SetAttributes(
		attribute.Int("retrieve.vector_hits", len(lanes[core.LaneVector])),
		attribute.Int("retrieve.lexical_hits", len(lanes[core.LaneLexical])),
		attribute.Int("retrieve.candidates", len(candidates)),
		attribute.Int("retrieve.degraded_lanes", len(degraded)),
	)
	monitor.Finish(result)

	r.logger.Debug("retrieval finished",
		"vector_hits", len(lanes[core.LaneVector]),
		"lexical_hits", len(lanes[core.LaneLexical]),
		"candidates", len(candidates),
		"degraded", len(degraded))
	return result, nil
}

// runLane runs one lane under its own timeout. A lane that overruns is
// abandoned even if the underlying call ignores its context.
func (r *Retriever) runLane(ctx context.Context, lane core.Lane, scope core.Scope, query string) laneResult {
	laneCtx, cancel := context.WithTimeout(ctx, r.laneTimeout)
	defer cancel()

	done := make(chan laneResult, 1)
	go func() {
		var hits []core.LaneHit
		var err error
		switch lane {
		case core.LaneVector:
			hits, err = r.vectorLane(laneCtx, scope, query)
		case core.LaneLexical:
			hits, err = r.lexical.LexicalSearch(laneCtx, scope, query, r.topK)
		}
		done <- laneResult{lane: lane, hits: hits, err: err}
	}()

	select {
	case res := <-done:
		return res
	case <-laneCtx.Done():
		return laneResult{lane: lane, err: laneCtx.Err()}
	}
}

func (r *Retriever) vectorLane(ctx context.Context, scope core.Scope, query string) ([]core.LaneHit, error) {
	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.vectors.FindSimilar(ctx, scope, vector, r.topK)
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := core.NormalizeText(query)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached.([]float32), nil
		}
	}
	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if r.cache != nil {
		r.cache.SetDefault(key, vector)
	}
	return vector, nil
}

// merge normalizes lane scores, dedupes by evidence ID and loads the units.
func (r *Retriever) merge(ctx context.Context, scope core.Scope, lanes map[core.Lane][]core.LaneHit) ([]*core.Candidate, error) {
	byID := make(map[core.ID]*core.Candidate)
	var order []core.ID

	for _, lane := range []core.Lane{core.LaneVector, core.LaneLexical} {
		hits := lanes[lane]
		best := bestScore(hits)
		for _, hit := range hits {
			score := normalizeScore(lane, hit.RawScore, best)
			c, ok := byID[hit.EvidenceID]
			if !ok {
				c = &core.Candidate{LaneScores: make(map[core.Lane]float64, 2)}
				byID[hit.EvidenceID] = c
				order = append(order, hit.EvidenceID)
			}
			if !c.InLane(lane) {
				c.Lanes = append(c.Lanes, lane)
			}
			c.LaneScores[lane] = max(c.LaneScores[lane], score)
		}
	}
	if len(order) == 0 {
		return []*core.Candidate{}, nil
	}

	for _, c := range byID {
		c.Score = MergeScores(c.LaneScores, r.sameUnitBonus)
	}

	// Load units; anything tombstoned since the lane read is dropped
	units, err := r.units.GetUnits(ctx, scope, order...)
	if err != nil {
		return nil, err
	}
	candidates := make([]*core.Candidate, 0, len(units))
	for _, u := range units {
		c := byID[u.ID]
		c.Unit = u
		candidates = append(candidates, c)
	}

	slices.SortFunc(candidates, func(a, b *core.Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Unit.ID, b.Unit.ID)
	})
	if len(candidates) > r.rerankTop {
		candidates = candidates[:r.rerankTop]
	}
	return candidates, nil
}

// normalizeScore maps a raw lane score into [0,1]. Vector scores are cosine
// similarities clamped at zero; lexical scores are divided by the best score
// of the same call.
func normalizeScore(lane core.Lane, raw, best float64) float64 {
	switch lane {
	case core.LaneVector:
		return clamp01(raw)
	case core.LaneLexical:
		if best <= 0 {
			return 0
		}
		return clamp01(raw / best)
	}
	return 0
}

// MergeScores combines normalized lane scores for one unit. A single lane's
// score is used as-is; units found by both lanes take the higher score plus
// bonus, capped at 1.
func MergeScores(scores map[core.Lane]float64, bonus float64) float64 {
	switch len(scores) {
	case 0:
		return 0
	case 1:
		for _, s := range scores {
			return s
		}
	}
	best := 0.0
	for _, s := range scores {
		best = max(best, s)
	}
	return min(1, best+bonus)
}

func bestScore(hits []core.LaneHit) float64 {
	best := 0.0
	for _, h := range hits {
		best = max(best, h.RawScore)
	}
	return best
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	return min(v, 1)
}
