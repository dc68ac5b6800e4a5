package verify

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Verdict is the outcome of verifying one clause against its candidates.
type Verdict struct {
	Supports       []core.Support // entailed passages, best composite first
	Contradictions []core.Support // passages that dispute the clause
	Considered     int            // candidates that passed the similarity floor
}

// Qualifying returns the supports whose composite score reaches threshold.
func (v *Verdict) Qualifying(threshold float64) []core.Support {
	out := make([]core.Support, 0, len(v.Supports))
	for _, s := range v.Supports {
		if s.Label == core.EntailmentSupport && s.CompositeScore >= threshold {
			out = append(out, s)
		}
	}
	return out
}

// Acceptable applies the acceptance policy: at least minSupport qualifying
// supports and no contradictions.
func (v *Verdict) Acceptable(threshold float64, minSupport int) bool {
	if v == nil || len(v.Contradictions) > 0 {
		return false
	}
	return len(v.Qualifying(threshold)) >= max(minSupport, 1)
}

// Confidence is the mean composite score of the qualifying supports.
func (v *Verdict) Confidence(threshold float64) float64 {
	q := v.Qualifying(threshold)
	if len(q) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range q {
		sum += s.CompositeScore
	}
	return sum / float64(len(q))
}

// Verifier runs the four verification stages.
type Verifier struct {
	reranker      ai.Reranker
	judge         ai.EntailmentJudge
	minSimilarity float64
	keepTop       int
	weights       Weights
	logger        *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) error {
		if logger == nil {
			logger = slog.Default()
		}
		v.logger = logger
		return nil
	}
}

// WithMinSimilarity sets the similarity floor.
func WithMinSimilarity(floor float64) Option {
	return func(v *Verifier) error {
		if floor < 0 || floor > 1 {
			return fmt.Errorf("%w: similarity floor must be within [0,1]", ErrInvalidConfig)
		}
		v.minSimilarity = floor
		return nil
	}
}

// WithKeepTop sets how many reranked candidates reach entailment.
func WithKeepTop(n int) Option {
	return func(v *Verifier) error {
		if n < 1 {
			return fmt.Errorf("%w: keep top must be positive", ErrInvalidConfig)
		}
		v.keepTop = n
		return nil
	}
}

// WithWeights sets the composite score weights.
func WithWeights(w Weights) Option {
	return func(v *Verifier) error {
		if err := w.Validate(); err != nil {
			return err
		}
		v.weights = w
		return nil
	}
}

// NewVerifier creates a verifier from a reranker and an entailment judge.
func NewVerifier(reranker ai.Reranker, judge ai.EntailmentJudge, opts ...Option) (*Verifier, error) {
	if reranker == nil {
		return nil, ErrRerankerRequired
	}
	if judge == nil {
		return nil, ErrJudgeRequired
	}

	v := &Verifier{
		reranker:      reranker,
		judge:         judge,
		minSimilarity: DefaultMinSimilarity,
		keepTop:       DefaultKeepTop,
		weights:       EqualWeights(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}
	v.logger = v.logger.With("component", "verifier")
	return v, nil
}

type scored struct {
	candidate *core.Candidate
	rerank    float64
}

// Verify scores candidates against clause. An empty verdict is not an error;
// it means nothing in the candidates backs the clause.
func (v *Verifier) Verify(ctx context.Context, clause string, candidates []*core.Candidate) (*Verdict, error) {
	return v.VerifyAnswer(ctx, clause, clause, candidates)
}

// VerifyAnswer is Verify with the rerank stage scored against question
// instead of clause. Extractive clauses are copied from a candidate and
// rerank perfectly against themselves; scoring them against the question
// keeps their composite tied to relevance.
func (v *Verifier) VerifyAnswer(ctx context.Context, question, clause string, candidates []*core.Candidate) (verdict *Verdict, err error) {
	if strings.TrimSpace(clause) == "" {
		return nil, ErrEmptyClause
	}
	if strings.TrimSpace(question) == "" {
		question = clause
	}

	ctx, span := telemetry.Tracer().Start(ctx, "verify.Verify")
	defer func() { telemetry.End(span, err) }()

	// 1. Similarity floor
	survivors := make([]*core.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c != nil && c.Unit != nil && c.Score >= v.minSimilarity {
			survivors = append(survivors, c)
		}
	}
	verdict = &Verdict{Considered: len(survivors)}
	if len(survivors) == 0 {
		v.logger.Debug("no candidates above similarity floor", "candidates", len(candidates), "floor", v.minSimilarity)
		return verdict, nil
	}

	// 2. Rerank, keep top N
	passages := make([]string, len(survivors))
	for i, c := range survivors {
		passages[i] = c.Unit.Text
	}
	rerankScores, err := v.reranker.Rerank(ctx, question, passages)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(rerankScores) != len(survivors) {
		return nil, fmt.Errorf("rerank: %w: expected %d scores, got %d", ai.ErrResultMismatch, len(survivors), len(rerankScores))
	}
	ranked := make([]scored, len(survivors))
	for i, c := range survivors {
		ranked[i] = scored{candidate: c, rerank: ai.ClampScore(rerankScores[i])}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.rerank, a.rerank)
	})
	if len(ranked) > v.keepTop {
		ranked = ranked[:v.keepTop]
	}

	// 3. Entailment
	passages = passages[:0]
	for _, r := range ranked {
		passages = append(passages, r.candidate.Unit.Text)
	}
	entailments, err := v.judge.Judge(ctx, clause, passages)
	if err != nil {
		return nil, fmt.Errorf("entailment: %w", err)
	}
	if len(entailments) != len(ranked) {
		return nil, fmt.Errorf("entailment: %w: expected %d labels, got %d", ai.ErrResultMismatch, len(ranked), len(entailments))
	}

	// 4. Composite score
	for i, r := range ranked {
		e := entailments[i]
		if e.Label != core.EntailmentSupport && e.Label != core.EntailmentContradict {
			continue
		}
		scores := core.StageScores{
			Similarity: r.candidate.Score,
			Rerank:     r.rerank,
			Entailment: ai.ClampScore(e.Confidence),
		}
		unit := r.candidate.Unit
		support := core.Support{
			EvidenceID:     unit.ID,
			DocumentID:     unit.DocumentID,
			Position:       unit.Position,
			TextSnapshot:   unit.Text,
			Label:          e.Label,
			Scores:         scores,
			CompositeScore: v.weights.Composite(scores.Similarity, scores.Rerank, scores.Entailment),
		}
		if e.Label == core.EntailmentContradict {
			verdict.Contradictions = append(verdict.Contradictions, support)
		} else {
			verdict.Supports = append(verdict.Supports, support)
		}
	}
	slices.SortStableFunc(verdict.Supports, func(a, b core.Support) int {
		return cmp.Compare(b.CompositeScore, a.CompositeScore)
	})

	span.SetAttributes(
		attribute.Int("verify.considered", verdict.Considered),
		attribute.Int("verify.supports", len(verdict.Supports)),
		attribute.Int("verify.contradictions", len(verdict.Contradictions)),
	)
	v.logger.Debug("clause verified",
		"considered", verdict.Considered,
		"supports", len(verdict.Supports),
		"contradictions", len(verdict.Contradictions))
	return verdict, nil
}
