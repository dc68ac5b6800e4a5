package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/core"
)

// DefaultModelTimeout bounds one proposal call.
const DefaultModelTimeout = 15 * time.Second

// ModelPlanner asks a language model for the next clause. Model errors,
// malformed output and timeouts produce the deterministic Fallback proposal
// instead of an error.
type ModelPlanner struct {
	proposer ai.ClauseProposer
	timeout  time.Duration
	logger   *slog.Logger
}

var _ Planner = (*ModelPlanner)(nil)

// ModelOption configures a ModelPlanner.
type ModelOption func(*ModelPlanner)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) ModelOption {
	return func(p *ModelPlanner) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ModelOption {
	return func(p *ModelPlanner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewModelPlanner wraps a clause proposer.
func NewModelPlanner(proposer ai.ClauseProposer, opts ...ModelOption) (*ModelPlanner, error) {
	if proposer == nil {
		return nil, fmt.Errorf("%w: clause proposer required", ErrPlannerFailure)
	}
	p := &ModelPlanner{
		proposer: proposer,
		timeout:  DefaultModelTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "planner")
	return p, nil
}

// Plan returns the model's proposal, or Fallback when the model fails.
// Only cancellation of ctx itself is returned as an error.
func (p *ModelPlanner) Plan(ctx context.Context, in Input) (Proposal, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	proposed, err := p.proposer.ProposeClause(callCtx, ai.ProposalRequest{
		Query:    in.Query,
		Accepted: in.Accepted,
		Gaps:     in.Gaps,
		Revising: in.Revising,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Proposal{}, ctxErr
	}
	if err == nil {
		err = validate(proposed)
	}
	if err != nil {
		p.logger.Warn("planner fell back to the original query",
			"err", fmt.Errorf("%w: %w", ErrPlannerFailure, err),
			"timeout", errors.Is(err, context.DeadlineExceeded))
		return Fallback(in), nil
	}

	if proposed.Done {
		return Proposal{Done: true}, nil
	}
	if repeats(proposed.Clause, in.Accepted) {
		p.logger.Debug("model repeated an accepted clause, treating as done")
		return Proposal{Done: true}, nil
	}

	subquery := strings.TrimSpace(proposed.Subquery)
	if subquery == "" {
		subquery = strings.TrimSpace(proposed.Clause)
	}
	return Proposal{ClauseText: strings.TrimSpace(proposed.Clause), Subquery: subquery}, nil
}

func validate(proposed *ai.ProposedClause) error {
	if proposed == nil {
		return ai.ErrEmptyResponse
	}
	if !proposed.Done && strings.TrimSpace(proposed.Clause) == "" && strings.TrimSpace(proposed.Subquery) == "" {
		return fmt.Errorf("%w: proposal has neither clause nor subquery", ai.ErrMalformedResponse)
	}
	return nil
}

func repeats(clause string, accepted []string) bool {
	if strings.TrimSpace(clause) == "" {
		return false
	}
	norm := core.NormalizeText(clause)
	for _, a := range accepted {
		if core.NormalizeText(a) == norm {
			return true
		}
	}
	return false
}
