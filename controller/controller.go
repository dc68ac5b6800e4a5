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


package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/poiesic/attestor/citation"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/planner"
	"github.com/poiesic/attestor/search"
	"github.com/poiesic/attestor/storage"
	"github.com/poiesic/attestor/telemetry"
	"github.com/poiesic/attestor/verify"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxRevisions is how often a failing clause is revised before it
	// is abandoned.
	DefaultMaxRevisions = 3
	// DefaultMaxClauses caps the clauses of one run.
	DefaultMaxClauses = 6
	// DefaultMinSupport is the number of qualifying supports the reasoning
	// path requires per clause.
	DefaultMinSupport = 1
)

// Retriever finds candidate evidence for a subquery.
type Retriever interface {
	Retrieve(ctx context.Context, scope core.Scope, query string) (*search.Result, error)
}

// Verifier scores a clause against candidate evidence. Relevance is scored
// against question.
type Verifier interface {
	VerifyAnswer(ctx context.Context, question, clause string, candidates []*core.Candidate) (*verify.Verdict, error)
}

// Recorder persists a finished run together with its citations.
type Recorder interface {
	Record(ctx context.Context, run *core.QueryRun) error
}

var (
	_ Retriever = (*search.Retriever)(nil)
	_ Verifier  = (*verify.Verifier)(nil)
	_ Recorder  = (*citation.Assembler)(nil)
)

// Controller answers queries with clauses that are each backed by verified
// evidence.
type Controller struct {
	planner   planner.Planner
	retriever Retriever
	verifier  Verifier
	recorder  Recorder
	router    Router

	maxRevisions  int
	maxClauses    int
	minSupport    int
	threshold     float64
	draftCoverage float64

	logger *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithRouter replaces the default router.
func WithRouter(r Router) Option {
	return func(c *Controller) error {
		if r.FastPathMaxTerms < 0 {
			return fmt.Errorf("%w: fast path term limit cannot be negative", ErrInvalidConfig)
		}
		c.router = r
		return nil
	}
}

// WithMaxRevisions sets the revision budget per clause.
// Zero means a clause gets exactly one verification pass.
func WithMaxRevisions(n int) Option {
	return func(c *Controller) error {
		if n < 0 {
			return fmt.Errorf("%w: max revisions cannot be negative", ErrInvalidConfig)
		}
		c.maxRevisions = n
		return nil
	}
}

// WithMaxClauses sets the clause cap per run.
func WithMaxClauses(n int) Option {
	return func(c *Controller) error {
		if n < 1 {
			return fmt.Errorf("%w: max clauses must be positive", ErrInvalidConfig)
		}
		c.maxClauses = n
		return nil
	}
}

// WithMinSupport sets the qualifying supports required on the reasoning path.
func WithMinSupport(n int) Option {
	return func(c *Controller) error {
		if n < 1 {
			return fmt.Errorf("%w: min support must be positive", ErrInvalidConfig)
		}
		c.minSupport = n
		return nil
	}
}

// WithAcceptanceThreshold sets the composite score a support must reach.
func WithAcceptanceThreshold(threshold float64) Option {
	return func(c *Controller) error {
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("%w: acceptance threshold must be within (0,1]", ErrInvalidConfig)
		}
		c.threshold = threshold
		return nil
	}
}

// WithDraftCoverage sets the subquery coverage a passage needs to be drafted
// as an extractive clause.
func WithDraftCoverage(coverage float64) Option {
	return func(c *Controller) error {
		if coverage < 0 || coverage > 1 {
			return fmt.Errorf("%w: draft coverage must be within [0,1]", ErrInvalidConfig)
		}
		c.draftCoverage = coverage
		return nil
	}
}

// New creates a controller.
func New(p planner.Planner, retriever Retriever, verifier Verifier, recorder Recorder, opts ...Option) (*Controller, error) {
	if p == nil {
		return nil, ErrPlannerRequired
	}
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if verifier == nil {
		return nil, ErrVerifierRequired
	}
	if recorder == nil {
		return nil, ErrRecorderRequired
	}

	c := &Controller{
		planner:       p,
		retriever:     retriever,
		verifier:      verifier,
		recorder:      recorder,
		router:        NewRouter(),
		maxRevisions:  DefaultMaxRevisions,
		maxClauses:    DefaultMaxClauses,
		minSupport:    DefaultMinSupport,
		threshold:     verify.DefaultAcceptanceThreshold,
		draftCoverage: DefaultDraftCoverage,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "controller")
	return c, nil
}

// MaxIterations is the most verification calls one run can make.
func (c *Controller) MaxIterations() int {
	return c.maxClauses * (c.maxRevisions + 1)
}

// Answer runs query against the evidence visible to scope and records the
// finished run. Abandoned clauses appear as gaps rather than errors.
func (c *Controller) Answer(ctx context.Context, scope core.Scope, query string) (run *core.QueryRun, err error) {
	if err := core.ValidateQuery(scope, query); err != nil {
		if errors.Is(err, core.ErrEmptyScope) {
			return nil, fmt.Errorf("%w: %w", storage.ErrUnauthorized, err)
		}
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, "controller.Answer")
	defer func() { telemetry.End(span, err) }()

	started := time.Now()
	run = &core.QueryRun{
		ID:        runID(scope, query, started),
		Query:     query,
		Scope:     scope,
		Route:     c.router.Classify(query),
		StartedAt: started,
	}
	logger := c.logger.With("run", run.ID, "route", run.Route)
	span.SetAttributes(
		attribute.String("run.id", run.ID.String()),
		attribute.String("run.route", run.Route.String()),
	)
	c.transition(ctx, logger, 0, StateInit)

	if run.Route == core.RouteFast {
		err = c.fastPath(ctx, run, logger)
	} else {
		err = c.reasonPath(ctx, run, logger)
	}
	if err != nil {
		return nil, c.abortOr(ctx, err)
	}

	run.Status = core.RunPartial
	if len(run.Gaps) == 0 && len(run.Clauses) > 0 {
		run.Status = core.RunComplete
	}
	run.FinishedAt = time.Now()
	c.transition(ctx, logger, len(run.Clauses), StateDone)

	if err := ctx.Err(); err != nil {
		return nil, c.abortOr(ctx, err)
	}
	if err := c.recorder.Record(ctx, run); err != nil {
		return nil, c.abortOr(ctx, fmt.Errorf("record run: %w", err))
	}

	span.SetAttributes(
		attribute.Int("run.iterations", run.IterationsUsed),
		attribute.Int("run.clauses", len(run.Clauses)),
		attribute.Int("run.gaps", len(run.Gaps)),
	)
	logger.Info("query answered",
		"status", run.Status,
		"clauses", len(run.Clauses),
		"gaps", len(run.Gaps),
		"iterations", run.IterationsUsed,
		"elapsed", run.FinishedAt.Sub(started))
	return run, nil
}

// fastPath resolves a single clause with one verification pass.
func (c *Controller) fastPath(ctx context.Context, run *core.QueryRun, logger *slog.Logger) error {
	in := planner.Input{Query: run.Query}
	c.transition(ctx, logger, 0, StatePlanning)
	proposal, err := c.plan(ctx, in, logger)
	if err != nil {
		return err
	}
	if proposal.Done {
		proposal = planner.Proposal{Subquery: run.Query}
	}

	clause, err := c.resolveClause(ctx, run, 0, proposal, in, 0, 1, logger)
	if err != nil {
		return err
	}
	c.addClause(run, clause, logger)
	return nil
}

// reasonPath plans clause after clause until the planner is done or the
// clause cap is reached.
func (c *Controller) reasonPath(ctx context.Context, run *core.QueryRun, logger *slog.Logger) error {
	var accepted, gaps []string
	for slot := 0; slot < c.maxClauses; slot++ {
		in := planner.Input{Query: run.Query, Accepted: accepted, Gaps: gaps}
		c.transition(ctx, logger, slot, StatePlanning)
		proposal, err := c.plan(ctx, in, logger)
		if err != nil {
			return err
		}
		if proposal.Done {
			break
		}

		clause, err := c.resolveClause(ctx, run, slot, proposal, in, c.maxRevisions, c.minSupport, logger)
		if err != nil {
			return err
		}
		if clause.Status == core.ClauseAccepted {
			accepted = append(accepted, clause.Text)
		} else {
			gaps = append(gaps, clause.Text)
		}
		c.addClause(run, clause, logger)
	}
	return nil
}

// resolveClause drives one clause slot until it is accepted or abandoned.
// Each pass costs one iteration.
func (c *Controller) resolveClause(
	ctx context.Context,
	run *core.QueryRun,
	slot int,
	proposal planner.Proposal,
	in planner.Input,
	maxRevisions int,
	minSupport int,
	logger *slog.Logger,
) (core.Clause, error) {
	clause := core.Clause{
		ID:     clauseID(run.ID, slot),
		Status: core.ClauseProposed,
	}

	for {
		c.transition(ctx, logger, slot, StateRetrieving)
		result, err := c.retriever.Retrieve(ctx, run.Scope, proposal.Subquery)
		if err != nil {
			return clause, err
		}
		for _, f := range result.Degraded {
			logger.Warn("retrieval degraded", "slot", slot, "lane", f.Lane, "err", f.Err)
		}

		text, question := proposal.ClauseText, proposal.ClauseText
		if text == "" {
			text = draftClause(proposal.Subquery, result.Candidates, c.draftCoverage)
			question = proposal.Subquery
		}
		clause.Text = text
		clause.Subquery = proposal.Subquery

		c.transition(ctx, logger, slot, StateVerifying)
		run.IterationsUsed++
		verdict, err := c.verifier.VerifyAnswer(ctx, question, text, result.Candidates)
		if err != nil {
			if ctx.Err() != nil {
				return clause, err
			}
			logger.Warn("verification failed", "slot", slot, "err", err)
			verdict = nil
		}

		if verdict.Acceptable(c.threshold, minSupport) {
			clause.Status = core.ClauseAccepted
			clause.Confidence = verdict.Confidence(c.threshold)
			clause.Supports = verdict.Qualifying(c.threshold)
			clause.Contradictions = nil
			c.transition(ctx, logger, slot, StateAccepted)
			return clause, nil
		}

		clause.Supports, clause.Contradictions = nil, nil
		if verdict != nil {
			clause.Supports = verdict.Supports
			clause.Contradictions = verdict.Contradictions
		}
		if proposal.BudgetExhausted || clause.RevisionCount >= maxRevisions {
			clause.Status = core.ClauseAbandoned
			c.transition(ctx, logger, slot, StateAbandoned)
			return clause, nil
		}

		clause.RevisionCount++
		clause.Status = core.ClauseRevising
		c.transition(ctx, logger, slot, StateRevise)

		in.Revising = text
		in.Revision = clause.RevisionCount
		c.transition(ctx, logger, slot, StatePlanning)
		proposal, err = c.plan(ctx, in, logger)
		if err != nil {
			return clause, err
		}
		if proposal.Done {
			clause.Status = core.ClauseAbandoned
			c.transition(ctx, logger, slot, StateAbandoned)
			return clause, nil
		}
	}
}

// plan asks the planner for a proposal. Planner failures other than
// cancellation turn into the fallback proposal.
func (c *Controller) plan(ctx context.Context, in planner.Input, logger *slog.Logger) (planner.Proposal, error) {
	proposal, err := c.planner.Plan(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return planner.Proposal{}, err
		}
		logger.Warn("planner failed, using fallback", "err", err)
		return planner.Fallback(in), nil
	}
	if !proposal.Done && proposal.Subquery == "" {
		proposal.Subquery = proposal.ClauseText
		if proposal.Subquery == "" {
			proposal.Subquery = in.Query
		}
	}
	return proposal, nil
}

// addClause appends a resolved clause to the run. An accepted clause that
// repeats an earlier accepted one is dropped.
func (c *Controller) addClause(run *core.QueryRun, clause core.Clause, logger *slog.Logger) {
	if clause.Status == core.ClauseAccepted {
		norm := core.NormalizeText(clause.Text)
		for _, prior := range run.Accepted() {
			if core.NormalizeText(prior.Text) == norm {
				logger.Debug("dropping duplicate clause", "clause", clause.ID)
				return
			}
		}
		run.Clauses = append(run.Clauses, clause)
		return
	}

	run.Clauses = append(run.Clauses, clause)
	run.Gaps = append(run.Gaps, core.Gap{
		ClauseID: clause.ID,
		Text:     clause.Text,
		Reason:   gapReason(clause),
	})
}

func gapReason(clause core.Clause) string {
	switch {
	case len(clause.Contradictions) > 0:
		return fmt.Sprintf("contradicted by %d passage(s)", len(clause.Contradictions))
	case len(clause.Supports) > 0:
		return "supporting evidence below the acceptance threshold"
	default:
		return core.ErrVerificationInconclusive.Error()
	}
}

// abortOr maps any failure of a cancelled run to ErrQueryAborted.
func (c *Controller) abortOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		c.logger.Info("query aborted", "err", ctxErr)
		return fmt.Errorf("%w: %w", ErrQueryAborted, ctxErr)
	}
	return err
}

func (c *Controller) transition(ctx context.Context, logger *slog.Logger, slot int, to State) {
	trace.SpanFromContext(ctx).AddEvent(to.String(), trace.WithAttributes(attribute.Int("clause.slot", slot)))
	logger.Debug("state transition", "slot", slot, "state", to)
}

func runID(scope core.Scope, query string, started time.Time) core.ID {
	return core.IDFromContent(string(scope) + "\x1f" + query + "\x1f" + strconv.FormatInt(started.UnixNano(), 10))
}

func clauseID(run core.ID, slot int) core.ID {
	return core.IDFromContent(run.String() + "/" + strconv.Itoa(slot))
}
