package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/poiesic/attestor/ai/local"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/planner"
	"github.com/poiesic/attestor/search"
	"github.com/poiesic/attestor/storage"
	"github.com/poiesic/attestor/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testScope core.Scope = "tenant"

const refundText = "Refunds are processed within 30 days."

// fakeRetriever serves fixed results and records the subqueries it saw.
type fakeRetriever struct {
	retrieveFunc func(ctx context.Context, query string) (*search.Result, error)
	queries      []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, scope core.Scope, query string) (*search.Result, error) {
	f.queries = append(f.queries, query)
	if f.retrieveFunc != nil {
		return f.retrieveFunc(ctx, query)
	}
	return &search.Result{}, nil
}

// fakePlanner delegates to planFunc.
type fakePlanner struct {
	planFunc func(ctx context.Context, in planner.Input) (planner.Proposal, error)
}

func (f *fakePlanner) Plan(ctx context.Context, in planner.Input) (planner.Proposal, error) {
	return f.planFunc(ctx, in)
}

type flakyVerifier struct {
	next     Verifier
	failures atomic.Int32
}

func (f *flakyVerifier) VerifyAnswer(ctx context.Context, question, clause string, candidates []*core.Candidate) (*verify.Verdict, error) {
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return nil, errors.New("judge unavailable")
	}
	return f.next.VerifyAnswer(ctx, question, clause, candidates)
}

type recordingRecorder struct {
	runs []*core.QueryRun
	err  error
}

func (r *recordingRecorder) Record(ctx context.Context, run *core.QueryRun) error {
	if r.err != nil {
		return r.err
	}
	r.runs = append(r.runs, run)
	return nil
}

func candidate(position int, text string, score float64) *core.Candidate {
	return &core.Candidate{
		Unit: &core.EvidenceUnit{
			ID:         core.UnitID(testScope, "policy.txt", position),
			Scope:      testScope,
			DocumentID: "policy.txt",
			Position:   position,
			Text:       text,
		},
		Lanes:      []core.Lane{core.LaneLexical},
		LaneScores: map[core.Lane]float64{core.LaneLexical: score},
		Score:      score,
	}
}

func serve(candidates ...*core.Candidate) *fakeRetriever {
	return &fakeRetriever{
		retrieveFunc: func(ctx context.Context, query string) (*search.Result, error) {
			return &search.Result{Candidates: candidates}, nil
		},
	}
}

func newVerifier(t *testing.T) *verify.Verifier {
	t.Helper()
	v, err := verify.NewVerifier(local.OverlapReranker{}, local.LexicalJudge{})
	require.NoError(t, err)
	return v
}

// reasonOnly routes every query to the reasoning path.
var reasonOnly = WithRouter(Router{FastPathMaxTerms: 0})

func newController(t *testing.T, p planner.Planner, r Retriever, v Verifier, opts ...Option) (*Controller, *recordingRecorder) {
	t.Helper()
	rec := &recordingRecorder{}
	c, err := New(p, r, v, rec, opts...)
	require.NoError(t, err)
	return c, rec
}

func TestNew(t *testing.T) {
	p := planner.NewHeuristicPlanner()
	r := &fakeRetriever{}
	v := newVerifier(t)
	rec := &recordingRecorder{}

	_, err := New(nil, r, v, rec)
	assert.ErrorIs(t, err, ErrPlannerRequired)
	_, err = New(p, nil, v, rec)
	assert.ErrorIs(t, err, ErrRetrieverRequired)
	_, err = New(p, r, nil, rec)
	assert.ErrorIs(t, err, ErrVerifierRequired)
	_, err = New(p, r, v, nil)
	assert.ErrorIs(t, err, ErrRecorderRequired)

	invalid := []Option{
		WithMaxRevisions(-1),
		WithMaxClauses(0),
		WithMinSupport(0),
		WithAcceptanceThreshold(0),
		WithAcceptanceThreshold(1.5),
		WithDraftCoverage(-0.1),
		WithRouter(Router{FastPathMaxTerms: -1}),
	}
	for i, opt := range invalid {
		_, err := New(p, r, v, rec, opt)
		assert.ErrorIs(t, err, ErrInvalidConfig, "option %d", i)
	}

	c, err := New(p, r, v, rec, WithLogger(nil), WithMaxClauses(2), WithMaxRevisions(1))
	require.NoError(t, err)
	assert.Equal(t, 4, c.MaxIterations())
}

func TestAnswer_FastPath(t *testing.T) {
	retriever := serve(
		candidate(0, refundText, 0.8),
		candidate(1, "Shipping takes 5 business days.", 0.3),
	)
	c, rec := newController(t, planner.NewHeuristicPlanner(), retriever, newVerifier(t))

	run, err := c.Answer(context.Background(), testScope, "What is the refund window?")
	require.NoError(t, err)

	assert.Equal(t, core.RouteFast, run.Route)
	assert.Equal(t, 1, run.IterationsUsed)
	assert.Equal(t, core.RunComplete, run.Status)
	assert.Empty(t, run.Gaps)
	require.Len(t, run.Clauses, 1)

	clause := run.Clauses[0]
	assert.Equal(t, core.ClauseAccepted, clause.Status)
	assert.Equal(t, refundText, clause.Text)
	require.NotEmpty(t, clause.Supports)
	assert.Equal(t, core.UnitID(testScope, "policy.txt", 0), clause.Supports[0].EvidenceID)
	assert.GreaterOrEqual(t, clause.Supports[0].CompositeScore, 0.6)
	assert.GreaterOrEqual(t, clause.Confidence, 0.6)

	require.Len(t, rec.runs, 1)
	assert.Same(t, run, rec.runs[0])
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestAnswer_AbsentEvidenceIsAbandoned(t *testing.T) {
	retriever := serve(candidate(0, refundText, 0.5))
	c, rec := newController(t, planner.NewHeuristicPlanner(), retriever, newVerifier(t), reasonOnly)

	run, err := c.Answer(context.Background(), testScope, "What is the favorite color of the founder?")
	require.NoError(t, err)

	assert.Equal(t, core.RouteReason, run.Route)
	assert.Equal(t, DefaultMaxRevisions+1, run.IterationsUsed)
	assert.Equal(t, core.RunPartial, run.Status)
	require.Len(t, run.Clauses, 1)
	assert.Equal(t, core.ClauseAbandoned, run.Clauses[0].Status)
	assert.Equal(t, DefaultMaxRevisions, run.Clauses[0].RevisionCount)
	require.Len(t, run.Gaps, 1)
	assert.Equal(t, run.Clauses[0].ID, run.Gaps[0].ClauseID)
	assert.Equal(t, core.ErrVerificationInconclusive.Error(), run.Gaps[0].Reason)

	assert.Equal(t, []string{
		"What is the favorite color of the founder?",
		"favorite color founder",
		"favorite founder",
		"favorite",
	}, retriever.queries, "each revision broadens the subquery")
	assert.Len(t, rec.runs, 1, "partial runs are recorded")
}

func TestAnswer_MultiAspect(t *testing.T) {
	retriever := &fakeRetriever{
		retrieveFunc: func(ctx context.Context, query string) (*search.Result, error) {
			return &search.Result{Candidates: []*core.Candidate{
				candidate(0, refundText, 0.7),
				candidate(1, "Shipping takes 5 business days.", 0.6),
			}}, nil
		},
	}
	c, _ := newController(t, planner.NewHeuristicPlanner(), retriever, newVerifier(t))

	run, err := c.Answer(context.Background(), testScope, "What is the refund window and how long does shipping take?")
	require.NoError(t, err)

	assert.Equal(t, core.RouteReason, run.Route)
	assert.Equal(t, core.RunComplete, run.Status)
	assert.Equal(t, 2, run.IterationsUsed)
	require.Len(t, run.Accepted(), 2)
	assert.Equal(t, refundText, run.Clauses[0].Text)
	assert.Equal(t, "Shipping takes 5 business days.", run.Clauses[1].Text)
	assert.NotEqual(t, run.Clauses[0].ID, run.Clauses[1].ID)
}

func TestAnswer_TerminatesWithoutPlannerDone(t *testing.T) {
	p := &fakePlanner{planFunc: func(ctx context.Context, in planner.Input) (planner.Proposal, error) {
		return planner.Proposal{ClauseText: "The moon is made of cheese.", Subquery: "moon"}, nil
	}}
	retriever := serve(candidate(0, refundText, 0.9))
	c, _ := newController(t, p, retriever, newVerifier(t), reasonOnly)

	run, err := c.Answer(context.Background(), testScope, "Tell me about the moon")
	require.NoError(t, err)

	assert.Equal(t, c.MaxIterations(), run.IterationsUsed)
	assert.Len(t, run.Clauses, DefaultMaxClauses)
	assert.Len(t, run.Gaps, DefaultMaxClauses)
}

func TestAnswer_DuplicateClausesCollapse(t *testing.T) {
	p := &fakePlanner{planFunc: func(ctx context.Context, in planner.Input) (planner.Proposal, error) {
		return planner.Proposal{Subquery: "refund"}, nil
	}}
	retriever := serve(candidate(0, refundText, 0.9))
	c, _ := newController(t, p, retriever, newVerifier(t), reasonOnly)

	run, err := c.Answer(context.Background(), testScope, "refund")
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxClauses, run.IterationsUsed)
	require.Len(t, run.Clauses, 1)
	assert.Equal(t, core.RunComplete, run.Status)
}

func TestAnswer_DraftedClauseScoredAgainstSubquery(t *testing.T) {
	giftText := "Refunds are not available for gift cards."
	retriever := serve(
		candidate(0, giftText, 0.9),
		candidate(1, refundText, 0.8),
	)
	c, _ := newController(t, planner.NewHeuristicPlanner(), retriever, newVerifier(t))

	run, err := c.Answer(context.Background(), testScope, "What is the refund window?")
	require.NoError(t, err)

	require.Len(t, run.Clauses, 1)
	clause := run.Clauses[0]
	assert.Equal(t, giftText, clause.Text)
	require.Len(t, clause.Supports, 1)
	assert.InDelta(t, local.Dice("What is the refund window?", giftText), clause.Supports[0].Scores.Rerank, 1e-9)
	assert.InDelta(t, (0.9+1.0/3+1)/3, clause.Supports[0].CompositeScore, 1e-9)
	assert.Less(t, clause.Confidence, 0.8, "a drafted clause does not rerank against itself")
}

func TestAnswer_ContradictionBlocksAcceptance(t *testing.T) {
	p := &fakePlanner{planFunc: func(ctx context.Context, in planner.Input) (planner.Proposal, error) {
		if len(in.Accepted)+len(in.Gaps) > 0 {
			return planner.Proposal{Done: true}, nil
		}
		return planner.Proposal{ClauseText: refundText, Subquery: "refund window"}, nil
	}}
	retriever := serve(
		candidate(0, refundText, 0.9),
		candidate(1, "Refunds are not processed within 30 days.", 0.8),
	)
	c, _ := newController(t, p, retriever, newVerifier(t))

	run, err := c.Answer(context.Background(), testScope, "What is the refund window?")
	require.NoError(t, err)

	require.Len(t, run.Clauses, 1)
	clause := run.Clauses[0]
	assert.Equal(t, core.ClauseAbandoned, clause.Status)
	assert.Len(t, clause.Supports, 1, "partial evidence is kept")
	assert.Len(t, clause.Contradictions, 1)
	require.Len(t, run.Gaps, 1)
	assert.Equal(t, "contradicted by 1 passage(s)", run.Gaps[0].Reason)
	assert.Equal(t, 1, run.IterationsUsed, "fast path verifies once")
}

func TestAnswer_VerifierFailureRevises(t *testing.T) {
	v := &flakyVerifier{next: newVerifier(t)}
	v.failures.Store(1)
	retriever := serve(candidate(0, refundText, 0.8))
	c, _ := newController(t, planner.NewHeuristicPlanner(), retriever, v, reasonOnly)

	run, err := c.Answer(context.Background(), testScope, "What is the refund window?")
	require.NoError(t, err)

	require.Len(t, run.Clauses, 1)
	assert.Equal(t, core.ClauseAccepted, run.Clauses[0].Status)
	assert.Equal(t, 1, run.Clauses[0].RevisionCount)
	assert.Equal(t, 2, run.IterationsUsed)
}

func TestAnswer_PlannerFailureFallsBack(t *testing.T) {
	p := &fakePlanner{planFunc: func(ctx context.Context, in planner.Input) (planner.Proposal, error) {
		return planner.Proposal{}, errors.New("model offline")
	}}
	retriever := &fakeRetriever{}
	c, _ := newController(t, p, retriever, newVerifier(t), reasonOnly, WithMaxClauses(2))

	run, err := c.Answer(context.Background(), testScope, "What is the refund window?")
	require.NoError(t, err)

	assert.Equal(t, 2, run.IterationsUsed, "fallback proposals get no revisions")
	assert.Len(t, run.Gaps, 2)
	assert.Equal(t, []string{"What is the refund window?", "What is the refund window?"}, retriever.queries)
}

func TestAnswer_DegradedRetrieval(t *testing.T) {
	retriever := &fakeRetriever{
		retrieveFunc: func(ctx context.Context, query string) (*search.Result, error) {
			return &search.Result{
				Candidates: []*core.Candidate{candidate(0, refundText, 0.8)},
				Degraded:   []*search.LaneFailure{{Lane: core.LaneVector, Err: context.DeadlineExceeded}},
			}, nil
		},
	}
	c, _ := newController(t, planner.NewHeuristicPlanner(), retriever, newVerifier(t))

	run, err := c.Answer(context.Background(), testScope, "What is the refund window?")
	require.NoError(t, err)
	assert.Equal(t, core.RunComplete, run.Status)
}

func TestAnswer_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthorized", func(t *testing.T) {
		c, rec := newController(t, planner.NewHeuristicPlanner(), &fakeRetriever{}, newVerifier(t))
		_, err := c.Answer(ctx, "", "What is the refund window?")
		assert.ErrorIs(t, err, storage.ErrUnauthorized)
		assert.Empty(t, rec.runs)
	})

	t.Run("empty query", func(t *testing.T) {
		c, _ := newController(t, planner.NewHeuristicPlanner(), &fakeRetriever{}, newVerifier(t))
		_, err := c.Answer(ctx, testScope, "  ")
		assert.ErrorIs(t, err, core.ErrEmptyQuery)
	})

	t.Run("total retrieval failure", func(t *testing.T) {
		retriever := &fakeRetriever{
			retrieveFunc: func(ctx context.Context, query string) (*search.Result, error) {
				return nil, fmt.Errorf("%w: both lanes down", search.ErrRetrievalTotalFailure)
			},
		}
		c, rec := newController(t, planner.NewHeuristicPlanner(), retriever, newVerifier(t))
		_, err := c.Answer(ctx, testScope, "What is the refund window?")
		assert.ErrorIs(t, err, search.ErrRetrievalTotalFailure)
		assert.True(t, search.IsRetryable(err))
		assert.Empty(t, rec.runs)
	})

	t.Run("cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()
		retriever := &fakeRetriever{
			retrieveFunc: func(ctx context.Context, query string) (*search.Result, error) {
				cancel()
				return nil, ctx.Err()
			},
		}
		c, rec := newController(t, planner.NewHeuristicPlanner(), retriever, newVerifier(t))
		_, err := c.Answer(cctx, testScope, "What is the refund window?")
		assert.ErrorIs(t, err, ErrQueryAborted)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, rec.runs, "aborted runs are not recorded")
	})

	t.Run("record failure", func(t *testing.T) {
		rec := &recordingRecorder{err: storage.ErrStorageClosed}
		c, err := New(planner.NewHeuristicPlanner(), serve(candidate(0, refundText, 0.8)), newVerifier(t), rec)
		require.NoError(t, err)
		_, err = c.Answer(ctx, testScope, "What is the refund window?")
		assert.ErrorIs(t, err, storage.ErrStorageClosed)
	})
}
