// Package planner proposes the next clause of an answer and the retrieval
// query used to find evidence for it.
//
// Two strategies implement Planner: ModelPlanner asks a language model and
// falls back to a deterministic proposal when the model misbehaves;
// HeuristicPlanner decomposes the query into subquestions without a model.
package planner

import (
	"context"

	"github.com/poiesic/attestor/core"
)

// ErrPlannerFailure wraps model errors that forced a fallback proposal.
var ErrPlannerFailure = core.ErrPlannerFailure

// Input is the planning state for one step of a query run.
type Input struct {
	Query    string
	Accepted []string // accepted clause texts, in order
	Gaps     []string // abandoned clause texts, in order

	// Revising is the clause that just failed verification; empty when a
	// fresh clause is wanted.
	Revising string
	// Revision counts failed attempts on the clause being revised.
	Revision int
}

// Proposal is a planner's answer.
type Proposal struct {
	// ClauseText is the statement to verify. Empty means the controller
	// drafts it from the best evidence found for Subquery.
	ClauseText string
	Subquery   string
	Done       bool

	// Fallback marks a deterministic proposal issued after a planner failure.
	Fallback bool
	// BudgetExhausted means this is the last attempt for the clause: if it
	// fails verification it is abandoned without further revisions.
	BudgetExhausted bool
}

// Planner proposes clauses. Implementations must be safe for concurrent use
// and must not keep state across calls; everything they need is in Input.
type Planner interface {
	Plan(ctx context.Context, in Input) (Proposal, error)
}

// Fallback is the deterministic proposal used when a planner cannot produce
// one: the original query verbatim, with no further budget.
func Fallback(in Input) Proposal {
	return Proposal{Subquery: in.Query, Fallback: true, BudgetExhausted: true}
}
