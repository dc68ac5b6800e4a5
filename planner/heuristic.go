package planner

import (
	"context"
)

// HeuristicPlanner proposes one extractive clause per subquestion of the
// query and reformulates the subquery on revision. It never calls a model.
type HeuristicPlanner struct{}

var _ Planner = HeuristicPlanner{}

// NewHeuristicPlanner creates a heuristic planner.
func NewHeuristicPlanner() HeuristicPlanner {
	return HeuristicPlanner{}
}

// Plan proposes the subquestion for the next unresolved slot. Slots resolve
// in order, so the slot index is the number of accepted clauses plus gaps.
func (HeuristicPlanner) Plan(ctx context.Context, in Input) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, err
	}

	subs := Decompose(in.Query)
	slot := len(in.Accepted) + len(in.Gaps)
	if slot >= len(subs) {
		return Proposal{Done: true}, nil
	}

	sub := subs[slot]
	if in.Revising != "" {
		return Proposal{Subquery: Reformulate(sub, in.Revision)}, nil
	}
	return Proposal{Subquery: sub}, nil
}
