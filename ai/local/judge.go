package local

import (
	"context"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/analysis"
	"github.com/poiesic/attestor/core"
)

// MinCoverage is the share of clause terms a passage must contain before the
// judge considers it related at all.
const MinCoverage = 0.5

// LexicalJudge labels passages by how much of the clause they cover.
// A related passage contradicts the clause when its negation polarity differs
// or when it states different numbers.
type LexicalJudge struct{}

var _ ai.EntailmentJudge = LexicalJudge{}

// Judge returns one entailment per passage.
func (LexicalJudge) Judge(ctx context.Context, clause string, passages []string) ([]core.Entailment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]core.Entailment, len(passages))
	for i, p := range passages {
		out[i] = judge(clause, p)
	}
	return out, nil
}

func judge(clause, passage string) core.Entailment {
	coverage := analysis.Overlap(clause, passage)
	if coverage < MinCoverage {
		return core.Entailment{Label: core.EntailmentNeutral, Confidence: 1 - coverage}
	}
	if analysis.Negated(clause) != analysis.Negated(passage) || conflictingNumbers(clause, passage) {
		return core.Entailment{Label: core.EntailmentContradict, Confidence: coverage}
	}
	return core.Entailment{Label: core.EntailmentSupport, Confidence: coverage}
}

// conflictingNumbers reports whether both texts state numbers and the clause
// states one the passage does not.
func conflictingNumbers(clause, passage string) bool {
	clauseNums := analysis.Numbers(clause)
	passageNums := analysis.Numbers(passage)
	if len(clauseNums) == 0 || len(passageNums) == 0 {
		return false
	}
	have := make(map[string]bool, len(passageNums))
	for _, n := range passageNums {
		have[n] = true
	}
	for _, n := range clauseNums {
		if !have[n] {
			return true
		}
	}
	return false
}
