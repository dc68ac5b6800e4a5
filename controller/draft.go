package controller

import (
	"strings"

	"github.com/poiesic/attestor/analysis"
	"github.com/poiesic/attestor/core"
)

// DefaultDraftCoverage is the share of subquery terms a passage must cover
// before its text is drafted as a clause.
const DefaultDraftCoverage = 0.5

// draftClause builds an extractive clause: the text of the best-scoring
// candidate that covers enough of the subquery. When nothing does, the
// subquery itself is verified, which fails unless the corpus states it.
func draftClause(subquery string, candidates []*core.Candidate, coverage float64) string {
	for _, c := range candidates {
		if c == nil || c.Unit == nil {
			continue
		}
		text := strings.TrimSpace(c.Unit.Text)
		if text == "" {
			continue
		}
		if analysis.Overlap(subquery, text) >= coverage {
			return text
		}
	}
	return strings.TrimSpace(subquery)
}
