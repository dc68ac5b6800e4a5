package local

import (
	"context"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/analysis"
)

// OverlapReranker scores passages by the Dice coefficient of their term sets
// with the query.
type OverlapReranker struct{}

var _ ai.Reranker = OverlapReranker{}

// Rerank returns one score in [0,1] per passage.
func (OverlapReranker) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make([]float64, len(passages))
	for i, p := range passages {
		scores[i] = Dice(query, p)
	}
	return scores, nil
}

// Dice returns 2|A∩B| / (|A|+|B|) over the index terms of a and b.
func Dice(a, b string) float64 {
	termsA := analysis.UniqueTerms(a)
	termsB := analysis.UniqueTerms(b)
	if len(termsA) == 0 || len(termsB) == 0 {
		return 0
	}
	inB := make(map[string]bool, len(termsB))
	for _, t := range termsB {
		inB[t] = true
	}
	shared := 0
	for _, t := range termsA {
		if inB[t] {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(termsA)+len(termsB))
}
