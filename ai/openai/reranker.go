package openai

import (
	"context"
	"fmt"

	"github.com/poiesic/attestor/ai"
)

// Reranker implements ai.Reranker with a chat model.
type Reranker struct {
	chat *chatClient
}

var _ ai.Reranker = (*Reranker)(nil)

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// NewReranker creates a new reranker using the provided configuration.
//
// Returns ai.Reranker interface to enforce abstraction.
func NewReranker(config *ai.Config) (ai.Reranker, error) {
	chat, err := newChatClient(config)
	if err != nil {
		return nil, err
	}
	return &Reranker{chat: chat.with("openai-reranker")}, nil
}

// Rerank asks the model for one relevance score per passage.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	var resp rerankResponse
	prompt := fmt.Sprintf(rerankUserTemplate, query, numberedPassages(passages))
	if err := r.chat.generateJSON(ctx, rerankSystemPrompt, prompt, &resp); err != nil {
		return nil, err
	}
	if len(resp.Scores) != len(passages) {
		return nil, fmt.Errorf("%w: %d scores for %d passages", ai.ErrResultMismatch, len(resp.Scores), len(passages))
	}

	scores := make([]float64, len(resp.Scores))
	for i, s := range resp.Scores {
		scores[i] = ai.ClampScore(s)
	}
	r.chat.logger.Debug("reranked passages", "count", len(scores))
	return scores, nil
}
