package openai

import (
	"context"
	"fmt"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/core"
)

// EntailmentJudge implements ai.EntailmentJudge with a chat model.
type EntailmentJudge struct {
	chat *chatClient
}

var _ ai.EntailmentJudge = (*EntailmentJudge)(nil)

type judgment struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type judgeResponse struct {
	Judgments []judgment `json:"judgments"`
}

// NewEntailmentJudge creates a new entailment judge using the provided configuration.
//
// Returns ai.EntailmentJudge interface to enforce abstraction.
func NewEntailmentJudge(config *ai.Config) (ai.EntailmentJudge, error) {
	chat, err := newChatClient(config)
	if err != nil {
		return nil, err
	}
	return &EntailmentJudge{chat: chat.with("openai-judge")}, nil
}

// Judge asks the model to label each passage against the clause.
// Unknown labels are treated as neutral.
func (j *EntailmentJudge) Judge(ctx context.Context, clause string, passages []string) ([]core.Entailment, error) {
	if len(passages) == 0 {
		return []core.Entailment{}, nil
	}

	var resp judgeResponse
	prompt := fmt.Sprintf(judgeUserTemplate, clause, numberedPassages(passages))
	if err := j.chat.generateJSON(ctx, judgeSystemPrompt, prompt, &resp); err != nil {
		return nil, err
	}
	if len(resp.Judgments) != len(passages) {
		return nil, fmt.Errorf("%w: %d judgments for %d passages", ai.ErrResultMismatch, len(resp.Judgments), len(passages))
	}

	out := make([]core.Entailment, len(resp.Judgments))
	for i, jd := range resp.Judgments {
		label, err := ai.ParseEntailmentLabel(jd.Label)
		if err != nil {
			j.chat.logger.Warn("treating unknown label as neutral", "label", jd.Label)
			label = core.EntailmentNeutral
		}
		out[i] = core.Entailment{Label: label, Confidence: ai.ClampScore(jd.Confidence)}
	}
	return out, nil
}
