package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/attestor/ai"
)

// ClauseProposer implements ai.ClauseProposer with a chat model.
type ClauseProposer struct {
	chat *chatClient
}

var _ ai.ClauseProposer = (*ClauseProposer)(nil)

type proposalResponse struct {
	Clause   string `json:"clause"`
	Subquery string `json:"subquery"`
	Done     bool   `json:"done"`
}

// NewClauseProposer creates a new clause proposer using the provided configuration.
//
// Returns ai.ClauseProposer interface to enforce abstraction.
func NewClauseProposer(config *ai.Config) (ai.ClauseProposer, error) {
	chat, err := newChatClient(config)
	if err != nil {
		return nil, err
	}
	return &ClauseProposer{chat: chat.with("openai-proposer")}, nil
}

// ProposeClause asks the model for the next clause of the answer.
// A response that is neither done nor carries a subquery is malformed.
func (p *ClauseProposer) ProposeClause(ctx context.Context, req ai.ProposalRequest) (*ai.ProposedClause, error) {
	var resp proposalResponse
	if err := p.chat.generateJSON(ctx, proposeSystemPrompt, buildProposalPrompt(req), &resp); err != nil {
		return nil, err
	}

	proposed := &ai.ProposedClause{
		Clause:   strings.TrimSpace(resp.Clause),
		Subquery: strings.TrimSpace(resp.Subquery),
		Done:     resp.Done,
	}
	if !proposed.Done && proposed.Subquery == "" {
		if proposed.Clause == "" {
			return nil, fmt.Errorf("%w: proposal without clause or subquery", ai.ErrMalformedResponse)
		}
		proposed.Subquery = proposed.Clause
	}
	p.chat.logger.Debug("proposed clause", "clause", proposed.Clause, "done", proposed.Done)
	return proposed, nil
}
