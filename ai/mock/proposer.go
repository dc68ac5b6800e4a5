package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/attestor/ai"
)

// MockClauseProposer is a test double for ai.ClauseProposer.
// By default it proposes the query itself as an extractive subquery once,
// then reports done.
type MockClauseProposer struct {
	// ProposeClauseFunc is called by ProposeClause if set.
	ProposeClauseFunc func(ctx context.Context, req ai.ProposalRequest) (*ai.ProposedClause, error)

	callCount atomic.Int64
}

// NewMockClauseProposer creates a mock proposer with default behavior.
func NewMockClauseProposer() *MockClauseProposer {
	return &MockClauseProposer{}
}

// ProposeClause returns the next proposal.
func (m *MockClauseProposer) ProposeClause(ctx context.Context, req ai.ProposalRequest) (*ai.ProposedClause, error) {
	m.callCount.Add(1)

	if m.ProposeClauseFunc != nil {
		return m.ProposeClauseFunc(ctx, req)
	}
	if len(req.Accepted) > 0 || len(req.Gaps) > 0 {
		return &ai.ProposedClause{Done: true}, nil
	}
	return &ai.ProposedClause{Subquery: req.Query}, nil
}

// CallCount returns the number of times ProposeClause was called.
func (m *MockClauseProposer) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockClauseProposer) Reset() {
	m.callCount.Store(0)
	m.ProposeClauseFunc = nil
}
