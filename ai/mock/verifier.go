package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/attestor/ai/local"
	"github.com/poiesic/attestor/core"
)

// MockReranker is a test double for ai.Reranker.
// By default it scores passages by term overlap.
type MockReranker struct {
	// RerankFunc is called by Rerank if set.
	RerankFunc func(ctx context.Context, query string, passages []string) ([]float64, error)

	callCount atomic.Int64
}

// NewMockReranker creates a mock reranker with default overlap scoring.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Rerank scores passages against query.
func (m *MockReranker) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	m.callCount.Add(1)

	if m.RerankFunc != nil {
		return m.RerankFunc(ctx, query, passages)
	}
	return local.OverlapReranker{}.Rerank(ctx, query, passages)
}

// CallCount returns the number of times Rerank was called.
func (m *MockReranker) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockReranker) Reset() {
	m.callCount.Store(0)
	m.RerankFunc = nil
}

// MockEntailmentJudge is a test double for ai.EntailmentJudge.
// By default it applies the lexical judge from ai/local.
type MockEntailmentJudge struct {
	// JudgeFunc is called by Judge if set.
	JudgeFunc func(ctx context.Context, clause string, passages []string) ([]core.Entailment, error)

	callCount atomic.Int64
}

// NewMockEntailmentJudge creates a mock judge with default lexical behavior.
func NewMockEntailmentJudge() *MockEntailmentJudge {
	return &MockEntailmentJudge{}
}

// Judge labels each passage against clause.
func (m *MockEntailmentJudge) Judge(ctx context.Context, clause string, passages []string) ([]core.Entailment, error) {
	m.callCount.Add(1)

	if m.JudgeFunc != nil {
		return m.JudgeFunc(ctx, clause, passages)
	}
	return local.LexicalJudge{}.Judge(ctx, clause, passages)
}

// CallCount returns the number of times Judge was called.
func (m *MockEntailmentJudge) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockEntailmentJudge) Reset() {
	m.callCount.Store(0)
	m.JudgeFunc = nil
}
