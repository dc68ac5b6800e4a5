// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package mock

import "github.com/poiesic/attestor/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates the mock services of this package.
type MockProvider struct {
	embedder *MockEmbedder
	reranker *MockReranker
	judge    *MockEntailmentJudge
	proposer *MockClauseProposer
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns *MockProvider so tests can reach the concrete mocks for assertions.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder: NewMockEmbedder(),
		reranker: NewMockReranker(),
		judge:    NewMockEntailmentJudge(),
		proposer: NewMockClauseProposer(),
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Reranker returns the mock reranker.
func (p *MockProvider) Reranker() ai.Reranker {
	return p.reranker
}

// EntailmentJudge returns the mock judge.
func (p *MockProvider) EntailmentJudge() ai.EntailmentJudge {
	return p.judge
}

// ClauseProposer returns the mock proposer.
func (p *MockProvider) ClauseProposer() ai.ClauseProposer {
	return p.proposer
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockReranker returns the underlying mock reranker for test assertions.
func (p *MockProvider) GetMockReranker() *MockReranker {
	return p.reranker
}

// GetMockJudge returns the underlying mock judge for test assertions.
func (p *MockProvider) GetMockJudge() *MockEntailmentJudge {
	return p.judge
}

// GetMockProposer returns the underlying mock proposer for test assertions.
func (p *MockProvider) GetMockProposer() *MockClauseProposer {
	return p.proposer
}
