package local

import "github.com/poiesic/attestor/ai"

// Provider implements ai.AIProvider with the offline services of this package.
// It has no generative model, so ClauseProposer returns nil.
type Provider struct {
	embedder *HashEmbedder
}

// NewProvider creates an offline provider.
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider() ai.AIProvider {
	return &Provider{embedder: NewHashEmbedder(DefaultDimensions)}
}

// Embedder returns the hashing embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Reranker returns the overlap reranker.
func (p *Provider) Reranker() ai.Reranker {
	return OverlapReranker{}
}

// EntailmentJudge returns the lexical judge.
func (p *Provider) EntailmentJudge() ai.EntailmentJudge {
	return LexicalJudge{}
}

// ClauseProposer returns nil; callers plan heuristically instead.
func (p *Provider) ClauseProposer() ai.ClauseProposer {
	return nil
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
