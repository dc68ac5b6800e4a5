package ai

import (
	"context"

	"github.com/poiesic/attestor/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Reranker scores passages by how well they answer a query.
// Implementations must be thread-safe for concurrent use.
type Reranker interface {
	// Rerank returns one relevance score in [0,1] per passage, in input order.
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// EntailmentJudge decides whether passages support, contradict or say nothing
// about a clause.
// Implementations must be thread-safe for concurrent use.
type EntailmentJudge interface {
	// Judge returns one entailment per passage, in input order.
	Judge(ctx context.Context, clause string, passages []string) ([]core.Entailment, error)
}

// ClauseProposer drafts the next clause of an answer.
// Implementations must be thread-safe for concurrent use.
type ClauseProposer interface {
	// ProposeClause returns the next clause to verify, or Done when the
	// accepted clauses already answer the query.
	ProposeClause(ctx context.Context, req ProposalRequest) (*ProposedClause, error)
}

// ProposalRequest is the planning state handed to a ClauseProposer.
type ProposalRequest struct {
	// Query is the caller's original question.
	Query string

	// Accepted holds the text of clauses already accepted, in order.
	Accepted []string

	// Gaps holds the text of clauses that were abandoned for lack of evidence.
	Gaps []string

	// Revising is the clause that failed verification and needs a new
	// formulation. Empty when a fresh clause is wanted.
	Revising string
}

// ProposedClause is a ClauseProposer's answer.
type ProposedClause struct {
	// Clause is a single verifiable statement. Empty means the clause
	// should be drafted from the best evidence found for Subquery.
	Clause string

	// Subquery is the retrieval query used to find evidence for Clause.
	Subquery string

	// Done signals that no further clauses are needed.
	Done bool
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Reranker returns the passage reranking service.
	Reranker() Reranker

	// EntailmentJudge returns the entailment classification service.
	EntailmentJudge() EntailmentJudge

	// ClauseProposer returns the clause drafting service.
	// Providers without a generative model return nil.
	ClauseProposer() ClauseProposer

	// Close releases resources held by the provider and its services.
	Close() error
}
