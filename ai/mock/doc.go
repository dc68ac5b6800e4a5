// Package mock provides test double implementations of AI service interfaces.
//
// The mocks allow tests to run without external AI service dependencies and
// enable controlled, deterministic behavior. Call counters are safe for
// concurrent use; behavior functions must be set before the mock is shared.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider()
//	provider.GetMockJudge().JudgeFunc = func(ctx context.Context, clause string, passages []string) ([]core.Entailment, error) {
//	    return nil, errors.New("judge offline")
//	}
//
//	count := provider.GetMockEmbedder().CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: term-hash vectors from ai/local
//   - MockReranker: term overlap from ai/local
//   - MockEntailmentJudge: lexical judge from ai/local
//   - MockClauseProposer: one extractive proposal for the query, then done
package mock
