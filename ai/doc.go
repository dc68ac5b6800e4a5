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


// Package ai provides abstractions for the model-backed services used by attestor.
//
// The core domain depends on these interfaces rather than on a concrete model
// provider:
//
//   - Embedder: Generates vector embeddings from text
//   - Reranker: Scores passages against a query
//   - EntailmentJudge: Labels passages as supporting, neutral or contradicting a clause
//   - ClauseProposer: Drafts the next clause of an answer
//   - AIProvider: Aggregates the services for initialization and shutdown
//
// # Implementation Packages
//
//   - ai/openai: Implementation using OpenAI-compatible APIs via langchaingo
//   - ai/local: Deterministic offline implementation based on term statistics
//   - ai/mock: Test doubles with injectable behavior and call counters
//
// Public constructors in ai/openai and ai/local return interface types.
// Mock constructors return concrete types so tests can inject behavior and
// read call counts.
//
// # Usage Example
//
//	config := ai.DefaultConfig()
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Refunds are processed within 30 days.")
//	labels, err := provider.EntailmentJudge().Judge(ctx, clause, passages)
package ai
