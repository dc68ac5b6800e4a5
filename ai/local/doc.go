// Package local provides deterministic AI services that run without a model server.
//
// Embeddings are hashed bags of index terms, reranking is term overlap and
// entailment compares term coverage, negation polarity and numbers. Quality is
// far below a real model; the services exist for offline use and for tests.
package local
