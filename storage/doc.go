// Package storage provides the storage abstraction layer for attestor.
//
// This package defines repository interfaces that decouple the evidence store,
// its lexical and vector indexes, the embedding queue and the query run audit
// log from the BadgerDB implementation in storage/badger.
//
// # Architecture
//
//   - EvidenceRepository: reconcile documents and read evidence units
//   - LexicalIndex: BM25 ranking over every active unit
//   - VectorIndex: similarity ranking over embedded units
//   - EmbeddingQueue: pending embedding work, drained by the ingestion worker
//   - RunRepository: finished query runs and their citations
//
// # Scope
//
// Every call carries an opaque core.Scope. Implementations partition their
// data by scope and reject an empty scope with ErrUnauthorized; callers above
// this layer never interpret the token.
//
// # Writers
//
// Reconcile is the only operation that creates, changes or tombstones units,
// and it only ever sets a unit to pending. EmbeddingQueue.Complete is the only
// operation that sets a unit to embedded.
package storage
