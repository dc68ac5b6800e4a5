// Package ingestion is the write side of the evidence store.
//
// Pipeline validates documents and reconciles them against stored evidence
// units. Reconciliation enqueues every added or changed unit for embedding in
// the same transaction, then the Pipeline wakes the EmbeddingWorker.
//
// The EmbeddingWorker drains the embedding queue in the background:
//   - a trigger channel wakes it after each ingest
//   - a scan ticker picks up entries left over from failures or restarts
//   - batches fan out onto an ants worker pool
//   - embedding calls are rate limited and retried with exponential backoff
//
// Until a unit's vector is stored it is visible to the lexical lane only.
// Errors during background processing are logged and recorded on the queue
// entry; they never fail an ingest.
package ingestion
