// Package reembed turns queued evidence units into stored vectors.
//
// BatchProcessor is shared by the background embedding worker and the
// Reembedder, which re-queues every active unit in a scope after an
// embedding model change. Vectors are only stored through the embedding
// queue's Complete call, so a unit whose text changed while its batch was
// in flight never ends up with a vector for the old text.
//
// Embedding calls are paced and retried by Backoff. A vector that cannot be
// normalized fails its unit's queue entry instead of being stored.
package reembed
