package ingestion

import "errors"

var (
	// ErrEvidenceRepositoryRequired is returned when an evidence repository is not provided.
	ErrEvidenceRepositoryRequired = errors.New("evidence repository required")

	// ErrQueueRequired is returned when an embedding queue is not provided.
	ErrQueueRequired = errors.New("embedding queue required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrWorkerRequired is returned when a pipeline is built without an embedding worker.
	ErrWorkerRequired = errors.New("embedding worker required")

	// ErrWorkerClosed is returned when a closed worker is started or drained.
	ErrWorkerClosed = errors.New("embedding worker closed")

	// ErrWorkerRunning is returned when Start is called on a running worker.
	ErrWorkerRunning = errors.New("embedding worker already running")
)
