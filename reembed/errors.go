package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when a backoff allows no attempts
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than 0")

	// ErrEmbeddingCountMismatch is returned when the embedder returns a different
	// number of vectors than texts it was given
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

	// ErrDegenerateVector is returned for vectors that cannot be normalized
	ErrDegenerateVector = errors.New("degenerate embedding vector")
)
