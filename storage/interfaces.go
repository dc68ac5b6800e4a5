package storage

import (
	"context"
	"time"

	"github.com/poiesic/attestor/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository.
	Close() error
}

// EvidenceRepository keeps one current record per (document, position) slot.
// The ingestion path is its only writer; the query path only reads.
type EvidenceRepository interface {
	Repository

	// Reconcile diffs the ordered texts of a document against the stored slots.
	// Unit records, the position index, the lexical index and embedding queue
	// entries are written in one transaction. On error nothing is visible.
	Reconcile(ctx context.Context, scope core.Scope, documentID string, texts []string) (*core.DiffResult, error)

	// GetUnit returns a unit by ID, including tombstoned units.
	// Returns ErrNotFound if the unit does not exist in the scope.
	GetUnit(ctx context.Context, scope core.Scope, id core.ID) (*core.EvidenceUnit, error)

	// GetUnits returns the active units among ids, in input order.
	// Missing and tombstoned units are skipped without error.
	GetUnits(ctx context.Context, scope core.Scope, ids ...core.ID) ([]*core.EvidenceUnit, error)

	// ActiveUnits returns a document's active units ordered by position.
	ActiveUnits(ctx context.Context, scope core.Scope, documentID string) ([]*core.EvidenceUnit, error)

	// ForEachActive calls fn with batches of active units in the scope.
	ForEachActive(ctx context.Context, scope core.Scope, batchSize int, fn func([]*core.EvidenceUnit) error) error
}

// LexicalIndex ranks active units by full-text relevance.
type LexicalIndex interface {
	// LexicalSearch returns up to topK units ordered by raw BM25 score (highest first).
	// Every active unit is visible regardless of embedding status.
	LexicalSearch(ctx context.Context, scope core.Scope, text string, topK int) ([]core.LaneHit, error)
}

// VectorIndex ranks embedded units by vector similarity.
type VectorIndex interface {
	// FindSimilar returns up to topK units ordered by cosine similarity (highest first).
	// Only active, embedded units whose vector matches their current text are visited.
	FindSimilar(ctx context.Context, scope core.Scope, vector []float32, topK int) ([]core.LaneHit, error)
}

// EmbeddingQueue holds units whose current text has no vector yet.
type EmbeddingQueue interface {
	// Enqueue adds units to the queue. Duplicate enqueues collapse to one entry.
	Enqueue(ctx context.Context, ids ...core.ID) error

	// Pending returns up to limit queue entries, fewest failed attempts first,
	// then oldest first.
	Pending(ctx context.Context, limit int) ([]core.QueueEntry, error)

	// Complete stores the vector for a unit, marks it embedded and removes its
	// queue entry, provided the unit's text still matches fingerprint.
	// Returns false without writing anything when the unit changed since.
	Complete(ctx context.Context, id core.ID, fingerprint core.Fingerprint, vector []float32) (bool, error)

	// Fail records a failed attempt on an entry, keeping it queued.
	Fail(ctx context.Context, id core.ID) error

	// Stats reports queue depth and the age of the oldest entry.
	Stats(ctx context.Context) (QueueStats, error)
}

// QueueStats describes the backlog of the embedding queue.
type QueueStats struct {
	Depth            int
	Retrying         int
	OldestPendingAge time.Duration
}

// RunRepository persists finished query runs and their citations for audit.
type RunRepository interface {
	Repository

	// SaveRun writes a run together with its citation records.
	SaveRun(ctx context.Context, run *core.QueryRun) error

	// GetRun retrieves a run by ID. Returns ErrNotFound if missing.
	GetRun(ctx context.Context, scope core.Scope, id core.ID) (*core.QueryRun, error)

	// GetCitations returns the citation records persisted for a run.
	GetCitations(ctx context.Context, scope core.Scope, runID core.ID) ([]core.CitationRecord, error)
}
