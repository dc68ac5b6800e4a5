package badger

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
)

// QueueRepository implements storage.EmbeddingQueue for BadgerDB.
// Entries are keyed by unit ID, so enqueueing the same unit twice rewrites
// one entry instead of adding a second.
type QueueRepository struct {
	backend *Backend
}

var _ storage.EmbeddingQueue = (*QueueRepository)(nil)

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(backend *Backend) *QueueRepository {
	return &QueueRepository{
		backend: backend,
	}
}

// Enqueue adds active units to the queue with their current fingerprint.
// Missing and tombstoned units are ignored.
func (q *QueueRepository) Enqueue(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return q.backend.Update(ctx, func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, id := range ids {
			unit, err := readUnit(tx, id)
			if err != nil {
				return err
			}
			if !unit.Active() {
				continue
			}
			if err := putQueueEntry(tx, unit.Scope, id, unit.Fingerprint, now); err != nil {
				return err
			}
		}
		return nil
	})
}

// putQueueEntry writes a queue entry, keeping the original enqueue time if
// the unit is already queued. New text gets a fresh attempt count.
func putQueueEntry(tx *badger.Txn, scope core.Scope, id core.ID, fingerprint core.Fingerprint, now time.Time) error {
	key := makeQueueKey(id)
	entry, err := readValue(tx, key, storage.UnmarshalQueueEntry)
	if err != nil {
		return err
	}
	if entry == nil {
		entry = &core.QueueEntry{EvidenceID: id, Scope: scope, EnqueuedAt: now}
	}
	if entry.Fingerprint != fingerprint {
		entry.Attempts = 0
	}
	entry.Fingerprint = fingerprint
	return tx.Set(key, storage.MarshalQueueEntry(entry))
}

// Pending returns up to limit entries, fewest failed attempts first and
// oldest first within the same attempt count.
func (q *QueueRepository) Pending(ctx context.Context, limit int) ([]core.QueueEntry, error) {
	entries, err := q.all(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b core.QueueEntry) int {
		if c := cmp.Compare(a.Attempts, b.Attempts); c != 0 {
			return c
		}
		if c := a.EnqueuedAt.Compare(b.EnqueuedAt); c != 0 {
			return c
		}
		switch {
		case a.EvidenceID < b.EvidenceID:
			return -1
		case a.EvidenceID > b.EvidenceID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Complete stores the vector and flips the unit to embedded in one transaction.
// This is the only write path that sets core.EmbeddingEmbedded.
func (q *QueueRepository) Complete(ctx context.Context, id core.ID, fingerprint core.Fingerprint, vector []float32) (bool, error) {
	var stored bool
	err := q.backend.Update(ctx, func(tx *badger.Txn) error {
		stored = false
		unit, err := readUnit(tx, id)
		if err != nil {
			return err
		}
		if !unit.Active() {
			// Removed while queued; nothing left to embed
			return tx.Delete(makeQueueKey(id))
		}
		if unit.Fingerprint != fingerprint {
			// Text changed after the batch was read; the entry now carries the new fingerprint
			return nil
		}

		record := &core.VectorRecord{EvidenceID: id, Fingerprint: fingerprint, Vector: vector}
		if err := tx.Set(makeVectorKey(unit.Scope, id), storage.MarshalVectorRecord(record)); err != nil {
			return err
		}
		unit.EmbeddingStatus = core.EmbeddingEmbedded
		unit.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeUnitKey(id), storage.MarshalEvidenceUnit(unit)); err != nil {
			return err
		}

		entry, err := readValue(tx, makeQueueKey(id), storage.UnmarshalQueueEntry)
		if err != nil {
			return err
		}
		if entry != nil && entry.Fingerprint == fingerprint {
			if err := tx.Delete(makeQueueKey(id)); err != nil {
				return err
			}
		}
		stored = true
		return nil
	})
	return stored, err
}

// Fail records a failed embedding attempt. The entry stays queued.
func (q *QueueRepository) Fail(ctx context.Context, id core.ID) error {
	return q.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeQueueKey(id)
		entry, err := readValue(tx, key, storage.UnmarshalQueueEntry)
		if err != nil || entry == nil {
			return err
		}
		entry.Attempts++
		return tx.Set(key, storage.MarshalQueueEntry(entry))
	})
}

// Stats reports the queue backlog.
func (q *QueueRepository) Stats(ctx context.Context) (storage.QueueStats, error) {
	entries, err := q.all(ctx)
	if err != nil {
		return storage.QueueStats{}, err
	}
	stats := storage.QueueStats{Depth: len(entries)}
	var oldest time.Time
	for _, e := range entries {
		if e.Attempts > 0 {
			stats.Retrying++
		}
		if oldest.IsZero() || e.EnqueuedAt.Before(oldest) {
			oldest = e.EnqueuedAt
		}
	}
	if !oldest.IsZero() {
		stats.OldestPendingAge = time.Since(oldest)
	}
	return stats, nil
}

func (q *QueueRepository) all(ctx context.Context) ([]core.QueueEntry, error) {
	var entries []core.QueueEntry
	err := q.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(queuePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := iter.Item().Value(func(val []byte) error {
				entry, err := storage.UnmarshalQueueEntry(val)
				if err != nil {
					return err
				}
				entries = append(entries, *entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return entries, err
}
