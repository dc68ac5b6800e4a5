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


package badger

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
)

// EvidenceRepository implements storage.EvidenceRepository, storage.LexicalIndex
// and storage.VectorIndex for BadgerDB.
type EvidenceRepository struct {
	backend *Backend
	// writeMu serializes reconciliations; they all touch the shared lexical statistics.
	writeMu sync.Mutex
}

var (
	_ storage.EvidenceRepository = (*EvidenceRepository)(nil)
	_ storage.LexicalIndex       = (*EvidenceRepository)(nil)
	_ storage.VectorIndex        = (*EvidenceRepository)(nil)
)

// NewEvidenceRepository creates a new EvidenceRepository.
func NewEvidenceRepository(backend *Backend) *EvidenceRepository {
	return &EvidenceRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is owned by the caller.
func (r *EvidenceRepository) Close() error {
	return nil
}

// Reconcile diffs the ordered texts of a document against the stored slots.
func (r *EvidenceRepository) Reconcile(ctx context.Context, scope core.Scope, documentID string, texts []string) (*core.DiffResult, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if err := core.ValidateDocument(scope, documentID); err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var diff *core.DiffResult
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		// Replays after a conflict start from scratch
		diff = &core.DiffResult{DocumentID: documentID}
		now := time.Now().UTC()

		current, err := r.documentUnits(tx, scope, documentID)
		if err != nil {
			return err
		}

		lex := newLexicalBatch(tx, scope)
		enqueue := make(map[core.ID]core.Fingerprint)

		for position, text := range texts {
			if err := ctx.Err(); err != nil {
				return err
			}

			fingerprint := core.FingerprintText(text)
			old := current[position]
			if old != nil && old.Fingerprint == fingerprint {
				diff.Unchanged++
				delete(current, position)
				continue
			}

			unit := &core.EvidenceUnit{
				ID:              core.UnitID(scope, documentID, position),
				Scope:           scope,
				DocumentID:      documentID,
				Position:        position,
				Fingerprint:     fingerprint,
				Text:            text,
				EmbeddingStatus: core.EmbeddingPending,
				InsertedAt:      now,
				UpdatedAt:       now,
			}

			if old != nil {
				// Same slot, new text
				unit.InsertedAt = old.InsertedAt
				if err := lex.remove(old); err != nil {
					return err
				}
				if err := tx.Delete(makeVectorKey(scope, old.ID)); err != nil {
					return err
				}
				delete(current, position)
				diff.Changed = append(diff.Changed, unit.ID)
			} else {
				// A tombstoned record may still occupy the slot's ID
				previous, err := readUnit(tx, unit.ID)
				if err != nil {
					return err
				}
				if previous != nil {
					unit.InsertedAt = previous.InsertedAt
				}
				diff.Added = append(diff.Added, unit.ID)
			}

			termCount, err := lex.add(unit)
			if err != nil {
				return err
			}
			unit.TermCount = termCount

			if err := tx.Set(makeUnitKey(unit.ID), storage.MarshalEvidenceUnit(unit)); err != nil {
				return err
			}
			if err := tx.Set(makeSlotKey(scope, documentID, position), storage.MarshalID(unit.ID)); err != nil {
				return err
			}
			enqueue[unit.ID] = fingerprint
		}

		// Whatever is left was not present in the new text
		removed := make([]int, 0, len(current))
		for position := range current {
			removed = append(removed, position)
		}
		slices.Sort(removed)
		for _, position := range removed {
			old := current[position]
			if err := r.tombstone(tx, lex, old, now); err != nil {
				return err
			}
			diff.Removed = append(diff.Removed, old.ID)
		}

		if err := lex.flush(); err != nil {
			return err
		}

		// Enqueue last, inside the same transaction
		for _, id := range diff.Enqueued() {
			if err := putQueueEntry(tx, scope, id, enqueue[id], now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.backend.logger.Debug("reconciled document",
		"document", documentID,
		"added", len(diff.Added),
		"changed", len(diff.Changed),
		"removed", len(diff.Removed),
		"unchanged", diff.Unchanged)
	return diff, nil
}

// tombstone removes a unit from every active index and flags its record.
func (r *EvidenceRepository) tombstone(tx *badger.Txn, lex *lexicalBatch, unit *core.EvidenceUnit, now time.Time) error {
	if err := lex.remove(unit); err != nil {
		return err
	}
	if err := tx.Delete(makeSlotKey(unit.Scope, unit.DocumentID, unit.Position)); err != nil {
		return err
	}
	if err := tx.Delete(makeVectorKey(unit.Scope, unit.ID)); err != nil {
		return err
	}
	if err := tx.Delete(makeQueueKey(unit.ID)); err != nil {
		return err
	}
	unit.Tombstoned = true
	unit.UpdatedAt = now
	return tx.Set(makeUnitKey(unit.ID), storage.MarshalEvidenceUnit(unit))
}

// documentUnits loads a document's active units keyed by position.
func (r *EvidenceRepository) documentUnits(tx *badger.Txn, scope core.Scope, documentID string) (map[int]*core.EvidenceUnit, error) {
	units := make(map[int]*core.EvidenceUnit)
	err := scanSlots(tx, makeDocumentSlotPrefix(scope, documentID), func(id core.ID) error {
		unit, err := readUnit(tx, id)
		if err != nil {
			return err
		}
		if unit == nil || unit.DocumentID != documentID {
			return nil
		}
		units[unit.Position] = unit
		return nil
	})
	return units, err
}

// scanSlots calls fn for every unit ID under a slot prefix, in key order.
func scanSlots(tx *badger.Txn, prefix []byte, fn func(id core.ID) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var id core.ID
		err := iter.Item().Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// GetUnit retrieves a single unit by ID, including tombstoned units.
func (r *EvidenceRepository) GetUnit(ctx context.Context, scope core.Scope, id core.ID) (*core.EvidenceUnit, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	var result *core.EvidenceUnit
	err := r.backend.View(func(tx *badger.Txn) error {
		unit, err := readUnit(tx, id)
		if err != nil {
			return err
		}
		if unit == nil || unit.Scope != scope {
			return storage.ErrNotFound
		}
		result = unit
		return nil
	})
	return result, err
}

// GetUnits retrieves the active units among ids, in input order.
func (r *EvidenceRepository) GetUnits(ctx context.Context, scope core.Scope, ids ...core.ID) ([]*core.EvidenceUnit, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	results := make([]*core.EvidenceUnit, 0, len(ids))
	err := r.backend.View(func(tx *badger.Txn) error {
		for _, id := range ids {
			unit, err := readUnit(tx, id)
			if err != nil {
				return err
			}
			if unit.Active() && unit.Scope == scope {
				results = append(results, unit)
			}
		}
		return nil
	})
	return results, err
}

// ActiveUnits returns a document's active units ordered by position.
func (r *EvidenceRepository) ActiveUnits(ctx context.Context, scope core.Scope, documentID string) ([]*core.EvidenceUnit, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	var results []*core.EvidenceUnit
	err := r.backend.View(func(tx *badger.Txn) error {
		byPosition, err := r.documentUnits(tx, scope, documentID)
		if err != nil {
			return err
		}
		results = make([]*core.EvidenceUnit, 0, len(byPosition))
		for _, unit := range byPosition {
			results = append(results, unit)
		}
		slices.SortFunc(results, func(a, b *core.EvidenceUnit) int {
			return a.Position - b.Position
		})
		return nil
	})
	return results, err
}

// ForEachActive calls fn with batches of active units in the scope.
// Iteration stops on the first error from fn. Context cancellation is checked between batches.
func (r *EvidenceRepository) ForEachActive(ctx context.Context, scope core.Scope, batchSize int, fn func([]*core.EvidenceUnit) error) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be greater than 0", storage.ErrInvalidQuery)
	}

	var ids []core.ID
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanSlots(tx, makeScopeSlotPrefix(scope), func(id core.ID) error {
			ids = append(ids, id)
			return nil
		})
	})
	if err != nil {
		return err
	}

	for start := 0; start < len(ids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batchSize, len(ids))
		batch, err := r.GetUnits(ctx, scope, ids[start:end]...)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if err := fn(batch); err != nil {
			return err
		}
	}
	return nil
}
