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

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
)

// RunRepository implements storage.RunRepository for BadgerDB.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is owned by the caller.
func (r *RunRepository) Close() error {
	return nil
}

// SaveRun persists a run and the citations of its accepted clauses.
// Citations are also stored under their own keys so they can be audited
// without decoding the full run.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.QueryRun) error {
	if err := checkScope(run.Scope); err != nil {
		return err
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		if err := tx.Set(makeRunKey(run.Scope, run.ID), storage.MarshalQueryRun(run)); err != nil {
			return err
		}
		seq := 0
		for i := range run.Clauses {
			for j := range run.Clauses[i].Citations {
				key := makeCitationKey(run.Scope, run.ID, seq)
				if err := tx.Set(key, storage.MarshalCitationRecord(&run.Clauses[i].Citations[j])); err != nil {
					return err
				}
				seq++
			}
		}
		return nil
	})
}

// GetRun retrieves a run by ID.
func (r *RunRepository) GetRun(ctx context.Context, scope core.Scope, id core.ID) (*core.QueryRun, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	var run *core.QueryRun
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		run, err = readValue(tx, makeRunKey(scope, id), storage.UnmarshalQueryRun)
		if err != nil {
			return err
		}
		if run == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return run, err
}

// GetCitations returns the citation records persisted for a run, in clause order.
func (r *RunRepository) GetCitations(ctx context.Context, scope core.Scope, runID core.ID) ([]core.CitationRecord, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	var records []core.CitationRecord
	err := r.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRunCitationsPrefix(scope, runID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				record, err := storage.UnmarshalCitationRecord(val)
				if err != nil {
					return err
				}
				records = append(records, *record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}
