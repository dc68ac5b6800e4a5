package badger

import (
	"context"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
)

// FindSimilar ranks embedded units by cosine similarity to vector.
// Vectors whose fingerprint no longer matches the unit's text are skipped,
// as are tombstoned and pending units.
func (r *EvidenceRepository) FindSimilar(ctx context.Context, scope core.Scope, vector []float32, topK int) ([]core.LaneHit, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	if len(vector) == 0 || topK <= 0 {
		return []core.LaneHit{}, nil
	}

	scores := make(map[core.ID]float64)
	err := r.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeScopeVectorPrefix(scope)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		visited := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			visited++
			if visited%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}

			var record *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalVectorRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(record.Vector) == 0 {
				continue
			}

			unit, err := readUnit(tx, record.EvidenceID)
			if err != nil {
				return err
			}
			if !unit.Active() || unit.EmbeddingStatus != core.EmbeddingEmbedded || unit.Fingerprint != record.Fingerprint {
				continue
			}

			scores[record.EvidenceID] = float64(cosineSimilarity(vector, record.Vector))
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	return rankHits(scores, topK), nil
}

// cosineSimilarity calculates the cosine of the angle between two vectors.
// Vectors of different dimensionality are compared over their common prefix.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
