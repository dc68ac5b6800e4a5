package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/attestor/analysis"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
)

// BM25 parameters (standard values)
const (
	bm25K1 = 1.2  // Term frequency saturation
	bm25B  = 0.75 // Length normalization
)

// lexicalStats are the per-scope corpus statistics BM25 needs.
type lexicalStats struct {
	units      uint64 // active units
	totalTerms uint64 // sum of TermCount over active units
}

func (s lexicalStats) avgLength() float64 {
	if s.units == 0 {
		return 0
	}
	return float64(s.totalTerms) / float64(s.units)
}

// lexicalBatch accumulates posting changes for one reconciliation and applies
// document frequency and statistics deltas once at the end.
type lexicalBatch struct {
	tx         *badger.Txn
	scope      core.Scope
	dfDelta    map[string]int
	unitDelta  int
	termsDelta int
}

func newLexicalBatch(tx *badger.Txn, scope core.Scope) *lexicalBatch {
	return &lexicalBatch{
		tx:      tx,
		scope:   scope,
		dfDelta: make(map[string]int),
	}
}

// add indexes a unit's text and returns its term count.
func (b *lexicalBatch) add(unit *core.EvidenceUnit) (int, error) {
	tf := analysis.TermFrequencies(unit.Text)
	total := 0
	for term, count := range tf {
		if err := b.tx.Set(makePostingKey(b.scope, term, unit.ID), encodeCounter(uint64(count))); err != nil {
			return 0, err
		}
		b.dfDelta[term]++
		total += count
	}
	b.unitDelta++
	b.termsDelta += total
	return total, nil
}

// remove drops a unit's postings. The stored text is re-tokenized to find them.
func (b *lexicalBatch) remove(unit *core.EvidenceUnit) error {
	for term := range analysis.TermFrequencies(unit.Text) {
		if err := b.tx.Delete(makePostingKey(b.scope, term, unit.ID)); err != nil {
			return err
		}
		b.dfDelta[term]--
	}
	b.unitDelta--
	b.termsDelta -= unit.TermCount
	return nil
}

// flush writes document frequency and statistics changes.
func (b *lexicalBatch) flush() error {
	for term, delta := range b.dfDelta {
		if delta == 0 {
			continue
		}
		key := makeDocFreqKey(b.scope, term)
		df, err := readCounter(b.tx, key)
		if err != nil {
			return err
		}
		next := int64(df) + int64(delta)
		if next <= 0 {
			if err := b.tx.Delete(key); err != nil {
				return err
			}
			continue
		}
		if err := b.tx.Set(key, encodeCounter(uint64(next))); err != nil {
			return err
		}
	}

	if b.unitDelta == 0 && b.termsDelta == 0 {
		return nil
	}
	stats, err := readLexicalStats(b.tx, b.scope)
	if err != nil {
		return err
	}
	stats.units = uint64(max(0, int64(stats.units)+int64(b.unitDelta)))
	stats.totalTerms = uint64(max(0, int64(stats.totalTerms)+int64(b.termsDelta)))
	return writeLexicalStats(b.tx, b.scope, stats)
}

// LexicalSearch ranks active units against text with BM25.
func (r *EvidenceRepository) LexicalSearch(ctx context.Context, scope core.Scope, text string, topK int) ([]core.LaneHit, error) {
	if err := checkScope(scope); err != nil {
		return nil, err
	}
	terms := analysis.UniqueTerms(text)
	if len(terms) == 0 || topK <= 0 {
		return []core.LaneHit{}, nil
	}

	scores := make(map[core.ID]float64)
	err := r.backend.View(func(tx *badger.Txn) error {
		stats, err := readLexicalStats(tx, scope)
		if err != nil {
			return err
		}
		if stats.units == 0 {
			return nil
		}
		avgLength := stats.avgLength()
		lengths := make(map[core.ID]float64)

		for _, term := range terms {
			if err := ctx.Err(); err != nil {
				return err
			}
			df, err := readCounter(tx, makeDocFreqKey(scope, term))
			if err != nil {
				return err
			}
			if df == 0 {
				continue
			}
			idf := calculateIDF(float64(stats.units), float64(df))

			prefix := makeTermPostingsPrefix(scope, term)
			err = scanPostings(tx, prefix, func(id core.ID, tf uint64) error {
				docLen, ok := lengths[id]
				if !ok {
					unit, err := readUnit(tx, id)
					if err != nil {
						return err
					}
					if !unit.Active() {
						return nil
					}
					docLen = float64(unit.TermCount)
					lengths[id] = docLen
				}
				freq := float64(tf)
				numerator := freq * (bm25K1 + 1)
				denominator := freq + bm25K1*(1-bm25B+bm25B*(docLen/avgLength))
				scores[id] += idf * (numerator / denominator)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return rankHits(scores, topK), nil
}

// calculateIDF uses the BM25 IDF formula with +1 smoothing so common terms
// never score negative: log(1 + (N - df + 0.5) / (df + 0.5)).
func calculateIDF(n, df float64) float64 {
	idf := math.Log(1 + (n-df+0.5)/(df+0.5))
	if idf < 0 {
		return 0
	}
	return idf
}

// scanPostings calls fn with the unit ID and term frequency of every posting under prefix.
func scanPostings(tx *badger.Txn, prefix []byte, fn func(id core.ID, tf uint64) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		key := item.Key()
		if len(key) != len(prefix)+8 {
			continue
		}
		id := core.ID(binary.BigEndian.Uint64(key[len(prefix):]))
		var tf uint64
		err := item.Value(func(val []byte) error {
			var err error
			tf, err = decodeCounter(val)
			return err
		})
		if err != nil {
			return err
		}
		if err := fn(id, tf); err != nil {
			return err
		}
	}
	return nil
}

// rankHits sorts scores descending (ties broken by ID) and keeps the first topK.
func rankHits(scores map[core.ID]float64, topK int) []core.LaneHit {
	hits := make([]core.LaneHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, core.LaneHit{EvidenceID: id, RawScore: score})
	}
	slices.SortFunc(hits, compareHits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func compareHits(a, b core.LaneHit) int {
	switch {
	case a.RawScore > b.RawScore:
		return -1
	case a.RawScore < b.RawScore:
		return 1
	case a.EvidenceID < b.EvidenceID:
		return -1
	case a.EvidenceID > b.EvidenceID:
		return 1
	}
	return 0
}

func readLexicalStats(tx *badger.Txn, scope core.Scope) (lexicalStats, error) {
	var stats lexicalStats
	item, err := tx.Get(makeLexStatsKey(scope))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return stats, nil
		}
		return stats, err
	}
	err = item.Value(func(val []byte) error {
		units, n, err := varint.Uint64.Unmarshal(val)
		if err != nil {
			return err
		}
		totalTerms, _, err := varint.Uint64.Unmarshal(val[n:])
		if err != nil {
			return err
		}
		stats.units = units
		stats.totalTerms = totalTerms
		return nil
	})
	return stats, err
}

func writeLexicalStats(tx *badger.Txn, scope core.Scope, stats lexicalStats) error {
	buf := make([]byte, varint.Uint64.Size(stats.units)+varint.Uint64.Size(stats.totalTerms))
	n := varint.Uint64.Marshal(stats.units, buf)
	varint.Uint64.Marshal(stats.totalTerms, buf[n:])
	return tx.Set(makeLexStatsKey(scope), buf)
}

func readCounter(tx *badger.Txn, key []byte) (uint64, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var v uint64
	err = item.Value(func(val []byte) error {
		var err error
		v, err = decodeCounter(val)
		return err
	})
	return v, err
}

func encodeCounter(v uint64) []byte {
	buf := make([]byte, varint.Uint64.Size(v))
	varint.Uint64.Marshal(v, buf)
	return buf
}

func decodeCounter(val []byte) (uint64, error) {
	v, _, err := varint.Uint64.Unmarshal(val)
	if err != nil {
		return 0, errors.Join(storage.ErrSerializationFailed, err)
	}
	return v, nil
}
