package badger

import (
	"encoding/binary"

	"github.com/poiesic/attestor/core"
)

// Key prefixes for different data types.
// Variable-length components (scopes, document IDs) are hashed to 8 bytes so
// that every key has a fixed layout and prefix scans cannot bleed across scopes.
const (
	unitPrefix     = "evu:" // unitID -> EvidenceUnit
	slotPrefix     = "evs:" // scope, document, position -> unitID (active units only)
	postingPrefix  = "lxp:" // scope, term, 0x00, unitID -> term frequency
	docFreqPrefix  = "lxd:" // scope, term -> number of active units containing term
	lexStatsPrefix = "lxs:" // scope -> active unit count, total term count
	vectorPrefix   = "vec:" // scope, unitID -> VectorRecord
	queuePrefix    = "emq:" // unitID -> QueueEntry
	runPrefix      = "qrn:" // scope, runID -> QueryRun
	citationPrefix = "cit:" // scope, runID, sequence -> CitationRecord
)

const termSeparator = 0x00

// hashComponent reduces a variable-length key component to 8 bytes.
func hashComponent(s string) uint64 {
	return uint64(core.IDFromContent(s))
}

// keyBuilder assembles composite keys.
// Integers are written in BigEndian order so lexicographic sort works correctly.
type keyBuilder struct {
	buf []byte
}

func newKey(prefix string, capacity int) *keyBuilder {
	buf := make([]byte, 0, len(prefix)+capacity)
	return &keyBuilder{buf: append(buf, prefix...)}
}

func (k *keyBuilder) uint64(v uint64) *keyBuilder {
	k.buf = binary.BigEndian.AppendUint64(k.buf, v)
	return k
}

func (k *keyBuilder) uint32(v uint32) *keyBuilder {
	k.buf = binary.BigEndian.AppendUint32(k.buf, v)
	return k
}

func (k *keyBuilder) scope(scope core.Scope) *keyBuilder {
	return k.uint64(hashComponent(string(scope)))
}

func (k *keyBuilder) id(id core.ID) *keyBuilder {
	return k.uint64(uint64(id))
}

func (k *keyBuilder) term(term string) *keyBuilder {
	k.buf = append(k.buf, term...)
	k.buf = append(k.buf, termSeparator)
	return k
}

func (k *keyBuilder) bytes() []byte {
	return k.buf
}

// makeUnitKey generates the primary key for an evidence unit.
func makeUnitKey(id core.ID) []byte {
	return newKey(unitPrefix, 8).id(id).bytes()
}

// makeSlotKey generates the active-slot index key.
// Format: prefix:scope:document:position
func makeSlotKey(scope core.Scope, documentID string, position int) []byte {
	return newKey(slotPrefix, 24).scope(scope).uint64(hashComponent(documentID)).uint64(uint64(position)).bytes()
}

// makeDocumentSlotPrefix generates a partial slot key covering one document.
func makeDocumentSlotPrefix(scope core.Scope, documentID string) []byte {
	return newKey(slotPrefix, 16).scope(scope).uint64(hashComponent(documentID)).bytes()
}

// makeScopeSlotPrefix generates a partial slot key covering a whole scope.
func makeScopeSlotPrefix(scope core.Scope) []byte {
	return newKey(slotPrefix, 8).scope(scope).bytes()
}

// makePostingKey generates a lexical posting key.
// Format: prefix:scope:term\x00:unitID
func makePostingKey(scope core.Scope, term string, id core.ID) []byte {
	return newKey(postingPrefix, 8+len(term)+1+8).scope(scope).term(term).id(id).bytes()
}

// makeTermPostingsPrefix generates a partial posting key covering one term.
func makeTermPostingsPrefix(scope core.Scope, term string) []byte {
	return newKey(postingPrefix, 8+len(term)+1).scope(scope).term(term).bytes()
}

// makeDocFreqKey generates the document frequency key for a term.
func makeDocFreqKey(scope core.Scope, term string) []byte {
	return newKey(docFreqPrefix, 8+len(term)+1).scope(scope).term(term).bytes()
}

// makeLexStatsKey generates the corpus statistics key for a scope.
func makeLexStatsKey(scope core.Scope) []byte {
	return newKey(lexStatsPrefix, 8).scope(scope).bytes()
}

// makeVectorKey generates the vector key for a unit.
func makeVectorKey(scope core.Scope, id core.ID) []byte {
	return newKey(vectorPrefix, 16).scope(scope).id(id).bytes()
}

// makeScopeVectorPrefix generates a partial vector key covering a scope.
func makeScopeVectorPrefix(scope core.Scope) []byte {
	return newKey(vectorPrefix, 8).scope(scope).bytes()
}

// makeQueueKey generates the embedding queue key for a unit.
func makeQueueKey(id core.ID) []byte {
	return newKey(queuePrefix, 8).id(id).bytes()
}

// makeRunKey generates the key for a persisted query run.
func makeRunKey(scope core.Scope, id core.ID) []byte {
	return newKey(runPrefix, 16).scope(scope).id(id).bytes()
}

// makeCitationKey generates the key for one citation of a run.
// Format: prefix:scope:runID:sequence
func makeCitationKey(scope core.Scope, runID core.ID, seq int) []byte {
	return newKey(citationPrefix, 20).scope(scope).id(runID).uint32(uint32(seq)).bytes()
}

// makeRunCitationsPrefix generates a partial citation key covering a run.
func makeRunCitationsPrefix(scope core.Scope, runID core.ID) []byte {
	return newKey(citationPrefix, 16).scope(scope).id(runID).bytes()
}
