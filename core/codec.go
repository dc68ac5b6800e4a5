package core

import (
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// Serializers for persisted records. Each field is written with a mus-go
// primitive serializer in declaration order; the encoder runs twice, once to
// size the buffer and once to fill it.
var (
	IDMUS             = idMUS{}
	EvidenceUnitMUS   = evidenceUnitMUS{}
	CitationRecordMUS = citationRecordMUS{}
	QueryRunMUS       = queryRunMUS{}
	VectorRecordMUS   = vectorRecordMUS{}
	QueueEntryMUS     = queueEntryMUS{}
)

type encoder struct {
	bs []byte // nil while sizing
	n  int
}

func (e *encoder) uint64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int(v int) { e.int64(int64(v)) }

func (e *encoder) float64(v float64) { e.uint64(math.Float64bits(v)) }

func (e *encoder) string(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) bool(v bool) {
	if e.bs == nil {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *encoder) time(v time.Time) {
	if v.IsZero() {
		e.int64(0)
		return
	}
	e.int64(v.UnixMicro())
}

func (e *encoder) fingerprint(v Fingerprint) {
	for i := 0; i < len(v); i += 8 {
		e.uint64(uint64(v[i])<<56 | uint64(v[i+1])<<48 | uint64(v[i+2])<<40 | uint64(v[i+3])<<32 |
			uint64(v[i+4])<<24 | uint64(v[i+5])<<16 | uint64(v[i+6])<<8 | uint64(v[i+7]))
	}
}

type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) uint64() uint64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int64() int64 {
	if d.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) int() int { return int(d.int64()) }

func (d *decoder) float64() float64 { return math.Float64frombits(d.uint64()) }

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) bool() bool {
	if d.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return v
}

func (d *decoder) time() time.Time {
	micros := d.int64()
	if micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

func (d *decoder) fingerprint() Fingerprint {
	var fp Fingerprint
	for i := 0; i < len(fp); i += 8 {
		v := d.uint64()
		for j := 0; j < 8; j++ {
			fp[i+j] = byte(v >> (56 - 8*j))
		}
	}
	return fp
}

// length reads a collection length and rejects values the remaining
// buffer cannot possibly hold.
func (d *decoder) length() int {
	l := d.int()
	if d.err == nil && (l < 0 || l > len(d.bs)-d.n) {
		d.err = ErrCorruptRecord
		return 0
	}
	return l
}

type idMUS struct{}

func (idMUS) Size(v ID) int { return varint.Uint64.Size(uint64(v)) }

func (idMUS) Marshal(v ID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

type evidenceUnitMUS struct{}

func (evidenceUnitMUS) encode(e *encoder, v EvidenceUnit) {
	e.uint64(uint64(v.ID))
	e.string(string(v.Scope))
	e.string(v.DocumentID)
	e.int(v.Position)
	e.fingerprint(v.Fingerprint)
	e.string(v.Text)
	e.int(v.TermCount)
	e.int(int(v.EmbeddingStatus))
	e.bool(v.Tombstoned)
	e.time(v.InsertedAt)
	e.time(v.UpdatedAt)
}

func (m evidenceUnitMUS) Size(v EvidenceUnit) int {
	e := encoder{}
	m.encode(&e, v)
	return e.n
}

func (m evidenceUnitMUS) Marshal(v EvidenceUnit, bs []byte) int {
	e := encoder{bs: bs}
	m.encode(&e, v)
	return e.n
}

func (evidenceUnitMUS) Unmarshal(bs []byte) (EvidenceUnit, int, error) {
	d := decoder{bs: bs}
	v := EvidenceUnit{
		ID:              ID(d.uint64()),
		Scope:           Scope(d.string()),
		DocumentID:      d.string(),
		Position:        d.int(),
		Fingerprint:     d.fingerprint(),
		Text:            d.string(),
		TermCount:       d.int(),
		EmbeddingStatus: EmbeddingStatus(d.int()),
		Tombstoned:      d.bool(),
		InsertedAt:      d.time(),
		UpdatedAt:       d.time(),
	}
	return v, d.n, d.err
}

func encodeStageScores(e *encoder, v StageScores) {
	e.float64(v.Similarity)
	e.float64(v.Rerank)
	e.float64(v.Entailment)
}

func decodeStageScores(d *decoder) StageScores {
	return StageScores{
		Similarity: d.float64(),
		Rerank:     d.float64(),
		Entailment: d.float64(),
	}
}

type citationRecordMUS struct{}

func (citationRecordMUS) encode(e *encoder, v CitationRecord) {
	e.uint64(uint64(v.ClauseID))
	e.bool(v.EvidenceRef != nil)
	if v.EvidenceRef != nil {
		e.uint64(uint64(*v.EvidenceRef))
	}
	e.string(v.DocumentID)
	e.int(v.Position)
	e.string(v.TextSnapshot)
	e.float64(v.CompositeScore)
	encodeStageScores(e, v.StageScores)
}

func (citationRecordMUS) decode(d *decoder) CitationRecord {
	v := CitationRecord{ClauseID: ID(d.uint64())}
	if d.bool() {
		ref := ID(d.uint64())
		v.EvidenceRef = &ref
	}
	v.DocumentID = d.string()
	v.Position = d.int()
	v.TextSnapshot = d.string()
	v.CompositeScore = d.float64()
	v.StageScores = decodeStageScores(d)
	return v
}

func (m citationRecordMUS) Size(v CitationRecord) int {
	e := encoder{}
	m.encode(&e, v)
	return e.n
}

func (m citationRecordMUS) Marshal(v CitationRecord, bs []byte) int {
	e := encoder{bs: bs}
	m.encode(&e, v)
	return e.n
}

func (m citationRecordMUS) Unmarshal(bs []byte) (CitationRecord, int, error) {
	d := decoder{bs: bs}
	v := m.decode(&d)
	return v, d.n, d.err
}

func encodeSupport(e *encoder, v Support) {
	e.uint64(uint64(v.EvidenceID))
	e.string(v.DocumentID)
	e.int(v.Position)
	e.string(v.TextSnapshot)
	e.int(int(v.Label))
	encodeStageScores(e, v.Scores)
	e.float64(v.CompositeScore)
}

func decodeSupport(d *decoder) Support {
	return Support{
		EvidenceID:     ID(d.uint64()),
		DocumentID:     d.string(),
		Position:       d.int(),
		TextSnapshot:   d.string(),
		Label:          EntailmentLabel(d.int()),
		Scores:         decodeStageScores(d),
		CompositeScore: d.float64(),
	}
}

func encodeSupports(e *encoder, v []Support) {
	e.int(len(v))
	for _, s := range v {
		encodeSupport(e, s)
	}
}

func decodeSupports(d *decoder) []Support {
	l := d.length()
	if l == 0 {
		return nil
	}
	out := make([]Support, 0, l)
	for i := 0; i < l && d.err == nil; i++ {
		out = append(out, decodeSupport(d))
	}
	return out
}

func encodeClause(e *encoder, v Clause) {
	e.uint64(uint64(v.ID))
	e.string(v.Text)
	e.string(v.Subquery)
	e.int(int(v.Status))
	e.int(v.RevisionCount)
	e.float64(v.Confidence)
	encodeSupports(e, v.Supports)
	encodeSupports(e, v.Contradictions)
	e.int(len(v.Citations))
	for _, c := range v.Citations {
		CitationRecordMUS.encode(e, c)
	}
}

func decodeClause(d *decoder) Clause {
	v := Clause{
		ID:             ID(d.uint64()),
		Text:           d.string(),
		Subquery:       d.string(),
		Status:         ClauseStatus(d.int()),
		RevisionCount:  d.int(),
		Confidence:     d.float64(),
		Supports:       decodeSupports(d),
		Contradictions: decodeSupports(d),
	}
	if l := d.length(); l > 0 {
		v.Citations = make([]CitationRecord, 0, l)
		for i := 0; i < l && d.err == nil; i++ {
			v.Citations = append(v.Citations, CitationRecordMUS.decode(d))
		}
	}
	return v
}

type queryRunMUS struct{}

func (queryRunMUS) encode(e *encoder, v QueryRun) {
	e.uint64(uint64(v.ID))
	e.string(v.Query)
	e.string(string(v.Scope))
	e.int(int(v.Route))
	e.int(len(v.Clauses))
	for _, c := range v.Clauses {
		encodeClause(e, c)
	}
	e.int(len(v.Gaps))
	for _, g := range v.Gaps {
		e.uint64(uint64(g.ClauseID))
		e.string(g.Text)
		e.string(g.Reason)
	}
	e.int(int(v.Status))
	e.int(v.IterationsUsed)
	e.time(v.StartedAt)
	e.time(v.FinishedAt)
}

func (m queryRunMUS) Size(v QueryRun) int {
	e := encoder{}
	m.encode(&e, v)
	return e.n
}

func (m queryRunMUS) Marshal(v QueryRun, bs []byte) int {
	e := encoder{bs: bs}
	m.encode(&e, v)
	return e.n
}

func (queryRunMUS) Unmarshal(bs []byte) (QueryRun, int, error) {
	d := decoder{bs: bs}
	v := QueryRun{
		ID:    ID(d.uint64()),
		Query: d.string(),
		Scope: Scope(d.string()),
		Route: Route(d.int()),
	}
	if l := d.length(); l > 0 {
		v.Clauses = make([]Clause, 0, l)
		for i := 0; i < l && d.err == nil; i++ {
			v.Clauses = append(v.Clauses, decodeClause(&d))
		}
	}
	if l := d.length(); l > 0 {
		v.Gaps = make([]Gap, 0, l)
		for i := 0; i < l && d.err == nil; i++ {
			v.Gaps = append(v.Gaps, Gap{
				ClauseID: ID(d.uint64()),
				Text:     d.string(),
				Reason:   d.string(),
			})
		}
	}
	v.Status = RunStatus(d.int())
	v.IterationsUsed = d.int()
	v.StartedAt = d.time()
	v.FinishedAt = d.time()
	return v, d.n, d.err
}

type vectorRecordMUS struct{}

func (vectorRecordMUS) encode(e *encoder, v VectorRecord) {
	e.uint64(uint64(v.EvidenceID))
	e.fingerprint(v.Fingerprint)
	e.int(len(v.Vector))
	for _, f := range v.Vector {
		e.uint64(uint64(math.Float32bits(f)))
	}
}

func (m vectorRecordMUS) Size(v VectorRecord) int {
	e := encoder{}
	m.encode(&e, v)
	return e.n
}

func (m vectorRecordMUS) Marshal(v VectorRecord, bs []byte) int {
	e := encoder{bs: bs}
	m.encode(&e, v)
	return e.n
}

func (vectorRecordMUS) Unmarshal(bs []byte) (VectorRecord, int, error) {
	d := decoder{bs: bs}
	v := VectorRecord{
		EvidenceID:  ID(d.uint64()),
		Fingerprint: d.fingerprint(),
	}
	if l := d.length(); l > 0 {
		v.Vector = make([]float32, l)
		for i := 0; i < l && d.err == nil; i++ {
			v.Vector[i] = math.Float32frombits(uint32(d.uint64()))
		}
	}
	return v, d.n, d.err
}

type queueEntryMUS struct{}

func (queueEntryMUS) encode(e *encoder, v QueueEntry) {
	e.uint64(uint64(v.EvidenceID))
	e.string(string(v.Scope))
	e.fingerprint(v.Fingerprint)
	e.time(v.EnqueuedAt)
	e.int(v.Attempts)
}

func (m queueEntryMUS) Size(v QueueEntry) int {
	e := encoder{}
	m.encode(&e, v)
	return e.n
}

func (m queueEntryMUS) Marshal(v QueueEntry, bs []byte) int {
	e := encoder{bs: bs}
	m.encode(&e, v)
	return e.n
}

func (queueEntryMUS) Unmarshal(bs []byte) (QueueEntry, int, error) {
	d := decoder{bs: bs}
	v := QueueEntry{
		EvidenceID:  ID(d.uint64()),
		Scope:       Scope(d.string()),
		Fingerprint: d.fingerprint(),
		EnqueuedAt:  d.time(),
		Attempts:    d.int(),
	}
	return v, d.n, d.err
}
