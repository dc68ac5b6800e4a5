package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// String renders the ID in decimal form.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// UnitID returns the identity of the evidence unit at a (document, position) pair
// within a scope. Identity is positional: the same slot keeps its ID across edits.
func UnitID(scope Scope, documentID string, position int) ID {
	return IDFromContent(string(scope) + "\x1f" + documentID + "\x1f" + strconv.Itoa(position))
}

// Scope is an opaque authorization token supplied by the caller.
// It is threaded through every store and retriever call without being interpreted.
type Scope string

// Fingerprint is a BLAKE2b-128 digest of normalized evidence text.
type Fingerprint [16]byte

// IsZero reports whether the fingerprint has never been set.
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// NormalizeText trims text, collapses runs of whitespace into single spaces
// and case-folds the result.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// FingerprintText computes the fingerprint of the normalized form of text.
func FingerprintText(text string) Fingerprint {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(NormalizeText(text)))
	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// EmbeddingStatus tracks whether an evidence unit is visible to the vector lane.
type EmbeddingStatus int

const (
	// EmbeddingPending means the unit is waiting in the embedding queue.
	EmbeddingPending EmbeddingStatus = iota + 1
	// EmbeddingEmbedded means the unit's current text has a stored vector.
	EmbeddingEmbedded
)

func (s EmbeddingStatus) String() string {
	switch s {
	case EmbeddingPending:
		return "pending"
	case EmbeddingEmbedded:
		return "embedded"
	default:
		return "unknown"
	}
}

// EvidenceUnit is the latest state of one atomic piece of evidence (a sentence)
// at a fixed (document, position) slot.
type EvidenceUnit struct {
	ID              ID
	Scope           Scope
	DocumentID      string
	Position        int
	Fingerprint     Fingerprint
	Text            string
	TermCount       int // Number of indexed terms, used for lexical length normalization
	EmbeddingStatus EmbeddingStatus
	Tombstoned      bool      // Removed from active lookup; kept so snapshots stay explainable
	InsertedAt      time.Time // When the slot was first populated
	UpdatedAt       time.Time // When the text or status last changed
}

// Active reports whether the unit participates in retrieval.
func (u *EvidenceUnit) Active() bool {
	return u != nil && !u.Tombstoned
}

// DiffResult describes what one reconciliation changed.
type DiffResult struct {
	DocumentID string
	Added      []ID
	Changed    []ID
	Removed    []ID
	Unchanged  int
}

// Empty reports whether the reconciliation was a no-op.
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Changed) == 0 && len(d.Removed) == 0
}

// Enqueued returns the IDs that were handed to the embedding queue.
func (d *DiffResult) Enqueued() []ID {
	out := make([]ID, 0, len(d.Added)+len(d.Changed))
	out = append(out, d.Added...)
	return append(out, d.Changed...)
}

// Lane identifies a retrieval strategy.
type Lane int

const (
	// LaneVector is embedding-similarity retrieval.
	LaneVector Lane = iota + 1
	// LaneLexical is full-text retrieval.
	LaneLexical
)

func (l Lane) String() string {
	switch l {
	case LaneVector:
		return "vector"
	case LaneLexical:
		return "lexical"
	default:
		return "unknown"
	}
}

// LaneHit is a single lane's raw result for one evidence unit.
type LaneHit struct {
	EvidenceID ID
	RawScore   float64
}

// Candidate is a merged retrieval result for one evidence unit.
// It only lives for the duration of one retrieval call.
type Candidate struct {
	Unit       *EvidenceUnit
	Lanes      []Lane
	LaneScores map[Lane]float64 // normalized per-lane scores in [0,1]
	Score      float64          // merged score in [0,1]
}

// InLane reports whether the candidate was returned by the given lane.
func (c *Candidate) InLane(l Lane) bool {
	for _, lane := range c.Lanes {
		if lane == l {
			return true
		}
	}
	return false
}

// EntailmentLabel classifies how a passage relates to a clause.
type EntailmentLabel int

const (
	EntailmentSupport EntailmentLabel = iota + 1
	EntailmentNeutral
	EntailmentContradict
)

func (e EntailmentLabel) String() string {
	switch e {
	case EntailmentSupport:
		return "support"
	case EntailmentNeutral:
		return "neutral"
	case EntailmentContradict:
		return "contradict"
	default:
		return "unknown"
	}
}

// Entailment is a judged label with the judge's confidence in [0,1].
type Entailment struct {
	Label      EntailmentLabel
	Confidence float64
}

// StageScores records the per-stage scores behind a composite score.
type StageScores struct {
	Similarity float64
	Rerank     float64
	Entailment float64
}

// Support is a verified piece of evidence for (or against) a clause.
type Support struct {
	EvidenceID     ID
	DocumentID     string
	Position       int
	TextSnapshot   string
	Label          EntailmentLabel
	Scores         StageScores
	CompositeScore float64
}

// ClauseStatus is the lifecycle state of a clause within one query run.
type ClauseStatus int

const (
	ClauseProposed ClauseStatus = iota + 1
	ClauseAccepted
	ClauseRevising
	ClauseAbandoned
)

func (s ClauseStatus) String() string {
	switch s {
	case ClauseProposed:
		return "proposed"
	case ClauseAccepted:
		return "accepted"
	case ClauseRevising:
		return "revising"
	case ClauseAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Clause is a single verifiable statement proposed as part of an answer.
type Clause struct {
	ID             ID
	Text           string
	Subquery       string
	Status         ClauseStatus
	RevisionCount  int
	Confidence     float64
	Supports       []Support // qualifying supports for accepted clauses, partial evidence otherwise
	Contradictions []Support
	Citations      []CitationRecord
}

// CitationRecord is the persisted link between an accepted clause and its evidence.
// EvidenceRef is nil when the unit no longer exists at assembly time.
type CitationRecord struct {
	ClauseID       ID
	EvidenceRef    *ID
	DocumentID     string
	Position       int
	TextSnapshot   string
	CompositeScore float64
	StageScores    StageScores
}

// Route selects between single-pass and iterative answering.
type Route int

const (
	RouteFast Route = iota + 1
	RouteReason
)

func (r Route) String() string {
	switch r {
	case RouteFast:
		return "fast"
	case RouteReason:
		return "reason"
	default:
		return "unknown"
	}
}

// RunStatus reports whether every proposed clause was accepted.
type RunStatus int

const (
	RunComplete RunStatus = iota + 1
	RunPartial
)

func (s RunStatus) String() string {
	switch s {
	case RunComplete:
		return "complete"
	case RunPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Gap marks a clause that could not be supported by the corpus.
type Gap struct {
	ClauseID ID
	Text     string
	Reason   string
}

// QueryRun is the caller-facing result of answering one query.
type QueryRun struct {
	ID             ID
	Query          string
	Scope          Scope
	Route          Route
	Clauses        []Clause
	Gaps           []Gap
	Status         RunStatus
	IterationsUsed int
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Accepted returns the accepted clauses in proposal order.
func (r *QueryRun) Accepted() []Clause {
	out := make([]Clause, 0, len(r.Clauses))
	for _, c := range r.Clauses {
		if c.Status == ClauseAccepted {
			out = append(out, c)
		}
	}
	return out
}

// VectorRecord is the stored embedding of one evidence unit's text.
// Fingerprint identifies the exact text that was embedded.
type VectorRecord struct {
	EvidenceID  ID
	Fingerprint Fingerprint
	Vector      []float32
}

// QueueEntry is a pending embedding request for one evidence unit.
type QueueEntry struct {
	EvidenceID  ID
	Scope       Scope
	Fingerprint Fingerprint // text version at the time of the latest enqueue
	EnqueuedAt  time.Time   // first enqueue; duplicates keep the original time
	Attempts    int
}
