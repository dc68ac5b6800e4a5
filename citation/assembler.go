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


// Package citation turns the supports of accepted clauses into citation
// records and persists them with the finished run.
//
// A citation always keeps the text snapshot that was verified. Its
// EvidenceRef points at the live unit only while that unit is still active;
// units that were edited away or never existed at assembly time produce a
// nil reference, so an audit can tell which citations still resolve.
package citation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
	"github.com/poiesic/attestor/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrEvidenceRepositoryRequired is returned when an evidence repository is not provided.
	ErrEvidenceRepositoryRequired = errors.New("evidence repository required")

	// ErrRunRepositoryRequired is returned when a run repository is not provided.
	ErrRunRepositoryRequired = errors.New("run repository required")
)

// Assembler builds citation records against the current store state.
type Assembler struct {
	units  storage.EvidenceRepository
	runs   storage.RunRepository
	logger *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAssembler creates an assembler that resolves units from units and
// persists runs to runs.
func NewAssembler(units storage.EvidenceRepository, runs storage.RunRepository, opts ...Option) (*Assembler, error) {
	if units == nil {
		return nil, ErrEvidenceRepositoryRequired
	}
	if runs == nil {
		return nil, ErrRunRepositoryRequired
	}
	a := &Assembler{
		units:  units,
		runs:   runs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "citation")
	return a, nil
}

// Assemble returns one citation record per support of every accepted clause,
// in clause order. Clauses in any other status are skipped.
func (a *Assembler) Assemble(ctx context.Context, scope core.Scope, runID core.ID, clauses []core.Clause) (records []core.CitationRecord, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "citation.Assemble")
	defer func() { telemetry.End(span, err) }()
	span.SetAttributes(attribute.String("run.id", runID.String()))

	resolved := make(map[core.ID]bool)
	for i := range clauses {
		cited, err := a.cite(ctx, scope, &clauses[i], resolved)
		if err != nil {
			return nil, err
		}
		records = append(records, cited...)
	}
	span.SetAttributes(attribute.Int("citation.count", len(records)))
	return records, nil
}

// Record attaches citations to the accepted clauses of run and saves the run.
func (a *Assembler) Record(ctx context.Context, run *core.QueryRun) error {
	resolved := make(map[core.ID]bool)
	dangling := 0
	for i := range run.Clauses {
		cited, err := a.cite(ctx, run.Scope, &run.Clauses[i], resolved)
		if err != nil {
			return err
		}
		for _, c := range cited {
			if c.EvidenceRef == nil {
				dangling++
			}
		}
		run.Clauses[i].Citations = cited
	}

	if err := a.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	a.logger.Debug("run recorded",
		"run", run.ID,
		"clauses", len(run.Clauses),
		"dangling_citations", dangling)
	return nil
}

// cite resolves the supports of one clause. resolved memoizes unit liveness
// across the clauses of a run.
func (a *Assembler) cite(ctx context.Context, scope core.Scope, clause *core.Clause, resolved map[core.ID]bool) ([]core.CitationRecord, error) {
	if clause.Status != core.ClauseAccepted {
		return nil, nil
	}
	records := make([]core.CitationRecord, 0, len(clause.Supports))
	for _, s := range clause.Supports {
		live, ok := resolved[s.EvidenceID]
		if !ok {
			unit, err := a.units.GetUnit(ctx, scope, s.EvidenceID)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				live = false
			case err != nil:
				return nil, fmt.Errorf("resolve evidence %s: %w", s.EvidenceID, err)
			default:
				live = unit.Active()
			}
			resolved[s.EvidenceID] = live
		}

		record := core.CitationRecord{
			ClauseID:       clause.ID,
			DocumentID:     s.DocumentID,
			Position:       s.Position,
			TextSnapshot:   s.TextSnapshot,
			CompositeScore: s.CompositeScore,
			StageScores:    s.Scores,
		}
		if live {
			id := s.EvidenceID
			record.EvidenceRef = &id
		}
		records = append(records, record)
	}
	return records, nil
}
