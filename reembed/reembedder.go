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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/storage"
	"golang.org/x/time/rate"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of units to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of units)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// MaxRetryDelay caps a single backoff wait; zero means uncapped
	MaxRetryDelay time.Duration

	// RequestsPerSecond caps embedding calls; zero means unlimited
	RequestsPerSecond float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		MaxRetryDelay:  30 * time.Second,
	}
}

// Reembedder re-queues and re-embeds every active unit in a scope.
type Reembedder struct {
	units     storage.EvidenceRepository
	queue     storage.EmbeddingQueue
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(units storage.EvidenceRepository, queue storage.EmbeddingQueue, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}

	backoff := Backoff{
		Attempts:  config.MaxRetries,
		BaseDelay: config.RetryDelay,
		MaxDelay:  config.MaxRetryDelay,
	}
	if config.RequestsPerSecond > 0 {
		backoff.Limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Reembedder{
		units:     units,
		queue:     queue,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(units, queue, embedder, backoff),
	}
}

// WithLogger sets the logger used by the underlying batch processor.
func (r *Reembedder) WithLogger(logger *slog.Logger) *Reembedder {
	r.processor.WithLogger(logger)
	return r
}

// Run re-embeds all active units in scope with the configured embedder.
// Each batch is enqueued before it is embedded. Units keep serving their
// previous vector until the new one is stored.
// Progress is reported to the configured writer.
func (r *Reembedder) Run(ctx context.Context, scope core.Scope) (BatchResult, error) {
	var result BatchResult

	total := 0
	err := r.units.ForEachActive(ctx, scope, r.config.BatchSize, func(units []*core.EvidenceUnit) error {
		total += len(units)
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to count units: %w", err)
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No evidence found in scope %q (0 units)\n", scope)
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d units (batch size: %d)\n", total, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)

	processed := 0
	err = r.units.ForEachActive(ctx, scope, r.config.BatchSize, func(units []*core.EvidenceUnit) error {
		ids := make([]core.ID, len(units))
		for i, u := range units {
			ids[i] = u.ID
		}
		if err := r.queue.Enqueue(ctx, ids...); err != nil {
			return fmt.Errorf("failed to enqueue batch: %w", err)
		}

		batch, err := r.processor.ProcessUnits(ctx, units)
		result.Add(batch)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		processed += len(units)
		tracker.Advance(len(units), batch)
		return nil
	})
	if err != nil {
		return result, err
	}

	elapsed := tracker.Finish()
	fmt.Fprintf(r.progress, "Reembedding complete. Embedded %d units in %v (%.1f units/sec, %d failed, %d stale)\n",
		result.Embedded, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds(), result.Failed, result.Stale)

	return result, nil
}
