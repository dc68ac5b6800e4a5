package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/attestor/ai"
	"github.com/poiesic/attestor/core"
	"github.com/poiesic/attestor/reembed"
	"github.com/poiesic/attestor/storage"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the number of units embedded per call.
	DefaultBatchSize = 16

	// DefaultScanInterval is how often the worker polls the queue without a trigger.
	DefaultScanInterval = 5 * time.Second

	defaultMaxRetries = 3
	defaultRetryDelay = 500 * time.Millisecond

	defaultMaxRetryDelay = 10 * time.Second
)

// WorkerStats describes the embedding backlog and the worker's lifetime counters.
type WorkerStats struct {
	Depth            int
	Retrying         int // queued entries with at least one failed attempt
	OldestPendingAge time.Duration
	Processed        int64 // units embedded
	Failed           int64 // failed embedding attempts
	Stale            int64 // units that changed or disappeared mid-flight
}

// EmbeddingWorker drains the embedding queue in the background.
// It is the only component that marks evidence units as embedded.
type EmbeddingWorker struct {
	queue        storage.EmbeddingQueue
	proc         processor
	pool         *ants.Pool
	batchSize    int
	poolSize     int
	scanInterval time.Duration
	backoff      reembed.Backoff
	logger       *slog.Logger

	trigger chan struct{}
	round   sync.Mutex // one round at a time so batches never overlap

	processed atomic.Int64
	failed    atomic.Int64
	stale     atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	running bool
}

// WorkerOption configures an EmbeddingWorker.
type WorkerOption func(*EmbeddingWorker) error

// WithBatchSize sets how many units are embedded per call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) WorkerOption {
	return func(w *EmbeddingWorker) error {
		if size < 1 {
			size = 1
		}
		w.batchSize = size
		return nil
	}
}

// WithPoolSize sets the number of batches embedded concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) WorkerOption {
	return func(w *EmbeddingWorker) error {
		if size < 1 {
			size = 1
		}
		w.poolSize = size
		return nil
	}
}

// WithScanInterval sets how often the worker polls the queue on its own.
func WithScanInterval(interval time.Duration) WorkerOption {
	return func(w *EmbeddingWorker) error {
		if interval <= 0 {
			interval = DefaultScanInterval
		}
		w.scanInterval = interval
		return nil
	}
}

// WithRateLimit caps embedding calls per second. Zero disables the limit.
func WithRateLimit(perSecond float64, burst int) WorkerOption {
	return func(w *EmbeddingWorker) error {
		if perSecond <= 0 {
			w.backoff.Limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		w.backoff.Limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithRetry sets the attempts and base backoff delay for embedding calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) WorkerOption {
	return func(w *EmbeddingWorker) error {
		if maxAttempts <= 0 {
			return reembed.ErrInvalidMaxAttempts
		}
		w.backoff.Attempts = maxAttempts
		w.backoff.BaseDelay = baseDelay
		return nil
	}
}

// WithWorkerLogger sets a custom logger.
// Default is slog.Default().
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *EmbeddingWorker) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// NewEmbeddingWorker creates a worker over the given queue.
// The worker does nothing until Start, Trigger or Drain is called.
func NewEmbeddingWorker(units storage.EvidenceRepository, queue storage.EmbeddingQueue, embedder ai.Embedder, opts ...WorkerOption) (*EmbeddingWorker, error) {
	if units == nil {
		return nil, ErrEvidenceRepositoryRequired
	}
	if queue == nil {
		return nil, ErrQueueRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	backoff := reembed.Backoff{
		Attempts:  defaultMaxRetries,
		BaseDelay: defaultRetryDelay,
		MaxDelay:  defaultMaxRetryDelay,
	}

	w := &EmbeddingWorker{
		queue:        queue,
		batchSize:    DefaultBatchSize,
		poolSize:     poolSize,
		scanInterval: DefaultScanInterval,
		backoff:      backoff,
		logger:       slog.Default(),
		trigger:      make(chan struct{}, 1),
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}
	w.logger = w.logger.With("component", "embedding-worker")

	pool, err := ants.NewPool(w.poolSize)
	if err != nil {
		return nil, err
	}
	w.pool = pool

	proc, err := newEmbeddingProcessor(units, queue, embedder, w.backoff, w.logger)
	if err != nil {
		pool.Release()
		return nil, err
	}
	w.proc = proc

	return w, nil
}

// Start runs the background loop until ctx is cancelled or Close is called.
func (w *EmbeddingWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkerClosed
	}
	if w.running {
		return ErrWorkerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(ctx, w.done)
	w.logger.Info("embedding worker started", "batch_size", w.batchSize, "pool_size", w.poolSize, "scan_interval", w.scanInterval)
	return nil
}

func (w *EmbeddingWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.scanInterval)
	defer ticker.Stop()

	// Pick up anything left from a previous process
	w.drainQuietly(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
			w.drainQuietly(ctx)
		case <-ticker.C:
			w.drainQuietly(ctx)
		}
	}
}

func (w *EmbeddingWorker) drainQuietly(ctx context.Context) {
	if err := w.drain(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("error draining embedding queue", "err", err)
	}
}

// Trigger wakes the background loop. It never blocks; triggers that arrive
// while one is already pending collapse into it.
func (w *EmbeddingWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Drain processes queued entries in the caller's goroutine until every
// entry has been attempted once in this drain. Entries that fail stay queued
// for a later drain; they never block the entries behind them.
func (w *EmbeddingWorker) Drain(ctx context.Context) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrWorkerClosed
	}
	return w.drain(ctx)
}

// attempt identifies one version of a queued unit. An entry whose text
// changed mid-flight is a new attempt.
type attempt struct {
	id          core.ID
	fingerprint core.Fingerprint
}

func (w *EmbeddingWorker) drain(ctx context.Context) error {
	tried := make(map[attempt]bool)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pulled, err := w.runRound(ctx, tried)
		if err != nil {
			return err
		}
		if pulled == 0 {
			return nil
		}
	}
}

// runRound pulls one round of entries not yet in tried, fans them out in
// batches and waits.
func (w *EmbeddingWorker) runRound(ctx context.Context, tried map[attempt]bool) (pulled int, err error) {
	w.round.Lock()
	defer w.round.Unlock()

	size := w.batchSize * w.poolSize
	pending, err := w.queue.Pending(ctx, size+len(tried))
	if err != nil {
		return 0, err
	}
	entries := make([]core.QueueEntry, 0, size)
	for _, e := range pending {
		key := attempt{id: e.EvidenceID, fingerprint: e.Fingerprint}
		if tried[key] {
			continue
		}
		tried[key] = true
		entries = append(entries, e)
		if len(entries) == size {
			break
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		total  reembed.BatchResult
		errs   []error
		submit error
	)
	for start := 0; start < len(entries); start += w.batchSize {
		batch := entries[start:min(start+w.batchSize, len(entries))]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			result, err := w.proc.process(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			total.Add(result)
			if err != nil {
				errs = append(errs, err)
			}
		}
		if submit = w.pool.Submit(task); submit != nil {
			wg.Done()
			break
		}
	}
	wg.Wait()

	w.processed.Add(int64(total.Embedded))
	w.failed.Add(int64(total.Failed))
	w.stale.Add(int64(total.Stale))

	if submit != nil {
		errs = append(errs, submit)
	}
	w.logger.Debug("embedding round finished", "entries", len(entries),
		"embedded", total.Embedded, "stale", total.Stale, "failed", total.Failed)

	return len(entries), errors.Join(errs...)
}

// Stats reports the queue backlog and the worker's counters.
func (w *EmbeddingWorker) Stats(ctx context.Context) (WorkerStats, error) {
	qs, err := w.queue.Stats(ctx)
	if err != nil {
		return WorkerStats{}, err
	}
	return WorkerStats{
		Depth:            qs.Depth,
		Retrying:         qs.Retrying,
		OldestPendingAge: qs.OldestPendingAge,
		Processed:        w.processed.Load(),
		Failed:           w.failed.Load(),
		Stale:            w.stale.Load(),
	}, nil
}

// Close stops the background loop, waits for the current round and releases
// the worker pool. The worker cannot be used afterwards.
func (w *EmbeddingWorker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	w.pool.Release()
	w.logger.Info("embedding worker stopped")
	return nil
}
