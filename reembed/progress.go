package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker prints a running tally of a reembedding pass.
// A line is written each time another `every` units are done, and once more on Finish.
type ProgressTracker struct {
	mu       sync.Mutex
	w        io.Writer
	total    int
	every    int
	done     int
	reported int
	counts   BatchResult
	began    time.Time
}

// NewProgressTracker starts the clock for a pass over total units.
func NewProgressTracker(w io.Writer, total, every int) *ProgressTracker {
	if every < 1 {
		every = 1
	}
	return &ProgressTracker{w: w, total: total, every: every, began: time.Now()}
}

// Advance records a finished batch of n units and its outcome.
func (p *ProgressTracker) Advance(n int, batch BatchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = min(p.done+n, p.total)
	p.counts.Add(batch)
	if p.done-p.reported >= p.every {
		p.line()
		p.reported = p.done
	}
}

// Counts returns the outcome totals recorded so far.
func (p *ProgressTracker) Counts() BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts
}

// Finish writes the final line and returns the elapsed time.
func (p *ProgressTracker) Finish() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.line()
	fmt.Fprintln(p.w)
	return time.Since(p.began)
}

func (p *ProgressTracker) line() {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	rate := 0.0
	if secs := time.Since(p.began).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}
	fmt.Fprintf(p.w, "\rProgress: %d/%d (%.1f%%) embedded %d, failed %d, stale %d - %.1f units/s",
		p.done, p.total, pct, p.counts.Embedded, p.counts.Failed, p.counts.Stale, rate)
}
