// Package progress delivers pipeline progress lines to the caller in
// coalesced batches and runs pipelines on dedicated background workers
// with a minimum wall-clock duration.
package progress

import (
	"sync"
	"time"

	"github.com/wiltondb-tools/bbfbackup/internal/models"
)

const (
	// DefaultInterval bounds how often progress batches are flushed.
	DefaultInterval = 100 * time.Millisecond

	// DefaultMinDuration keeps fast local runs from flashing by
	// before the caller can show anything.
	DefaultMinDuration = time.Second
)

// Batcher coalesces progress lines: lines sent within one interval are
// delivered as a single ordered batch through the flush callback. Send
// is fire-and-forget and safe for concurrent use.
type Batcher struct {
	interval time.Duration
	flush    func(batch []string)

	mu      sync.Mutex
	pending []string
	timer   *time.Timer
	closed  bool
}

// NewBatcher creates a batcher flushing at most once per interval.
func NewBatcher(interval time.Duration, flush func(batch []string)) *Batcher {
	return &Batcher{interval: interval, flush: flush}
}

// Send queues one line. It never blocks on the flush callback.
func (b *Batcher) Send(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.pending = append(b.pending, line)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.interval, b.fire)
	}
}

func (b *Batcher) fire() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()
	if len(batch) > 0 {
		b.flush(batch)
	}
}

// Close flushes any pending lines and rejects everything sent after it.
func (b *Batcher) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(batch) > 0 {
		b.flush(batch)
	}
}

// Handle joins a pipeline running on its background worker.
type Handle struct {
	done   chan struct{}
	result models.PipelineResult
}

// Run executes task on a dedicated goroutine so the caller stays free
// to handle other events. The completion signal fires exactly once,
// after the batcher has flushed all progress, and never before
// minDuration has elapsed. There is no cancellation: once started, the
// task runs to completion or failure.
func Run(minDuration time.Duration, b *Batcher, task func(sink func(line string)) models.PipelineResult) *Handle {
	h := &Handle{done: make(chan struct{})}
	go func() {
		start := time.Now()
		res := task(b.Send)
		b.Close()
		if remaining := minDuration - time.Since(start); remaining > 0 {
			time.Sleep(remaining)
		}
		h.result = res
		close(h.done)
	}()
	return h
}

// Join blocks until the pipeline finishes and returns its result.
func (h *Handle) Join() models.PipelineResult {
	<-h.done
	return h.result
}

// Done exposes the completion signal for select loops.
func (h *Handle) Done() <-chan struct{} { return h.done }
