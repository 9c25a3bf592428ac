package client

import (
	"sync"
	"time"
)

// BatcherConfig tunes a Batcher. Zero values take defaults.
type BatcherConfig struct {
	// MaxBatchSize flushes when this many items are queued (default 10).
	MaxBatchSize int
	// MaxWait flushes a non-empty partial batch after this long
	// (default 100ms).
	MaxWait time.Duration
	// PreserveOrder keeps strict FIFO: one flush drains exactly what is
	// queued, in order, as a single call. When false, an oversized drain
	// may be split into MaxBatchSize chunks for throughput.
	PreserveOrder bool
}

// Batcher accumulates items until MaxBatchSize or MaxWait, whichever comes
// first, then hands the whole batch to the processor in one call.
type Batcher[T any] struct {
	cfg     BatcherConfig
	process func([]T)

	mu     sync.Mutex
	items  []T
	timer  *time.Timer
	closed bool
}

func NewBatcher[T any](cfg BatcherConfig, process func([]T)) *Batcher[T] {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 10
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 100 * time.Millisecond
	}
	return &Batcher[T]{cfg: cfg, process: process}
}

// Add queues one item. The first item of a fresh batch arms the MaxWait
// timer; reaching MaxBatchSize flushes immediately.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.items = append(b.items, item)

	if len(b.items) >= b.cfg.MaxBatchSize {
		batch := b.drainLocked()
		b.mu.Unlock()
		b.dispatch(batch)
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.cfg.MaxWait, b.Flush)
	}
	b.mu.Unlock()
}

// Flush delivers everything queued right now.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	batch := b.drainLocked()
	b.mu.Unlock()
	b.dispatch(batch)
}

// Len returns the number of queued items.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Close flushes any remainder and stops the timer. Add becomes a no-op.
func (b *Batcher[T]) Close() {
	b.mu.Lock()
	b.closed = true
	batch := b.drainLocked()
	b.mu.Unlock()
	b.dispatch(batch)
}

// drainLocked must be called with b.mu held.
func (b *Batcher[T]) drainLocked() []T {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.items
	b.items = nil
	return batch
}

func (b *Batcher[T]) dispatch(batch []T) {
	if len(batch) == 0 || b.process == nil {
		return
	}
	if b.cfg.PreserveOrder {
		b.process(batch)
		return
	}
	// Relaxed mode: split oversized drains into size-bounded chunks.
	for len(batch) > b.cfg.MaxBatchSize {
		b.process(batch[:b.cfg.MaxBatchSize])
		batch = batch[b.cfg.MaxBatchSize:]
	}
	b.process(batch)
}
