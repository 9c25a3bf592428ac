package transport

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// fanoutPool runs room broadcasts off the per-connection handler goroutines.
// A bounded queue with task dropping provides backpressure: under overload
// fan-out work is shed instead of spawning unbounded goroutines.
type fanoutPool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	dropped atomic.Int64
	logger  zerolog.Logger
}

func newFanoutPool(workers, queueSize int, logger zerolog.Logger) *fanoutPool {
	if workers <= 0 {
		workers = 2 * runtime.GOMAXPROCS(0)
	}
	if queueSize <= 0 {
		queueSize = workers * 128
	}
	return &fanoutPool{
		workers: workers,
		tasks:   make(chan func(), queueSize),
		logger:  logger.With().Str("component", "fanout").Logger(),
	}
}

func (p *fanoutPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *fanoutPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			if task == nil {
				continue
			}
			p.run(task)
		case <-ctx.Done():
			return
		}
	}
}

// run executes one task behind a panic boundary; a panicking broadcast must
// not take the worker down with it.
func (p *fanoutPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("Fan-out task panicked")
		}
	}()
	task()
}

// Submit enqueues a task; when the queue is full the task is dropped and
// counted rather than blocking the caller.
func (p *fanoutPool) Submit(task func()) {
	select {
	case p.tasks <- task:
	default:
		p.dropped.Add(1)
	}
}

func (p *fanoutPool) Dropped() int64 { return p.dropped.Load() }

func (p *fanoutPool) QueueDepth() int { return len(p.tasks) }

// Stop waits for workers to exit; the context passed to Start must already
// be cancelled.
func (p *fanoutPool) Stop() {
	p.wg.Wait()
}
