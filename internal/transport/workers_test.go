package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFanoutPoolRunsSubmittedTasks(t *testing.T) {
	p := newFanoutPool(2, 64, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Submit(func() {
			ran.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	cancel()
	p.Stop()

	if ran.Load() != 50 {
		t.Fatalf("ran = %d, want 50", ran.Load())
	}
	if p.Dropped() != 0 {
		t.Errorf("dropped = %d, want 0", p.Dropped())
	}
}

func TestFanoutPoolDropsWhenQueueFull(t *testing.T) {
	p := newFanoutPool(1, 1, zerolog.Nop())
	// Not started: nothing drains the queue.
	p.Submit(func() {})
	p.Submit(func() {})
	p.Submit(func() {})

	if got := p.Dropped(); got != 2 {
		t.Fatalf("dropped = %d, want overflow shed instead of blocking", got)
	}
	if p.QueueDepth() != 1 {
		t.Errorf("queue depth = %d, want 1", p.QueueDepth())
	}
}

func TestFanoutPoolSurvivesPanickingTask(t *testing.T) {
	p := newFanoutPool(1, 8, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	p.Submit(func() { panic("broadcast failed") })

	done := make(chan struct{})
	p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panicking task")
	}

	cancel()
	p.Stop()
}
