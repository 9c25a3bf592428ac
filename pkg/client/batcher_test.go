package client

import (
	"sync"
	"testing"
	"time"
)

type batchRecorder[T any] struct {
	mu      sync.Mutex
	batches [][]T
}

func (r *batchRecorder[T]) process(batch []T) {
	r.mu.Lock()
	r.batches = append(r.batches, append([]T(nil), batch...))
	r.mu.Unlock()
}

func (r *batchRecorder[T]) snapshot() [][]T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]T(nil), r.batches...)
}

func TestBatcherFlushesAtSize(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := NewBatcher(BatcherConfig{MaxBatchSize: 3, MaxWait: time.Hour}, rec.process)
	defer b.Close()

	for i := 1; i <= 3; i++ {
		b.Add(i)
	}

	batches := rec.snapshot()
	if len(batches) != 1 {
		t.Fatalf("batches = %v, want one size-triggered flush", batches)
	}
	if got := batches[0]; len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("batch = %v, want [1 2 3]", got)
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after flush, want 0", b.Len())
	}
}

func TestBatcherFlushesOnMaxWait(t *testing.T) {
	rec := &batchRecorder[string]{}
	b := NewBatcher(BatcherConfig{MaxBatchSize: 100, MaxWait: 20 * time.Millisecond}, rec.process)
	defer b.Close()

	b.Add("a")
	b.Add("b")

	deadline := time.Now().Add(time.Second)
	for {
		if batches := rec.snapshot(); len(batches) == 1 {
			if got := batches[0]; len(got) != 2 || got[0] != "a" {
				t.Fatalf("batch = %v, want [a b]", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("timer flush never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBatcherCloseFlushesRemainder(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := NewBatcher(BatcherConfig{MaxBatchSize: 100, MaxWait: time.Hour}, rec.process)

	b.Add(1)
	b.Add(2)
	b.Close()

	batches := rec.snapshot()
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("batches = %v, want the remainder flushed on close", batches)
	}

	b.Add(3) // no-op after close
	b.Flush()
	if batches := rec.snapshot(); len(batches) != 1 {
		t.Fatalf("batches = %v, add after close must not deliver", batches)
	}
}

func TestBatcherPreserveOrderSingleCall(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := NewBatcher(BatcherConfig{MaxBatchSize: 2, MaxWait: time.Hour, PreserveOrder: true}, rec.process)

	// Stuff the queue directly through Flush with more than one chunk.
	b.mu.Lock()
	b.items = []int{1, 2, 3, 4, 5}
	b.mu.Unlock()
	b.Flush()

	batches := rec.snapshot()
	if len(batches) != 1 || len(batches[0]) != 5 {
		t.Fatalf("batches = %v, want one ordered call", batches)
	}
}

func TestBatcherRelaxedModeChunks(t *testing.T) {
	rec := &batchRecorder[int]{}
	b := NewBatcher(BatcherConfig{MaxBatchSize: 2, MaxWait: time.Hour}, rec.process)

	b.mu.Lock()
	b.items = []int{1, 2, 3, 4, 5}
	b.mu.Unlock()
	b.Flush()

	batches := rec.snapshot()
	if len(batches) != 3 {
		t.Fatalf("batches = %v, want three size-bounded chunks", batches)
	}
	for i, batch := range batches[:2] {
		if len(batch) != 2 {
			t.Errorf("chunk %d = %v, want size 2", i, batch)
		}
	}
}
