package client

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestThrottlerLeadingEdge(t *testing.T) {
	th := NewThrottler(ThrottlerConfig{Interval: time.Hour, Leading: true})
	defer th.Close()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th.now = func() time.Time { return now }

	var count atomic.Int32
	th.Call(func() { count.Add(1) })
	if count.Load() != 1 {
		t.Fatalf("count = %d, want immediate leading invocation", count.Load())
	}

	// Inside the interval: suppressed, no trailing configured.
	now = now.Add(time.Minute)
	th.Call(func() { count.Add(1) })
	if count.Load() != 1 {
		t.Fatalf("count = %d, call inside the interval not suppressed", count.Load())
	}

	// Past the interval: leading fires again.
	now = now.Add(time.Hour)
	th.Call(func() { count.Add(1) })
	if count.Load() != 2 {
		t.Fatalf("count = %d after the interval elapsed, want 2", count.Load())
	}
}

func TestThrottlerTrailingDeliversLatest(t *testing.T) {
	th := NewThrottler(ThrottlerConfig{Interval: 30 * time.Millisecond, Leading: true, Trailing: true})
	defer th.Close()

	var got atomic.Int32
	th.Call(func() { got.Store(1) }) // leading
	th.Call(func() { got.Store(2) }) // suppressed, becomes pending
	th.Call(func() { got.Store(3) }) // replaces pending

	deadline := time.Now().Add(time.Second)
	for got.Load() != 3 {
		if time.Now().After(deadline) {
			t.Fatalf("got = %d, want the latest suppressed call on the trailing edge", got.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestThrottlerDefaultsToLeading(t *testing.T) {
	th := NewThrottler(ThrottlerConfig{Interval: time.Hour})
	defer th.Close()

	var count atomic.Int32
	th.Call(func() { count.Add(1) })
	if count.Load() != 1 {
		t.Fatalf("count = %d, want leading default when neither edge is set", count.Load())
	}
}

func TestThrottlerCloseCancelsTrailing(t *testing.T) {
	th := NewThrottler(ThrottlerConfig{Interval: 20 * time.Millisecond, Leading: true, Trailing: true})

	var count atomic.Int32
	th.Call(func() { count.Add(1) })
	th.Call(func() { count.Add(1) }) // pending trailing
	th.Close()

	time.Sleep(60 * time.Millisecond)
	if count.Load() != 1 {
		t.Fatalf("count = %d after close, want the trailing invocation cancelled", count.Load())
	}
}
