package client

import (
	"sync"
	"time"
)

// ThrottlerConfig tunes a Throttler. Zero values take defaults.
type ThrottlerConfig struct {
	// Interval is the minimum spacing between invocations (default 100ms).
	Interval time.Duration
	// Leading runs the first call of an idle period immediately
	// (default when neither edge is set).
	Leading bool
	// Trailing guarantees the last call of a burst runs when the interval
	// elapses, with that call's arguments.
	Trailing bool
}

// Throttler invokes at most once per interval. Calls inside the interval
// are coalesced; with Trailing set, the most recent suppressed call runs on
// the trailing edge.
type Throttler struct {
	cfg ThrottlerConfig

	mu      sync.Mutex
	last    time.Time
	pending func()
	timer   *time.Timer
	closed  bool

	now func() time.Time // test hook
}

func NewThrottler(cfg ThrottlerConfig) *Throttler {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if !cfg.Leading && !cfg.Trailing {
		cfg.Leading = true
	}
	return &Throttler{cfg: cfg, now: time.Now}
}

// Call requests an invocation of fn. Bind arguments by closure; the
// trailing edge always delivers the latest bound arguments.
func (t *Throttler) Call(fn func()) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	now := t.now()
	elapsed := now.Sub(t.last)

	if elapsed >= t.cfg.Interval && t.cfg.Leading {
		t.last = now
		t.mu.Unlock()
		fn()
		return
	}

	if !t.cfg.Trailing {
		t.mu.Unlock()
		return
	}

	t.pending = fn
	if t.timer == nil {
		wait := t.cfg.Interval - elapsed
		if wait <= 0 {
			wait = t.cfg.Interval
		}
		t.timer = time.AfterFunc(wait, t.fireTrailing)
	}
	t.mu.Unlock()
}

func (t *Throttler) fireTrailing() {
	t.mu.Lock()
	fn := t.pending
	t.pending = nil
	t.timer = nil
	if fn != nil {
		t.last = t.now()
	}
	closed := t.closed
	t.mu.Unlock()

	if fn != nil && !closed {
		fn()
	}
}

// Close cancels any armed trailing invocation.
func (t *Throttler) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.pending = nil
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
