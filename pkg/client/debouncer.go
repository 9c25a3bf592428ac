package client

import (
	"sync"
	"time"
)

// DebouncerConfig tunes a Debouncer. Zero values take defaults.
type DebouncerConfig struct {
	// Delay of silence before the trailing invocation (default 250ms).
	Delay time.Duration
	// Leading also fires immediately on the first call of a burst.
	Leading bool
	// MaxWait forces an invocation even under continuous activity; zero
	// disables the cap.
	MaxWait time.Duration
}

// Debouncer collapses a burst of calls into one trailing invocation after
// Delay of silence, optionally with a leading invocation as the burst
// starts.
type Debouncer struct {
	cfg DebouncerConfig
	fn  func()

	mu       sync.Mutex
	timer    *time.Timer
	maxTimer *time.Timer
	pending  bool
	closed   bool
}

func NewDebouncer(cfg DebouncerConfig, fn func()) *Debouncer {
	if cfg.Delay <= 0 {
		cfg.Delay = 250 * time.Millisecond
	}
	return &Debouncer{cfg: cfg, fn: fn}
}

// Call registers one occurrence of the debounced activity.
func (d *Debouncer) Call() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	leading := d.cfg.Leading && !d.pending
	d.pending = true

	if d.timer == nil {
		d.timer = time.AfterFunc(d.cfg.Delay, d.fire)
	} else {
		d.timer.Reset(d.cfg.Delay)
	}
	if d.cfg.MaxWait > 0 && d.maxTimer == nil {
		d.maxTimer = time.AfterFunc(d.cfg.MaxWait, d.fire)
	}
	d.mu.Unlock()

	if leading {
		d.fn()
	}
}

// fire is the trailing/max-wait invocation.
func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.closed || !d.pending {
		d.mu.Unlock()
		return
	}
	d.resetLocked()
	d.mu.Unlock()

	d.fn()
}

// Flush invokes immediately if a call is pending.
func (d *Debouncer) Flush() {
	d.fire()
}

// Close cancels pending timers; no invocation fires afterwards.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.resetLocked()
}

// resetLocked must be called with d.mu held.
func (d *Debouncer) resetLocked() {
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.maxTimer != nil {
		d.maxTimer.Stop()
		d.maxTimer = nil
	}
}
