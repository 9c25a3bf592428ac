package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when an attempt is refused by the breaker.
var ErrBreakerOpen = errors.New("circuit breaker open")

// ReconnectConfig tunes the reconnect loop. Zero values take defaults.
type ReconnectConfig struct {
	// InitialDelay before the first retry (default 500ms); doubles per
	// failed attempt up to MaxDelay (default 30s).
	InitialDelay time.Duration
	MaxDelay     time.Duration

	Breaker BreakerConfig

	// OnAttempt fires before each try with the attempt number (1-based).
	OnAttempt func(attempt int)
	// OnSuccess fires when a try succeeds, with the attempt that won.
	OnSuccess func(attempt int)
	// OnGiveUp fires when the breaker opens: retries are suppressed until
	// the cooldown elapses. The UI should surface persistent disconnection.
	OnGiveUp func(retryIn time.Duration)
}

// Reconnector drives a dial function through exponential backoff gated by a
// circuit breaker. Teardown is deterministic: after Close returns, no
// callback fires.
type Reconnector struct {
	dial func(ctx context.Context) error
	cfg  ReconnectConfig

	breaker *CircuitBreaker

	mu      sync.Mutex
	attempt int
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewReconnector(dial func(ctx context.Context) error, cfg ReconnectConfig) *Reconnector {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Reconnector{
		dial:    dial,
		cfg:     cfg,
		breaker: NewCircuitBreaker(cfg.Breaker),
	}
}

// Breaker exposes the underlying breaker for state inspection.
func (r *Reconnector) Breaker() *CircuitBreaker { return r.breaker }

// Start launches the reconnect loop in the background. It returns
// immediately; progress is reported through the configured callbacks.
// Calling Start while a loop is running is a no-op.
func (r *Reconnector) Start(ctx context.Context) {
	r.mu.Lock()
	if r.closed || r.done != nil {
		r.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	done := make(chan struct{})
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			r.mu.Lock()
			r.done = nil
			r.cancel = nil
			r.mu.Unlock()
		}()
		r.loop(loopCtx)
	}()
}

func (r *Reconnector) loop(ctx context.Context) {
	delay := r.cfg.InitialDelay

	for {
		if ctx.Err() != nil {
			return
		}

		if !r.breaker.Allow() {
			retryIn := r.breaker.RetryIn()
			r.emitGiveUp(retryIn)
			if !sleep(ctx, retryIn) {
				return
			}
			continue
		}

		r.mu.Lock()
		r.attempt++
		attempt := r.attempt
		r.mu.Unlock()
		r.emitAttempt(attempt)

		err := r.dial(ctx)
		if err == nil {
			r.breaker.RecordSuccess()
			r.mu.Lock()
			r.attempt = 0
			r.mu.Unlock()
			r.emitSuccess(attempt)
			return
		}
		if ctx.Err() != nil {
			return
		}
		r.breaker.RecordFailure()

		if !sleep(ctx, delay) {
			return
		}
		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}
}

// ForceReconnect dials once immediately, in any breaker state. Success
// behaves as a successful probe (breaker closes); failure as a probe
// failure. Returns the dial error, or ErrBreakerOpen only when the
// reconnector is already closed.
func (r *Reconnector) ForceReconnect(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrBreakerOpen
	}
	r.attempt++
	attempt := r.attempt
	r.mu.Unlock()

	r.emitAttempt(attempt)
	err := r.dial(ctx)
	if err == nil {
		r.breaker.RecordSuccess()
		r.mu.Lock()
		r.attempt = 0
		r.mu.Unlock()
		r.emitSuccess(attempt)
		return nil
	}
	r.breaker.RecordFailure()
	if r.breaker.State() == StateOpen {
		r.emitGiveUp(r.breaker.RetryIn())
	}
	return err
}

// Close cancels any in-flight loop and waits for it to exit. No callback
// fires after Close returns.
func (r *Reconnector) Close() {
	r.mu.Lock()
	r.closed = true
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Callback emission checks the closed flag so a torn-down reconnector is
// silent even if the loop is mid-iteration.
func (r *Reconnector) emitAttempt(n int) {
	if r.cfg.OnAttempt != nil && !r.isClosed() {
		r.cfg.OnAttempt(n)
	}
}

func (r *Reconnector) emitSuccess(n int) {
	if r.cfg.OnSuccess != nil && !r.isClosed() {
		r.cfg.OnSuccess(n)
	}
}

func (r *Reconnector) emitGiveUp(retryIn time.Duration) {
	if r.cfg.OnGiveUp != nil && !r.isClosed() {
		r.cfg.OnGiveUp(retryIn)
	}
}

func (r *Reconnector) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// sleep waits d or until ctx is done; reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
