package client

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker's position.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// BreakerConfig tunes the breaker. Zero values take defaults.
type BreakerConfig struct {
	// FailureThreshold is how many consecutive failures open the breaker
	// (default 5).
	FailureThreshold int
	// Cooldown before an open breaker allows its half-open probe
	// (default 30s). Doubles on every failed probe up to MaxCooldown.
	Cooldown    time.Duration
	MaxCooldown time.Duration
}

// CircuitBreaker suppresses reconnect attempts after repeated failures.
// closed: attempts flow. open: attempts refused until the cooldown elapses,
// then exactly one probe is allowed (half-open). Probe success closes the
// breaker; probe failure reopens it with the cooldown doubled, capped.
type CircuitBreaker struct {
	mu sync.Mutex

	state    BreakerState
	failures int

	threshold    int
	baseCooldown time.Duration
	cooldown     time.Duration
	maxCooldown  time.Duration
	openedAt     time.Time

	now func() time.Time // test hook
}

func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MaxCooldown <= 0 {
		cfg.MaxCooldown = 5 * time.Minute
	}
	return &CircuitBreaker{
		state:        StateClosed,
		threshold:    cfg.FailureThreshold,
		baseCooldown: cfg.Cooldown,
		cooldown:     cfg.Cooldown,
		maxCooldown:  cfg.MaxCooldown,
		now:          time.Now,
	}
}

// Allow reports whether an attempt may proceed now. When an open breaker's
// cooldown has elapsed, Allow transitions to half-open and admits exactly
// one probe; further calls are refused until that probe resolves.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cooldown {
			cb.state = StateHalfOpen
			return true
		}
		return false
	default: // half-open, probe in flight
		return false
	}
}

// RecordSuccess closes the breaker: failure counter zeroed, cooldown reset.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.cooldown = cb.baseCooldown
}

// RecordFailure counts one failed attempt. A failed half-open probe reopens
// with the cooldown doubled up to the cap; reaching the threshold while
// closed opens the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch cb.state {
	case StateHalfOpen:
		cb.cooldown *= 2
		if cb.cooldown > cb.maxCooldown {
			cb.cooldown = cb.maxCooldown
		}
		cb.open()
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.open()
		}
	case StateOpen:
		// Counted; timing unchanged.
	}
}

// open must be called with cb.mu held.
func (cb *CircuitBreaker) open() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
}

// State returns the current position.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// RetryIn reports how long until an open breaker admits its probe; zero
// when an attempt is allowed now.
func (cb *CircuitBreaker) RetryIn() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	remaining := cb.cooldown - cb.now().Sub(cb.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}
