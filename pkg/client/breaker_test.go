package client

import (
	"testing"
	"time"
)

func newTestBreaker(cfg BreakerConfig) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3, Cooldown: 30 * time.Second})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		if cb.State() != StateClosed {
			t.Fatalf("state = %v after %d failures, want closed", cb.State(), i+1)
		}
	}
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state = %v at the threshold, want open", cb.State())
	}
	if cb.Allow() {
		t.Fatal("open breaker allowed an attempt inside the cooldown")
	}
}

func TestBreakerAdmitsSingleProbeAfterCooldown(t *testing.T) {
	cb, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 30 * time.Second})
	cb.RecordFailure()

	*now = now.Add(29 * time.Second)
	if cb.Allow() {
		t.Fatal("allowed before the cooldown elapsed")
	}

	*now = now.Add(2 * time.Second)
	if !cb.Allow() {
		t.Fatal("probe refused after the cooldown elapsed")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}
	if cb.Allow() {
		t.Fatal("second attempt admitted while the probe is in flight")
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	cb, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, Cooldown: 30 * time.Second})
	cb.RecordFailure()
	*now = now.Add(31 * time.Second)
	cb.Allow()

	cb.RecordSuccess()
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Fatalf("state=%v failures=%d after probe success, want closed/0", cb.State(), cb.Failures())
	}
	if !cb.Allow() {
		t.Fatal("closed breaker refused an attempt")
	}
}

func TestBreakerProbeFailureDoublesCooldown(t *testing.T) {
	cb, now := newTestBreaker(BreakerConfig{
		FailureThreshold: 1,
		Cooldown:         30 * time.Second,
		MaxCooldown:      100 * time.Second,
	})
	cb.RecordFailure()

	// First probe fails: cooldown 30s -> 60s.
	*now = now.Add(31 * time.Second)
	cb.Allow()
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state = %v after failed probe, want open", cb.State())
	}
	if got := cb.RetryIn(); got != 60*time.Second {
		t.Fatalf("RetryIn = %v, want the doubled cooldown", got)
	}

	// Second probe fails: 60s -> 120s, capped at 100s.
	*now = now.Add(61 * time.Second)
	cb.Allow()
	cb.RecordFailure()
	if got := cb.RetryIn(); got != 100*time.Second {
		t.Fatalf("RetryIn = %v, want the capped cooldown", got)
	}

	// Success resets the cooldown to its base.
	*now = now.Add(101 * time.Second)
	cb.Allow()
	cb.RecordSuccess()
	cb.RecordFailure()
	if got := cb.RetryIn(); got != 30*time.Second {
		t.Fatalf("RetryIn = %v after reset, want the base cooldown", got)
	}
}

func TestBreakerRetryInZeroWhenClosed(t *testing.T) {
	cb, _ := newTestBreaker(BreakerConfig{})
	if got := cb.RetryIn(); got != 0 {
		t.Fatalf("RetryIn = %v for a closed breaker, want 0", got)
	}
}
