package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

var errDialFailed = errors.New("dial failed")

func TestReconnectorSucceedsAfterRetries(t *testing.T) {
	var dials atomic.Int32
	dial := func(ctx context.Context) error {
		if dials.Add(1) < 3 {
			return errDialFailed
		}
		return nil
	}

	var attempts []int
	var successAt atomic.Int32
	done := make(chan struct{})
	r := NewReconnector(dial, ReconnectConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Breaker:      BreakerConfig{FailureThreshold: 100},
		OnAttempt:    func(n int) { attempts = append(attempts, n) },
		OnSuccess: func(n int) {
			successAt.Store(int32(n))
			close(done)
		},
	})
	defer r.Close()

	r.Start(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect never succeeded")
	}

	if successAt.Load() != 3 {
		t.Errorf("success on attempt %d, want 3", successAt.Load())
	}
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Errorf("attempts = %v, want [1 2 3]", attempts)
	}
}

func TestReconnectorBreakerSuppressesAttempts(t *testing.T) {
	var dials atomic.Int32
	dial := func(ctx context.Context) error {
		dials.Add(1)
		return errDialFailed
	}

	gaveUp := make(chan time.Duration, 1)
	r := NewReconnector(dial, ReconnectConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Breaker:      BreakerConfig{FailureThreshold: 2, Cooldown: time.Hour},
		OnGiveUp: func(retryIn time.Duration) {
			select {
			case gaveUp <- retryIn:
			default:
			}
		},
	})
	defer r.Close()

	r.Start(context.Background())
	select {
	case retryIn := <-gaveUp:
		if retryIn <= 0 {
			t.Errorf("retryIn = %v, want positive", retryIn)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("breaker never opened")
	}

	if got := dials.Load(); got != 2 {
		t.Errorf("dials = %d, want attempts stopped at the failure threshold", got)
	}
	if r.Breaker().State() != StateOpen {
		t.Errorf("breaker = %v, want open", r.Breaker().State())
	}
}

func TestReconnectorCloseSilencesCallbacks(t *testing.T) {
	block := make(chan struct{})
	dial := func(ctx context.Context) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return errDialFailed
	}

	var fired atomic.Int32
	r := NewReconnector(dial, ReconnectConfig{
		InitialDelay: time.Millisecond,
		OnGiveUp:     func(time.Duration) { fired.Add(1) },
		OnSuccess:    func(int) { fired.Add(1) },
	})

	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond) // let the loop reach the dial
	r.Close()
	close(block)
	time.Sleep(20 * time.Millisecond)

	if fired.Load() != 0 {
		t.Fatalf("%d callbacks fired after Close", fired.Load())
	}

	// A closed reconnector refuses further work.
	if err := r.ForceReconnect(context.Background()); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("ForceReconnect after close: got %v, want ErrBreakerOpen", err)
	}
}

func TestForceReconnectClosesBreaker(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	dial := func(ctx context.Context) error {
		if fail.Load() {
			return errDialFailed
		}
		return nil
	}

	r := NewReconnector(dial, ReconnectConfig{
		Breaker: BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour},
	})
	defer r.Close()

	if err := r.ForceReconnect(context.Background()); !errors.Is(err, errDialFailed) {
		t.Fatalf("got %v, want the dial error", err)
	}
	if r.Breaker().State() != StateOpen {
		t.Fatalf("breaker = %v after the failed dial, want open", r.Breaker().State())
	}

	// Manual reconnect ignores the open breaker and closes it on success.
	fail.Store(false)
	if err := r.ForceReconnect(context.Background()); err != nil {
		t.Fatalf("forced dial: %v", err)
	}
	if r.Breaker().State() != StateClosed {
		t.Fatalf("breaker = %v after forced success, want closed", r.Breaker().State())
	}
}

func TestReconnectorStartWhileRunningIsNoop(t *testing.T) {
	var dials atomic.Int32
	release := make(chan struct{})
	dial := func(ctx context.Context) error {
		dials.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}

	r := NewReconnector(dial, ReconnectConfig{InitialDelay: time.Millisecond})
	defer r.Close()

	r.Start(context.Background())
	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	close(release)
	time.Sleep(20 * time.Millisecond)

	if got := dials.Load(); got != 1 {
		t.Fatalf("dials = %d, want a single loop", got)
	}
}
