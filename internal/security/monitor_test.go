package security

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestMonitor(cfg Config) *Monitor {
	audit := NewAuditLog(zerolog.Nop(), 1000, time.Hour)
	m := NewMonitor(cfg, audit, zerolog.Nop())
	m.limiter.Stop()
	return m
}

func TestAuthAttemptsLimitedWithAudit(t *testing.T) {
	m := newTestMonitor(Config{
		Buckets: map[BucketClass]Policy{
			BucketAuth: {Max: 5, Window: 15 * time.Minute},
		},
		BlockAfterViolations: 100,
	})

	subject := Subject{IP: "1.2.3.4"}
	for i := 0; i < 5; i++ {
		if err := m.CheckAndRecord(subject, BucketAuth); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}

	err := m.CheckAndRecord(subject, BucketAuth)
	rl, ok := IsRateLimited(err)
	if !ok {
		t.Fatalf("attempt 6: got %v, want rate limit error", err)
	}
	if rl.RetryAfter < 0 {
		t.Errorf("RetryAfter = %v, want >= 0", rl.RetryAfter)
	}

	entries := m.Audit().Query(Filter{EventType: EventRateLimitExceeded, Subject: "1.2.3.4"})
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].EventType != EventRateLimitExceeded {
		t.Errorf("eventType = %q, want %q", entries[0].EventType, EventRateLimitExceeded)
	}
}

func TestRepeatedViolationsAutoBlock(t *testing.T) {
	m := newTestMonitor(Config{
		Buckets: map[BucketClass]Policy{
			BucketChat: {Max: 1, Window: time.Hour},
		},
		BlockAfterViolations: 3,
		ViolationBlockTTL:    time.Hour,
	})

	subject := Subject{IP: "6.6.6.6", UserID: "u1"}
	m.CheckAndRecord(subject, BucketChat) // consumes the window

	for i := 0; i < 3; i++ {
		err := m.CheckAndRecord(subject, BucketChat)
		if _, ok := IsRateLimited(err); !ok {
			t.Fatalf("violation %d: got %v, want rate limit error", i+1, err)
		}
	}

	if !m.IsBlocked("6.6.6.6") {
		t.Fatal("address not blocked after reaching the violation threshold")
	}
	if err := m.CheckAndRecord(subject, BucketChat); !errors.Is(err, ErrBlocked) {
		t.Fatalf("post-block check: got %v, want ErrBlocked", err)
	}

	blocked := m.Audit().Query(Filter{EventType: EventIPBlocked})
	if len(blocked) != 1 {
		t.Fatalf("ip-blocked audit entries = %d, want 1", len(blocked))
	}
	if blocked[0].Severity != SeverityCritical {
		t.Errorf("auto-block severity = %q, want critical", blocked[0].Severity)
	}
}

func TestExplicitBlockAndUnblock(t *testing.T) {
	m := newTestMonitor(Config{})

	m.BlockIP("5.5.5.5", "manual review")
	if !m.IsBlocked("5.5.5.5") {
		t.Fatal("explicitly blocked address not blocked")
	}

	if !m.UnblockIP("5.5.5.5") {
		t.Fatal("unblock reported failure for blocked address")
	}
	if m.IsBlocked("5.5.5.5") {
		t.Fatal("address still blocked after unblock")
	}
	if m.UnblockIP("5.5.5.5") {
		t.Fatal("unblock of non-blocked address reported success")
	}
}

func TestSuspiciousActivityAutoBlock(t *testing.T) {
	m := newTestMonitor(Config{
		BlockSuspiciousIPs:          true,
		SuspiciousActivityThreshold: 10,
	})

	subject := Subject{IP: "7.7.7.7"}
	m.RecordSuspicious(subject, 4, "malformed frames")
	if m.IsBlocked("7.7.7.7") {
		t.Fatal("blocked before crossing the threshold")
	}
	m.RecordSuspicious(subject, 6, "malformed frames")
	if !m.IsBlocked("7.7.7.7") {
		t.Fatal("not blocked after crossing the threshold")
	}
}

func TestSuspiciousActivityBlockDisabled(t *testing.T) {
	m := newTestMonitor(Config{
		BlockSuspiciousIPs:          false,
		SuspiciousActivityThreshold: 1,
	})
	m.RecordSuspicious(Subject{IP: "8.8.8.8"}, 5, "scanner")
	if m.IsBlocked("8.8.8.8") {
		t.Fatal("blocked although blockSuspiciousIps is disabled")
	}
}

func TestHealthVerdict(t *testing.T) {
	m := newTestMonitor(Config{
		AlertConnectionThreshold: 2,
	})

	if h := m.Health(); h.Status != "healthy" {
		t.Fatalf("status = %q, want healthy", h.Status)
	}

	m.ConnectionOpened()
	m.ConnectionOpened()
	h := m.Health()
	if h.Status != "warning" {
		t.Fatalf("status = %q, want warning at the connection threshold", h.Status)
	}
	if len(h.Warnings) != 1 {
		t.Errorf("warnings = %v, want exactly one", h.Warnings)
	}

	m.ConnectionClosed()
	if h := m.Health(); h.Status != "healthy" {
		t.Fatalf("status = %q, want healthy after close", h.Status)
	}
}

func TestSnapshotRates(t *testing.T) {
	m := newTestMonitor(Config{
		Buckets: map[BucketClass]Policy{
			BucketAPI: {Max: 1, Window: time.Hour},
		},
		BlockAfterViolations: 100,
	})

	subject := Subject{IP: "3.3.3.3"}
	m.CheckAndRecord(subject, BucketAPI)
	m.CheckAndRecord(subject, BucketAPI) // violation

	s := m.Snapshot()
	if s.TotalChecks != 2 {
		t.Errorf("TotalChecks = %d, want 2", s.TotalChecks)
	}
	if s.RateLimitViolations != 1 {
		t.Errorf("RateLimitViolations = %d, want 1", s.RateLimitViolations)
	}
	if s.ViolationRate != 0.5 {
		t.Errorf("ViolationRate = %v, want 0.5", s.ViolationRate)
	}
}

func TestSubjectKeyPrefersIdentity(t *testing.T) {
	if got := (Subject{IP: "1.1.1.1", UserID: "u9"}).Key(); got != "user:u9" {
		t.Errorf("Key() = %q, want user:u9", got)
	}
	if got := (Subject{IP: "1.1.1.1"}).Key(); got != "ip:1.1.1.1" {
		t.Errorf("Key() = %q, want ip:1.1.1.1", got)
	}
}

func TestConfigUpdateAppliesNewPolicies(t *testing.T) {
	m := newTestMonitor(Config{
		Buckets: map[BucketClass]Policy{
			BucketSearch: {Max: 1, Window: time.Hour},
		},
		BlockAfterViolations: 100,
	})

	subject := Subject{IP: "2.2.2.2"}
	m.CheckAndRecord(subject, BucketSearch)
	if err := m.CheckAndRecord(subject, BucketSearch); err == nil {
		t.Fatal("second search allowed under max=1")
	}

	cfg := m.Config()
	cfg.Buckets[BucketSearch] = Policy{Max: 100, Window: time.Hour}
	m.UpdateConfig(cfg)

	if err := m.CheckAndRecord(subject, BucketSearch); err != nil {
		t.Fatalf("search rejected after raising the limit: %v", err)
	}
}
