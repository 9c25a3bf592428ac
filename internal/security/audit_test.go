package security

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAuditQueryFilters(t *testing.T) {
	a := NewAuditLog(zerolog.Nop(), 100, time.Hour)
	a.Record(AuditEntry{EventType: EventRateLimitExceeded, Subject: "1.1.1.1", Severity: SeverityLow})
	a.Record(AuditEntry{EventType: EventRateLimitExceeded, Subject: "2.2.2.2", Severity: SeverityMedium})
	a.Record(AuditEntry{EventType: EventIPBlocked, Subject: "2.2.2.2", Severity: SeverityCritical})

	if got := a.Query(Filter{EventType: EventRateLimitExceeded}); len(got) != 2 {
		t.Errorf("by event type: %d entries, want 2", len(got))
	}
	if got := a.Query(Filter{Subject: "2.2.2.2"}); len(got) != 2 {
		t.Errorf("by subject: %d entries, want 2", len(got))
	}
	if got := a.Query(Filter{Severity: SeverityCritical}); len(got) != 1 {
		t.Errorf("by severity: %d entries, want 1", len(got))
	}
	if got := a.Query(Filter{Limit: 2}); len(got) != 2 {
		t.Errorf("limited: %d entries, want 2", len(got))
	}
}

func TestAuditQueryNewestFirst(t *testing.T) {
	a := NewAuditLog(zerolog.Nop(), 100, time.Hour)
	base := time.Now()
	a.now = func() time.Time { return base }
	a.Record(AuditEntry{EventType: "first"})
	a.now = func() time.Time { return base.Add(time.Second) }
	a.Record(AuditEntry{EventType: "second"})

	got := a.Query(Filter{})
	if len(got) != 2 || got[0].EventType != "second" {
		t.Fatalf("order = %v, want newest first", got)
	}
}

func TestAuditCountRetention(t *testing.T) {
	a := NewAuditLog(zerolog.Nop(), 3, time.Hour)
	for i := 0; i < 5; i++ {
		a.Record(AuditEntry{EventType: EventSuspiciousActivity})
	}
	if a.Len() != 3 {
		t.Fatalf("Len = %d, want trimmed to the cap", a.Len())
	}
}

func TestAuditAgeRetention(t *testing.T) {
	a := NewAuditLog(zerolog.Nop(), 100, time.Hour)
	base := time.Now()
	a.now = func() time.Time { return base }
	a.Record(AuditEntry{EventType: "old"})

	a.now = func() time.Time { return base.Add(2 * time.Hour) }
	a.Record(AuditEntry{EventType: "fresh"})

	if a.Len() != 1 {
		t.Fatalf("Len = %d, want the aged entry dropped", a.Len())
	}
	if got := a.Query(Filter{}); got[0].EventType != "fresh" {
		t.Fatalf("surviving entry = %q, want fresh", got[0].EventType)
	}
}

type captureAlerter struct {
	alerts []string
}

func (c *captureAlerter) Alert(severity, message string, metadata map[string]any) {
	c.alerts = append(c.alerts, severity)
}

func TestAuditAlertsOnHighSeverity(t *testing.T) {
	a := NewAuditLog(zerolog.Nop(), 100, time.Hour)
	alerter := &captureAlerter{}
	a.SetAlerter(alerter)

	a.Record(AuditEntry{EventType: "x", Severity: SeverityLow})
	a.Record(AuditEntry{EventType: "x", Severity: SeverityMedium})
	a.Record(AuditEntry{EventType: "x", Severity: SeverityHigh})
	a.Record(AuditEntry{EventType: "x", Severity: SeverityCritical})

	if len(alerter.alerts) != 2 {
		t.Fatalf("alerts = %v, want only high and critical forwarded", alerter.alerts)
	}
}
