package security

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/monitoring"
)

// Severity of an audit event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Audit event types.
const (
	EventConnectionRejected = "connection-rejected"
	EventRateLimitExceeded  = "rate-limit-exceeded"
	EventIPBlocked          = "ip-blocked"
	EventIPUnblocked        = "ip-unblocked"
	EventSuspiciousActivity = "suspicious-activity"
	EventHandlerPanic       = "handler-panic"
	EventAuthFailure        = "auth-failure"
)

// AuditEntry is one append-only security event. Entries are never mutated
// after creation; the log is trimmed by age and count only.
type AuditEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"eventType"`
	Subject   string         `json:"subject"` // remote address
	UserID    string         `json:"userId,omitempty"`
	Message   string         `json:"message"`
	Severity  Severity       `json:"severity"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditLog is an in-memory append-only log with age/count retention.
// High-severity entries are forwarded to the configured Alerter.
type AuditLog struct {
	mu         sync.RWMutex
	entries    []AuditEntry
	maxEntries int
	retention  time.Duration

	logger  zerolog.Logger
	alerter monitoring.Alerter

	now func() time.Time // test hook
}

func NewAuditLog(logger zerolog.Logger, maxEntries int, retention time.Duration) *AuditLog {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &AuditLog{
		entries:    make([]AuditEntry, 0, 256),
		maxEntries: maxEntries,
		retention:  retention,
		logger:     logger.With().Str("component", "audit").Logger(),
		now:        time.Now,
	}
}

// SetAlerter installs an alerter for high and critical entries.
func (a *AuditLog) SetAlerter(alerter monitoring.Alerter) {
	a.mu.Lock()
	a.alerter = alerter
	a.mu.Unlock()
}

// Record appends an entry, applying retention.
func (a *AuditLog) Record(entry AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now()
	}

	a.mu.Lock()
	a.entries = append(a.entries, entry)
	a.trimLocked()
	alerter := a.alerter
	a.mu.Unlock()

	event := a.logger.Info()
	if entry.Severity == SeverityHigh || entry.Severity == SeverityCritical {
		event = a.logger.Warn()
	}
	event.
		Str("event_type", entry.EventType).
		Str("subject", entry.Subject).
		Str("severity", string(entry.Severity)).
		Msg(entry.Message)

	if alerter != nil && (entry.Severity == SeverityHigh || entry.Severity == SeverityCritical) {
		alerter.Alert(string(entry.Severity), entry.Message, entry.Metadata)
	}
}

// Filter selects audit entries. Zero values match everything.
type Filter struct {
	Since     time.Time
	EventType string
	Severity  Severity
	Subject   string
	Limit     int
}

// Query returns matching entries, newest first.
func (a *AuditLog) Query(f Filter) []AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 || limit > len(a.entries) {
		limit = len(a.entries)
	}

	out := make([]AuditEntry, 0, limit)
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := a.entries[i]
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			break // entries are time-ordered; nothing older matches
		}
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		if f.Subject != "" && e.Subject != f.Subject {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the current number of retained entries.
func (a *AuditLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

func (a *AuditLog) trimLocked() {
	cutoff := a.now().Add(-a.retention)
	firstFresh := 0
	for firstFresh < len(a.entries) && a.entries[firstFresh].Timestamp.Before(cutoff) {
		firstFresh++
	}
	if over := len(a.entries) - a.maxEntries; over > firstFresh {
		firstFresh = over
	}
	if firstFresh > 0 {
		a.entries = append(a.entries[:0:0], a.entries[firstFresh:]...)
	}
}
