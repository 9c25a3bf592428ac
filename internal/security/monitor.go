// Package security hosts the rate limiter / security monitor: fixed-window
// counters per (subject, bucket), an append-only audit log, an IP block-list
// with violation escalation, suspicious-activity scoring, and an on-demand
// health verdict over live metrics.
package security

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/monitoring"
)

// Config is the runtime-mutable security configuration, exposed over the
// admin REST surface.
type Config struct {
	Buckets map[BucketClass]Policy `json:"buckets"`

	BlockAfterViolations        int           `json:"blockAfterViolations"`
	ViolationBlockTTL           time.Duration `json:"violationBlockTtl"`
	BlockSuspiciousIPs          bool          `json:"blockSuspiciousIps"`
	SuspiciousActivityThreshold int           `json:"suspiciousActivityThreshold"`

	AlertConnectionThreshold    int     `json:"alertConnectionThreshold"`
	AlertViolationRateThreshold float64 `json:"alertViolationRateThreshold"`
	AlertErrorRateThreshold     float64 `json:"alertErrorRateThreshold"`
}

// Subject identifies the party being limited: the resolved identity when one
// exists, otherwise the remote address.
type Subject struct {
	IP     string
	UserID string
}

// Key returns the rate-limit key. Identity beats address so one user cannot
// dodge limits by hopping networks.
func (s Subject) Key() string {
	if s.UserID != "" {
		return "user:" + s.UserID
	}
	return "ip:" + s.IP
}

type offense struct {
	violations int
	score      int
	first      time.Time
}

// Monitor observes every stage of the inbound pipeline. All counters are
// updated atomically; concurrent checks on the same subject serialize on the
// limiter's per-subject shard lock.
type Monitor struct {
	limiter   *WindowLimiter
	audit     *AuditLog
	blocklist *Blocklist
	logger    zerolog.Logger

	cfgMu sync.RWMutex
	cfg   Config

	offenseMu sync.Mutex
	offenses  map[string]*offense

	totalChecks     atomic.Int64
	totalViolations atomic.Int64
	totalBlocked    atomic.Int64
	activeConns     atomic.Int64
}

func NewMonitor(cfg Config, audit *AuditLog, logger zerolog.Logger) *Monitor {
	return &Monitor{
		limiter:   NewWindowLimiter(cfg.Buckets),
		audit:     audit,
		blocklist: NewBlocklist(),
		logger:    logger.With().Str("component", "security").Logger(),
		cfg:       cfg,
		offenses:  make(map[string]*offense),
	}
}

// CheckAndRecord validates one operation for subject against a bucket class.
// Returns nil when allowed, ErrBlocked for block-listed addresses, or a
// *RateLimitError carrying the retry-after hint.
func (m *Monitor) CheckAndRecord(subject Subject, bucket BucketClass) error {
	m.totalChecks.Add(1)

	if subject.IP != "" && m.blocklist.Contains(subject.IP) {
		m.totalBlocked.Add(1)
		monitoring.IncrementBlockedAttempt()
		return ErrBlocked
	}

	res := m.limiter.Allow(subject.Key(), bucket)
	if res.Allowed {
		return nil
	}

	m.totalViolations.Add(1)
	monitoring.IncrementRateLimitViolation(string(bucket))
	m.recordViolation(subject, bucket, res.RetryAfter)

	return &RateLimitError{Bucket: bucket, RetryAfter: res.RetryAfter}
}

// IsBlocked reports whether an address is on the block-list. Used by the
// transport gate before upgrading, so refused connections never reach a
// handler.
func (m *Monitor) IsBlocked(ip string) bool {
	if m.blocklist.Contains(ip) {
		m.totalBlocked.Add(1)
		monitoring.IncrementBlockedAttempt()
		return true
	}
	return false
}

// BlockIP is the explicit administrative override.
func (m *Monitor) BlockIP(ip, reason string) {
	m.blocklist.Block(ip, reason, 0)
	monitoring.SetBlockedIPs(m.blocklist.Len())
	m.audit.Record(AuditEntry{
		EventType: EventIPBlocked,
		Subject:   ip,
		Message:   "address blocked: " + reason,
		Severity:  SeverityHigh,
	})
}

// UnblockIP removes an address from the block-list.
func (m *Monitor) UnblockIP(ip string) bool {
	ok := m.blocklist.Unblock(ip)
	monitoring.SetBlockedIPs(m.blocklist.Len())
	if ok {
		m.audit.Record(AuditEntry{
			EventType: EventIPUnblocked,
			Subject:   ip,
			Message:   "address unblocked",
			Severity:  SeverityLow,
		})
	}
	return ok
}

// RecordSuspicious adds weight to a subject's cumulative anomaly score.
// Crossing the configured threshold auto-blocks the address when
// blockSuspiciousIps is enabled.
func (m *Monitor) RecordSuspicious(subject Subject, weight int, reason string) {
	cfg := m.config()

	m.offenseMu.Lock()
	o := m.offense(subject.Key())
	o.score += weight
	score := o.score
	m.offenseMu.Unlock()

	m.audit.Record(AuditEntry{
		EventType: EventSuspiciousActivity,
		Subject:   subject.IP,
		UserID:    subject.UserID,
		Message:   reason,
		Severity:  SeverityMedium,
		Metadata:  map[string]any{"score": score, "weight": weight},
	})

	if cfg.BlockSuspiciousIPs && score >= cfg.SuspiciousActivityThreshold && subject.IP != "" {
		m.BlockIP(subject.IP, "suspicious activity score exceeded threshold")
	}
}

// ConnectionOpened / ConnectionClosed track the live connection gauge used
// by the health verdict.
func (m *Monitor) ConnectionOpened() { m.activeConns.Add(1) }
func (m *Monitor) ConnectionClosed() { m.activeConns.Add(-1) }

// Audit exposes the audit log for recording and admin queries.
func (m *Monitor) Audit() *AuditLog { return m.audit }

// Metrics is a point-in-time view of the monitor's counters.
type Metrics struct {
	ActiveConnections   int64   `json:"activeConnections"`
	TotalChecks         int64   `json:"totalChecks"`
	RateLimitViolations int64   `json:"rateLimitViolations"`
	BlockedAttempts     int64   `json:"blockedAttempts"`
	BlockedIPs          int     `json:"blockedIps"`
	ViolationRate       float64 `json:"violationRate"`
	ErrorRate           float64 `json:"errorRate"`
}

// Snapshot returns current metrics. Rates are blocked/total and
// violations/total; zero when nothing has been checked yet.
func (m *Monitor) Snapshot() Metrics {
	total := m.totalChecks.Load()
	violations := m.totalViolations.Load()
	blocked := m.totalBlocked.Load()

	s := Metrics{
		ActiveConnections:   m.activeConns.Load(),
		TotalChecks:         total,
		RateLimitViolations: violations,
		BlockedAttempts:     blocked,
		BlockedIPs:          m.blocklist.Len(),
	}
	if total > 0 {
		s.ViolationRate = float64(violations) / float64(total)
		s.ErrorRate = float64(blocked) / float64(total)
	}
	return s
}

// Health is the on-demand verdict comparing live metrics against the alert
// thresholds. It is computed fresh on every call, never cached.
type Health struct {
	Status   string   `json:"status"` // healthy | warning
	Warnings []string `json:"warnings,omitempty"`
	Metrics  Metrics  `json:"metrics"`
}

func (m *Monitor) Health() Health {
	cfg := m.config()
	metrics := m.Snapshot()

	var warnings []string
	if cfg.AlertConnectionThreshold > 0 && metrics.ActiveConnections >= int64(cfg.AlertConnectionThreshold) {
		warnings = append(warnings, "connection count at or above alert threshold")
	}
	if cfg.AlertViolationRateThreshold > 0 && metrics.ViolationRate >= cfg.AlertViolationRateThreshold {
		warnings = append(warnings, "rate limit violation rate at or above alert threshold")
	}
	if cfg.AlertErrorRateThreshold > 0 && metrics.ErrorRate >= cfg.AlertErrorRateThreshold {
		warnings = append(warnings, "error rate at or above alert threshold")
	}

	status := "healthy"
	if len(warnings) > 0 {
		status = "warning"
	}
	return Health{Status: status, Warnings: warnings, Metrics: metrics}
}

// Config returns a copy of the current runtime configuration.
func (m *Monitor) Config() Config { return m.config() }

// UpdateConfig replaces the runtime configuration and re-applies bucket
// policies to the limiter.
func (m *Monitor) UpdateConfig(cfg Config) {
	m.cfgMu.Lock()
	m.cfg = cfg
	m.cfgMu.Unlock()

	for class, p := range cfg.Buckets {
		m.limiter.SetPolicy(class, p)
	}
	m.logger.Info().Msg("Security configuration updated")
}

// Stop halts background eviction.
func (m *Monitor) Stop() {
	m.limiter.Stop()
}

func (m *Monitor) config() Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// offense must be called with offenseMu held.
func (m *Monitor) offense(key string) *offense {
	o, ok := m.offenses[key]
	if !ok {
		o = &offense{first: time.Now()}
		m.offenses[key] = o
	}
	return o
}

func (m *Monitor) recordViolation(subject Subject, bucket BucketClass, retryAfter time.Duration) {
	cfg := m.config()

	m.offenseMu.Lock()
	o := m.offense(subject.Key())
	o.violations++
	count := o.violations
	m.offenseMu.Unlock()

	// Severity escalates with repeat offenses from the same subject.
	severity := SeverityLow
	switch {
	case count >= cfg.BlockAfterViolations:
		severity = SeverityHigh
	case count >= cfg.BlockAfterViolations/2:
		severity = SeverityMedium
	}

	m.audit.Record(AuditEntry{
		EventType: EventRateLimitExceeded,
		Subject:   subject.IP,
		UserID:    subject.UserID,
		Message:   "rate limit exceeded for bucket " + string(bucket),
		Severity:  severity,
		Metadata: map[string]any{
			"bucket":     string(bucket),
			"violations": count,
			"retryAfter": retryAfter.String(),
		},
	})

	if cfg.BlockAfterViolations > 0 && count >= cfg.BlockAfterViolations && subject.IP != "" {
		m.blocklist.Block(subject.IP, "repeated rate limit violations", cfg.ViolationBlockTTL)
		monitoring.SetBlockedIPs(m.blocklist.Len())
		m.audit.Record(AuditEntry{
			EventType: EventIPBlocked,
			Subject:   subject.IP,
			UserID:    subject.UserID,
			Message:   "address auto-blocked after repeated violations",
			Severity:  SeverityCritical,
			Metadata:  map[string]any{"violations": count},
		})
	}
}
