package client

import (
	"sync"
	"time"
)

// Quality classifies the connection from latency and loss.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
	QualityCritical  Quality = "critical"
)

// HealthStats is a point-in-time view of the monitor.
type HealthStats struct {
	AverageLatency time.Duration
	LossRatio      float64
	Samples        int
	Quality        Quality
	Disconnects    int
}

// HealthConfig tunes the monitor. Zero values take defaults.
type HealthConfig struct {
	// SampleWindow is the latency ring-buffer size (default 20).
	SampleWindow int
	// OnQualityChange fires exactly once per classification transition,
	// never for a repeated classification.
	OnQualityChange func(from, to Quality, stats HealthStats)
}

// HealthMonitor tracks latency samples and ping loss for one connection and
// derives a quality classification, recomputed on every new sample.
type HealthMonitor struct {
	mu sync.Mutex

	samples []time.Duration
	next    int
	filled  int

	pings       int
	losses      int
	disconnects int

	quality Quality

	onChange func(from, to Quality, stats HealthStats)
}

func NewHealthMonitor(cfg HealthConfig) *HealthMonitor {
	window := cfg.SampleWindow
	if window <= 0 {
		window = 20
	}
	return &HealthMonitor{
		samples:  make([]time.Duration, window),
		quality:  QualityExcellent,
		onChange: cfg.OnQualityChange,
	}
}

// RecordLatency feeds one round-trip sample and reclassifies.
func (h *HealthMonitor) RecordLatency(rtt time.Duration) {
	h.mu.Lock()
	h.samples[h.next] = rtt
	h.next = (h.next + 1) % len(h.samples)
	if h.filled < len(h.samples) {
		h.filled++
	}
	h.pings++
	h.reclassifyLocked()
}

// RecordLoss counts an unanswered ping and reclassifies.
func (h *HealthMonitor) RecordLoss() {
	h.mu.Lock()
	h.pings++
	h.losses++
	h.reclassifyLocked()
}

// RecordDisconnect counts a transport loss.
func (h *HealthMonitor) RecordDisconnect() {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
}

// Reset clears samples and loss counters for a fresh connection. The
// disconnect total survives; it describes the session, not the link.
func (h *HealthMonitor) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = 0
	h.filled = 0
	h.pings = 0
	h.losses = 0
	h.quality = QualityExcellent
}

// Stats returns the current view.
func (h *HealthMonitor) Stats() HealthStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statsLocked()
}

// Quality returns the current classification.
func (h *HealthMonitor) Quality() Quality {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.quality
}

// reclassifyLocked must be called with h.mu held; it releases the lock
// before invoking the change callback so the callback may call back into
// the monitor.
func (h *HealthMonitor) reclassifyLocked() {
	stats := h.statsLocked()
	next := classify(stats.AverageLatency, stats.LossRatio)
	prev := h.quality
	h.quality = next
	h.mu.Unlock()

	if next != prev && h.onChange != nil {
		stats.Quality = next
		h.onChange(prev, next, stats)
	}
}

func (h *HealthMonitor) statsLocked() HealthStats {
	var sum time.Duration
	for i := 0; i < h.filled; i++ {
		sum += h.samples[i]
	}
	var avg time.Duration
	if h.filled > 0 {
		avg = sum / time.Duration(h.filled)
	}
	var loss float64
	if h.pings > 0 {
		loss = float64(h.losses) / float64(h.pings)
	}
	return HealthStats{
		AverageLatency: avg,
		LossRatio:      loss,
		Samples:        h.filled,
		Quality:        h.quality,
		Disconnects:    h.disconnects,
	}
}

// classify thresholds average latency and loss into a quality tier. The
// worse of the two dimensions wins.
func classify(avg time.Duration, loss float64) Quality {
	switch {
	case avg < 75*time.Millisecond && loss < 0.01:
		return QualityExcellent
	case avg < 150*time.Millisecond && loss < 0.025:
		return QualityGood
	case avg < 300*time.Millisecond && loss < 0.05:
		return QualityFair
	case avg < 600*time.Millisecond && loss < 0.10:
		return QualityPoor
	default:
		return QualityCritical
	}
}
