package client

import (
	"testing"
	"time"
)

func TestHealthClassificationTiers(t *testing.T) {
	cases := []struct {
		avg  time.Duration
		loss float64
		want Quality
	}{
		{50 * time.Millisecond, 0, QualityExcellent},
		{100 * time.Millisecond, 0, QualityGood},
		{50 * time.Millisecond, 0.02, QualityGood}, // loss dominates
		{200 * time.Millisecond, 0, QualityFair},
		{500 * time.Millisecond, 0, QualityPoor},
		{700 * time.Millisecond, 0, QualityCritical},
		{50 * time.Millisecond, 0.5, QualityCritical},
	}
	for _, c := range cases {
		if got := classify(c.avg, c.loss); got != c.want {
			t.Errorf("classify(%v, %v) = %v, want %v", c.avg, c.loss, got, c.want)
		}
	}
}

func TestHealthNotifiesOncePerTransition(t *testing.T) {
	type change struct{ from, to Quality }
	var changes []change
	h := NewHealthMonitor(HealthConfig{
		SampleWindow: 4,
		OnQualityChange: func(from, to Quality, stats HealthStats) {
			changes = append(changes, change{from, to})
		},
	})

	// Stay excellent: no notification.
	h.RecordLatency(10 * time.Millisecond)
	h.RecordLatency(20 * time.Millisecond)
	if len(changes) != 0 {
		t.Fatalf("changes = %v while quality is unchanged", changes)
	}

	// Push the average past the excellent tier.
	h.RecordLatency(400 * time.Millisecond)
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want one transition", changes)
	}
	if changes[0].from != QualityExcellent {
		t.Errorf("transition from %v, want excellent", changes[0].from)
	}

	// Same classification again: still one notification.
	h.RecordLatency(400 * time.Millisecond)
	h.RecordLatency(400 * time.Millisecond)
	if got := h.Quality(); got == QualityExcellent {
		t.Fatalf("quality = %v, want degraded", got)
	}
	for i := 1; i < len(changes); i++ {
		if changes[i].from == changes[i].to {
			t.Errorf("repeated classification notified: %v", changes[i])
		}
	}
}

func TestHealthRingBufferWindow(t *testing.T) {
	h := NewHealthMonitor(HealthConfig{SampleWindow: 2})
	h.RecordLatency(1000 * time.Millisecond)
	h.RecordLatency(10 * time.Millisecond)
	h.RecordLatency(10 * time.Millisecond) // evicts the slow sample

	stats := h.Stats()
	if stats.Samples != 2 {
		t.Fatalf("samples = %d, want window size", stats.Samples)
	}
	if stats.AverageLatency != 10*time.Millisecond {
		t.Errorf("average = %v, want 10ms after eviction", stats.AverageLatency)
	}
}

func TestHealthLossRatio(t *testing.T) {
	h := NewHealthMonitor(HealthConfig{})
	h.RecordLatency(10 * time.Millisecond)
	h.RecordLatency(10 * time.Millisecond)
	h.RecordLatency(10 * time.Millisecond)
	h.RecordLoss()

	if got := h.Stats().LossRatio; got != 0.25 {
		t.Fatalf("loss ratio = %v, want 0.25", got)
	}
}

func TestHealthResetKeepsDisconnectTotal(t *testing.T) {
	h := NewHealthMonitor(HealthConfig{})
	h.RecordLatency(500 * time.Millisecond)
	h.RecordLoss()
	h.RecordDisconnect()

	h.Reset()
	stats := h.Stats()
	if stats.Samples != 0 || stats.LossRatio != 0 {
		t.Errorf("stats after reset = %+v, want cleared samples and loss", stats)
	}
	if stats.Quality != QualityExcellent {
		t.Errorf("quality after reset = %v, want excellent", stats.Quality)
	}
	if stats.Disconnects != 1 {
		t.Errorf("disconnects = %d, want the total to survive reset", stats.Disconnects)
	}
}
