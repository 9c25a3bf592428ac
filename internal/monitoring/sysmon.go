package monitoring

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemMetrics holds a snapshot of system resource measurements.
// Measured once per interval and read by the health check and dashboard.
type SystemMetrics struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryRSSMB   float64   `json:"memoryRssMb"`
	MemoryUsedPct float64   `json:"memoryUsedPct"`
	Goroutines    int       `json:"goroutines"`
	Timestamp     time.Time `json:"timestamp"`
}

// SystemMonitor measures process and host resources on a fixed interval.
// Single measuring goroutine; all readers share the same snapshot.
type SystemMonitor struct {
	logger   zerolog.Logger
	interval time.Duration

	mu      sync.RWMutex
	metrics SystemMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSystemMonitor(logger zerolog.Logger, interval time.Duration) *SystemMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SystemMonitor{
		logger:   logger.With().Str("component", "system_monitor").Logger(),
		interval: interval,
		metrics:  SystemMetrics{Timestamp: time.Now()},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins periodic measurement. Safe to call once.
func (sm *SystemMonitor) Start() {
	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()

		ticker := time.NewTicker(sm.interval)
		defer ticker.Stop()

		sm.measure()
		for {
			select {
			case <-ticker.C:
				sm.measure()
			case <-sm.ctx.Done():
				return
			}
		}
	}()
}

// Stop halts measurement and waits for the goroutine to exit.
func (sm *SystemMonitor) Stop() {
	sm.cancel()
	sm.wg.Wait()
}

// Snapshot returns the most recent measurements.
func (sm *SystemMonitor) Snapshot() SystemMetrics {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.metrics
}

func (sm *SystemMonitor) measure() {
	m := SystemMetrics{
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  time.Now(),
	}

	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		m.CPUPercent = pct[0]
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			m.MemoryRSSMB = float64(info.RSS) / 1024 / 1024
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		m.MemoryUsedPct = vmem.UsedPercent
	}

	sm.mu.Lock()
	sm.metrics = m
	sm.mu.Unlock()
}
