package security

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lunastream/realtime/internal/monitoring"
)

// ConnLimiter throttles connection attempts with token buckets at two
// levels: per remote address and system-wide. It protects the upgrade path
// before any session state is allocated; the fixed-window Monitor handles
// per-subject event limiting after that.
type ConnLimiter struct {
	mu      sync.Mutex
	perIP   map[string]*ipLimiterEntry
	ipBurst int
	ipRate  float64
	ipTTL   time.Duration

	global *rate.Limiter

	logger zerolog.Logger

	cleanupTicker *time.Ticker
	stop          chan struct{}
	stopOnce      sync.Once
}

type ipLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ConnLimiterConfig holds connection attempt limits. Zero values take the
// defaults noted per field.
type ConnLimiterConfig struct {
	IPBurst     int           // max burst per IP (default 10)
	IPRate      float64       // sustained attempts/sec per IP (default 1.0)
	IPTTL       time.Duration // evict idle IP entries after (default 5m)
	GlobalBurst int           // max burst system-wide (default 300)
	GlobalRate  float64       // sustained attempts/sec system-wide (default 50)
	Logger      zerolog.Logger
}

func NewConnLimiter(config ConnLimiterConfig) *ConnLimiter {
	if config.IPBurst == 0 {
		config.IPBurst = 10
	}
	if config.IPRate == 0 {
		config.IPRate = 1.0
	}
	if config.IPTTL == 0 {
		config.IPTTL = 5 * time.Minute
	}
	if config.GlobalBurst == 0 {
		config.GlobalBurst = 300
	}
	if config.GlobalRate == 0 {
		config.GlobalRate = 50.0
	}

	cl := &ConnLimiter{
		perIP:   make(map[string]*ipLimiterEntry),
		ipBurst: config.IPBurst,
		ipRate:  config.IPRate,
		ipTTL:   config.IPTTL,
		global:  rate.NewLimiter(rate.Limit(config.GlobalRate), config.GlobalBurst),
		logger:  config.Logger.With().Str("component", "conn_limiter").Logger(),
		stop:    make(chan struct{}),
	}

	cl.cleanupTicker = time.NewTicker(time.Minute)
	go cl.cleanupLoop()

	return cl
}

// Allow reports whether a connection attempt from ip may proceed.
// The global bucket is consulted first so a distributed flood cannot bypass
// protection by spreading across addresses.
func (cl *ConnLimiter) Allow(ip string) bool {
	if !cl.global.Allow() {
		cl.logger.Debug().Str("ip", ip).Msg("Connection rejected by global rate limit")
		monitoring.IncrementConnectionRejected("global_rate_limit")
		return false
	}

	if !cl.ipLimiter(ip).Allow() {
		cl.logger.Debug().Str("ip", ip).Msg("Connection rejected by per-IP rate limit")
		monitoring.IncrementConnectionRejected("ip_rate_limit")
		return false
	}

	return true
}

// Stop halts the eviction goroutine.
func (cl *ConnLimiter) Stop() {
	cl.stopOnce.Do(func() { close(cl.stop) })
}

func (cl *ConnLimiter) ipLimiter(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	entry, ok := cl.perIP[ip]
	if !ok {
		entry = &ipLimiterEntry{
			limiter: rate.NewLimiter(rate.Limit(cl.ipRate), cl.ipBurst),
		}
		cl.perIP[ip] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (cl *ConnLimiter) cleanupLoop() {
	for {
		select {
		case <-cl.cleanupTicker.C:
			cl.cleanup()
		case <-cl.stop:
			cl.cleanupTicker.Stop()
			return
		}
	}
}

func (cl *ConnLimiter) cleanup() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	removed := 0
	for ip, entry := range cl.perIP {
		if now.Sub(entry.lastAccess) > cl.ipTTL {
			delete(cl.perIP, ip)
			removed++
		}
	}
	if removed > 0 {
		cl.logger.Debug().
			Int("removed", removed).
			Int("remaining", len(cl.perIP)).
			Msg("Evicted idle per-IP limiters")
	}
}
