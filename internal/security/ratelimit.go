package security

import (
	"hash/fnv"
	"sync"
	"time"
)

// BucketClass is a named rate-limit policy class. Each class carries its own
// window length and maximum count.
type BucketClass string

const (
	BucketAuth   BucketClass = "auth"
	BucketChat   BucketClass = "chat"
	BucketAPI    BucketClass = "api"
	BucketSearch BucketClass = "search"
	BucketUpload BucketClass = "upload"
)

// Policy is the window configuration for one bucket class.
type Policy struct {
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
}

// Result is the outcome of a limiter check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type windowKey struct {
	subject string
	bucket  BucketClass
}

type window struct {
	start time.Time
	count int
}

const limiterShards = 16

type limiterShard struct {
	mu      sync.Mutex
	windows map[windowKey]*window
}

// WindowLimiter implements fixed-window counters keyed by (subject, bucket).
// Counters for the same subject are updated under one shard lock, so two
// connections from the same subject cannot both pass a check that should
// have rejected the second. Expired windows are evicted by a sweep loop to
// keep the map bounded.
type WindowLimiter struct {
	shards [limiterShards]*limiterShard

	policyMu sync.RWMutex
	policies map[BucketClass]Policy

	stop     chan struct{}
	stopOnce sync.Once

	now func() time.Time // test hook
}

func NewWindowLimiter(policies map[BucketClass]Policy) *WindowLimiter {
	l := &WindowLimiter{
		policies: make(map[BucketClass]Policy, len(policies)),
		stop:     make(chan struct{}),
		now:      time.Now,
	}
	for class, p := range policies {
		l.policies[class] = p
	}
	for i := range l.shards {
		l.shards[i] = &limiterShard{windows: make(map[windowKey]*window)}
	}

	go l.sweepLoop()
	return l
}

// Allow records one operation for (subject, bucket) and reports whether it
// fits the window. The check and increment are atomic per subject.
func (l *WindowLimiter) Allow(subject string, bucket BucketClass) Result {
	policy, ok := l.policy(bucket)
	if !ok {
		// Unconfigured buckets pass; limiting an unknown class silently
		// would hide misconfiguration.
		return Result{Allowed: true, Remaining: -1}
	}

	now := l.now()
	shard := l.shard(subject)
	key := windowKey{subject: subject, bucket: bucket}

	shard.mu.Lock()
	defer shard.mu.Unlock()

	w, ok := shard.windows[key]
	if !ok || now.Sub(w.start) >= policy.Window {
		shard.windows[key] = &window{start: now, count: 1}
		return Result{Allowed: true, Remaining: policy.Max - 1}
	}

	if w.count >= policy.Max {
		retry := policy.Window - now.Sub(w.start)
		if retry < 0 {
			retry = 0
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retry}
	}

	w.count++
	return Result{Allowed: true, Remaining: policy.Max - w.count}
}

// SetPolicy replaces the policy for one bucket class. Existing windows keep
// counting; the new limit applies from the next check.
func (l *WindowLimiter) SetPolicy(bucket BucketClass, p Policy) {
	l.policyMu.Lock()
	l.policies[bucket] = p
	l.policyMu.Unlock()
}

// Policies returns a copy of the configured policies.
func (l *WindowLimiter) Policies() map[BucketClass]Policy {
	l.policyMu.RLock()
	defer l.policyMu.RUnlock()
	out := make(map[BucketClass]Policy, len(l.policies))
	for class, p := range l.policies {
		out[class] = p
	}
	return out
}

// Stop halts the eviction loop.
func (l *WindowLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *WindowLimiter) policy(bucket BucketClass) (Policy, bool) {
	l.policyMu.RLock()
	defer l.policyMu.RUnlock()
	p, ok := l.policies[bucket]
	return p, ok
}

func (l *WindowLimiter) shard(subject string) *limiterShard {
	h := fnv.New32a()
	h.Write([]byte(subject))
	return l.shards[h.Sum32()%limiterShards]
}

func (l *WindowLimiter) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep evicts windows that expired before the current one could ever be
// consulted again, bounding memory for churning subjects.
func (l *WindowLimiter) sweep() {
	now := l.now()
	policies := l.Policies()

	for _, shard := range l.shards {
		shard.mu.Lock()
		for key, w := range shard.windows {
			policy, ok := policies[key.bucket]
			if !ok || now.Sub(w.start) >= policy.Window {
				delete(shard.windows, key)
			}
		}
		shard.mu.Unlock()
	}
}
