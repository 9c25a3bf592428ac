package transport

import (
	"sync"
	"time"
)

// typingTracker holds which connections are typing in which room and expires
// stale entries: a client that stops sending chat:typing frames stops
// "typing" for everyone else after the TTL.
type typingTracker struct {
	mu     sync.Mutex
	ttl    time.Duration
	closed bool
	active map[string]map[string]*typingEntry // room id -> conn id

	onExpire func(roomID, connID, userID, displayName string)
}

type typingEntry struct {
	userID      string
	displayName string
	timer       *time.Timer
}

func newTypingTracker(ttl time.Duration, onExpire func(roomID, connID, userID, displayName string)) *typingTracker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &typingTracker{
		ttl:      ttl,
		active:   make(map[string]map[string]*typingEntry),
		onExpire: onExpire,
	}
}

// Start marks connID as typing. Reports whether this is a new typing state;
// repeated frames only reset the expiry and do not re-broadcast.
func (t *typingTracker) Start(roomID, connID, userID, displayName string) (started bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}

	byConn, ok := t.active[roomID]
	if !ok {
		byConn = make(map[string]*typingEntry)
		t.active[roomID] = byConn
	}

	if e, ok := byConn[connID]; ok {
		e.timer.Reset(t.ttl)
		return false
	}

	e := &typingEntry{userID: userID, displayName: displayName}
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(roomID, connID) })
	byConn[connID] = e
	return true
}

// Stop clears connID's typing state. Reports whether it was set.
func (t *typingTracker) Stop(roomID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(roomID, connID) != nil
}

func (t *typingTracker) expire(roomID, connID string) {
	t.mu.Lock()
	e := t.removeLocked(roomID, connID)
	closed := t.closed
	t.mu.Unlock()

	if e != nil && !closed && t.onExpire != nil {
		t.onExpire(roomID, connID, e.userID, e.displayName)
	}
}

// removeLocked must be called with t.mu held.
func (t *typingTracker) removeLocked(roomID, connID string) *typingEntry {
	byConn, ok := t.active[roomID]
	if !ok {
		return nil
	}
	e, ok := byConn[connID]
	if !ok {
		return nil
	}
	e.timer.Stop()
	delete(byConn, connID)
	if len(byConn) == 0 {
		delete(t.active, roomID)
	}
	return e
}

// StopAll cancels every timer. No expiry callback fires afterwards.
func (t *typingTracker) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, byConn := range t.active {
		for _, e := range byConn {
			e.timer.Stop()
		}
	}
	t.active = make(map[string]map[string]*typingEntry)
}
