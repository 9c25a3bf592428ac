package security

import (
	"sync"
	"time"
)

// BlockEntry records why and when an address was blocked.
type BlockEntry struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blockedAt"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"` // zero = indefinite
}

// Blocklist is the set of refused remote addresses. Expired entries are
// dropped lazily on lookup.
type Blocklist struct {
	mu      sync.RWMutex
	entries map[string]BlockEntry

	now func() time.Time // test hook
}

func NewBlocklist() *Blocklist {
	return &Blocklist{
		entries: make(map[string]BlockEntry),
		now:     time.Now,
	}
}

// Block adds an address. A zero ttl blocks indefinitely.
func (b *Blocklist) Block(ip, reason string, ttl time.Duration) {
	entry := BlockEntry{IP: ip, Reason: reason, BlockedAt: b.now()}
	if ttl > 0 {
		entry.ExpiresAt = entry.BlockedAt.Add(ttl)
	}
	b.mu.Lock()
	b.entries[ip] = entry
	b.mu.Unlock()
}

// Unblock removes an address. Reports whether it was present.
func (b *Blocklist) Unblock(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[ip]
	delete(b.entries, ip)
	return ok
}

// Contains reports whether an address is currently blocked.
func (b *Blocklist) Contains(ip string) bool {
	b.mu.RLock()
	entry, ok := b.entries[ip]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	if !entry.ExpiresAt.IsZero() && b.now().After(entry.ExpiresAt) {
		b.mu.Lock()
		delete(b.entries, ip)
		b.mu.Unlock()
		return false
	}
	return true
}

// Entries returns a snapshot of active blocks.
func (b *Blocklist) Entries() []BlockEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	now := b.now()
	out := make([]BlockEntry, 0, len(b.entries))
	for _, e := range b.entries {
		if !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Len returns the count of active blocks.
func (b *Blocklist) Len() int {
	return len(b.Entries())
}
