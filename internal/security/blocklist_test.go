package security

import (
	"testing"
	"time"
)

func TestBlocklistIndefiniteBlock(t *testing.T) {
	b := NewBlocklist()
	b.Block("9.9.9.9", "abuse", 0)

	if !b.Contains("9.9.9.9") {
		t.Fatal("indefinitely blocked address not contained")
	}
	if b.Contains("9.9.9.10") {
		t.Fatal("unrelated address contained")
	}
}

func TestBlocklistTTLExpiry(t *testing.T) {
	b := NewBlocklist()
	base := time.Now()
	b.now = func() time.Time { return base }

	b.Block("10.0.0.1", "temporary", time.Hour)
	if !b.Contains("10.0.0.1") {
		t.Fatal("address not contained inside the TTL")
	}

	b.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	if b.Contains("10.0.0.1") {
		t.Fatal("address still contained after the TTL elapsed")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d after lazy eviction, want 0", b.Len())
	}
}

func TestBlocklistUnblock(t *testing.T) {
	b := NewBlocklist()
	b.Block("10.0.0.2", "abuse", 0)

	if !b.Unblock("10.0.0.2") {
		t.Fatal("unblock of blocked address reported failure")
	}
	if b.Unblock("10.0.0.2") {
		t.Fatal("second unblock reported success")
	}
}

func TestBlocklistEntriesExcludeExpired(t *testing.T) {
	b := NewBlocklist()
	base := time.Now()
	b.now = func() time.Time { return base }

	b.Block("10.0.0.3", "short", time.Minute)
	b.Block("10.0.0.4", "long", time.Hour)

	b.now = func() time.Time { return base.Add(30 * time.Minute) }
	entries := b.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 live entry", len(entries))
	}
	if entries[0].IP != "10.0.0.4" {
		t.Errorf("surviving entry = %q, want 10.0.0.4", entries[0].IP)
	}
}
