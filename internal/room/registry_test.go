package room

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/identity"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	full   bool
}

func (f *fakeConn) ID() string                    { return f.id }
func (f *fakeConn) Identity() *identity.Identity  { return nil }
func (f *fakeConn) RemoteAddr() string            { return "127.0.0.1" }
func (f *fakeConn) Enqueue(ev Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeConn) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

type captureSignals struct {
	mu     sync.Mutex
	joins  []int
	leaves []int
}

func (s *captureSignals) ViewerJoined(roomID string, viewers int) {
	s.mu.Lock()
	s.joins = append(s.joins, viewers)
	s.mu.Unlock()
}

func (s *captureSignals) ViewerLeft(roomID string, viewers int) {
	s.mu.Lock()
	s.leaves = append(s.leaves, viewers)
	s.mu.Unlock()
}

func newTestRegistry() *Registry {
	return NewRegistry(nil, zerolog.Nop())
}

func TestJoinCreatesRoomAndIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	c := &fakeConn{id: "c1"}

	added, members := r.Join(c, "stream-1")
	if !added || members != 1 {
		t.Fatalf("first join: added=%v members=%d, want true/1", added, members)
	}
	added, members = r.Join(c, "stream-1")
	if added || members != 1 {
		t.Fatalf("repeat join: added=%v members=%d, want false/1", added, members)
	}
	if !r.InRoom("c1", "stream-1") {
		t.Fatal("InRoom reports false for a joined member")
	}
	if r.RoomCount() != 1 {
		t.Errorf("RoomCount = %d, want 1", r.RoomCount())
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	r := newTestRegistry()
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}
	r.Join(c1, "stream-1")
	r.Join(c2, "stream-1")

	removed, members := r.Leave(c1, "stream-1")
	if !removed || members != 1 {
		t.Fatalf("leave: removed=%v members=%d, want true/1", removed, members)
	}
	if r.RoomCount() != 1 {
		t.Fatalf("RoomCount = %d after partial leave, want 1", r.RoomCount())
	}

	r.Leave(c2, "stream-1")
	if r.RoomCount() != 0 {
		t.Fatalf("RoomCount = %d after last leave, want 0", r.RoomCount())
	}

	removed, _ = r.Leave(c2, "stream-1")
	if removed {
		t.Fatal("leave of a non-member reported removal")
	}
}

func TestLeaveAllSpansRooms(t *testing.T) {
	r := newTestRegistry()
	c := &fakeConn{id: "c1"}
	other := &fakeConn{id: "c2"}
	r.Join(c, "stream-1")
	r.Join(c, "stream-2")
	r.Join(other, "stream-2")

	left := r.LeaveAll(c)
	if len(left) != 2 {
		t.Fatalf("LeaveAll returned %v, want both rooms", left)
	}
	if r.RoomCount() != 1 {
		t.Fatalf("RoomCount = %d, want only the room with a remaining member", r.RoomCount())
	}
	if r.MemberCount("stream-2") != 1 {
		t.Errorf("stream-2 members = %d, want 1", r.MemberCount("stream-2"))
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := newTestRegistry()
	sender := &fakeConn{id: "sender"}
	viewer := &fakeConn{id: "viewer"}
	r.Join(sender, "stream-1")
	r.Join(viewer, "stream-1")

	ev := Event{Type: "chat:message", Data: map[string]string{"body": "hi"}}
	delivered := r.Broadcast("stream-1", ev, "sender")
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
	if got := sender.received(); len(got) != 0 {
		t.Errorf("sender received %d events, want 0", len(got))
	}
	if got := viewer.received(); len(got) != 1 || got[0].Type != "chat:message" {
		t.Errorf("viewer received %v, want one chat:message", got)
	}
}

func TestBroadcastCountsOnlyAcceptedDeliveries(t *testing.T) {
	r := newTestRegistry()
	ok := &fakeConn{id: "ok"}
	slow := &fakeConn{id: "slow", full: true}
	r.Join(ok, "stream-1")
	r.Join(slow, "stream-1")

	if delivered := r.Broadcast("stream-1", Event{Type: "stream:went-live"}); delivered != 1 {
		t.Fatalf("delivered = %d, want 1 when one member's buffer is full", delivered)
	}
}

func TestBroadcastUnknownRoom(t *testing.T) {
	r := newTestRegistry()
	if delivered := r.Broadcast("missing", Event{Type: "chat:message"}); delivered != 0 {
		t.Fatalf("delivered = %d for unknown room, want 0", delivered)
	}
}

func TestSignalsFireOnMembershipChange(t *testing.T) {
	sig := &captureSignals{}
	r := NewRegistry(sig, zerolog.Nop())
	c := &fakeConn{id: "c1"}

	r.Join(c, "stream-1")
	r.Join(c, "stream-1") // repeat, no signal
	r.Leave(c, "stream-1")

	if len(sig.joins) != 1 || sig.joins[0] != 1 {
		t.Errorf("joins = %v, want one signal with count 1", sig.joins)
	}
	if len(sig.leaves) != 1 || sig.leaves[0] != 0 {
		t.Errorf("leaves = %v, want one signal with count 0", sig.leaves)
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := newTestRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := &fakeConn{id: string(rune('a' + n))}
			for j := 0; j < 100; j++ {
				r.Join(c, "stream-1")
				r.Broadcast("stream-1", Event{Type: "chat:user:typing"})
				r.Leave(c, "stream-1")
			}
		}(i)
	}
	wg.Wait()

	if r.RoomCount() != 0 {
		t.Fatalf("RoomCount = %d after all leaves, want 0", r.RoomCount())
	}
}
