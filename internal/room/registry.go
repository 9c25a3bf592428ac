// Package room tracks which connections belong to which stream room and
// fans outbound events out to room members.
package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/identity"
	"github.com/lunastream/realtime/internal/monitoring"
)

// Event is the outbound wire envelope.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Conn is a member connection as the registry sees it. Implemented by the
// transport layer; Enqueue must never block.
type Conn interface {
	ID() string
	Identity() *identity.Identity
	RemoteAddr() string
	Enqueue(ev Event) bool
}

// Signals receives advisory viewer-count changes. The registry does not
// assert correctness of any external viewer-count field; only its own
// membership set is authoritative.
type Signals interface {
	ViewerJoined(roomID string, viewers int)
	ViewerLeft(roomID string, viewers int)
}

type streamRoom struct {
	members   map[string]Conn
	createdAt time.Time
}

// Registry is the authoritative membership map. Rooms are created on first
// join and deleted when their last member leaves; membership mutations and
// broadcast snapshots take the same lock, so a broadcast in flight sees a
// consistent member set.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*streamRoom

	signals Signals
	logger  zerolog.Logger
}

func NewRegistry(signals Signals, logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:   make(map[string]*streamRoom),
		signals: signals,
		logger:  logger.With().Str("component", "rooms").Logger(),
	}
}

// Join adds c to roomID, creating the room if needed. Reports whether the
// connection was newly added and the member count after the join.
func (r *Registry) Join(c Conn, roomID string) (added bool, members int) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &streamRoom{members: make(map[string]Conn), createdAt: time.Now()}
		r.rooms[roomID] = rm
	}
	_, exists := rm.members[c.ID()]
	if !exists {
		rm.members[c.ID()] = c
	}
	members = len(rm.members)
	roomCount := len(r.rooms)
	r.mu.Unlock()

	monitoring.SetActiveRooms(roomCount)

	if !exists {
		r.logger.Debug().
			Str("room", roomID).
			Str("conn", c.ID()).
			Int("members", members).
			Msg("Connection joined room")
		if r.signals != nil {
			r.signals.ViewerJoined(roomID, members)
		}
	}
	return !exists, members
}

// Leave removes c from roomID. The room is deleted when its last member
// leaves; no zombie rooms remain.
func (r *Registry) Leave(c Conn, roomID string) (removed bool, members int) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if ok {
		if _, removed = rm.members[c.ID()]; removed {
			delete(rm.members, c.ID())
		}
		members = len(rm.members)
		if members == 0 {
			delete(r.rooms, roomID)
		}
	}
	roomCount := len(r.rooms)
	r.mu.Unlock()

	monitoring.SetActiveRooms(roomCount)

	if removed {
		r.logger.Debug().
			Str("room", roomID).
			Str("conn", c.ID()).
			Int("members", members).
			Msg("Connection left room")
		if r.signals != nil {
			r.signals.ViewerLeft(roomID, members)
		}
	}
	return removed, members
}

// LeaveAll removes c from every room it joined and returns those room ids.
// Called by the transport when a connection closes.
func (r *Registry) LeaveAll(c Conn) []string {
	r.mu.Lock()
	var left []string
	var counts []int
	for roomID, rm := range r.rooms {
		if _, ok := rm.members[c.ID()]; ok {
			delete(rm.members, c.ID())
			left = append(left, roomID)
			counts = append(counts, len(rm.members))
			if len(rm.members) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	roomCount := len(r.rooms)
	r.mu.Unlock()

	monitoring.SetActiveRooms(roomCount)

	if r.signals != nil {
		for i, roomID := range left {
			r.signals.ViewerLeft(roomID, counts[i])
		}
	}
	return left
}

// Broadcast delivers ev to every member of roomID except the ids listed in
// exclude (echo suppression). Delivery uses a snapshot taken under the lock:
// a connection that left before the broadcast started is never reached.
func (r *Registry) Broadcast(roomID string, ev Event, exclude ...string) int {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	targets := make([]Conn, 0, len(rm.members))
	for id, c := range rm.members {
		if contains(exclude, id) {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Enqueue(ev) {
			delivered++
		}
	}
	monitoring.ObserveBroadcast(delivered)
	return delivered
}

// Members returns a snapshot of the room's member connections.
func (r *Registry) Members(roomID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Conn, 0, len(rm.members))
	for _, c := range rm.members {
		out = append(out, c)
	}
	return out
}

// MemberCount returns the current member count of roomID.
func (r *Registry) MemberCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[roomID]; ok {
		return len(rm.members)
	}
	return 0
}

// InRoom reports whether connID is currently a member of roomID.
func (r *Registry) InRoom(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = rm.members[connID]
	return ok
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
