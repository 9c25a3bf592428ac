package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lunastream/realtime/internal/identity"
	"github.com/lunastream/realtime/internal/monitoring"
	"github.com/lunastream/realtime/internal/room"
)

const (
	// sendBuffer bounds the per-connection outbound queue. A full buffer
	// means the client is not draining its socket.
	sendBuffer = 256

	// maxSendStrikes is how many consecutive full-buffer failures a
	// connection survives before it is disconnected as a slow client. One
	// failure can be a hiccup; a run of them is a clear pattern.
	maxSendStrikes = 3
)

// conn is one upgraded WebSocket connection. It implements room.Conn.
// A nil ident means the connection is anonymous (viewer tier).
type conn struct {
	id         string
	ident      *identity.Identity
	remoteAddr string
	netConn    net.Conn
	send       chan room.Event

	connectedAt  time.Time
	lastActivity atomic.Int64 // unix nanos
	strikes      atomic.Int32
	closeOnce    sync.Once

	server *Server
}

func newConn(netConn net.Conn, ident *identity.Identity, remoteAddr string, s *Server) *conn {
	c := &conn{
		id:          uuid.NewString(),
		ident:       ident,
		remoteAddr:  remoteAddr,
		netConn:     netConn,
		send:        make(chan room.Event, sendBuffer),
		connectedAt: time.Now(),
		server:      s,
	}
	c.touch()
	return c
}

func (c *conn) ID() string                    { return c.id }
func (c *conn) Identity() *identity.Identity { return c.ident }
func (c *conn) RemoteAddr() string           { return c.remoteAddr }

// Enqueue queues ev for the write pump without blocking. A slow client that
// keeps a full buffer accumulates strikes and is eventually disconnected so
// it cannot hold fan-out resources for everyone else.
func (c *conn) Enqueue(ev room.Event) bool {
	select {
	case c.send <- ev:
		c.strikes.Store(0)
		return true
	default:
	}

	if c.strikes.Add(1) >= maxSendStrikes {
		c.server.logger.Warn().
			Str("conn", c.id).
			Str("remote", c.remoteAddr).
			Msg("Disconnecting slow client")
		monitoring.IncrementSlowClientDisconnect()
		c.close()
	}
	return false
}

// touch records inbound activity.
func (c *conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// close tears the socket down. The read pump unblocks with an error and
// runs the shared cleanup path; safe to call from any goroutine.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.netConn.Close()
	})
}

// userID returns the resolved user id or "" for anonymous connections.
func (c *conn) userID() string {
	if c.ident == nil {
		return ""
	}
	return c.ident.ID
}

// role returns the effective role; anonymous connections rank as viewer.
func (c *conn) role() identity.Role {
	if c.ident == nil {
		return identity.RoleViewer
	}
	return c.ident.Role
}

// displayName returns the display name or a generated fallback.
func (c *conn) displayName() string {
	if c.ident != nil && c.ident.DisplayName != "" {
		return c.ident.DisplayName
	}
	return "viewer-" + c.id[:8]
}
