// Package transport is the WebSocket edge: it upgrades connections behind
// the security gate, runs per-connection read/write pumps, dispatches
// validated events to handlers and fans results out through the room
// registry.
package transport

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/chat"
	"github.com/lunastream/realtime/internal/command"
	"github.com/lunastream/realtime/internal/config"
	"github.com/lunastream/realtime/internal/identity"
	"github.com/lunastream/realtime/internal/monitoring"
	"github.com/lunastream/realtime/internal/room"
	"github.com/lunastream/realtime/internal/schema"
	"github.com/lunastream/realtime/internal/security"
)

// Telemetry receives validated broadcaster stats. Implemented by the
// analytics publisher; nil disables forwarding.
type Telemetry interface {
	StreamStats(roomID string, frameRate float64, width, height, bitrate int)
}

// Server owns the WebSocket surface. Construct with NewServer, wire the
// collaborators explicitly, then serve Handler() over HTTP.
type Server struct {
	cfg       *config.Config
	logger    zerolog.Logger
	validator *schema.Validator
	monitor   *security.Monitor
	connGate  *security.ConnLimiter
	resolver  identity.Resolver
	rooms     *room.Registry
	chat      *chat.Service
	commands  *command.Parser
	typing    *typingTracker
	pool      *fanoutPool
	telemetry Telemetry

	conns        sync.Map // conn id -> *conn
	connCount    atomic.Int64
	shuttingDown atomic.Bool
}

// Deps are the collaborators the server is wired with. ConnGate, Resolver
// and Telemetry are optional.
type Deps struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Validator *schema.Validator
	Monitor   *security.Monitor
	ConnGate  *security.ConnLimiter
	Resolver  identity.Resolver
	Rooms     *room.Registry
	Chat      *chat.Service
	Commands  *command.Parser
	Telemetry Telemetry
}

func NewServer(d Deps) *Server {
	s := &Server{
		cfg:       d.Config,
		logger:    d.Logger.With().Str("component", "transport").Logger(),
		validator: d.Validator,
		monitor:   d.Monitor,
		connGate:  d.ConnGate,
		resolver:  d.Resolver,
		rooms:     d.Rooms,
		chat:      d.Chat,
		commands:  d.Commands,
		telemetry: d.Telemetry,
		pool:      newFanoutPool(d.Config.WorkerCount, d.Config.WorkerQueueSize, d.Logger),
	}
	s.typing = newTypingTracker(d.Config.TypingTTL, s.typingExpired)
	return s
}

// Start launches background workers. The context bounds their lifetime.
func (s *Server) Start(ctx context.Context) {
	s.pool.Start(ctx)
}

// Handler returns the HTTP handler exposing the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// handleWebSocket runs the security gate and upgrades the connection.
// Refused connections never reach a handler: block-list first, then the
// connection rate limiter, then auth, then capacity.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown.Load() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	ip := clientIP(r)

	if s.monitor.IsBlocked(ip) {
		s.monitor.Audit().Record(security.AuditEntry{
			EventType: security.EventConnectionRejected,
			Subject:   ip,
			Message:   "connection refused: address is blocked",
			Severity:  security.SeverityHigh,
		})
		monitoring.IncrementConnectionRejected("blocked")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if s.connGate != nil && !s.connGate.Allow(ip) {
		s.monitor.Audit().Record(security.AuditEntry{
			EventType: security.EventConnectionRejected,
			Subject:   ip,
			Message:   "connection refused: connection rate limit",
			Severity:  security.SeverityMedium,
		})
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	ident, err := s.resolveIdentity(r, ip)
	if err != nil {
		status := http.StatusUnauthorized
		if ratelimited, ok := security.IsRateLimited(err); ok {
			w.Header().Set("Retry-After", formatRetryAfter(ratelimited.RetryAfter))
			status = http.StatusTooManyRequests
		}
		http.Error(w, "unauthorized", status)
		return
	}

	if ident == nil && !s.cfg.AllowAnonymous {
		monitoring.IncrementConnectionRejected("anonymous_disabled")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if s.connCount.Load() >= int64(s.cfg.MaxConnections) {
		s.logger.Warn().
			Str("client_ip", ip).
			Int64("current_connections", s.connCount.Load()).
			Int("max_connections", s.cfg.MaxConnections).
			Msg("Connection rejected: at capacity")
		monitoring.IncrementConnectionRejected("capacity")
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}

	netConn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Error().Err(err).Str("client_ip", ip).Msg("WebSocket upgrade failed")
		monitoring.IncrementConnectionRejected("upgrade_failed")
		return
	}

	c := newConn(netConn, ident, ip, s)
	s.conns.Store(c.id, c)
	s.connCount.Add(1)
	s.monitor.ConnectionOpened()
	monitoring.IncrementConnections()

	s.logger.Info().
		Str("conn", c.id).
		Str("client_ip", ip).
		Str("user", c.userID()).
		Int64("current_connections", s.connCount.Load()).
		Msg("Client connected")

	go s.writePump(c)
	go s.readPump(c)
}

// resolveIdentity resolves an optional bearer credential. Each presented
// credential consumes one attempt from the auth bucket; failed resolutions
// are audited. No credential means anonymous, not an error.
func (s *Server) resolveIdentity(r *http.Request, ip string) (*identity.Identity, error) {
	token := identity.FromRequest(r)
	if token == "" || s.resolver == nil {
		return nil, nil
	}

	if err := s.monitor.CheckAndRecord(security.Subject{IP: ip}, security.BucketAuth); err != nil {
		return nil, err
	}

	ident, err := s.resolver.Resolve(token)
	if err != nil {
		s.monitor.Audit().Record(security.AuditEntry{
			EventType: security.EventAuthFailure,
			Subject:   ip,
			Message:   "credential resolution failed",
			Severity:  security.SeverityMedium,
		})
		// Bad credentials weigh heavier than sloppy frames; a run of them
		// is credential stuffing, not a client bug.
		s.monitor.RecordSuspicious(security.Subject{IP: ip}, suspectAuthFailure, "credential resolution failed")
		monitoring.IncrementConnectionRejected("auth_failed")
		return nil, err
	}
	return ident, nil
}

// cleanup runs once per connection when its read pump exits: leave every
// room, clear typing state, release counters.
func (s *Server) cleanup(c *conn) {
	c.close()
	if _, loaded := s.conns.LoadAndDelete(c.id); !loaded {
		return
	}
	s.connCount.Add(-1)
	s.monitor.ConnectionClosed()
	monitoring.DecrementConnections()

	left := s.rooms.LeaveAll(c)
	for _, roomID := range left {
		s.typing.Stop(roomID, c.id)
		s.broadcast(roomID, room.Event{
			Type: EventViewerLeft,
			Data: map[string]any{
				"streamId": roomID,
				"viewers":  s.rooms.MemberCount(roomID),
			},
		})
	}

	s.logger.Info().
		Str("conn", c.id).
		Str("user", c.userID()).
		Dur("connected_for", time.Since(c.connectedAt)).
		Int("rooms_left", len(left)).
		Msg("Client disconnected")
}

// broadcast fans an event out on the worker pool so no handler goroutine
// pays for a large room's delivery loop.
func (s *Server) broadcast(roomID string, ev room.Event, exclude ...string) {
	s.pool.Submit(func() {
		s.rooms.Broadcast(roomID, ev, exclude...)
	})
}

// NotifyWentLive broadcasts the stream-live lifecycle event to a room.
// Driven by the admin surface or the upstream stream controller.
func (s *Server) NotifyWentLive(streamID string) {
	s.broadcast(streamID, room.Event{
		Type: EventStreamWentLive,
		Data: map[string]any{"streamId": streamID},
	})
}

// NotifyEnded broadcasts the stream-ended lifecycle event to a room.
func (s *Server) NotifyEnded(streamID string) {
	s.broadcast(streamID, room.Event{
		Type: EventStreamEnded,
		Data: map[string]any{"streamId": streamID},
	})
}

// ConnectionCount returns the number of live connections.
func (s *Server) ConnectionCount() int64 { return s.connCount.Load() }

// DroppedFanouts reports fan-out tasks shed under backpressure.
func (s *Server) DroppedFanouts() int64 { return s.pool.Dropped() }

// Shutdown stops accepting upgrades, closes every live connection and waits
// for the worker pool to drain. cancel must be the cancel func of the
// context passed to Start.
func (s *Server) Shutdown(cancel context.CancelFunc) {
	s.shuttingDown.Store(true)
	s.typing.StopAll()

	s.conns.Range(func(_, v any) bool {
		v.(*conn).close()
		return true
	})

	cancel()
	s.pool.Stop()
	s.logger.Info().Msg("Transport shut down")
}

// clientIP extracts the originating address: first hop of X-Forwarded-For
// when present, RemoteAddr otherwise.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func formatRetryAfter(d time.Duration) string {
	secs := int(d.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
