// Package client keeps one long-lived connection to the realtime server
// alive across flaky networks: health scoring from periodic pings,
// exponential-backoff reconnection behind a circuit breaker, and
// burst-shaping primitives for event floods.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is the wire envelope shared with the server.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler consumes one inbound event's payload.
type Handler func(data json.RawMessage)

// Config tunes the client. URL is required; zero values elsewhere take
// defaults.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "wss://host/ws".
	URL string
	// Token is the optional bearer credential; empty connects anonymously.
	Token string

	PingInterval     time.Duration // default 15s
	HandshakeTimeout time.Duration // default 10s

	Reconnect ReconnectConfig
	Health    HealthConfig

	Logger zerolog.Logger
}

var ErrClosed = errors.New("client closed")

// Client is a reconnecting WebSocket client. All methods are safe for
// concurrent use.
type Client struct {
	cfg    Config
	logger zerolog.Logger

	health *HealthMonitor
	recon  *Reconnector

	mu              sync.Mutex
	conn            *websocket.Conn
	closed          bool
	pingOutstanding bool
	pingSentAt      time.Time

	wmu sync.Mutex // serializes writes to conn

	handlersMu sync.RWMutex
	handlers   map[string][]Handler

	ctx    context.Context
	cancel context.CancelFunc
}

func New(cfg Config) *Client {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 15 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	c := &Client{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "realtime-client").Logger(),
		health:   NewHealthMonitor(cfg.Health),
		handlers: make(map[string][]Handler),
	}
	c.recon = NewReconnector(c.dialOnce, cfg.Reconnect)
	return c
}

// Health exposes the connection health monitor.
func (c *Client) Health() *HealthMonitor { return c.health }

// Breaker exposes the reconnect circuit breaker.
func (c *Client) Breaker() *CircuitBreaker { return c.recon.Breaker() }

// On registers a handler for an event type. Handlers run on the read loop;
// slow work belongs on the caller's own goroutines.
func (c *Client) On(event string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Connect dials the server. ctx bounds the whole client lifetime: cancel
// it or call Close to tear down.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	return c.dialOnce(c.ctx)
}

// dialOnce performs one dial attempt and, on success, starts the read and
// ping loops for the new connection. It is also the reconnector's dial
// function.
func (c *Client) dialOnce(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("url", c.cfg.URL).Msg("Dial failed")
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.pingOutstanding = false
	c.mu.Unlock()

	c.health.Reset()
	c.logger.Info().Str("url", c.cfg.URL).Msg("Connected")

	go c.readLoop(conn)
	go c.pingLoop(conn)
	return nil
}

// Send emits one event to the server.
func (c *Client) Send(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return errors.New("not connected")
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteJSON(Event{Type: event, Data: raw})
}

// ForceReconnect tears the current connection down and dials immediately,
// regardless of breaker state. A success behaves as a successful probe.
func (c *Client) ForceReconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return c.recon.ForceReconnect(ctx)
}

// Close tears the client down deterministically: the connection closes,
// the reconnector stops, and no callback fires afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.recon.Close()
	if conn != nil {
		conn.Close()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.onDisconnect(conn, err)
			return
		}

		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed server frame")
			continue
		}

		if ev.Type == "pong" {
			c.onPong()
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev Event) {
	c.handlersMu.RLock()
	handlers := c.handlers[ev.Type]
	c.handlersMu.RUnlock()
	for _, h := range handlers {
		h(ev.Data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.closed || c.conn != conn {
			c.mu.Unlock()
			return
		}
		if c.pingOutstanding {
			c.mu.Unlock()
			c.health.RecordLoss()
			c.mu.Lock()
		}
		c.pingOutstanding = true
		c.pingSentAt = time.Now()
		c.mu.Unlock()

		if err := c.Send("ping", map[string]int64{"ts": time.Now().UnixMilli()}); err != nil {
			return
		}
	}
}

func (c *Client) onPong() {
	c.mu.Lock()
	if !c.pingOutstanding {
		c.mu.Unlock()
		return
	}
	c.pingOutstanding = false
	rtt := time.Since(c.pingSentAt)
	c.mu.Unlock()

	c.health.RecordLatency(rtt)
}

// onDisconnect runs when the read loop exits. Transport loss is handled
// internally: the health monitor counts it and the reconnector takes over.
// It never surfaces as an application error.
func (c *Client) onDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	closed := c.closed
	ctx := c.ctx
	c.mu.Unlock()

	conn.Close()
	if !current || closed {
		return
	}

	c.logger.Warn().Err(err).Msg("Connection lost")
	c.health.RecordDisconnect()
	c.recon.Start(ctx)
}
