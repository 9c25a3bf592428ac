package transport

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"github.com/lunastream/realtime/internal/chat"
	"github.com/lunastream/realtime/internal/monitoring"
	"github.com/lunastream/realtime/internal/room"
	"github.com/lunastream/realtime/internal/schema"
	"github.com/lunastream/realtime/internal/security"
)

// envelope is the inbound wire frame: {"type": "...", "data": {...}}.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handlerTimeout bounds a single handler's work, including store calls.
const handlerTimeout = 5 * time.Second

// Anomaly weights fed to the security monitor. Well-behaved clients never
// produce these frames; a run of them marks a probe or a broken client. The
// auto-block threshold lives on the monitor's config.
const (
	suspectMalformedFrame    = 2
	suspectUnknownEvent      = 1
	suspectValidationFailure = 1
	suspectAuthFailure       = 3
)

// dispatch routes one inbound frame: envelope parse, heartbeat short-path,
// rate limit, schema validation, then the typed handler behind a panic
// boundary. Unregistered events are rejected, not silently ignored.
func (s *Server) dispatch(c *conn, data []byte) {
	var req envelope
	if err := json.Unmarshal(data, &req); err != nil {
		s.monitor.RecordSuspicious(c.subject(), suspectMalformedFrame, "malformed frame")
		s.writeErrorTo(c, CodeValidation, "malformed frame: not valid JSON", "", 0)
		return
	}

	// Application-level heartbeat for clients that cannot observe WS control
	// frames. Exempt from rate limiting; it feeds their health monitor.
	if req.Type == "ping" {
		c.Enqueue(room.Event{Type: EventPong, Data: map[string]any{"ts": time.Now().UnixMilli()}})
		return
	}

	if !schema.Known(req.Type) {
		s.monitor.RecordSuspicious(c.subject(), suspectUnknownEvent, "unknown event type "+req.Type)
		s.writeErrorTo(c, CodeValidation, "unknown event type "+req.Type, "type", 0)
		return
	}

	if bucket, gated := bucketFor(req.Type); gated {
		if err := s.monitor.CheckAndRecord(c.subject(), bucket); err != nil {
			s.writeLimitError(c, err)
			return
		}
	}

	payload, err := s.validator.Validate(req.Type, req.Data)
	if err != nil {
		s.monitor.RecordSuspicious(c.subject(), suspectValidationFailure, "payload validation failed on "+req.Type)
		s.writeValidationError(c, err)
		return
	}

	s.handle(c, req.Type, payload)
}

// bucketFor maps an event to its rate-limit bucket class. Message sends are
// charged by the chat pipeline itself, so the gate skips them; a second
// check here would halve the effective chat quota. History queries burn the
// search bucket, everything else the general api bucket.
func bucketFor(event string) (security.BucketClass, bool) {
	switch event {
	case "chat:send-message":
		return security.BucketChat, false
	case "chat:get-history":
		return security.BucketSearch, true
	default:
		return security.BucketAPI, true
	}
}

func (c *conn) subject() security.Subject {
	return security.Subject{IP: c.remoteAddr, UserID: c.userID()}
}

// handle runs the typed handler for an already-validated payload. A panic
// here is a bug in one handler; it is audited and reported to the single
// connection that triggered it, never allowed to take the server down.
func (s *Server) handle(c *conn, event string, payload schema.Payload) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Interface("panic_value", r).
				Str("event", event).
				Str("conn", c.id).
				Str("stack_trace", string(debug.Stack())).
				Msg("Handler panicked")
			s.monitor.Audit().Record(security.AuditEntry{
				EventType: security.EventHandlerPanic,
				Subject:   c.remoteAddr,
				UserID:    c.userID(),
				Message:   "handler panic on event " + event,
				Severity:  security.SeverityCritical,
			})
			s.writeErrorTo(c, CodeInternal, "internal error", "", 0)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch p := payload.(type) {
	case *schema.JoinStream:
		s.handleJoin(c, p)
	case *schema.LeaveStream:
		s.handleLeave(c, p)
	case *schema.SendMessage:
		s.handleSendMessage(ctx, c, p)
	case *schema.DeleteMessage:
		s.handleDeleteMessage(ctx, c, p)
	case *schema.ModerateUser:
		s.handleModerateUser(ctx, c, p)
	case *schema.Typing:
		s.handleTyping(c, p)
	case *schema.GetHistory:
		s.handleGetHistory(ctx, c, p)
	case *schema.React:
		s.handleReact(ctx, c, p)
	case *schema.PinMessage:
		s.handlePinMessage(ctx, c, p)
	case *schema.SlowMode:
		s.handleSlowMode(c, p)
	case *schema.StreamStats:
		s.handleStreamStats(c, p)
	}
}

// errorData is the error event's payload.
type errorData struct {
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Field      string             `json:"field,omitempty"`
	Fields     []schema.ValidationError `json:"fields,omitempty"`
	RetryAfter float64            `json:"retryAfter,omitempty"` // seconds
}

func (s *Server) writeErrorTo(c *conn, code, message, field string, retryAfter time.Duration) {
	c.Enqueue(room.Event{Type: EventError, Data: errorData{
		Code:       code,
		Message:    message,
		Field:      field,
		RetryAfter: retryAfter.Seconds(),
	}})
}

func (s *Server) writeValidationError(c *conn, err error) {
	var errs schema.ValidationErrors
	if errors.As(err, &errs) {
		c.Enqueue(room.Event{Type: EventError, Data: errorData{
			Code:    CodeValidation,
			Message: "validation failed",
			Fields:  errs,
		}})
		return
	}
	s.writeErrorTo(c, CodeValidation, err.Error(), "", 0)
}

func (s *Server) writeLimitError(c *conn, err error) {
	if rl, ok := security.IsRateLimited(err); ok {
		s.writeErrorTo(c, CodeRateLimit, "rate limit exceeded", "", rl.RetryAfter)
		return
	}
	if errors.Is(err, security.ErrBlocked) {
		s.writeErrorTo(c, CodeBlocked, "address is blocked", "", 0)
		c.close()
		return
	}
	s.writeErrorTo(c, CodeInternal, "internal error", "", 0)
}

// writeChatError maps chat pipeline failures onto the wire taxonomy.
func (s *Server) writeChatError(c *conn, err error) {
	var slow *chat.SlowModeError
	var moderated *chat.ModeratedError
	switch {
	case errors.As(err, &slow):
		s.writeErrorTo(c, CodeSlowMode, "slow mode active", "", slow.RetryAfter)
	case errors.As(err, &moderated):
		s.writeErrorTo(c, CodeModerated, err.Error(), "", 0)
	case errors.Is(err, chat.ErrForbidden):
		s.writeErrorTo(c, CodeForbidden, "insufficient role", "", 0)
	case errors.Is(err, chat.ErrNotFound):
		s.writeErrorTo(c, CodeNotFound, "not found", "", 0)
	case errors.Is(err, chat.ErrInvalidCursor):
		s.writeErrorTo(c, CodeValidation, "invalid cursor", "cursor", 0)
	default:
		if rl, ok := security.IsRateLimited(err); ok {
			s.writeErrorTo(c, CodeRateLimit, "rate limit exceeded", "", rl.RetryAfter)
			return
		}
		if errors.Is(err, security.ErrBlocked) {
			s.writeErrorTo(c, CodeBlocked, "address is blocked", "", 0)
			return
		}
		s.logger.Error().Err(err).Str("conn", c.id).Msg("Chat operation failed")
		monitoring.IncrementMessageRejected("internal")
		s.writeErrorTo(c, CodeInternal, "internal error", "", 0)
	}
}
