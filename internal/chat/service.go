// Package chat implements the message pipeline: creation, moderation
// actions, slow mode, reactions, pinning and cursor-paginated history.
package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lunastream/realtime/internal/identity"
	"github.com/lunastream/realtime/internal/monitoring"
	"github.com/lunastream/realtime/internal/security"
)

// RateLimiter is the slice of the security monitor the pipeline needs.
type RateLimiter interface {
	CheckAndRecord(subject security.Subject, bucket security.BucketClass) error
}

// Events receives pipeline notifications for the analytics collaborator.
// Implementations must not block; the pipeline calls them on the hot path.
type Events interface {
	MessageCreated(m *Message)
	MessageDeleted(roomID, messageID, moderatorID, reason string)
	UserModerated(roomID, userID, action string, until time.Time)
}

// NopEvents discards events; used when no analytics bus is configured.
type NopEvents struct{}

func (NopEvents) MessageCreated(*Message)                             {}
func (NopEvents) MessageDeleted(roomID, msgID, modID, reason string)  {}
func (NopEvents) UserModerated(roomID, userID, a string, u time.Time) {}

type slowModeState struct {
	enabled bool
	delay   time.Duration
}

type roomState struct {
	slowMode slowModeState
	lastSend map[string]time.Time // author id -> last accepted send
	timeouts map[string]time.Time // user id -> expiry
	bans     map[string]struct{}
}

// Service is the chat pipeline. Persistence goes through Store; fan-out is
// the transport's job; the pipeline returns what to broadcast.
type Service struct {
	store    Store
	limiter  RateLimiter
	events   Events
	logger   zerolog.Logger
	maxLimit int

	mu    sync.Mutex
	rooms map[string]*roomState

	now func() time.Time // test hook
}

func NewService(store Store, limiter RateLimiter, events Events, maxPageLimit int, logger zerolog.Logger) *Service {
	if events == nil {
		events = NopEvents{}
	}
	if maxPageLimit <= 0 {
		maxPageLimit = 100
	}
	return &Service{
		store:    store,
		limiter:  limiter,
		events:   events,
		logger:   logger.With().Str("component", "chat").Logger(),
		maxLimit: maxPageLimit,
		rooms:    make(map[string]*roomState),
		now:      time.Now,
	}
}

// Send creates a message. The body must already be sanitized by the schema
// validator. Rejections: rate limit (bucket "chat"), active timeout/ban in
// the room, slow-mode delay not yet elapsed.
func (s *Service) Send(ctx context.Context, roomID string, subject security.Subject, author Author, body, replyTo string) (*Message, error) {
	if s.limiter != nil {
		if err := s.limiter.CheckAndRecord(subject, security.BucketChat); err != nil {
			monitoring.IncrementMessageRejected("rate_limit")
			return nil, err
		}
	}

	now := s.now()

	s.mu.Lock()
	rs := s.roomState(roomID)

	if err := rs.checkModerated(author.ID, now); err != nil {
		s.mu.Unlock()
		monitoring.IncrementMessageRejected("moderated")
		return nil, err
	}

	// Moderators and above are exempt from slow mode.
	if rs.slowMode.enabled && !author.Role.AtLeast(identity.RoleModerator) {
		if last, ok := rs.lastSend[author.ID]; ok {
			elapsed := now.Sub(last)
			if elapsed < rs.slowMode.delay {
				s.mu.Unlock()
				monitoring.IncrementMessageRejected("slow_mode")
				return nil, &SlowModeError{RetryAfter: rs.slowMode.delay - elapsed}
			}
		}
	}
	rs.lastSend[author.ID] = now
	s.mu.Unlock()

	if replyTo != "" {
		if _, err := s.store.Get(ctx, replyTo); err != nil {
			return nil, fmt.Errorf("reply target: %w", err)
		}
	}

	m := &Message{
		ID:        NewMessageID(),
		RoomID:    roomID,
		Author:    author,
		Body:      body,
		ReplyTo:   replyTo,
		CreatedAt: now,
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	monitoring.IncrementMessageCreated()
	s.events.MessageCreated(m)
	return m, nil
}

// Delete soft-deletes a message. Moderator-or-above. The stored body is
// retained for audit; clients receive a tombstone.
func (s *Service) Delete(ctx context.Context, messageID string, moderator identity.Identity, reason string) (*Message, error) {
	if !moderator.Role.AtLeast(identity.RoleModerator) {
		return nil, ErrForbidden
	}
	m, err := s.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !m.Deleted {
		if err := s.store.SetDeleted(ctx, messageID, true); err != nil {
			return nil, err
		}
		m.Deleted = true
	}

	s.logger.Info().
		Str("message", messageID).
		Str("moderator", moderator.ID).
		Str("reason", reason).
		Msg("Message deleted")
	s.events.MessageDeleted(m.RoomID, messageID, moderator.ID, reason)

	tombstone := m.Tombstone()
	return &tombstone, nil
}

// React adds or removes a reaction. Idempotent both ways: duplicate adds
// and removals of absent reactions are no-ops, never errors.
func (s *Service) React(ctx context.Context, messageID, userID, emoji, action string) (changed bool, err error) {
	switch action {
	case "add":
		changed, err = s.store.AddReaction(ctx, messageID, emoji, userID)
	case "remove":
		changed, err = s.store.RemoveReaction(ctx, messageID, emoji, userID)
	default:
		return false, fmt.Errorf("unknown reaction action %q", action)
	}
	return changed, err
}

// Pin pins or unpins a message. Moderator-or-above. At most one message is
// pinned per room; pinning implicitly unpins the previous one, whose id is
// returned so clients can update both.
func (s *Service) Pin(ctx context.Context, roomID, messageID string, pin bool, moderator identity.Identity) (unpinned string, err error) {
	if !moderator.Role.AtLeast(identity.RoleModerator) {
		return "", ErrForbidden
	}
	if pin {
		return s.store.Pin(ctx, roomID, messageID)
	}
	return "", s.store.Unpin(ctx, messageID)
}

// ModerationResult describes the applied action for fan-out.
type ModerationResult struct {
	RoomID string    `json:"roomId"`
	UserID string    `json:"userId"`
	Action string    `json:"action"`
	Until  time.Time `json:"until,omitzero"`
	Reason string    `json:"reason,omitempty"`
}

// Moderate applies timeout/ban/unban/warn to a user in a room.
// Moderator-or-above. Timeout duration is capped at 24h by the schema
// validator; a second cap here guards direct callers.
func (s *Service) Moderate(ctx context.Context, roomID, userID, action string, duration time.Duration, reason string, moderator identity.Identity) (*ModerationResult, error) {
	if !moderator.Role.AtLeast(identity.RoleModerator) {
		return nil, ErrForbidden
	}

	res := &ModerationResult{RoomID: roomID, UserID: userID, Action: action, Reason: reason}
	now := s.now()

	s.mu.Lock()
	rs := s.roomState(roomID)
	switch action {
	case "timeout":
		if duration <= 0 || duration > 24*time.Hour {
			duration = 24 * time.Hour
		}
		res.Until = now.Add(duration)
		rs.timeouts[userID] = res.Until
	case "ban":
		rs.bans[userID] = struct{}{}
		delete(rs.timeouts, userID)
	case "unban":
		delete(rs.bans, userID)
		delete(rs.timeouts, userID)
	case "warn":
		// No suppression state; the event itself is the warning.
	default:
		s.mu.Unlock()
		return nil, fmt.Errorf("unknown moderation action %q", action)
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("room", roomID).
		Str("user", userID).
		Str("action", action).
		Str("moderator", moderator.ID).
		Msg("User moderated")
	s.events.UserModerated(roomID, userID, action, res.Until)
	return res, nil
}

// SetSlowMode enables or disables the room's minimum inter-message delay.
// Moderator-or-above.
func (s *Service) SetSlowMode(roomID string, enabled bool, delay time.Duration, moderator identity.Identity) error {
	if !moderator.Role.AtLeast(identity.RoleModerator) {
		return ErrForbidden
	}
	s.mu.Lock()
	rs := s.roomState(roomID)
	rs.slowMode = slowModeState{enabled: enabled, delay: delay}
	s.mu.Unlock()

	s.logger.Info().
		Str("room", roomID).
		Bool("enabled", enabled).
		Dur("delay", delay).
		Msg("Slow mode changed")
	return nil
}

// SlowMode returns the room's current slow-mode setting.
func (s *Service) SlowMode(roomID string) (enabled bool, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.rooms[roomID]
	if !ok {
		return false, 0
	}
	return rs.slowMode.enabled, rs.slowMode.delay
}

// HistoryQuery parameterizes GetHistory. Cursor/Before/After are mutually
// exclusive (enforced by the schema validator).
type HistoryQuery struct {
	Limit          int
	Cursor         string
	Before         string
	After          string
	IncludeDeleted bool
	OrderBy        string // "asc" (default) | "desc"
}

// GetHistory returns one page of room history. IncludeDeleted requires a
// moderator-or-above caller; for everyone else deleted messages are
// excluded entirely, not just redacted.
func (s *Service) GetHistory(ctx context.Context, roomID string, q HistoryQuery, caller identity.Role) (Page, error) {
	if q.IncludeDeleted && !caller.AtLeast(identity.RoleModerator) {
		return Page{}, ErrForbidden
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	cursor, err := DecodeCursor(q.Cursor)
	if err != nil {
		return Page{}, err
	}

	return s.store.List(ctx, roomID, ListOptions{
		Limit:          limit,
		Cursor:         cursor,
		Before:         q.Before,
		After:          q.After,
		IncludeDeleted: q.IncludeDeleted,
		Descending:     q.OrderBy == "desc",
	})
}

// IsSuppressed reports whether userID currently cannot send in roomID.
func (s *Service) IsSuppressed(roomID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	return rs.checkModerated(userID, s.now()) != nil
}

// roomState must be called with s.mu held.
func (s *Service) roomState(roomID string) *roomState {
	rs, ok := s.rooms[roomID]
	if !ok {
		rs = &roomState{
			lastSend: make(map[string]time.Time),
			timeouts: make(map[string]time.Time),
			bans:     make(map[string]struct{}),
		}
		s.rooms[roomID] = rs
	}
	return rs
}

func (rs *roomState) checkModerated(userID string, now time.Time) error {
	if _, banned := rs.bans[userID]; banned {
		return &ModeratedError{Action: "ban"}
	}
	if until, ok := rs.timeouts[userID]; ok {
		if now.Before(until) {
			return &ModeratedError{Action: "timeout", Until: until}
		}
		delete(rs.timeouts, userID) // expired
	}
	return nil
}
