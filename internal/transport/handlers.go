package transport

import (
	"context"
	"time"

	"github.com/lunastream/realtime/internal/chat"
	"github.com/lunastream/realtime/internal/command"
	"github.com/lunastream/realtime/internal/identity"
	"github.com/lunastream/realtime/internal/room"
	"github.com/lunastream/realtime/internal/schema"
)

func (s *Server) handleJoin(c *conn, p *schema.JoinStream) {
	added, members := s.rooms.Join(c, p.StreamID)
	if !added {
		return
	}
	s.broadcast(p.StreamID, room.Event{
		Type: EventViewerJoined,
		Data: map[string]any{
			"streamId": p.StreamID,
			"viewers":  members,
			"user":     publicIdentity(c),
		},
	})
}

func (s *Server) handleLeave(c *conn, p *schema.LeaveStream) {
	removed, members := s.rooms.Leave(c, p.StreamID)
	if !removed {
		return
	}
	s.typing.Stop(p.StreamID, c.id)
	s.broadcast(p.StreamID, room.Event{
		Type: EventViewerLeft,
		Data: map[string]any{
			"streamId": p.StreamID,
			"viewers":  members,
			"user":     publicIdentity(c),
		},
	})
}

func (s *Server) handleSendMessage(ctx context.Context, c *conn, p *schema.SendMessage) {
	if !s.rooms.InRoom(c.id, p.StreamID) {
		s.writeErrorTo(c, CodeNotFound, "not joined to stream", "streamId", 0)
		return
	}
	if c.ident == nil {
		s.writeErrorTo(c, CodeUnauthorized, "authentication required to chat", "", 0)
		return
	}

	if command.IsCommand(p.Content) {
		s.executeCommand(ctx, c, p.StreamID, p.Content)
		return
	}

	author := chat.Author{
		ID:          c.ident.ID,
		DisplayName: c.ident.DisplayName,
		Role:        c.ident.Role,
		AvatarURL:   c.ident.AvatarURL,
	}
	m, err := s.chat.Send(ctx, p.StreamID, c.subject(), author, p.Content, p.ReplyTo)
	if err != nil {
		s.writeChatError(c, err)
		return
	}

	// Typing stops implicitly on send.
	if s.typing.Stop(p.StreamID, c.id) {
		s.broadcastStoppedTyping(p.StreamID, c.id, c.userID(), c.displayName())
	}

	c.Enqueue(room.Event{Type: EventChatMessageSent, Data: m})
	s.broadcast(p.StreamID, room.Event{Type: EventChatMessage, Data: m}, c.id)
}

func (s *Server) handleDeleteMessage(ctx context.Context, c *conn, p *schema.DeleteMessage) {
	if c.ident == nil {
		s.writeErrorTo(c, CodeUnauthorized, "authentication required", "", 0)
		return
	}
	tombstone, err := s.chat.Delete(ctx, p.MessageID, *c.ident, p.Reason)
	if err != nil {
		s.writeChatError(c, err)
		return
	}
	s.broadcast(p.StreamID, room.Event{
		Type: EventChatMessageDeleted,
		Data: map[string]any{
			"streamId":  p.StreamID,
			"messageId": p.MessageID,
			"message":   tombstone,
			"reason":    p.Reason,
		},
	})
}

func (s *Server) handleModerateUser(ctx context.Context, c *conn, p *schema.ModerateUser) {
	if c.ident == nil {
		s.writeErrorTo(c, CodeUnauthorized, "authentication required", "", 0)
		return
	}
	res, err := s.chat.Moderate(ctx, p.StreamID, p.UserID, p.Action, time.Duration(p.Duration)*time.Second, p.Reason, *c.ident)
	if err != nil {
		s.writeChatError(c, err)
		return
	}
	s.broadcast(p.StreamID, room.Event{Type: EventChatUserModerated, Data: res})
}

func (s *Server) handleTyping(c *conn, p *schema.Typing) {
	if !s.rooms.InRoom(c.id, p.StreamID) || c.ident == nil {
		return
	}
	if p.IsTyping {
		if s.typing.Start(p.StreamID, c.id, c.userID(), c.displayName()) {
			s.broadcast(p.StreamID, room.Event{
				Type: EventChatTyping,
				Data: map[string]any{
					"streamId":    p.StreamID,
					"userId":      c.userID(),
					"displayName": c.displayName(),
				},
			}, c.id)
		}
		return
	}
	if s.typing.Stop(p.StreamID, c.id) {
		s.broadcastStoppedTyping(p.StreamID, c.id, c.userID(), c.displayName())
	}
}

// typingExpired is the tracker's auto-expiry callback: a client that went
// silent mid-keystroke still stops "typing" for everyone else.
func (s *Server) typingExpired(roomID, connID, userID, displayName string) {
	s.broadcastStoppedTyping(roomID, connID, userID, displayName)
}

func (s *Server) broadcastStoppedTyping(roomID, connID, userID, displayName string) {
	s.broadcast(roomID, room.Event{
		Type: EventChatStoppedTyping,
		Data: map[string]any{
			"streamId":    roomID,
			"userId":      userID,
			"displayName": displayName,
		},
	}, connID)
}

func (s *Server) handleGetHistory(ctx context.Context, c *conn, p *schema.GetHistory) {
	page, err := s.chat.GetHistory(ctx, p.StreamID, chat.HistoryQuery{
		Limit:          p.Limit,
		Cursor:         p.Cursor,
		Before:         p.Before,
		After:          p.After,
		IncludeDeleted: p.IncludeDeleted,
		OrderBy:        p.OrderBy,
	}, c.role())
	if err != nil {
		s.writeChatError(c, err)
		return
	}
	c.Enqueue(room.Event{
		Type: EventChatHistory,
		Data: map[string]any{
			"streamId":   p.StreamID,
			"messages":   page.Messages,
			"hasMore":    page.HasMore,
			"nextCursor": page.NextCursor,
		},
	})
}

func (s *Server) handleReact(ctx context.Context, c *conn, p *schema.React) {
	if c.ident == nil {
		s.writeErrorTo(c, CodeUnauthorized, "authentication required", "", 0)
		return
	}
	changed, err := s.chat.React(ctx, p.MessageID, c.ident.ID, p.Emoji, p.Action)
	if err != nil {
		s.writeChatError(c, err)
		return
	}
	// Duplicate adds and absent removals are accepted silently; only real
	// state changes fan out.
	if !changed {
		return
	}
	s.broadcast(p.StreamID, room.Event{
		Type: EventChatReaction,
		Data: map[string]any{
			"streamId":  p.StreamID,
			"messageId": p.MessageID,
			"emoji":     p.Emoji,
			"action":    p.Action,
			"userId":    c.ident.ID,
		},
	})
}

func (s *Server) handlePinMessage(ctx context.Context, c *conn, p *schema.PinMessage) {
	if c.ident == nil {
		s.writeErrorTo(c, CodeUnauthorized, "authentication required", "", 0)
		return
	}
	unpinned, err := s.chat.Pin(ctx, p.StreamID, p.MessageID, p.Pin, *c.ident)
	if err != nil {
		s.writeChatError(c, err)
		return
	}
	s.broadcast(p.StreamID, room.Event{
		Type: EventChatMessagePinned,
		Data: map[string]any{
			"streamId":          p.StreamID,
			"messageId":         p.MessageID,
			"pinned":            p.Pin,
			"unpinnedMessageId": unpinned,
		},
	})
}

func (s *Server) handleSlowMode(c *conn, p *schema.SlowMode) {
	if c.ident == nil {
		s.writeErrorTo(c, CodeUnauthorized, "authentication required", "", 0)
		return
	}
	delay := time.Duration(p.Delay) * time.Second
	if err := s.chat.SetSlowMode(p.StreamID, p.Enabled, delay, *c.ident); err != nil {
		s.writeChatError(c, err)
		return
	}
	s.broadcast(p.StreamID, room.Event{
		Type: EventChatSlowMode,
		Data: map[string]any{
			"streamId": p.StreamID,
			"enabled":  p.Enabled,
			"delay":    p.Delay,
		},
	})
}

// handleStreamStats accepts broadcaster telemetry and forwards it to the
// analytics collaborator. Streamer-or-above only; validated bounds keep
// malformed telemetry out of downstream aggregates.
func (s *Server) handleStreamStats(c *conn, p *schema.StreamStats) {
	if !c.role().AtLeast(identity.RoleStreamer) {
		s.writeErrorTo(c, CodeForbidden, "insufficient role", "", 0)
		return
	}
	if s.telemetry != nil {
		s.telemetry.StreamStats(p.StreamID, p.FrameRate, p.Width, p.Height, p.Bitrate)
	}
}

// publicIdentity is the client-facing identity view attached to presence
// events. Anonymous connections appear with a generated display name.
func publicIdentity(c *conn) map[string]any {
	return map[string]any{
		"id":          c.userID(),
		"displayName": c.displayName(),
		"role":        c.role(),
	}
}
