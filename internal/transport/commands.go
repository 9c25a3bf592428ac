package transport

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/lunastream/realtime/internal/chat"
	"github.com/lunastream/realtime/internal/command"
	"github.com/lunastream/realtime/internal/room"
)

// executeCommand runs "/"-prefixed chat text through the command pipeline:
// parse, resolve, authorize, validate args, then the command's effect.
// Callers have already checked room membership and authentication of the
// surrounding chat:send-message.
func (s *Server) executeCommand(ctx context.Context, c *conn, roomID, text string) {
	parsed := command.Parse(text)

	cmd, err := s.commands.Resolve(parsed.Name)
	if err != nil {
		s.writeErrorTo(c, CodeNotFound, "unknown command /"+parsed.Name, "", 0)
		return
	}

	allowed, reason := s.commands.Authorize(cmd, c.ident, c.ident != nil)
	if !allowed {
		code := CodeForbidden
		if reason == command.DenyAuthRequired {
			code = CodeUnauthorized
		}
		s.writeErrorTo(c, code, string(reason), "", 0)
		return
	}

	args, argErrs := s.commands.ValidateArgs(cmd, parsed.Args)
	if len(argErrs) > 0 {
		msgs := make([]string, len(argErrs))
		for i, e := range argErrs {
			msgs[i] = e.Error()
		}
		s.writeErrorTo(c, CodeValidation, "usage: "+cmd.Usage()+" ("+strings.Join(msgs, "; ")+")", "", 0)
		return
	}

	s.runCommand(ctx, c, roomID, cmd, args)
}

func (s *Server) runCommand(ctx context.Context, c *conn, roomID string, cmd *command.Command, args []string) {
	switch cmd.Name {
	case "help":
		lines, err := s.commands.Help(argAt(args, 0), c.ident, c.ident != nil)
		if err != nil {
			s.writeErrorTo(c, CodeNotFound, "unknown command", "", 0)
			return
		}
		s.commandResult(c, "help", map[string]any{"lines": lines})

	case "me":
		author := chat.Author{ID: c.ident.ID, DisplayName: c.ident.DisplayName, Role: c.ident.Role, AvatarURL: c.ident.AvatarURL}
		body := "* " + c.displayName() + " " + args[0]
		m, err := s.chat.Send(ctx, roomID, c.subject(), author, body, "")
		if err != nil {
			s.writeChatError(c, err)
			return
		}
		c.Enqueue(room.Event{Type: EventChatMessageSent, Data: m})
		s.broadcast(roomID, room.Event{Type: EventChatMessage, Data: m}, c.id)

	case "timeout":
		secs, _ := strconv.ParseFloat(args[1], 64)
		s.moderateByCommand(ctx, c, roomID, args[0], "timeout", time.Duration(secs*float64(time.Second)), argAt(args, 2))

	case "ban":
		s.moderateByCommand(ctx, c, roomID, args[0], "ban", 0, argAt(args, 1))

	case "unban":
		s.moderateByCommand(ctx, c, roomID, args[0], "unban", 0, "")

	case "slow":
		secs, _ := strconv.ParseFloat(args[0], 64)
		delay := time.Duration(secs * float64(time.Second))
		if err := s.chat.SetSlowMode(roomID, true, delay, *c.ident); err != nil {
			s.writeChatError(c, err)
			return
		}
		s.broadcast(roomID, room.Event{Type: EventChatSlowMode, Data: map[string]any{
			"streamId": roomID, "enabled": true, "delay": int64(secs),
		}})

	case "slowoff":
		if err := s.chat.SetSlowMode(roomID, false, 0, *c.ident); err != nil {
			s.writeChatError(c, err)
			return
		}
		s.broadcast(roomID, room.Event{Type: EventChatSlowMode, Data: map[string]any{
			"streamId": roomID, "enabled": false, "delay": int64(0),
		}})

	case "pin", "unpin":
		pin := cmd.Name == "pin"
		unpinned, err := s.chat.Pin(ctx, roomID, args[0], pin, *c.ident)
		if err != nil {
			s.writeChatError(c, err)
			return
		}
		s.broadcast(roomID, room.Event{Type: EventChatMessagePinned, Data: map[string]any{
			"streamId": roomID, "messageId": args[0], "pinned": pin, "unpinnedMessageId": unpinned,
		}})

	case "delete":
		tombstone, err := s.chat.Delete(ctx, args[0], *c.ident, "")
		if err != nil {
			s.writeChatError(c, err)
			return
		}
		s.broadcast(roomID, room.Event{Type: EventChatMessageDeleted, Data: map[string]any{
			"streamId": roomID, "messageId": args[0], "message": tombstone,
		}})

	case "shoutout":
		s.broadcast(roomID, room.Event{Type: EventChatCommandResult, Data: map[string]any{
			"command": "shoutout", "streamId": roomID, "user": args[0], "by": c.displayName(),
		}})

	case "announce":
		clean, ok := s.validator.SanitizeText(args[0], s.validator.MaxMessageLength)
		if !ok {
			s.writeErrorTo(c, CodeValidation, "announcement empty after sanitization", "text", 0)
			return
		}
		s.broadcast(roomID, room.Event{Type: EventChatCommandResult, Data: map[string]any{
			"command": "announce", "streamId": roomID, "text": clean, "by": c.displayName(),
		}})
	}
}

func (s *Server) moderateByCommand(ctx context.Context, c *conn, roomID, userID, action string, duration time.Duration, reason string) {
	res, err := s.chat.Moderate(ctx, roomID, userID, action, duration, reason, *c.ident)
	if err != nil {
		s.writeChatError(c, err)
		return
	}
	s.broadcast(roomID, room.Event{Type: EventChatUserModerated, Data: res})
}

func (s *Server) commandResult(c *conn, name string, data map[string]any) {
	data["command"] = name
	c.Enqueue(room.Event{Type: EventChatCommandResult, Data: data})
}

// argAt returns the i-th canonical argument or "" when absent (optional
// parameters trail the required ones).
func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
