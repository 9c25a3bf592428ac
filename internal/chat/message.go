package chat

import (
	"time"

	"github.com/rs/xid"

	"github.com/lunastream/realtime/internal/identity"
)

// Author is the message author's identity denormalized at write time, so a
// later display-name or role change does not rewrite history.
type Author struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"displayName"`
	Role        identity.Role `json:"role"`
	AvatarURL   string        `json:"avatarUrl,omitempty"`
}

// Message is one chat message. Immutable once created except for the
// pinned/deleted flags and reactions, which moderators mutate.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Author    Author    `json:"author"`
	Body      string    `json:"body"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	Reactions Reactions `json:"reactions,omitempty"`
	Pinned    bool      `json:"pinned"`
	Deleted   bool      `json:"deleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// Reactions maps emoji to the ids of users who reacted with it.
type Reactions map[string][]string

// Has reports whether userID already reacted with emoji.
func (r Reactions) Has(emoji, userID string) bool {
	for _, id := range r[emoji] {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone deep-copies the reaction multiset.
func (r Reactions) Clone() Reactions {
	if r == nil {
		return nil
	}
	out := make(Reactions, len(r))
	for emoji, ids := range r {
		out[emoji] = append([]string(nil), ids...)
	}
	return out
}

// NewMessageID returns a unique, time-orderable message id. xid encodes the
// creation time in its leading bytes, so lexicographic order is creation
// order, the property cursor pagination relies on.
func NewMessageID() string {
	return xid.New().String()
}

// Tombstone returns the client-facing view of a deleted message: flags and
// ordering survive, content does not. The original body is retained
// server-side for audit.
func (m Message) Tombstone() Message {
	t := m
	t.Body = ""
	t.Reactions = nil
	return t
}
