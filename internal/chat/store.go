package chat

import (
	"context"
	"time"
)

// ListOptions parameterize history retrieval. Exactly one of Cursor,
// Before, After may be set; all empty starts from the beginning.
type ListOptions struct {
	Limit          int
	Cursor         *Cursor
	Before         string // message id
	After          string // message id
	IncludeDeleted bool
	Descending     bool
}

// Page is one page of history.
type Page struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"hasMore"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// Store is the external storage collaborator for chat history. The core
// shapes and validates messages; durability lives behind this interface.
//
// Implementations must make reaction updates and pin swaps atomic: two
// concurrent AddReaction calls for the same (message, emoji, user) must
// yield exactly one stored reaction, and at most one message per room is
// pinned at any instant.
type Store interface {
	Insert(ctx context.Context, m *Message) error
	Get(ctx context.Context, messageID string) (*Message, error)

	// SetDeleted soft-deletes or restores a message. The body is retained.
	SetDeleted(ctx context.Context, messageID string, deleted bool) error

	// AddReaction records (emoji, userID) on a message. Reports false when
	// the pair was already present.
	AddReaction(ctx context.Context, messageID, emoji, userID string) (changed bool, err error)

	// RemoveReaction removes (emoji, userID). Reports false when absent.
	RemoveReaction(ctx context.Context, messageID, emoji, userID string) (changed bool, err error)

	// Pin pins messageID in roomID and unpins whatever was pinned before.
	// Returns the previously pinned message id, if any.
	Pin(ctx context.Context, roomID, messageID string) (unpinned string, err error)

	// Unpin clears the pinned flag of messageID.
	Unpin(ctx context.Context, messageID string) error

	// List returns a history page for roomID ordered by (createdAt, id).
	List(ctx context.Context, roomID string, opts ListOptions) (Page, error)
}

// messageAfter reports whether m sorts after the (createdAt, id) position.
func messageAfter(m Message, at time.Time, id string) bool {
	if m.CreatedAt.After(at) {
		return true
	}
	return m.CreatedAt.Equal(at) && m.ID > id
}

// messageBefore reports whether m sorts before the (createdAt, id) position.
func messageBefore(m Message, at time.Time, id string) bool {
	if m.CreatedAt.Before(at) {
		return true
	}
	return m.CreatedAt.Equal(at) && m.ID < id
}
