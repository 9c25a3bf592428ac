// Package postgres is the pgx-backed chat.Store used in production. The
// relational store is the durability boundary; nothing here is cached
// in-process.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunastream/realtime/internal/chat"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, m *chat.Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_messages
			(id, room_id, author_id, author_name, author_role, author_avatar,
			 body, reply_to, pinned, deleted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11)
	`, m.ID, m.RoomID, m.Author.ID, m.Author.DisplayName, string(m.Author.Role),
		m.Author.AvatarURL, m.Body, m.ReplyTo, m.Pinned, m.Deleted, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, messageID string) (*chat.Message, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, room_id, author_id, author_name, author_role, author_avatar,
		       body, COALESCE(reply_to, ''), pinned, deleted, created_at
		FROM chat_messages
		WHERE id = $1
	`, messageID)

	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, chat.ErrNotFound
		}
		return nil, err
	}

	reactions, err := s.loadReactions(ctx, []string{m.ID})
	if err != nil {
		return nil, err
	}
	m.Reactions = reactions[m.ID]
	return m, nil
}

func (s *Store) SetDeleted(ctx context.Context, messageID string, deleted bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE chat_messages SET deleted = $2 WHERE id = $1`, messageID, deleted)
	if err != nil {
		return fmt.Errorf("set deleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

func (s *Store) AddReaction(ctx context.Context, messageID, emoji, userID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO chat_reactions (message_id, emoji, user_id)
		SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM chat_messages WHERE id = $1)
		ON CONFLICT (message_id, emoji, user_id) DO NOTHING
	`, messageID, emoji, userID)
	if err != nil {
		return false, fmt.Errorf("add reaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either a duplicate (no-op) or an unknown message.
		var exists bool
		if err := s.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM chat_messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
			return false, err
		}
		if !exists {
			return false, chat.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *Store) RemoveReaction(ctx context.Context, messageID, emoji, userID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM chat_reactions
		WHERE message_id = $1 AND emoji = $2 AND user_id = $3
	`, messageID, emoji, userID)
	if err != nil {
		return false, fmt.Errorf("remove reaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Pin swaps the room's pinned message in one transaction so no reader ever
// observes two pinned messages.
func (s *Store) Pin(ctx context.Context, roomID, messageID string) (string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin pin: %w", err)
	}
	defer tx.Rollback(ctx)

	var previous string
	err = tx.QueryRow(ctx, `
		UPDATE chat_messages SET pinned = false
		WHERE room_id = $1 AND pinned AND id <> $2
		RETURNING id
	`, roomID, messageID).Scan(&previous)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("unpin previous: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE chat_messages SET pinned = true
		WHERE id = $1 AND room_id = $2
	`, messageID, roomID)
	if err != nil {
		return "", fmt.Errorf("pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", chat.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit pin: %w", err)
	}
	return previous, nil
}

func (s *Store) Unpin(ctx context.Context, messageID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE chat_messages SET pinned = false WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("unpin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// List pages room history by (created_at, id). Fetches limit+1 rows to
// compute hasMore without a second query.
func (s *Store) List(ctx context.Context, roomID string, opts chat.ListOptions) (chat.Page, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	// Anchor precedence matches chat.MemoryStore: an explicit cursor wins
	// over the before/after convenience anchors.
	anchor := opts.Cursor
	descending := opts.Descending
	switch {
	case anchor != nil:
	case opts.Before != "":
		m, err := s.Get(ctx, opts.Before)
		if err != nil {
			return chat.Page{}, err
		}
		anchor = &chat.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
		descending = true
	case opts.After != "":
		m, err := s.Get(ctx, opts.After)
		if err != nil {
			return chat.Page{}, err
		}
		anchor = &chat.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	}

	cmp, order := ">", "ASC"
	if descending {
		cmp, order = "<", "DESC"
	}

	query := fmt.Sprintf(`
		SELECT id, room_id, author_id, author_name, author_role, author_avatar,
		       body, COALESCE(reply_to, ''), pinned, deleted, created_at
		FROM chat_messages
		WHERE room_id = $1
		  AND ($4 OR NOT deleted)
		  AND (
		    $2::timestamptz IS NULL
		    OR created_at %s $2
		    OR (created_at = $2 AND id %s $3)
		  )
		ORDER BY created_at %s, id %s
		LIMIT $5
	`, cmp, cmp, order, order)

	var anchorAt, anchorID any
	if anchor != nil {
		anchorAt, anchorID = anchor.CreatedAt, anchor.ID
	}

	rows, err := s.db.Query(ctx, query, roomID, anchorAt, anchorID, opts.IncludeDeleted, opts.Limit+1)
	if err != nil {
		return chat.Page{}, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return chat.Page{}, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return chat.Page{}, err
	}

	hasMore := len(out) > opts.Limit
	if hasMore {
		out = out[:opts.Limit]
	}

	if len(out) > 0 {
		ids := make([]string, len(out))
		for i, m := range out {
			ids[i] = m.ID
		}
		reactions, err := s.loadReactions(ctx, ids)
		if err != nil {
			return chat.Page{}, err
		}
		for i := range out {
			out[i].Reactions = reactions[out[i].ID]
		}
	}

	page := chat.Page{Messages: out, HasMore: hasMore}
	if len(out) > 0 {
		last := out[len(out)-1]
		page.NextCursor = chat.EncodeCursor(chat.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*chat.Message, error) {
	var m chat.Message
	var role string
	err := row.Scan(&m.ID, &m.RoomID, &m.Author.ID, &m.Author.DisplayName, &role,
		&m.Author.AvatarURL, &m.Body, &m.ReplyTo, &m.Pinned, &m.Deleted, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Author.Role = roleFromString(role)
	return &m, nil
}

func (s *Store) loadReactions(ctx context.Context, messageIDs []string) (map[string]chat.Reactions, error) {
	rows, err := s.db.Query(ctx, `
		SELECT message_id, emoji, user_id
		FROM chat_reactions
		WHERE message_id = ANY($1)
		ORDER BY message_id, emoji, user_id
	`, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("load reactions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]chat.Reactions)
	for rows.Next() {
		var msgID, emoji, userID string
		if err := rows.Scan(&msgID, &emoji, &userID); err != nil {
			return nil, err
		}
		r, ok := out[msgID]
		if !ok {
			r = make(chat.Reactions)
			out[msgID] = r
		}
		r[emoji] = append(r[emoji], userID)
	}
	return out, rows.Err()
}
