package chat

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and development runs
// without Postgres; ordering and atomicity semantics match the SQL adapter.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Message
	byRoom map[string][]*Message // ascending (createdAt, id)
	pinned map[string]string     // roomID -> pinned message id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Message),
		byRoom: make(map[string][]*Message),
		pinned: make(map[string]string),
	}
}

func (s *MemoryStore) Insert(_ context.Context, m *Message) error {
	cp := *m
	cp.Reactions = m.Reactions.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[cp.ID] = &cp
	msgs := s.byRoom[cp.RoomID]
	// Messages arrive in id order (ids are time-ordered); fix up the rare
	// out-of-order insert so pagination order is always (createdAt, id).
	msgs = append(msgs, &cp)
	for i := len(msgs) - 1; i > 0 && messageBefore(*msgs[i], msgs[i-1].CreatedAt, msgs[i-1].ID); i-- {
		msgs[i], msgs[i-1] = msgs[i-1], msgs[i]
	}
	s.byRoom[cp.RoomID] = msgs
	return nil
}

func (s *MemoryStore) Get(_ context.Context, messageID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	cp.Reactions = m.Reactions.Clone()
	return &cp, nil
}

func (s *MemoryStore) SetDeleted(_ context.Context, messageID string, deleted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return ErrNotFound
	}
	m.Deleted = deleted
	return nil
}

func (s *MemoryStore) AddReaction(_ context.Context, messageID, emoji, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return false, ErrNotFound
	}
	if m.Reactions.Has(emoji, userID) {
		return false, nil
	}
	if m.Reactions == nil {
		m.Reactions = make(Reactions)
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	return true, nil
}

func (s *MemoryStore) RemoveReaction(_ context.Context, messageID, emoji, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return false, ErrNotFound
	}
	ids := m.Reactions[emoji]
	for i, id := range ids {
		if id == userID {
			ids = append(ids[:i], ids[i+1:]...)
			if len(ids) == 0 {
				delete(m.Reactions, emoji)
			} else {
				m.Reactions[emoji] = ids
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Pin(_ context.Context, roomID, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[messageID]
	if !ok || m.RoomID != roomID {
		return "", ErrNotFound
	}

	previous := s.pinned[roomID]
	if previous == messageID {
		return "", nil
	}
	if previous != "" {
		if prev, ok := s.byID[previous]; ok {
			prev.Pinned = false
		}
	}
	m.Pinned = true
	s.pinned[roomID] = messageID
	return previous, nil
}

func (s *MemoryStore) Unpin(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok {
		return ErrNotFound
	}
	m.Pinned = false
	if s.pinned[m.RoomID] == messageID {
		delete(s.pinned, m.RoomID)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, roomID string, opts ListOptions) (Page, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.byRoom[roomID]

	// Resolve the starting position from cursor or before/after anchors.
	var anchor *Cursor
	switch {
	case opts.Cursor != nil:
		anchor = opts.Cursor
	case opts.Before != "":
		m, ok := s.byID[opts.Before]
		if !ok || m.RoomID != roomID {
			return Page{}, ErrNotFound
		}
		anchor = &Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
		opts.Descending = true
	case opts.After != "":
		m, ok := s.byID[opts.After]
		if !ok || m.RoomID != roomID {
			return Page{}, ErrNotFound
		}
		anchor = &Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	}

	var out []Message
	hasMore := false

	if !opts.Descending {
		start := 0
		if anchor != nil {
			start = sort.Search(len(msgs), func(i int) bool {
				return messageAfter(*msgs[i], anchor.CreatedAt, anchor.ID)
			})
		}
		for i := start; i < len(msgs); i++ {
			m := msgs[i]
			if m.Deleted && !opts.IncludeDeleted {
				continue
			}
			if len(out) == opts.Limit {
				hasMore = true
				break
			}
			out = append(out, copyOf(m))
		}
	} else {
		end := len(msgs)
		if anchor != nil {
			end = sort.Search(len(msgs), func(i int) bool {
				return !messageBefore(*msgs[i], anchor.CreatedAt, anchor.ID)
			})
		}
		for i := end - 1; i >= 0; i-- {
			m := msgs[i]
			if m.Deleted && !opts.IncludeDeleted {
				continue
			}
			if len(out) == opts.Limit {
				hasMore = true
				break
			}
			out = append(out, copyOf(m))
		}
	}

	page := Page{Messages: out, HasMore: hasMore}
	if len(out) > 0 {
		last := out[len(out)-1]
		page.NextCursor = EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

func copyOf(m *Message) Message {
	cp := *m
	cp.Reactions = m.Reactions.Clone()
	return cp
}
