package chat

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a message or room has no record.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned when the caller's role is insufficient.
	ErrForbidden = errors.New("insufficient role")

	// ErrInvalidCursor is returned for cursors this server never issued.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// SlowModeError rejects a send that arrived before the room's minimum
// inter-message delay elapsed. The wait is advisory; clients may retry
// after RetryAfter.
type SlowModeError struct {
	RetryAfter time.Duration
}

func (e *SlowModeError) Error() string {
	return fmt.Sprintf("slow mode active, retry after %s", e.RetryAfter)
}

// ModeratedError rejects a send from a user who is timed out or banned in
// the room. Until is zero for bans (indefinite).
type ModeratedError struct {
	Action string // timeout | ban
	Until  time.Time
}

func (e *ModeratedError) Error() string {
	if e.Until.IsZero() {
		return "user is banned in this room"
	}
	return fmt.Sprintf("user is timed out until %s", e.Until.Format(time.RFC3339))
}
