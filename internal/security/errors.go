package security

import (
	"errors"
	"fmt"
	"time"
)

// ErrBlocked is returned for subjects on the IP block-list. The connection
// is refused before any handler runs.
var ErrBlocked = errors.New("address is blocked")

// RateLimitError is returned when a fixed-window counter is exhausted.
// RetryAfter is the time until the current window expires.
type RateLimitError struct {
	Bucket     BucketClass
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for bucket %q, retry after %s", e.Bucket, e.RetryAfter)
}

// IsRateLimited reports whether err is a rate-limit rejection and extracts
// the retry-after hint.
func IsRateLimited(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
