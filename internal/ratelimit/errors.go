package ratelimit

import (
	"fmt"
	"time"
)

// ExceededError rejects a request that would overrun its window. It
// carries enough for an HTTP layer to build a 429 with retry
// metadata; whether and when to retry is the caller's decision.
type ExceededError struct {
	UserID      string
	APIEndpoint string
	Limit       int64
	Consumed    int64
	ResetAt     time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("ratelimit: %s exceeded %d/%d on %s, resets at %s",
		e.UserID, e.Consumed, e.Limit, e.APIEndpoint, e.ResetAt.Format(time.RFC3339))
}

// RetryAfter is the wait until the window has room again.
func (e *ExceededError) RetryAfter(now time.Time) time.Duration {
	d := e.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
