package ratelimit

import (
	"context"
	"time"

	"github.com/quotad/quotad/internal/allocation"
)

// UsageRecord is one audited token grant.
type UsageRecord struct {
	UserID      string
	SessionID   string
	TokensUsed  int64
	APIEndpoint string
	Priority    allocation.Priority
	At          time.Time
}

// QuotaStore is the external token-accounting collaborator. The
// limiter never caches what it reads here; every allocation decision
// is made against a fresh read taken under the user's lock.
type QuotaStore interface {
	// UserTokenLimit returns the quota snapshot for a user. The second
	// return is false when no limit is configured, which is a normal
	// state, not an error.
	UserTokenLimit(ctx context.Context, userID string) (TokenQuota, bool, error)

	// UpdateTokenUsage adds delta to the user's consumed tokens.
	UpdateTokenUsage(ctx context.Context, userID string, delta int64) error

	// LogTokenUsage appends an audit record for a grant.
	LogTokenUsage(ctx context.Context, rec UsageRecord) error

	// SetUserTokenLimit creates or replaces a user's quota.
	SetUserTokenLimit(ctx context.Context, userID string, maxTokens int64, period time.Duration) error
}

// UsageStore is the external request-weight collaborator backing the
// windowed rate checks.
type UsageStore interface {
	// ConsumedWeight is the total request weight recorded for
	// (user, endpoint) since the given instant.
	ConsumedWeight(ctx context.Context, userID, endpoint string, since time.Time) (int64, error)

	// RecordRequest appends weight for (user, endpoint) at an instant.
	RecordRequest(ctx context.Context, userID, endpoint string, weight int64, at time.Time) error
}
