// Package ratelimit ties quota lookups, allocation decisions, and
// usage persistence into one atomic unit of work per call.
package ratelimit

import (
	"time"

	"github.com/quotad/quotad/internal/allocation"
)

// Window is a fixed time span over which request weight is counted.
type Window string

const (
	Minute Window = "minute"
	Hour   Window = "hour"
	Day    Window = "day"
	Week   Window = "week"
)

// Duration maps the window to its span. Unknown windows fall back to
// a minute, the tightest interpretation.
func (w Window) Duration() time.Duration {
	switch w {
	case Hour:
		return time.Hour
	case Day:
		return 24 * time.Hour
	case Week:
		return 7 * 24 * time.Hour
	default:
		return time.Minute
	}
}

// Config is a rate-limit policy bound per user id or per API endpoint
// id. The effective boundary for an operation is resolved by the
// caller's context, not inferred.
type Config struct {
	MaxRequestsPerWindow int64  `yaml:"max_requests_per_window"`
	WindowDuration       Window `yaml:"window_duration"`

	BurstLimit         int64 `yaml:"burst_limit,omitempty"`
	BurstWindowSeconds int64 `yaml:"burst_window_seconds,omitempty"`

	EnableDynamicAllocation  bool `yaml:"enable_dynamic_allocation"`
	EmergencyOverrideEnabled bool `yaml:"emergency_override_enabled"`
	BurstModeEnabled         bool `yaml:"burst_mode_enabled"`
}

// TokenAllocationRequest asks for a slice of a user's token quota.
type TokenAllocationRequest struct {
	UserID          string
	TokensRequested int64
	Priority        allocation.Priority
	APIEndpoint     string
	SessionID       string
	Context         *allocation.Context // advisory; nil is fine
}

// TokenAllocationResult reports the outcome of an allocation attempt.
// "No quota configured" and "quota exhausted" are expected steady
// states and arrive here with Success=false, never as errors.
type TokenAllocationResult struct {
	Success         bool
	TokensAllocated int64
	Reason          string
	Priority        allocation.Priority
	EmergencyUsed   bool
	BurstUsed       bool
}

// Result reports an allowed rate-limit check. A denied check is the
// *ExceededError instead; the two outcomes are deliberately distinct.
type Result struct {
	Allowed           bool
	RemainingRequests int64
	Reason            string
}

// TokenQuota is the accounting snapshot read from the quota store.
type TokenQuota struct {
	MaxTokensPerPeriod int64
	TokensUsedInPeriod int64
	PeriodStart        time.Time
}

// AvailableTokens is a best-effort, lock-free snapshot for a user.
// All fields are zero when no limit is configured.
type AvailableTokens struct {
	UserID          string
	MaxTokens       int64
	UsedTokens      int64
	AvailableTokens int64
}

// PerformanceMetrics are the limiter's running counters.
type PerformanceMetrics struct {
	TotalChecks      int64
	AllowedRequests  int64
	DeniedRequests   int64
	AverageCheckTime time.Duration
}
