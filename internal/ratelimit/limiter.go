package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/quotad/quotad/internal/allocation"
	"github.com/quotad/quotad/internal/locks"
	"github.com/quotad/quotad/internal/obs"
)

const (
	reasonAllowed     = "Request allowed"
	reasonNoQuota     = "No token limit set for user"
	reasonExhausted   = "Token quota exhausted"
	reasonZeroGrant   = "Allocation strategy granted no tokens"
	reasonBadRequest  = "tokens_requested must be positive"
	reasonPersistFail = "Failed to persist token usage"
)

// Params wires a Limiter together. Locks, Strategy, Quota and Usage
// are required; Metrics may be nil.
type Params struct {
	Locks    *locks.Manager
	Strategy allocation.Strategy
	Quota    QuotaStore
	Usage    UsageStore
	Default  Config
	Logger   zerolog.Logger
	Metrics  *obs.Metrics

	// LockTimeout bounds each per-call acquisition; <= 0 selects the
	// lock manager's default.
	LockTimeout time.Duration
}

// Limiter is the orchestrator. Every call is one atomic
// acquire -> decide -> persist -> release sequence; there is no
// cross-call pending state.
type Limiter struct {
	locks    *locks.Manager
	strategy allocation.Strategy
	quota    QuotaStore
	usage    UsageStore
	log      zerolog.Logger
	metrics  *obs.Metrics

	lockTimeout time.Duration
	now         func() time.Time

	mu          sync.RWMutex
	userConfigs map[string]Config
	apiConfigs  map[string]Config
	defaultCfg  Config

	totalChecks atomic.Int64
	allowed     atomic.Int64
	denied      atomic.Int64
	checkNanos  atomic.Int64

	shutdown sync.Once
}

// New builds a Limiter from Params.
func New(p Params) *Limiter {
	if p.Default.MaxRequestsPerWindow <= 0 {
		p.Default.MaxRequestsPerWindow = 60
	}
	if p.Default.WindowDuration == "" {
		p.Default.WindowDuration = Minute
	}
	return &Limiter{
		locks:       p.Locks,
		strategy:    p.Strategy,
		quota:       p.Quota,
		usage:       p.Usage,
		log:         p.Logger,
		metrics:     p.Metrics,
		lockTimeout: p.LockTimeout,
		now:         time.Now,
		userConfigs: make(map[string]Config),
		apiConfigs:  make(map[string]Config),
		defaultCfg:  p.Default,
	}
}

// SetUserRateLimit registers or replaces a user's config. Effective
// for subsequent calls only.
func (l *Limiter) SetUserRateLimit(userID string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.userConfigs[userID] = cfg
}

// SetAPIRateLimit registers or replaces an endpoint's config.
func (l *Limiter) SetAPIRateLimit(apiID string, cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.apiConfigs[apiID] = cfg
}

// effectiveConfig starts from the default and lets the user binding,
// then the endpoint binding, override it.
func (l *Limiter) effectiveConfig(userID, endpoint string) Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg := l.defaultCfg
	if c, ok := l.userConfigs[userID]; ok {
		cfg = c
	}
	if c, ok := l.apiConfigs[endpoint]; ok {
		cfg = c
	}
	return cfg
}

// EnforceRateLimit checks and records one request of the given weight
// against the (user, endpoint) window. The allowed path returns a
// value; the denied path returns a *ExceededError, never a
// Result{Allowed: false}. A usage-store read failure fails open: an
// outage of the limiter must not become an outage of the protected
// service.
func (l *Limiter) EnforceRateLimit(ctx context.Context, userID, endpoint string, weight int64, window Window) (Result, error) {
	start := l.now()
	l.totalChecks.Add(1)
	defer func() {
		l.checkNanos.Add(int64(l.now().Sub(start)))
	}()

	cfg := l.effectiveConfig(userID, endpoint)
	if window == "" {
		window = cfg.WindowDuration
	}
	if weight <= 0 {
		weight = 1
	}
	windowStart := start.Add(-window.Duration())

	lockStart := l.now()
	guard, err := l.locks.Lock(ctx, locks.RateLimitCheck, userID+":"+endpoint, l.lockTimeout)
	if err != nil {
		l.observeLockFailure(err, l.now().Sub(start), "check")
		return Result{}, err
	}
	defer guard.Release()
	l.metrics.LockWait(l.now().Sub(lockStart))

	consumed, err := l.usage.ConsumedWeight(ctx, userID, endpoint, windowStart)
	if err != nil {
		l.allowed.Add(1)
		l.metrics.Check("fail_open", l.now().Sub(start))
		l.log.Warn().Err(err).
			Str("user_id", userID).
			Str("endpoint", endpoint).
			Msg("usage store read failed, allowing request")
		return Result{Allowed: true, RemainingRequests: cfg.MaxRequestsPerWindow - weight, Reason: reasonAllowed}, nil
	}

	// Short-window burst ceiling, when configured.
	if cfg.BurstLimit > 0 && cfg.BurstWindowSeconds > 0 {
		burstWindow := time.Duration(cfg.BurstWindowSeconds) * time.Second
		burstConsumed, err := l.usage.ConsumedWeight(ctx, userID, endpoint, start.Add(-burstWindow))
		if err == nil && burstConsumed+weight > cfg.BurstLimit {
			l.denied.Add(1)
			l.metrics.Check("denied", l.now().Sub(start))
			return Result{}, &ExceededError{
				UserID:      userID,
				APIEndpoint: endpoint,
				Limit:       cfg.BurstLimit,
				Consumed:    burstConsumed,
				ResetAt:     start.Add(burstWindow),
			}
		}
	}

	remaining := cfg.MaxRequestsPerWindow - consumed
	if remaining < weight {
		l.denied.Add(1)
		l.metrics.Check("denied", l.now().Sub(start))
		return Result{}, &ExceededError{
			UserID:      userID,
			APIEndpoint: endpoint,
			Limit:       cfg.MaxRequestsPerWindow,
			Consumed:    consumed,
			ResetAt:     start.Add(window.Duration()),
		}
	}

	if err := l.usage.RecordRequest(ctx, userID, endpoint, weight, start); err != nil {
		// The decision was already made; a write failure stays on the
		// fail-open side.
		l.log.Warn().Err(err).
			Str("user_id", userID).
			Str("endpoint", endpoint).
			Msg("usage store write failed")
	}

	l.allowed.Add(1)
	l.metrics.Check("allowed", l.now().Sub(start))
	return Result{Allowed: true, RemainingRequests: remaining - weight, Reason: reasonAllowed}, nil
}

// CheckAndAllocateTokens grants a slice of the user's token quota.
// The quota read, the strategy decision, and the usage writes happen
// as one unit under the user's TOKEN_ALLOCATION lock; that is what
// keeps two concurrent requests from both spending the same tokens.
// A quota read failure fails closed: unknown accounting state must
// not hand out unmetered tokens.
func (l *Limiter) CheckAndAllocateTokens(ctx context.Context, req TokenAllocationRequest) (TokenAllocationResult, error) {
	start := l.now()
	l.totalChecks.Add(1)
	defer func() {
		l.checkNanos.Add(int64(l.now().Sub(start)))
	}()

	if req.TokensRequested <= 0 {
		l.denied.Add(1)
		l.metrics.Allocation("denied", 0, l.now().Sub(start))
		return TokenAllocationResult{Reason: reasonBadRequest, Priority: req.Priority}, nil
	}

	lockStart := l.now()
	guard, err := l.locks.Lock(ctx, locks.TokenAllocation, req.UserID, l.lockTimeout)
	if err != nil {
		l.observeLockFailure(err, l.now().Sub(start), "allocation")
		return TokenAllocationResult{}, err
	}
	defer guard.Release()
	l.metrics.LockWait(l.now().Sub(lockStart))

	quota, configured, err := l.quota.UserTokenLimit(ctx, req.UserID)
	if err != nil {
		l.log.Warn().Err(err).
			Str("user_id", req.UserID).
			Msg("quota read failed, denying allocation")
		configured = false
	}
	if !configured {
		l.denied.Add(1)
		l.metrics.Allocation("no_quota", 0, l.now().Sub(start))
		return TokenAllocationResult{Reason: reasonNoQuota, Priority: req.Priority}, nil
	}

	available := quota.MaxTokensPerPeriod - quota.TokensUsedInPeriod
	if available <= 0 {
		l.denied.Add(1)
		l.metrics.Allocation("exhausted", 0, l.now().Sub(start))
		return TokenAllocationResult{Reason: reasonExhausted, Priority: req.Priority}, nil
	}

	grant := l.strategy.Allocate(available, req.Priority, req.Context)
	allocated := grant.Tokens
	if allocated > req.TokensRequested {
		allocated = req.TokensRequested
	}
	if allocated <= 0 {
		l.denied.Add(1)
		l.metrics.Allocation("denied", 0, l.now().Sub(start))
		return TokenAllocationResult{Reason: reasonZeroGrant, Priority: req.Priority}, nil
	}

	if err := l.quota.UpdateTokenUsage(ctx, req.UserID, allocated); err != nil {
		l.denied.Add(1)
		l.metrics.Allocation("denied", 0, l.now().Sub(start))
		l.log.Error().Err(err).
			Str("user_id", req.UserID).
			Int64("tokens", allocated).
			Msg("token usage update failed")
		return TokenAllocationResult{Reason: reasonPersistFail, Priority: req.Priority}, err
	}
	if err := l.quota.LogTokenUsage(ctx, UsageRecord{
		UserID:      req.UserID,
		SessionID:   req.SessionID,
		TokensUsed:  allocated,
		APIEndpoint: req.APIEndpoint,
		Priority:    req.Priority,
		At:          start,
	}); err != nil {
		// The grant is already booked; the audit record is best effort.
		l.log.Error().Err(err).
			Str("user_id", req.UserID).
			Msg("usage audit log failed")
	}

	if grant.Emergency {
		l.log.Info().
			Str("user_id", req.UserID).
			Str("session_id", req.SessionID).
			Int64("tokens", allocated).
			Msg("emergency override allocation")
	}

	l.allowed.Add(1)
	l.metrics.Allocation("granted", allocated, l.now().Sub(start))
	return TokenAllocationResult{
		Success:         true,
		TokensAllocated: allocated,
		Reason:          "Tokens allocated",
		Priority:        req.Priority,
		EmergencyUsed:   grant.Emergency,
		BurstUsed:       grant.Burst,
	}, nil
}

// GetAvailableTokens is a lock-free, best-effort snapshot. It makes
// no allocation decision, so a slightly stale view is acceptable.
// All fields are zero when no limit is configured.
func (l *Limiter) GetAvailableTokens(ctx context.Context, userID string) (AvailableTokens, error) {
	quota, configured, err := l.quota.UserTokenLimit(ctx, userID)
	if err != nil {
		return AvailableTokens{UserID: userID}, err
	}
	if !configured {
		return AvailableTokens{UserID: userID}, nil
	}
	available := quota.MaxTokensPerPeriod - quota.TokensUsedInPeriod
	if available < 0 {
		available = 0
	}
	return AvailableTokens{
		UserID:          userID,
		MaxTokens:       quota.MaxTokensPerPeriod,
		UsedTokens:      quota.TokensUsedInPeriod,
		AvailableTokens: available,
	}, nil
}

// GetPerformanceMetrics returns the running counters.
func (l *Limiter) GetPerformanceMetrics() PerformanceMetrics {
	total := l.totalChecks.Load()
	m := PerformanceMetrics{
		TotalChecks:     total,
		AllowedRequests: l.allowed.Load(),
		DeniedRequests:  l.denied.Load(),
	}
	if total > 0 {
		m.AverageCheckTime = time.Duration(l.checkNanos.Load() / total)
	}
	return m
}

// Shutdown tears down the lock manager. Idempotent.
func (l *Limiter) Shutdown() {
	l.shutdown.Do(func() {
		l.locks.Shutdown()
		l.log.Info().Msg("rate limiter shut down")
	})
}

func (l *Limiter) observeLockFailure(err error, elapsed time.Duration, op string) {
	l.denied.Add(1)
	var te *locks.TimeoutError
	if errors.As(err, &te) {
		l.metrics.LockTimeout()
		if op == "check" {
			l.metrics.Check("lock_timeout", elapsed)
		} else {
			l.metrics.Allocation("lock_timeout", 0, elapsed)
		}
		l.log.Warn().Err(err).Str("op", op).Msg("lock acquisition timed out")
	}
}
