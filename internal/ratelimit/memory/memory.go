// Package memory is the reference in-memory implementation of the
// quota and usage store contracts, used by the standalone binary and
// the test suite.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quotad/quotad/internal/ratelimit"
)

type quotaEntry struct {
	maxTokens   int64
	usedTokens  int64
	period      time.Duration
	periodStart time.Time
}

type requestRecord struct {
	weight int64
	at     time.Time
}

// Store keeps quotas, usage logs and windowed request records in
// process memory. Safe for concurrent use.
type Store struct {
	now func() time.Time

	mu       sync.Mutex
	quotas   map[string]*quotaEntry
	requests map[string][]requestRecord // key: userID + "\x00" + endpoint
	audit    []ratelimit.UsageRecord

	// retention bounds how long request records are kept before being
	// pruned on write.
	retention time.Duration
}

// New builds an empty Store. Request records older than the longest
// rate window are pruned opportunistically.
func New() *Store {
	return &Store{
		now:       time.Now,
		quotas:    make(map[string]*quotaEntry),
		requests:  make(map[string][]requestRecord),
		retention: ratelimit.Week.Duration(),
	}
}

func requestKey(userID, endpoint string) string {
	return userID + "\x00" + endpoint
}

func (s *Store) UserTokenLimit(_ context.Context, userID string) (ratelimit.TokenQuota, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok {
		return ratelimit.TokenQuota{}, false, nil
	}
	s.rolloverLocked(q)
	return ratelimit.TokenQuota{
		MaxTokensPerPeriod: q.maxTokens,
		TokensUsedInPeriod: q.usedTokens,
		PeriodStart:        q.periodStart,
	}, true, nil
}

// rolloverLocked resets consumption when the accounting period has
// elapsed.
func (s *Store) rolloverLocked(q *quotaEntry) {
	if q.period <= 0 {
		return
	}
	now := s.now()
	for !q.periodStart.Add(q.period).After(now) {
		q.periodStart = q.periodStart.Add(q.period)
		q.usedTokens = 0
	}
}

func (s *Store) UpdateTokenUsage(_ context.Context, userID string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotas[userID]
	if !ok {
		return nil
	}
	s.rolloverLocked(q)
	q.usedTokens += delta
	if q.usedTokens < 0 {
		q.usedTokens = 0
	}
	return nil
}

func (s *Store) LogTokenUsage(_ context.Context, rec ratelimit.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, rec)
	return nil
}

func (s *Store) SetUserTokenLimit(_ context.Context, userID string, maxTokens int64, period time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotas[userID] = &quotaEntry{
		maxTokens:   maxTokens,
		period:      period,
		periodStart: s.now(),
	}
	return nil
}

func (s *Store) ConsumedWeight(_ context.Context, userID, endpoint string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, r := range s.requests[requestKey(userID, endpoint)] {
		if !r.at.Before(since) {
			total += r.weight
		}
	}
	return total, nil
}

func (s *Store) RecordRequest(_ context.Context, userID, endpoint string, weight int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := requestKey(userID, endpoint)
	records := append(s.requests[key], requestRecord{weight: weight, at: at})

	// prune stale records
	cutoff := s.now().Add(-s.retention)
	trimmed := records[:0]
	for _, r := range records {
		if r.at.After(cutoff) {
			trimmed = append(trimmed, r)
		}
	}
	s.requests[key] = trimmed
	return nil
}

// AuditLog returns a copy of the recorded grants, oldest first.
func (s *Store) AuditLog() []ratelimit.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ratelimit.UsageRecord, len(s.audit))
	copy(out, s.audit)
	return out
}
