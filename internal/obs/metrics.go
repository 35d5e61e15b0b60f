package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChecksTotal      *prometheus.CounterVec
	AllocationsTotal *prometheus.CounterVec
	TokensAllocated  prometheus.Counter
	CheckDuration    prometheus.Histogram
	LockWaitDuration prometheus.Histogram
	LockTimeouts     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotad_checks_total",
				Help: "Rate-limit checks by outcome",
			},
			[]string{"outcome"},
		),
		AllocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotad_allocations_total",
				Help: "Token allocation attempts by outcome",
			},
			[]string{"outcome"},
		),
		TokensAllocated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quotad_tokens_allocated_total",
				Help: "Tokens granted across all successful allocations",
			},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quotad_check_duration_seconds",
				Help:    "End-to-end duration of limiter calls",
				Buckets: prometheus.DefBuckets,
			},
		),
		LockWaitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quotad_lock_wait_seconds",
				Help:    "Time spent waiting for per-resource locks",
				Buckets: prometheus.DefBuckets,
			},
		),
		LockTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quotad_lock_timeouts_total",
				Help: "Lock acquisitions abandoned on timeout",
			},
		),
	}

	reg.MustRegister(
		m.ChecksTotal, m.AllocationsTotal, m.TokensAllocated,
		m.CheckDuration, m.LockWaitDuration, m.LockTimeouts,
	)
	return m
}

// Check records one rate-limit check. outcome is "allowed", "denied",
// "fail_open" or "lock_timeout".
func (m *Metrics) Check(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(outcome).Inc()
	m.CheckDuration.Observe(d.Seconds())
}

// Allocation records one allocation attempt. outcome is "granted",
// "denied", "no_quota", "exhausted" or "lock_timeout".
func (m *Metrics) Allocation(outcome string, tokens int64, d time.Duration) {
	if m == nil {
		return
	}
	m.AllocationsTotal.WithLabelValues(outcome).Inc()
	m.CheckDuration.Observe(d.Seconds())
	if tokens > 0 {
		m.TokensAllocated.Add(float64(tokens))
	}
}

// LockWait records the time a call spent acquiring its lock.
func (m *Metrics) LockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitDuration.Observe(d.Seconds())
}

// LockTimeout records an acquisition abandoned on timeout.
func (m *Metrics) LockTimeout() {
	if m == nil {
		return
	}
	m.LockTimeouts.Inc()
}
