package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotad/quotad/internal/ratelimit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
	assert.Equal(t, "/metrics", cfg.Observability.PrometheusPath)
	assert.Equal(t, 5*time.Second, cfg.Locks.AcquireTimeout())
	assert.Equal(t, 2.0, cfg.Allocation.BurstMultiplier)
	assert.Equal(t, int64(60), cfg.DefaultLimit.MaxRequestsPerWindow)
	assert.Equal(t, ratelimit.Minute, cfg.DefaultLimit.WindowDuration)
}

func TestLoadFull(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  addr: ":8123"
observability:
  log_level: "debug"
locks:
  acquire_timeout_ms: 250
allocation:
  enable_emergency: true
  burst_multiplier: 3.5
  max_burst_tokens: 4096
default_limit:
  max_requests_per_window: 90
  window_duration: "hour"
user_limits:
  alice:
    max_requests_per_window: 10
    window_duration: "minute"
    burst_limit: 3
    burst_window_seconds: 5
api_limits:
  /v1/chat:
    max_requests_per_window: 600
    window_duration: "day"
quotas:
  - user_id: alice
    max_tokens_per_period: 50000
    period_interval_hours: 12
`))
	require.NoError(t, err)

	assert.Equal(t, ":8123", cfg.Server.Addr)
	assert.Equal(t, 250*time.Millisecond, cfg.Locks.AcquireTimeout())
	assert.True(t, cfg.Allocation.EnableEmergency)
	assert.Equal(t, 3.5, cfg.Allocation.BurstMultiplier)
	assert.Equal(t, int64(4096), cfg.Allocation.MaxBurstTokens)

	alice := cfg.UserLimits["alice"]
	assert.Equal(t, int64(10), alice.MaxRequestsPerWindow)
	assert.Equal(t, int64(3), alice.BurstLimit)

	chat := cfg.APILimits["/v1/chat"]
	assert.Equal(t, ratelimit.Day, chat.WindowDuration)

	require.Len(t, cfg.Quotas, 1)
	assert.Equal(t, 12*time.Hour, cfg.Quotas[0].PeriodInterval())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
