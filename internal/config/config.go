package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quotad/quotad/internal/ratelimit"
)

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type Server struct {
	Addr string `yaml:"addr"` // ops endpoints only (/health, /metrics)
}

type Locks struct {
	AcquireTimeoutMS int `yaml:"acquire_timeout_ms"`
}

type Allocation struct {
	EnableDynamic   bool    `yaml:"enable_dynamic"`
	EnableEmergency bool    `yaml:"enable_emergency"`
	EnableBurst     bool    `yaml:"enable_burst"`
	BurstMultiplier float64 `yaml:"burst_multiplier"`
	MaxBurstTokens  int64   `yaml:"max_burst_tokens"`
}

type Quota struct {
	UserID              string `yaml:"user_id"`
	MaxTokensPerPeriod  int64  `yaml:"max_tokens_per_period"`
	PeriodIntervalHours int    `yaml:"period_interval_hours"`
}

type Root struct {
	Server        Server                      `yaml:"server"`
	Observability Observability               `yaml:"observability"`
	Locks         Locks                       `yaml:"locks"`
	Allocation    Allocation                  `yaml:"allocation"`
	DefaultLimit  ratelimit.Config            `yaml:"default_limit"`
	UserLimits    map[string]ratelimit.Config `yaml:"user_limits"`
	APILimits     map[string]ratelimit.Config `yaml:"api_limits"`
	Quotas        []Quota                     `yaml:"quotas"`
}

func (l Locks) AcquireTimeout() time.Duration {
	if l.AcquireTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(l.AcquireTimeoutMS) * time.Millisecond
}

func (q Quota) PeriodInterval() time.Duration {
	if q.PeriodIntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(q.PeriodIntervalHours) * time.Hour
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":9090"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Allocation.BurstMultiplier <= 0 {
		cfg.Allocation.BurstMultiplier = 2.0
	}
	if cfg.DefaultLimit.MaxRequestsPerWindow <= 0 {
		cfg.DefaultLimit.MaxRequestsPerWindow = 60
	}
	if cfg.DefaultLimit.WindowDuration == "" {
		cfg.DefaultLimit.WindowDuration = ratelimit.Minute
	}

	return &cfg, nil
}
