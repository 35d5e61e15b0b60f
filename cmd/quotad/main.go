package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quotad/quotad/internal/allocation"
	"github.com/quotad/quotad/internal/config"
	"github.com/quotad/quotad/internal/locks"
	"github.com/quotad/quotad/internal/obs"
	"github.com/quotad/quotad/internal/ratelimit"
	"github.com/quotad/quotad/internal/ratelimit/memory"
)

func main() {

	path := "./config.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)
	logger.Info().Msg("Setup logger")

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	store := memory.New()
	lockMgr := locks.New(cfg.Locks.AcquireTimeout(), logger)

	strategy := allocation.NewFactory().Comprehensive(allocation.Options{
		Dynamic:         cfg.Allocation.EnableDynamic,
		Emergency:       cfg.Allocation.EnableEmergency,
		Burst:           cfg.Allocation.EnableBurst,
		BurstMultiplier: cfg.Allocation.BurstMultiplier,
		MaxBurstTokens:  cfg.Allocation.MaxBurstTokens,
	})

	limiter := ratelimit.New(ratelimit.Params{
		Locks:       lockMgr,
		Strategy:    strategy,
		Quota:       store,
		Usage:       store,
		Default:     cfg.DefaultLimit,
		Logger:      logger,
		Metrics:     metrics,
		LockTimeout: cfg.Locks.AcquireTimeout(),
	})

	applyLimits := func(c *config.Root) {
		for userID, lc := range c.UserLimits {
			limiter.SetUserRateLimit(userID, lc)
		}
		for apiID, lc := range c.APILimits {
			limiter.SetAPIRateLimit(apiID, lc)
		}
	}
	applyLimits(cfg)

	seedCtx := context.Background()
	for _, q := range cfg.Quotas {
		if err := store.SetUserTokenLimit(seedCtx, q.UserID, q.MaxTokensPerPeriod, q.PeriodInterval()); err != nil {
			logger.Error().Err(err).Str("user_id", q.UserID).Msg("seed quota failed")
		}
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	go func() {
		if err := config.Watch(watchCtx, path, logger, applyLimits); err != nil {
			logger.Warn().Err(err).Msg("config watcher stopped")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// start
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopWatch()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	limiter.Shutdown()
	log.Printf("bye")
}
