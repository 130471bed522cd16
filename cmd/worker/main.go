package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dontdude/testbox/internal/config"
	"github.com/dontdude/testbox/internal/domain"
	"github.com/dontdude/testbox/internal/evaluator"
	"github.com/dontdude/testbox/internal/isolate"
	"github.com/dontdude/testbox/internal/metrics"
	"github.com/dontdude/testbox/internal/platform/assets"
	"github.com/dontdude/testbox/internal/platform/docker"
	"github.com/dontdude/testbox/internal/platform/queue"
	"github.com/dontdude/testbox/internal/pyrt"
	"github.com/dontdude/testbox/internal/runner"
	"github.com/dontdude/testbox/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load config and initialize logger
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logging.Logger()
	slog.SetDefault(logger)
	slog.Info("Starting testbox worker...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Metrics
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	go serveMetrics(cfg.Worker.MetricsAddr, reg)

	// 3. Evaluator dependencies
	deps := evaluator.Deps{Logger: logger}
	if cfg.Sandbox.AssetBaseURL != "" {
		deps.Assets = assets.NewLoader(cfg.Sandbox.AssetBaseURL, cfg.Sandbox.AssetPath, cfg.Sandbox.InitTimeout)
	}
	switch cfg.Python.Backend {
	case "docker":
		// This will panic if Docker is not available (Fail-Fast)
		deps.Python = docker.NewClient(cfg.Python.Image, logger).Loader()
	default:
		deps.Python = pyrt.StarlarkLoader(logger)
	}
	host := isolate.NewHost(evaluator.Programs(deps), logger)

	// 4. Queue and pool
	redisQ := queue.NewRedisQueue(queue.Config{
		Addr:        cfg.Redis.Addr,
		Stream:      cfg.Redis.Stream,
		Group:       cfg.Redis.Group,
		Results:     cfg.Redis.Results,
		DeadLetter:  cfg.Redis.DeadLetter,
		MaxAttempts: cfg.Redis.MaxAttempts,
	}, logger)
	defer redisQ.Close()

	runnerCfg := runner.Config{
		AssetPath:   cfg.Sandbox.AssetPath,
		InitTimeout: cfg.Sandbox.InitTimeout,
		TestTimeout: cfg.Sandbox.TestTimeout,
		Logger:      logger,
		Metrics:     m,
	}
	pool := worker.NewPool(cfg.Worker.Concurrency, func() domain.Sandbox {
		return runner.NewController(host, runnerCfg)
	}, redisQ, m, logger)
	pool.Start()

	go redisQ.StartRecoveryRoutine(ctx, cfg.Worker.RecoveryInterval, cfg.Worker.StaleAfter)

	// 5. Feed the pool until shutdown
	jobs, err := redisQ.Subscribe(ctx)
	if err != nil {
		slog.Error("Failed to subscribe to jobs", "error", err)
		os.Exit(1)
	}
	for job := range jobs {
		pool.Submit(job)
	}

	pool.Stop()
	slog.Info("Worker shut down")
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server failed", "error", err)
	}
}
