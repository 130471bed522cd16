package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dontdude/testbox/internal/config"
	"github.com/dontdude/testbox/internal/metrics"
	"github.com/dontdude/testbox/internal/platform/queue"
	"github.com/dontdude/testbox/internal/platform/web"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	// 2. Initialize Redis Queue (as a dependency)
	redisQ := queue.NewRedisQueue(queue.Config{
		Addr:    cfg.Redis.Addr,
		Stream:  cfg.Redis.Stream,
		Group:   cfg.Redis.Group,
		Results: cfg.Redis.Results,
	}, logger)
	defer redisQ.Close()

	// 3. Start the result broadcaster
	hub := web.NewHub(logger, m)
	results, err := redisQ.SubscribeResults(ctx)
	if err != nil {
		slog.Error("Failed to subscribe to results", "error", err)
		os.Exit(1)
	}
	go hub.Run(ctx, results)

	// 4. Setup Rate Limiter
	limiter := web.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, m)
	go limiter.Run(ctx.Done())

	// 5. Register Handlers
	mux := http.NewServeMux()
	web.NewServer(redisQ, hub, logger).Routes(mux, limiter)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           web.EnableCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("API Server starting", "addr", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
