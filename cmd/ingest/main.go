// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/afida/ingest/internal/config"
	"github.com/afida/ingest/internal/cover"
	"github.com/afida/ingest/internal/handler"
	"github.com/afida/ingest/internal/ingest"
	"github.com/afida/ingest/internal/jobs"
	"github.com/afida/ingest/internal/logging"
	"github.com/afida/ingest/internal/metrics"
	"github.com/afida/ingest/internal/ratelimit"
	"github.com/afida/ingest/internal/scheduler"
	"github.com/afida/ingest/internal/store"
	"github.com/afida/ingest/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "afida-ingest - Outrank webhook import service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  AFIDA_OUTRANK_ACCESS_TOKEN  Bearer token Outrank sends (required in production, min 16 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  AFIDA_DB_PATH               SQLite database path (default: ./data/afida.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  AFIDA_SERVER_PORT           Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  AFIDA_ENV                   Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  AFIDA_UPLOADS_DIR           Cover image directory (default: ./uploads)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  AFIDA_RATE_LIMIT            Webhook requests per window and IP (default: 100)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  AFIDA_REDIS_URL             Redis URL for a shared rate limit (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}

	if *showVersion {
		_, _ = fmt.Printf("afida-ingest %s\n", info)
		os.Exit(0)
	}

	if err := run(info); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(info version.Info) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := cfg.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		return fmt.Errorf("creating uploads directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Mirror WARN and ERROR records into the events table
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	queue := jobs.New(db, logger, m, jobs.Config{
		Workers:    cfg.JobWorkers,
		QueueSize:  cfg.JobQueueSize,
		JobTimeout: jobs.DefaultConfig().JobTimeout,
	})
	fetcher := cover.NewFetcher(nil, cover.FetcherConfig{
		Timeout:  cfg.CoverTimeout,
		MaxBytes: cfg.CoverMaxBytes,
	}, logger)
	attacher := cover.NewAttacher(db, cfg.UploadsDir, logger, m)
	cover.NewService(fetcher, attacher, logger).Register(queue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()

	limiter, memLimiter := newLimiter(cfg, logger)
	if c, ok := limiter.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	sched := scheduler.New(logger)
	sweeperCfg := scheduler.DefaultSweeperConfig()
	sweeperCfg.Retention = cfg.Retention()
	var janitor scheduler.LimiterJanitor
	if memLimiter != nil {
		janitor = memLimiter
	}
	if err := scheduler.NewSweeper(db, queue, janitor, sweeperCfg, logger).Register(sched); err != nil {
		return fmt.Errorf("registering maintenance tasks: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	trustedProxies, err := cfg.TrustedProxyNets()
	if err != nil {
		return fmt.Errorf("parsing trusted proxies: %w", err)
	}

	router := handler.NewRouter(handler.RouterConfig{
		DB:             db,
		Processor:      ingest.NewProcessor(db, queue, logger, m),
		Limiter:        limiter,
		AccessToken:    cfg.OutrankAccessToken,
		UploadsDir:     cfg.UploadsDir,
		TrustedProxies: trustedProxies,
		Metrics:        m,
		Version:        info,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", info.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// newLimiter picks the Redis limiter when configured, falling back to
// memory when Redis is unreachable at startup. The second result is the
// memory limiter, if one is used.
func newLimiter(cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, *ratelimit.Memory) {
	if cfg.UseRedisRateLimit() {
		opts := ratelimit.DefaultRedisOptions()
		opts.URL = cfg.RedisURL
		opts.Prefix = cfg.RedisPrefix
		opts.Limit = cfg.RateLimit
		opts.Window = cfg.RateLimitWindow

		r, err := ratelimit.NewRedis(opts)
		if err == nil {
			logger.Info("rate limiter ready", "backend", "redis", "limit", cfg.RateLimit, "window", cfg.RateLimitWindow)
			return r, nil
		}
		logger.Warn("redis unavailable, using in-memory rate limiter", "error", err, "category", "system")
	}

	mem := ratelimit.NewMemory(cfg.RateLimit, cfg.RateLimitWindow)
	logger.Info("rate limiter ready", "backend", "memory", "limit", cfg.RateLimit, "window", cfg.RateLimitWindow)
	return mem, mem
}
