// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afida/ingest/internal/store"
)

// Sweeper task names.
const (
	TaskJobRecovery    = "jobs.recover"
	TaskRetention      = "retention.prune"
	TaskLimiterCleanup = "ratelimit.cleanup"
)

// JobMaintainer is the part of the job queue the sweeper drives.
type JobMaintainer interface {
	Requeue(ctx context.Context, olderThan time.Duration) (int, error)
	FailStale(ctx context.Context, after time.Duration) (int64, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// LimiterJanitor is implemented by the in-memory rate limiter.
type LimiterJanitor interface {
	ClearIfExceeds(maxSize int) bool
}

// SweeperConfig controls the maintenance tasks.
type SweeperConfig struct {
	Retention      time.Duration
	RequeueAfter   time.Duration
	StaleAfter     time.Duration
	MaxLimiterKeys int
}

// DefaultSweeperConfig returns the standard maintenance settings.
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Retention:      90 * 24 * time.Hour,
		RequeueAfter:   time.Minute,
		StaleAfter:     10 * time.Minute,
		MaxLimiterKeys: 10000,
	}
}

// Sweeper recovers lost jobs and prunes old records.
type Sweeper struct {
	queries *store.Queries
	jobs    JobMaintainer
	limiter LimiterJanitor
	cfg     SweeperConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewSweeper creates a sweeper. limiter may be nil when Redis holds the
// rate limit state.
func NewSweeper(db store.DBTX, jobs JobMaintainer, limiter LimiterJanitor, cfg SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		queries: store.New(db),
		jobs:    jobs,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Register adds the sweeper tasks to s.
func (w *Sweeper) Register(s *Scheduler) error {
	tasks := []Task{
		{
			Name:        TaskJobRecovery,
			Description: "Re-offer pending jobs and fail jobs stuck in running",
			Schedule:    "* * * * *",
			Run:         w.RecoverJobs,
		},
		{
			Name:        TaskRetention,
			Description: "Delete import runs, events and finished jobs past retention",
			Schedule:    "@daily",
			Run:         w.Prune,
		},
	}
	if w.limiter != nil {
		tasks = append(tasks, Task{
			Name:        TaskLimiterCleanup,
			Description: "Reset the in-memory rate limiter when it tracks too many clients",
			Schedule:    "@hourly",
			Run:         w.CleanupLimiter,
		})
	}

	for _, t := range tasks {
		if err := s.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// RecoverJobs re-offers pending jobs whose ID never reached a worker and
// fails jobs abandoned mid-run.
func (w *Sweeper) RecoverJobs(ctx context.Context) error {
	offered, requeueErr := w.jobs.Requeue(ctx, w.cfg.RequeueAfter)
	failed, staleErr := w.jobs.FailStale(ctx, w.cfg.StaleAfter)

	if offered > 0 || failed > 0 {
		w.logger.Info("recovered background jobs", "requeued", offered, "failed_stale", failed)
	}
	if failed > 0 {
		w.logger.Warn("background jobs abandoned while running", "count", failed, "category", "jobs")
	}
	return errors.Join(requeueErr, staleErr)
}

// Prune deletes records older than the retention period.
func (w *Sweeper) Prune(ctx context.Context) error {
	before := w.now().Add(-w.cfg.Retention)

	runs, err := w.queries.DeleteImportRunsBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("pruning import runs: %w", err)
	}
	events, err := w.queries.DeleteEventsBefore(ctx, before)
	if err != nil {
		return fmt.Errorf("pruning events: %w", err)
	}
	jobs, err := w.jobs.Prune(ctx, before)
	if err != nil {
		return err
	}

	w.logger.Info("pruned old records", "before", before, "import_runs", runs, "events", events, "jobs", jobs)
	return nil
}

// CleanupLimiter resets the in-memory limiter once it grows too large.
func (w *Sweeper) CleanupLimiter(context.Context) error {
	if w.limiter == nil {
		return nil
	}
	if w.limiter.ClearIfExceeds(w.cfg.MaxLimiterKeys) {
		w.logger.Info("rate limiter map cleared", "max_keys", w.cfg.MaxLimiterKeys)
	}
	return nil
}
