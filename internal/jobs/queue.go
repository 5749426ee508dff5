// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package jobs is a small persisted task queue. Jobs are rows in the jobs
// table; their IDs travel over a buffered channel to a pool of workers.
// A job runs at most once and is never retried automatically.
package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/afida/ingest/internal/metrics"
	"github.com/afida/ingest/internal/store"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusDiscarded = "discarded"
)

// ErrDiscard tells the queue that the job has nothing left to do, e.g. the
// record it refers to no longer exists. The job ends as discarded.
var ErrDiscard = errors.New("jobs: discard")

// Handler runs one job. args is the JSON stored at enqueue time.
type Handler func(ctx context.Context, args json.RawMessage) error

// Enqueuer accepts a job name and JSON-serializable arguments.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, args any) (int64, error)
}

// Config holds queue configuration.
type Config struct {
	Workers    int           // Number of concurrent workers
	QueueSize  int           // Buffered job IDs before Enqueue leaves work to the sweeper
	JobTimeout time.Duration // Upper bound for one handler run
}

// DefaultConfig returns default queue configuration.
func DefaultConfig() Config {
	return Config{
		Workers:    3,
		QueueSize:  100,
		JobTimeout: 2 * time.Minute,
	}
}

// Queue persists jobs and runs them on a worker pool.
type Queue struct {
	db       *sql.DB
	queries  *store.Queries
	logger   *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config
	pending  chan int64
	wg       sync.WaitGroup
	done     chan struct{}
	mu       sync.RWMutex
	running  bool
	handlers map[string]Handler
}

// New creates a queue. Workers do not run until Start.
func New(db *sql.DB, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Queue {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		db:       db,
		queries:  store.New(db),
		logger:   logger,
		metrics:  m,
		cfg:      cfg,
		pending:  make(chan int64, cfg.QueueSize),
		done:     make(chan struct{}),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job name, replacing any previous one.
func (q *Queue) Register(name string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = h
}

func (q *Queue) handler(name string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h, ok := q.handlers[name]
	return h, ok
}

// Enqueue stores a pending job and offers it to the workers without
// blocking. When the buffer is full the row stays pending until Requeue.
func (q *Queue) Enqueue(ctx context.Context, name string, args any) (int64, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("marshaling %s args: %w", name, err)
	}

	now := time.Now().UTC()
	job, err := q.queries.CreateJob(ctx, store.CreateJobParams{
		Name:      name,
		Args:      string(payload),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return 0, fmt.Errorf("creating %s job: %w", name, err)
	}

	q.metrics.JobEnqueued(name)
	q.logger.Debug("job enqueued", "job_id", job.ID, "job", name)
	q.offer(job.ID)
	return job.ID, nil
}

func (q *Queue) offer(id int64) bool {
	select {
	case q.pending <- id:
		return true
	default:
		q.logger.Warn("job queue full, job left pending", "job_id", id, "category", "jobs")
		return false
	}
}

// Start starts the worker goroutines.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	q.logger.Info("starting job queue", "workers", q.cfg.Workers)

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop stops the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	q.logger.Info("stopping job queue")
	close(q.done)
	q.wg.Wait()
	q.logger.Info("job queue stopped")
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	q.logger.Debug("job worker started", "worker_id", id)

	for {
		select {
		case <-q.done:
			q.logger.Debug("job worker stopping", "worker_id", id)
			return
		case <-ctx.Done():
			q.logger.Debug("job worker context cancelled", "worker_id", id)
			return
		case jobID := <-q.pending:
			q.process(ctx, jobID)
		}
	}
}

// RunPending claims and runs a single job synchronously. Workers call it
// for every ID they receive; it is exported for callers that drive the
// queue without a worker pool.
func (q *Queue) RunPending(ctx context.Context, jobID int64) {
	q.process(ctx, jobID)
}

func (q *Queue) process(ctx context.Context, jobID int64) {
	claimed, err := q.queries.ClaimJob(ctx, store.ClaimJobParams{
		UpdatedAt: time.Now().UTC(),
		ID:        jobID,
	})
	if err != nil {
		q.logger.Error("failed to claim job", "job_id", jobID, "error", err)
		return
	}
	if claimed == 0 {
		return
	}

	job, err := q.queries.GetJob(ctx, jobID)
	if err != nil {
		q.logger.Error("failed to load claimed job", "job_id", jobID, "error", err)
		return
	}

	start := time.Now()
	runErr := q.run(ctx, job)
	status := StatusDone
	switch {
	case runErr == nil:
	case errors.Is(runErr, ErrDiscard):
		status = StatusDiscarded
	default:
		status = StatusFailed
	}

	q.finish(ctx, job, status, runErr)
	q.metrics.JobFinished(job.Name, status, time.Since(start))

	switch status {
	case StatusFailed:
		q.logger.Warn("job failed", "job_id", job.ID, "job", job.Name, "error", runErr, "category", "jobs")
	case StatusDiscarded:
		q.logger.Info("job discarded", "job_id", job.ID, "job", job.Name, "reason", runErr)
	default:
		q.logger.Debug("job done", "job_id", job.ID, "job", job.Name)
	}
}

func (q *Queue) run(ctx context.Context, job store.Job) (err error) {
	h, ok := q.handler(job.Name)
	if !ok {
		return fmt.Errorf("no handler registered for job %q", job.Name)
	}

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", "job_id", job.ID, "job", job.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()
	return h(runCtx, json.RawMessage(job.Args))
}

func (q *Queue) finish(ctx context.Context, job store.Job, status string, runErr error) {
	var errMsg sql.NullString
	if runErr != nil && status == StatusFailed {
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	now := time.Now().UTC()

	// bookkeeping must land even when shutdown cancelled ctx
	err := q.queries.FinishJob(context.WithoutCancel(ctx), store.FinishJobParams{
		Status:     status,
		Error:      errMsg,
		FinishedAt: sql.NullTime{Time: now, Valid: true},
		UpdatedAt:  now,
		ID:         job.ID,
	})
	if err != nil {
		q.logger.Error("failed to record job result", "job_id", job.ID, "status", status, "error", err)
	}
}

// Requeue offers pending jobs created before olderThan ago to the workers
// again. It returns how many IDs were accepted by the buffer.
func (q *Queue) Requeue(ctx context.Context, olderThan time.Duration) (int, error) {
	jobs, err := q.queries.ListPendingJobs(ctx, store.ListPendingJobsParams{
		CreatedBefore: time.Now().UTC().Add(-olderThan),
		Limit:         int64(q.cfg.QueueSize),
	})
	if err != nil {
		return 0, fmt.Errorf("listing pending jobs: %w", err)
	}

	offered := 0
	for _, job := range jobs {
		if !q.offer(job.ID) {
			break
		}
		offered++
	}
	return offered, nil
}

// FailStale marks jobs stuck in running for longer than after as failed.
func (q *Queue) FailStale(ctx context.Context, after time.Duration) (int64, error) {
	now := time.Now().UTC()
	n, err := q.queries.FailStaleJobs(ctx, store.FailStaleJobsParams{
		Error:         sql.NullString{String: "abandoned while running", Valid: true},
		Now:           now,
		UpdatedBefore: now.Add(-after),
	})
	if err != nil {
		return 0, fmt.Errorf("failing stale jobs: %w", err)
	}
	return n, nil
}

// Prune deletes finished jobs older than before.
func (q *Queue) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := q.queries.DeleteFinishedJobs(ctx, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning jobs: %w", err)
	}
	return n, nil
}
