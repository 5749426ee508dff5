// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs periodic maintenance on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// taskTimeout bounds one run of a task.
const taskTimeout = 5 * time.Minute

// Task is a named function run on a cron schedule.
type Task struct {
	Name        string
	Description string
	Schedule    string
	Run         func(ctx context.Context) error
}

type registeredTask struct {
	Task
	entryID cron.EntryID
}

// TaskInfo is the public view of a registered task.
type TaskInfo struct {
	Name        string
	Description string
	Schedule    string
	LastRun     time.Time
	NextRun     time.Time
}

// Scheduler runs registered tasks.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu    sync.RWMutex
	tasks map[string]*registeredTask
}

// New creates a new scheduler instance.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
		tasks:  make(map[string]*registeredTask),
	}
}

// Add registers t. Tasks added after Start are scheduled immediately.
func (s *Scheduler) Add(t Task) error {
	if t.Name == "" || t.Run == nil {
		return fmt.Errorf("task needs a name and a function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.tasks[t.Name]; dup {
		return fmt.Errorf("task %q already registered", t.Name)
	}

	entryID, err := s.cron.AddFunc(t.Schedule, func() { s.execute(t) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for task %q: %w", t.Schedule, t.Name, err)
	}

	s.tasks[t.Name] = &registeredTask{Task: t, entryID: entryID}
	s.logger.Debug("registered scheduled task", "name", t.Name, "schedule", t.Schedule)
	return nil
}

// Start begins running the registered tasks.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "tasks", len(s.cron.Entries()))
}

// Stop gracefully stops the scheduler, waiting for running tasks.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// List returns all registered tasks sorted by name.
func (s *Scheduler) List() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		entry := s.cron.Entry(t.entryID)
		result = append(result, TaskInfo{
			Name:        t.Name,
			Description: t.Description,
			Schedule:    t.Schedule,
			LastRun:     entry.Prev,
			NextRun:     entry.Next,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// TriggerNow runs the named task synchronously.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("task not found: %s", name)
	}

	s.logger.Info("manually triggering task", "name", name)
	return t.Run(ctx)
}

func (s *Scheduler) execute(t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "name", t.Name, "panic", r, "category", "system")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	start := time.Now()
	if err := t.Run(ctx); err != nil {
		s.logger.Error("scheduled task failed", "name", t.Name, "error", err, "category", "system")
		return
	}
	s.logger.Debug("scheduled task finished", "name", t.Name, "elapsed", time.Since(start))
}
