// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afida/ingest/internal/metrics"
	"github.com/afida/ingest/internal/store"
	"github.com/afida/ingest/internal/testutil"
)

type pingArgs struct {
	N int `json:"n"`
}

func newTestQueue(t *testing.T, cfg Config) (*Queue, *store.Queries) {
	t.Helper()
	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)
	return New(db, testutil.TestLoggerSilent(), metrics.New(nil), cfg), store.New(db)
}

func jobStatus(t *testing.T, q *store.Queries, id int64) string {
	t.Helper()
	job, err := q.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job.Status
}

func TestEnqueue_PersistsPendingJob(t *testing.T) {
	q, queries := newTestQueue(t, DefaultConfig())

	id, err := q.Enqueue(context.Background(), "ping", pingArgs{N: 7})
	require.NoError(t, err)

	job, err := queries.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ping", job.Name)
	assert.Equal(t, StatusPending, job.Status)
	assert.JSONEq(t, `{"n":7}`, job.Args)
}

func TestEnqueue_UnmarshalableArgs(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())

	_, err := q.Enqueue(context.Background(), "ping", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestWorkers_RunRegisteredHandler(t *testing.T) {
	q, queries := newTestQueue(t, DefaultConfig())

	var got atomic.Int64
	q.Register("ping", func(_ context.Context, args json.RawMessage) error {
		var a pingArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return err
		}
		got.Store(int64(a.N))
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, err := q.Enqueue(ctx, "ping", pingArgs{N: 42})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return jobStatus(t, queries, id) == StatusDone
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(42), got.Load())
}

func TestProcess_Statuses(t *testing.T) {
	tests := []struct {
		name       string
		handler    Handler
		register   bool
		wantStatus string
		wantError  bool
	}{
		{
			name:       "success",
			handler:    func(context.Context, json.RawMessage) error { return nil },
			register:   true,
			wantStatus: StatusDone,
		},
		{
			name:       "error",
			handler:    func(context.Context, json.RawMessage) error { return errors.New("boom") },
			register:   true,
			wantStatus: StatusFailed,
			wantError:  true,
		},
		{
			name: "discard",
			handler: func(context.Context, json.RawMessage) error {
				return ErrDiscard
			},
			register:   true,
			wantStatus: StatusDiscarded,
		},
		{
			name:       "panic",
			handler:    func(context.Context, json.RawMessage) error { panic("kaboom") },
			register:   true,
			wantStatus: StatusFailed,
			wantError:  true,
		},
		{
			name:       "unknown job name",
			register:   false,
			wantStatus: StatusFailed,
			wantError:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, queries := newTestQueue(t, DefaultConfig())
			if tt.register {
				q.Register("task", tt.handler)
			}

			id, err := q.Enqueue(context.Background(), "task", struct{}{})
			require.NoError(t, err)

			q.RunPending(context.Background(), id)

			job, err := queries.GetJob(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, job.Status)
			assert.Equal(t, tt.wantError, job.Error.Valid)
			assert.True(t, job.FinishedAt.Valid)
		})
	}
}

func TestProcess_RunsAtMostOnce(t *testing.T) {
	q, _ := newTestQueue(t, DefaultConfig())

	var calls atomic.Int32
	q.Register("once", func(context.Context, json.RawMessage) error {
		calls.Add(1)
		return errors.New("not retried")
	})

	id, err := q.Enqueue(context.Background(), "once", nil)
	require.NoError(t, err)

	q.RunPending(context.Background(), id)
	q.RunPending(context.Background(), id)

	assert.Equal(t, int32(1), calls.Load())
}

func TestEnqueue_FullBufferLeavesJobPending(t *testing.T) {
	q, queries := newTestQueue(t, Config{Workers: 1, QueueSize: 1})

	first, err := q.Enqueue(context.Background(), "slow", nil)
	require.NoError(t, err)
	second, err := q.Enqueue(context.Background(), "slow", nil)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, jobStatus(t, queries, first))
	assert.Equal(t, StatusPending, jobStatus(t, queries, second))
	assert.Len(t, q.pending, 1)
}

func TestRequeue(t *testing.T) {
	q, queries := newTestQueue(t, Config{Workers: 1, QueueSize: 4})

	var runs atomic.Int32
	q.Register("late", func(context.Context, json.RawMessage) error {
		runs.Add(1)
		return nil
	})

	id, err := q.Enqueue(context.Background(), "late", nil)
	require.NoError(t, err)
	<-q.pending // simulate the ID being lost before any worker saw it

	n, err := q.Requeue(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	q.RunPending(context.Background(), <-q.pending)
	assert.Equal(t, StatusDone, jobStatus(t, queries, id))
	assert.Equal(t, int32(1), runs.Load())
}

func TestFailStaleAndPrune(t *testing.T) {
	q, queries := newTestQueue(t, DefaultConfig())
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "stuck", nil)
	require.NoError(t, err)
	claimed, err := queries.ClaimJob(ctx, store.ClaimJobParams{
		UpdatedAt: time.Now().UTC().Add(-time.Hour),
		ID:        id,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), claimed)

	n, err := q.FailStale(ctx, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, StatusFailed, jobStatus(t, queries, id))

	pruned, err := q.Prune(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = queries.GetJob(ctx, id)
	assert.Error(t, err)
}

func TestStartStop_Idempotent(t *testing.T) {
	q, _ := newTestQueue(t, Config{Workers: 2})

	q.Start(context.Background())
	q.Start(context.Background())
	q.Stop()
	q.Stop()
}
