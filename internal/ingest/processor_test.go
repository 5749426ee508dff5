// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afida/ingest/internal/cover"
	"github.com/afida/ingest/internal/jobs"
	"github.com/afida/ingest/internal/metrics"
	"github.com/afida/ingest/internal/store"
	tu "github.com/afida/ingest/internal/testutil"
)

func TestProcess_PartialBatch(t *testing.T) {
	e := newEnv(t)

	batch := e.proc.Process(context.Background(), []InboundArticle{
		article("a", "First", "first", "Body one."),
		article("b", "", "second", "Body two."),
		article("c", "Third", "third", "Body three."),
	})

	assert.Equal(t, BatchPartial, batch.Status)
	assert.Equal(t, 3, batch.Processed)
	require.Len(t, batch.Results, 3)
	assert.IsType(t, Created{}, batch.Results[0])
	assert.Equal(t, Failed{ExternalID: "b", Message: "missing required fields: title"}, batch.Results[1])
	assert.IsType(t, Created{}, batch.Results[2])
	assert.Equal(t, int64(2), e.draftCount(t))

	created, skipped, failed := batch.Counts()
	assert.Equal(t, []int{2, 0, 1}, []int{created, skipped, failed})
}

func TestProcess_SkippedKeepsSuccess(t *testing.T) {
	e := newEnv(t)
	items := []InboundArticle{article("dup", "Dup", "dup", "Body.")}

	e.proc.Process(context.Background(), items)
	batch := e.proc.Process(context.Background(), items)

	assert.Equal(t, BatchSuccess, batch.Status)
	assert.Equal(t, []ImportResult{Skipped{ExternalID: "dup", Reason: ReasonDuplicate}}, batch.Results)
}

func TestProcess_DuplicateWithinBatch(t *testing.T) {
	e := newEnv(t)

	batch := e.proc.Process(context.Background(), []InboundArticle{
		article("same", "One", "one", "Body."),
		article("same", "Two", "two", "Body."),
	})

	assert.IsType(t, Created{}, batch.Results[0])
	assert.Equal(t, Skipped{ExternalID: "same", Reason: ReasonDuplicate}, batch.Results[1])
	assert.Equal(t, int64(1), e.draftCount(t))
}

func TestProcess_EmptyBatch(t *testing.T) {
	e := newEnv(t)

	batch := e.proc.Process(context.Background(), nil)

	assert.Equal(t, BatchSuccess, batch.Status)
	assert.Equal(t, 0, batch.Processed)

	body, err := json.Marshal(batch)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","processed":0,"results":[]}`, string(body))
}

func TestProcess_SharesCategory(t *testing.T) {
	e := newEnv(t)

	batch := e.proc.Process(context.Background(), []InboundArticle{
		article("p1", "One", "one", "Body.", "eco"),
		article("p2", "Two", "two", "Body.", "eco"),
	})

	first := e.draft(t, batch.Results[0])
	second := e.draft(t, batch.Results[1])
	assert.Equal(t, first.CategoryID, second.CategoryID)

	n, err := e.queries.CountCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProcess_ReusesExistingCategory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, e.queries.InsertCategoryIfMissing(ctx, store.InsertCategoryIfMissingParams{
		Name: "eco", Slug: "eco", CreatedAt: now, UpdatedAt: now,
	}))
	existing, err := e.queries.GetCategoryByName(ctx, "eco")
	require.NoError(t, err)

	batch := e.proc.Process(ctx, []InboundArticle{article("p1", "One", "one", "Body.", "eco")})

	assert.Equal(t, existing.ID, e.draft(t, batch.Results[0]).CategoryID.Int64)
}

func TestProcess_CoversEnqueuedOnce(t *testing.T) {
	e := newEnv(t)
	withImage := func(a InboundArticle, url string) InboundArticle {
		a.ImageURL = url
		return a
	}

	batch := e.proc.Process(context.Background(), []InboundArticle{
		withImage(article("i1", "One", "one", "Body."), "https://cdn.example.com/1.png"),
		article("i2", "Two", "two", "Body."),
		withImage(article("i3", "", "three", "Body."), "https://cdn.example.com/3.png"),
		withImage(article("i4", "Four", "four", "Body."), "https://cdn.example.com/4.png"),
	})

	calls := e.jobs.all()
	require.Len(t, calls, 1)
	assert.Equal(t, cover.JobFetchBatch, calls[0].name)

	args, ok := calls[0].args.(cover.FetchBatchArgs)
	require.True(t, ok)
	assert.Equal(t, []cover.FetchArgs{
		{DraftID: batch.Results[0].(Created).DraftID, ImageURL: "https://cdn.example.com/1.png"},
		{DraftID: batch.Results[3].(Created).DraftID, ImageURL: "https://cdn.example.com/4.png"},
	}, args.Items)
}

func TestProcess_EnqueueFailureKeepsResults(t *testing.T) {
	e := newEnv(t)
	e.jobs.err = errors.New("queue closed")
	a := article("q1", "One", "one", "Body.")
	a.ImageURL = "https://cdn.example.com/1.png"

	batch := e.proc.Process(context.Background(), []InboundArticle{a})

	assert.Equal(t, BatchSuccess, batch.Status)
	assert.IsType(t, Created{}, batch.Results[0])
}

func TestProcess_CoverFailureDoesNotTouchDraft(t *testing.T) {
	db, cleanup := tu.TestDB(t)
	defer cleanup()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	logger := tu.TestLoggerSilent()
	queue := jobs.New(db, logger, nil, jobs.Config{Workers: 1, QueueSize: 4, JobTimeout: 5 * time.Second})
	fetcher := cover.NewFetcher(srv.Client(), cover.FetcherConfig{}, logger)
	attacher := cover.NewAttacher(db, t.TempDir(), logger, nil)
	cover.NewService(fetcher, attacher, logger).Register(queue)

	proc := NewProcessor(db, queue, logger, nil)
	a := article("n1", "No cover", "no-cover", "Body.")
	a.ImageURL = srv.URL + "/missing.png"

	batch := proc.Process(context.Background(), []InboundArticle{a})
	require.IsType(t, Created{}, batch.Results[0])
	assert.Equal(t, BatchSuccess, batch.Status)

	pending, err := store.New(db).ListPendingJobs(context.Background(), store.ListPendingJobsParams{
		CreatedBefore: time.Now().UTC().Add(time.Minute),
		Limit:         10,
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	queue.RunPending(context.Background(), pending[0].ID)

	job, err := store.New(db).GetJob(context.Background(), pending[0].ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDone, job.Status)

	post, err := store.New(db).GetDraftPost(context.Background(), batch.Results[0].(Created).DraftID)
	require.NoError(t, err)
	assert.False(t, post.CoverAssetID.Valid)
}

func TestProcess_RecoversFromPanic(t *testing.T) {
	e := newEnv(t)
	importArticle := e.proc.importOne
	e.proc.importOne = func(ctx context.Context, a InboundArticle, cache *CategoryCache, sink CoverSink) ImportResult {
		if a.ExternalID == "boom" {
			panic("boom")
		}
		return importArticle(ctx, a, cache, sink)
	}

	batch := e.proc.Process(context.Background(), []InboundArticle{
		article("ok1", "One", "one", "Body."),
		article("boom", "Two", "two", "Body."),
		article("ok2", "Three", "three", "Body."),
	})

	assert.Equal(t, BatchPartial, batch.Status)
	assert.IsType(t, Created{}, batch.Results[0])
	assert.Equal(t, Failed{ExternalID: "boom", Message: "unexpected error: boom"}, batch.Results[1])
	assert.IsType(t, Created{}, batch.Results[2])
	assert.Equal(t, int64(2), e.draftCount(t))
}

func TestProcessPayload_RecordsRun(t *testing.T) {
	e := newEnv(t)
	payload := &Payload{EventType: "publish_articles", Timestamp: "2026-01-15T10:30:00Z"}
	payload.Data.Articles = []InboundArticle{
		article("r1", "One", "one", "Body."),
		article("r2", "", "two", "Body."),
	}

	e.proc.ProcessPayload(context.Background(), payload, "203.0.113.9")

	var run store.ImportRun
	err := e.db.QueryRow(`SELECT event_type, delivered_at, status, processed, created, skipped, failed, remote_ip
		FROM import_runs`).Scan(&run.EventType, &run.DeliveredAt, &run.Status, &run.Processed,
		&run.Created, &run.Skipped, &run.Failed, &run.RemoteIp)
	require.NoError(t, err)

	assert.Equal(t, "publish_articles", run.EventType)
	assert.Equal(t, "2026-01-15T10:30:00Z", run.DeliveredAt)
	assert.Equal(t, BatchPartial, run.Status)
	assert.Equal(t, int64(2), run.Processed)
	assert.Equal(t, int64(1), run.Created)
	assert.Equal(t, int64(1), run.Failed)
	assert.Equal(t, "203.0.113.9", run.RemoteIp)
}

func TestProcess_ObservesMetrics(t *testing.T) {
	db, cleanup := tu.TestDB(t)
	defer cleanup()

	m := metrics.New(prometheus.NewRegistry())
	proc := NewProcessor(db, nil, tu.TestLoggerSilent(), m)

	proc.Process(context.Background(), []InboundArticle{
		article("m1", "One", "one", "Body."),
		article("m1", "One", "one", "Body."),
	})

	assert.InDelta(t, 1, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(BatchSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ItemsTotal.WithLabelValues(ItemCreated)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ItemsTotal.WithLabelValues(ItemSkipped)), 0)
}

func TestBatchResult_MarshalJSON(t *testing.T) {
	batch := newBatchResult([]ImportResult{
		Created{ExternalID: "a", DraftID: 7},
		Skipped{ExternalID: "b", Reason: ReasonDuplicate},
		Failed{ExternalID: "c", Message: "missing required fields: title"},
	})

	body, err := json.Marshal(batch)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"status": "partial",
		"processed": 3,
		"results": [
			{"outrank_id": "a", "status": "created", "blog_post_id": 7},
			{"outrank_id": "b", "status": "skipped", "reason": "duplicate"},
			{"outrank_id": "c", "status": "error", "message": "missing required fields: title"}
		]
	}`, string(body))
}
