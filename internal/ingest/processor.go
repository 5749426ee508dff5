// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/afida/ingest/internal/cover"
	"github.com/afida/ingest/internal/jobs"
	"github.com/afida/ingest/internal/metrics"
	"github.com/afida/ingest/internal/store"
)

// Delivery describes where a batch came from; it is recorded in the
// import_runs ledger.
type Delivery struct {
	EventType   string
	DeliveredAt string
	RemoteIP    string
}

// Processor runs a whole batch through the Importer.
type Processor struct {
	importer   *Importer
	categories *CategoryResolver
	queries    *store.Queries
	enqueuer   jobs.Enqueuer
	logger     *slog.Logger
	metrics    *metrics.Metrics

	importOne func(ctx context.Context, a InboundArticle, cache *CategoryCache, sink CoverSink) ImportResult
}

// NewProcessor creates a batch processor. enq and m may be nil.
func NewProcessor(db store.DBTX, enq jobs.Enqueuer, logger *slog.Logger, m *metrics.Metrics) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	im := NewImporter(db, enq, logger)
	return &Processor{
		importer:   im,
		categories: im.categories,
		queries:    store.New(db),
		enqueuer:   enq,
		logger:     logger,
		metrics:    m,
		importOne:  im.importArticle,
	}
}

// Importer returns the importer used for each item.
func (p *Processor) Importer() *Importer {
	return p.importer
}

// Process imports articles in order. Every article yields exactly one
// result; a failing or panicking item never stops the batch.
func (p *Processor) Process(ctx context.Context, articles []InboundArticle) BatchResult {
	return p.ProcessDelivery(ctx, articles, Delivery{})
}

// ProcessPayload processes a decoded webhook body.
func (p *Processor) ProcessPayload(ctx context.Context, payload *Payload, remoteIP string) BatchResult {
	d := Delivery{RemoteIP: remoteIP}
	if payload != nil {
		d.EventType = payload.EventType
		d.DeliveredAt = payload.Timestamp
	}
	return p.ProcessDelivery(ctx, payload.Articles(), d)
}

// ProcessDelivery is Process plus the import_runs ledger entry for d.
func (p *Processor) ProcessDelivery(ctx context.Context, articles []InboundArticle, d Delivery) BatchResult {
	start := time.Now()

	cache, err := p.categories.Preload(ctx, articles)
	if err != nil {
		// items still resolve categories one by one
		p.logger.Warn("category preload failed", "error", err, "category", "import")
	}

	collector := &coverCollector{}
	results := make([]ImportResult, 0, len(articles))
	for _, a := range articles {
		results = append(results, p.importSafely(ctx, a, cache, collector))
	}

	p.enqueueCovers(ctx, collector.items)

	batch := newBatchResult(results)
	created, skipped, failed := batch.Counts()

	p.logger.Info("processed outrank batch",
		"status", batch.Status,
		"processed", batch.Processed,
		"created", created,
		"skipped", skipped,
		"failed", failed,
		"covers", len(collector.items))

	p.metrics.ObserveBatch(batch.Status, created, skipped, failed, time.Since(start))
	p.recordRun(ctx, batch, d, created, skipped, failed)

	return batch
}

func (p *Processor) importSafely(ctx context.Context, a InboundArticle, cache *CategoryCache, sink CoverSink) (result ImportResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("unexpected panic importing article",
				"outrank_id", a.ExternalID,
				"panic", r,
				"stack", string(debug.Stack()),
				"category", "import")
			result = Failed{ExternalID: a.ExternalID, Message: fmt.Sprintf("unexpected error: %v", r)}
		}
	}()

	result = p.importOne(ctx, a, cache, sink)
	if result == nil {
		result = Failed{ExternalID: a.ExternalID, Message: "unexpected error: no result"}
	}
	return result
}

func (p *Processor) enqueueCovers(ctx context.Context, items []cover.FetchArgs) {
	if len(items) == 0 {
		return
	}
	if p.enqueuer == nil {
		p.logger.Debug("no job queue configured, covers not fetched", "count", len(items))
		return
	}
	if _, err := p.enqueuer.Enqueue(ctx, cover.JobFetchBatch, cover.FetchBatchArgs{Items: items}); err != nil {
		p.logger.Warn("failed to enqueue cover batch", "count", len(items), "error", err, "category", "cover")
	}
}

func (p *Processor) recordRun(ctx context.Context, batch BatchResult, d Delivery, created, skipped, failed int) {
	_, err := p.queries.CreateImportRun(ctx, store.CreateImportRunParams{
		EventType:   d.EventType,
		DeliveredAt: d.DeliveredAt,
		Status:      batch.Status,
		Processed:   int64(batch.Processed),
		Created:     int64(created),
		Skipped:     int64(skipped),
		Failed:      int64(failed),
		RemoteIp:    d.RemoteIP,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		p.logger.Warn("failed to record import run", "error", err, "category", "import")
	}
}

// coverCollector gathers covers so a batch enqueues a single job.
type coverCollector struct {
	items []cover.FetchArgs
}

func (c *coverCollector) AddCover(_ context.Context, req cover.FetchArgs) {
	c.items = append(c.items, req)
}
