// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "afida_ingest"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BatchesTotal       *prometheus.CounterVec
	ItemsTotal         *prometheus.CounterVec
	BatchDuration      prometheus.Histogram
	JobsEnqueuedTotal  *prometheus.CounterVec
	JobsFinishedTotal  *prometheus.CounterVec
	JobDuration        *prometheus.HistogramVec
	RateLimitedTotal   prometheus.Counter
	AuthFailuresTotal  prometheus.Counter
	CoverDownloadBytes prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates and registers all collectors on reg. A nil reg gets a
// fresh private registry, which keeps tests independent.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{gatherer: reg}

	m.BatchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "import",
		Name:      "batches_total",
		Help:      "Webhook batches processed, by overall status",
	}, []string{"status"})

	m.ItemsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "import",
		Name:      "items_total",
		Help:      "Imported items, by outcome",
	}, []string{"outcome"})

	m.BatchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "import",
		Name:      "batch_duration_seconds",
		Help:      "Time spent processing one batch",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	m.JobsEnqueuedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Background jobs enqueued, by job name",
	}, []string{"name"})

	m.JobsFinishedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "Background jobs finished, by job name and final status",
	}, []string{"name", "status"})

	m.JobDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Background job run time",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"name"})

	m.RateLimitedTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})

	m.AuthFailuresTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "http",
		Name:      "auth_failures_total",
		Help:      "Requests rejected for a missing or invalid access token",
	})

	m.CoverDownloadBytes = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "cover",
		Name:      "downloaded_bytes_total",
		Help:      "Bytes of cover images stored",
	})

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveBatch records one processed batch.
func (m *Metrics) ObserveBatch(status string, created, skipped, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(status).Inc()
	m.ItemsTotal.WithLabelValues("created").Add(float64(created))
	m.ItemsTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.ItemsTotal.WithLabelValues("failed").Add(float64(failed))
	m.BatchDuration.Observe(elapsed.Seconds())
}

// JobEnqueued records a job insert.
func (m *Metrics) JobEnqueued(name string) {
	if m == nil {
		return
	}
	m.JobsEnqueuedTotal.WithLabelValues(name).Inc()
}

// JobFinished records a job's final status and run time.
func (m *Metrics) JobFinished(name, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsFinishedTotal.WithLabelValues(name, status).Inc()
	m.JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

// RateLimited records a 429.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// AuthFailed records a 401.
func (m *Metrics) AuthFailed() {
	if m == nil {
		return
	}
	m.AuthFailuresTotal.Inc()
}

// CoverStored records the size of a stored cover image.
func (m *Metrics) CoverStored(size int64) {
	if m == nil {
		return
	}
	m.CoverDownloadBytes.Add(float64(size))
}
