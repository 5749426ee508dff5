// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"database/sql"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/afida/ingest/internal/ingest"
	"github.com/afida/ingest/internal/metrics"
	"github.com/afida/ingest/internal/middleware"
	"github.com/afida/ingest/internal/ratelimit"
	"github.com/afida/ingest/internal/version"
)

// Route paths.
const (
	RouteOutrankWebhook = "/webhooks/outrank"
	RouteHealth         = "/health"
	RouteMetrics        = "/metrics"
)

// RouterConfig holds the dependencies of the HTTP routes.
type RouterConfig struct {
	DB          *sql.DB
	Processor   *ingest.Processor
	Limiter     ratelimit.Limiter
	AccessToken string
	UploadsDir  string
	Metrics     *metrics.Metrics
	Version     version.Info
	Logger      *slog.Logger

	// TrustedProxies are the peers allowed to set the client address
	// through forwarding headers.
	TrustedProxies []*net.IPNet
}

// NewRouter builds the service routes. The webhook is rate limited
// before the token is checked, so unauthenticated floods are throttled.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(chimw.Recoverer)
	r.Use(middleware.APIHeaders)

	outrank := NewOutrankHandler(cfg.Processor, logger)
	r.Group(func(r chi.Router) {
		if cfg.Limiter != nil {
			r.Use(middleware.RateLimit(cfg.Limiter, logger, cfg.Metrics))
		}
		r.Use(middleware.TokenAuth(cfg.AccessToken, logger, cfg.Metrics))
		r.Post(RouteOutrankWebhook, outrank.Receive)
	})

	health := NewHealthHandler(cfg.DB, cfg.UploadsDir, cfg.Version)
	r.Get(RouteHealth, health.Health)

	if cfg.Metrics != nil {
		r.Handle(RouteMetrics, cfg.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "No such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}
