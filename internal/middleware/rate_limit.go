// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/afida/ingest/internal/metrics"
	"github.com/afida/ingest/internal/ratelimit"
)

// MsgRateLimited is the 429 message.
const MsgRateLimited = "Rate limit exceeded. Please try again later."

// RateLimit limits requests per client IP. Limiter errors let the
// request through.
func RateLimit(l ratelimit.Limiter, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			allowed, err := l.Allow(r.Context(), ip)
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request",
					"ip", ip, "error", err, "category", "auth")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.Warn("webhook rate limit exceeded", "ip", ip, "path", r.URL.Path, "category", "auth")
				m.RateLimited()
				WriteError(w, http.StatusTooManyRequests, MsgRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
