// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/afida/ingest/internal/metrics"
)

// MsgInvalidToken is the 401 message for any authentication failure.
const MsgInvalidToken = "Invalid or missing access token"

// TokenAuth requires "Authorization: Bearer <token>" matching token. An
// empty token rejects every request. The body is never read on failure.
func TokenAuth(token string, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided, ok := bearerToken(r)
			if !ok || len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
				logger.Warn("rejected webhook delivery with invalid access token",
					"ip", ClientIP(r),
					"path", r.URL.Path,
					"header_present", r.Header.Get("Authorization") != "",
					"category", "auth")
				m.AuthFailed()
				WriteError(w, http.StatusUnauthorized, MsgInvalidToken)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token of a Bearer Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
