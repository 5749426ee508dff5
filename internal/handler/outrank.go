// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package handler provides the HTTP handlers of the ingest service.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/afida/ingest/internal/ingest"
	"github.com/afida/ingest/internal/middleware"
)

// MaxWebhookBodyBytes caps the size of one webhook delivery.
const MaxWebhookBodyBytes = 5 << 20

// OutrankHandler receives Outrank webhook deliveries. Authentication and
// rate limiting happen in middleware before it runs.
type OutrankHandler struct {
	processor *ingest.Processor
	logger    *slog.Logger
}

// NewOutrankHandler creates the webhook handler.
func NewOutrankHandler(p *ingest.Processor, logger *slog.Logger) *OutrankHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OutrankHandler{processor: p, logger: logger}
}

// Receive handles POST /webhooks/outrank. Item failures still answer 200;
// only an unreadable body is a client error.
func (h *OutrankHandler) Receive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxWebhookBodyBytes)

	var payload ingest.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("webhook body too large", "limit", tooLarge.Limit, "ip", middleware.ClientIP(r), "category", "import")
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request body exceeds 5 MB")
			return
		}
		h.logger.Warn("malformed webhook payload", "error", err, "ip", middleware.ClientIP(r), "category", "import")
		middleware.WriteError(w, http.StatusBadRequest, "Malformed JSON payload")
		return
	}

	result := h.processor.ProcessPayload(r.Context(), &payload, middleware.ClientIP(r))

	writeJSON(w, http.StatusOK, result)
}

// writeJSON writes data as JSON with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
