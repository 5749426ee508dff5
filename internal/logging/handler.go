// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a slog handler that mirrors warnings and errors
// into the events table, so failed imports and cover downloads can be
// reviewed after the fact.
package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/afida/ingest/internal/store"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event categories, selected with a "category" log attribute.
const (
	CategoryImport = "import"
	CategoryCover  = "cover"
	CategoryAuth   = "auth"
	CategoryJobs   = "jobs"
	CategorySystem = "system"
)

// CategoryKey is the attribute key that selects the event category.
const CategoryKey = "category"

// eventTimeout bounds one events insert.
const eventTimeout = 2 * time.Second

// EventLogHandler is a slog.Handler that wraps another handler and also
// writes records at or above its level to the events table.
type EventLogHandler struct {
	inner   slog.Handler
	queries *store.Queries
	level   slog.Level
	attrs   []slog.Attr
	group   string
}

// NewEventLogHandler wraps inner; WARN and above are also stored.
func NewEventLogHandler(inner slog.Handler, db store.DBTX) *EventLogHandler {
	return NewEventLogHandlerWithLevel(inner, db, slog.LevelWarn)
}

// NewEventLogHandlerWithLevel creates an EventLogHandler with a custom minimum level.
func NewEventLogHandlerWithLevel(inner slog.Handler, db store.DBTX, level slog.Level) *EventLogHandler {
	return &EventLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   level,
	}
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.writeEvent(ctx, r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithAttrs(attrs)
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(a))
	}
	return &clone
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	clone := *h
	clone.inner = h.inner.WithGroup(name)
	if name != "" {
		if clone.group != "" {
			clone.group += "."
		}
		clone.group += name
	}
	return &clone
}

func (h *EventLogHandler) qualify(a slog.Attr) slog.Attr {
	if h.group == "" || a.Key == CategoryKey {
		return a
	}
	return slog.Attr{Key: h.group + "." + a.Key, Value: a.Value}
}

// writeEvent stores r. The request context may already be cancelled, so
// the insert runs detached from it.
func (h *EventLogHandler) writeEvent(ctx context.Context, r slog.Record) {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, h.qualify(a))
		return true
	})

	createdAt := r.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	_, _ = h.queries.CreateEvent(dbCtx, store.CreateEventParams{
		Level:     eventLevel(r.Level),
		Category:  category(r.Message, attrs),
		Message:   r.Message,
		Metadata:  metadata(attrs),
		CreatedAt: createdAt.UTC(),
	})
}

func eventLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return EventLevelError
	case level >= slog.LevelWarn:
		return EventLevelWarning
	default:
		return EventLevelInfo
	}
}

// category uses the last "category" attribute, falling back to keywords
// in the message.
func category(msg string, attrs []slog.Attr) string {
	var c string
	for _, a := range attrs {
		if a.Key == CategoryKey {
			c = a.Value.String()
		}
	}
	if c != "" {
		return c
	}

	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "token") || strings.Contains(msg, "auth") || strings.Contains(msg, "rate limit"):
		return CategoryAuth
	case strings.Contains(msg, "cover") || strings.Contains(msg, "image"):
		return CategoryCover
	case strings.Contains(msg, "job") || strings.Contains(msg, "queue"):
		return CategoryJobs
	case strings.Contains(msg, "import") || strings.Contains(msg, "article") || strings.Contains(msg, "batch"):
		return CategoryImport
	default:
		return CategorySystem
	}
}

// metadata renders attrs other than the category as a JSON object of strings.
func metadata(attrs []slog.Attr) string {
	fields := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a.Key == CategoryKey || a.Key == "" {
			continue
		}
		fields[a.Key] = a.Value.Resolve().String()
	}
	if len(fields) == 0 {
		return "{}"
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(data)
}
