// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ingest turns Outrank webhook batches into draft posts.
//
// A batch is processed synchronously and item by item. Each item is
// guarded against re-import, validated, sanitized and inserted with a
// unique slug; cover images are handed to the job queue and never awaited.
// Uniqueness of external IDs, slugs and category names is enforced by
// UNIQUE indexes, with a bounded retry when an insert loses a race.
package ingest

import (
	"strings"
)

// Payload is the webhook body sent by Outrank. Unknown fields are ignored.
type Payload struct {
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		Articles []InboundArticle `json:"articles"`
	} `json:"data"`
}

// Articles returns the batch items; a missing list is an empty batch.
func (p *Payload) Articles() []InboundArticle {
	if p == nil {
		return nil
	}
	return p.Data.Articles
}

// InboundArticle is one article of a webhook batch. It is never stored
// as-is.
type InboundArticle struct {
	ExternalID      string   `json:"id"`
	Title           string   `json:"title"`
	SlugHint        string   `json:"slug"`
	BodyMarkdown    string   `json:"content_markdown"`
	BodyHTML        string   `json:"content_html,omitempty"`
	MetaDescription string   `json:"meta_description,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	Tags            []string `json:"tags"`
}

// missingFields lists required fields that are blank, by their JSON names.
func (a InboundArticle) missingFields() []string {
	var missing []string
	if strings.TrimSpace(a.ExternalID) == "" {
		missing = append(missing, "id")
	}
	if strings.TrimSpace(a.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(a.BodyMarkdown) == "" {
		missing = append(missing, "content_markdown")
	}
	return missing
}

// CategoryName is the trimmed first tag, or "" when there is none.
func (a InboundArticle) CategoryName() string {
	if len(a.Tags) == 0 {
		return ""
	}
	return strings.TrimSpace(a.Tags[0])
}
