// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"encoding/json"
	"fmt"
)

// ReasonDuplicate is the skip reason for an already imported article.
const ReasonDuplicate = "duplicate"

// ImportResult is the outcome of importing one article: exactly one of
// Created, Skipped or Failed.
type ImportResult interface {
	// OutrankID is the external identifier the result refers to.
	OutrankID() string
	isImportResult()
}

// Created reports a new draft.
type Created struct {
	ExternalID string
	DraftID    int64
}

// Skipped reports an article that was intentionally not imported.
type Skipped struct {
	ExternalID string
	Reason     string
}

// Failed reports an article that could not be imported.
type Failed struct {
	ExternalID string
	Message    string
}

func (r Created) OutrankID() string { return r.ExternalID }
func (r Skipped) OutrankID() string { return r.ExternalID }
func (r Failed) OutrankID() string  { return r.ExternalID }

func (Created) isImportResult() {}
func (Skipped) isImportResult() {}
func (Failed) isImportResult()  {}

// Item statuses as they appear in the response.
const (
	ItemCreated = "created"
	ItemSkipped = "skipped"
	ItemError   = "error"
)

// Batch statuses.
const (
	BatchSuccess = "success"
	BatchPartial = "partial"
)

// BatchResult is the outcome of one webhook delivery. Results keep the
// input order and Processed always equals the number of input articles.
type BatchResult struct {
	Status    string
	Processed int
	Results   []ImportResult
}

// Counts tallies the results by kind.
func (b BatchResult) Counts() (created, skipped, failed int) {
	for _, r := range b.Results {
		switch r.(type) {
		case Created:
			created++
		case Skipped:
			skipped++
		case Failed:
			failed++
		}
	}
	return created, skipped, failed
}

func newBatchResult(results []ImportResult) BatchResult {
	status := BatchSuccess
	for _, r := range results {
		if _, ok := r.(Failed); ok {
			status = BatchPartial
			break
		}
	}
	if results == nil {
		results = []ImportResult{}
	}
	return BatchResult{Status: status, Processed: len(results), Results: results}
}

type resultJSON struct {
	OutrankID  string `json:"outrank_id"`
	Status     string `json:"status"`
	BlogPostID int64  `json:"blog_post_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message,omitempty"`
}

type batchJSON struct {
	Status    string       `json:"status"`
	Processed int          `json:"processed"`
	Results   []resultJSON `json:"results"`
}

func toResultJSON(r ImportResult) resultJSON {
	switch v := r.(type) {
	case Created:
		return resultJSON{OutrankID: v.ExternalID, Status: ItemCreated, BlogPostID: v.DraftID}
	case Skipped:
		return resultJSON{OutrankID: v.ExternalID, Status: ItemSkipped, Reason: v.Reason}
	case Failed:
		return resultJSON{OutrankID: v.ExternalID, Status: ItemError, Message: v.Message}
	default:
		panic(fmt.Sprintf("ingest: unknown import result %T", r))
	}
}

// MarshalJSON renders the response body sent back to Outrank.
func (b BatchResult) MarshalJSON() ([]byte, error) {
	out := batchJSON{
		Status:    b.Status,
		Processed: b.Processed,
		Results:   make([]resultJSON, 0, len(b.Results)),
	}
	for _, r := range b.Results {
		out.Results = append(out.Results, toResultJSON(r))
	}
	return json.Marshal(out)
}
