// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cover downloads article cover images and attaches them to
// draft posts. It runs only inside background jobs; every download
// problem is logged and dropped, never retried.
package cover

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/afida/ingest/internal/jobs"
)

// Job names.
const (
	JobFetch      = "cover.fetch"
	JobFetchBatch = "cover.fetch_batch"
)

// FetchArgs are the arguments of a cover.fetch job and one item of a
// cover.fetch_batch job.
type FetchArgs struct {
	DraftID  int64  `json:"draft_id"`
	ImageURL string `json:"image_url"`
}

// FetchBatchArgs are the arguments of a cover.fetch_batch job.
type FetchBatchArgs struct {
	Items []FetchArgs `json:"items"`
}

// Registrar is satisfied by *jobs.Queue.
type Registrar interface {
	Register(name string, h jobs.Handler)
}

// Service ties the fetcher and attacher to the job handlers.
type Service struct {
	fetcher  *Fetcher
	attacher *Attacher
	logger   *slog.Logger
}

// NewService creates the cover job service.
func NewService(f *Fetcher, a *Attacher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{fetcher: f, attacher: a, logger: logger}
}

// Register binds the cover handlers on r.
func (s *Service) Register(r Registrar) {
	r.Register(JobFetch, s.HandleFetch)
	r.Register(JobFetchBatch, s.HandleFetchBatch)
}

// HandleFetch runs a cover.fetch job. A draft that no longer exists
// discards the job.
func (s *Service) HandleFetch(ctx context.Context, raw json.RawMessage) error {
	var args FetchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("decoding %s args: %w", JobFetch, err)
	}

	err := s.FetchAndAttach(ctx, args)
	if errors.Is(err, ErrDraftMissing) {
		return fmt.Errorf("%w: draft %d", jobs.ErrDiscard, args.DraftID)
	}
	return err
}

// HandleFetchBatch runs a cover.fetch_batch job. Items are independent:
// an error or panic in one is logged and the next item still runs.
func (s *Service) HandleFetchBatch(ctx context.Context, raw json.RawMessage) error {
	var args FetchBatchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("decoding %s args: %w", JobFetchBatch, err)
	}

	attached := 0
	for _, item := range args.Items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.fetchItem(ctx, item) {
			attached++
		}
	}

	s.logger.Info("cover batch finished", "items", len(args.Items), "attached", attached)
	return nil
}

func (s *Service) fetchItem(ctx context.Context, item FetchArgs) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cover item panicked", "draft_id", item.DraftID, "panic", r, "category", "cover")
			ok = false
		}
	}()

	err := s.FetchAndAttach(ctx, item)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrDraftMissing):
		s.logger.Info("draft gone, cover skipped", "draft_id", item.DraftID)
	default:
		s.logger.Error("cover attach failed", "draft_id", item.DraftID, "error", err, "category", "cover")
	}
	return false
}

// FetchAndAttach downloads the image and links it to the draft. Download
// problems are logged and return nil, leaving the draft without a cover;
// only a missing draft (ErrDraftMissing) or a storage error is returned.
func (s *Service) FetchAndAttach(ctx context.Context, args FetchArgs) error {
	exists, err := s.attacher.DraftExists(ctx, args.DraftID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrDraftMissing
	}

	dl, err := s.fetcher.Fetch(ctx, args.ImageURL)
	if err != nil {
		s.logger.Warn("cover download skipped",
			"draft_id", args.DraftID,
			"image_url", args.ImageURL,
			"error", err,
			"category", "cover")
		return nil
	}

	asset, err := s.attacher.Attach(ctx, args.DraftID, dl)
	if err != nil {
		return err
	}

	s.logger.Info("cover attached",
		"draft_id", args.DraftID,
		"asset_id", asset.ID,
		"filename", asset.Filename,
		"size", asset.Size)
	return nil
}
