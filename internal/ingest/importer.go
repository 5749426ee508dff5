// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/afida/ingest/internal/content"
	"github.com/afida/ingest/internal/cover"
	"github.com/afida/ingest/internal/jobs"
	"github.com/afida/ingest/internal/store"
	"github.com/afida/ingest/internal/util"
)

// MaxInsertRetries bounds re-allocating the slug after the insert hit a
// UNIQUE violation. The counter is local to one Import call.
const MaxInsertRetries = 5

// ErrInsertRetriesExhausted means every insert attempt collided.
var ErrInsertRetriesExhausted = errors.New("insert retries exhausted")

// CoverSink receives cover downloads for freshly created drafts.
// Implementations must not block on the download itself.
type CoverSink interface {
	AddCover(ctx context.Context, req cover.FetchArgs)
}

// Importer turns one InboundArticle into a draft post.
type Importer struct {
	queries    *store.Queries
	guard      *Guard
	slugs      *SlugAllocator
	categories *CategoryResolver
	enqueuer   jobs.Enqueuer
	logger     *slog.Logger
	now        func() time.Time
}

// NewImporter creates an importer. enq may be nil, in which case covers
// of single imports are dropped with a log line.
func NewImporter(db store.DBTX, enq jobs.Enqueuer, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		queries:    store.New(db),
		guard:      NewGuard(db),
		slugs:      NewSlugAllocator(db),
		categories: NewCategoryResolver(db),
		enqueuer:   enq,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Import imports a single article. Its cover, if any, is enqueued as its
// own cover.fetch job.
func (im *Importer) Import(ctx context.Context, a InboundArticle) ImportResult {
	return im.importArticle(ctx, a, nil, directSink{im})
}

func (im *Importer) importArticle(ctx context.Context, a InboundArticle, cache *CategoryCache, sink CoverSink) ImportResult {
	externalID := strings.TrimSpace(a.ExternalID)

	if externalID != "" {
		imported, err := im.guard.AlreadyImported(ctx, externalID)
		if err != nil {
			return im.fail(a, err)
		}
		if imported {
			im.logger.Info("skipping duplicate article", "outrank_id", externalID)
			return Skipped{ExternalID: a.ExternalID, Reason: ReasonDuplicate}
		}
	}

	if missing := a.missingFields(); len(missing) > 0 {
		return Failed{
			ExternalID: a.ExternalID,
			Message:    "missing required fields: " + strings.Join(missing, ", "),
		}
	}

	params := store.CreateDraftPostParams{
		ExternalID:      util.NullStringFromValue(externalID),
		Title:           strings.TrimSpace(a.Title),
		Body:            content.Sanitize(a.BodyMarkdown),
		MetaTitle:       util.NullStringFromValue(a.Title),
		MetaDescription: util.NullStringFromValue(a.MetaDescription),
	}
	if excerpt, ok := content.Excerpt(a.BodyMarkdown); ok {
		params.Excerpt = util.NullStringFromValue(excerpt)
	}

	if name := a.CategoryName(); name != "" {
		cat, err := im.categories.Resolve(ctx, name, cache)
		if err != nil {
			return im.fail(a, err)
		}
		params.CategoryID = util.NullInt64FromValue(cat.ID)
	}

	post, result := im.insert(ctx, a, SlugBase(a.SlugHint, a.Title), params)
	if result != nil {
		return result
	}

	im.logger.Info("created draft post from article",
		"outrank_id", externalID,
		"draft_id", post.ID,
		"slug", post.Slug)

	if imageURL := strings.TrimSpace(a.ImageURL); imageURL != "" && sink != nil {
		sink.AddCover(ctx, cover.FetchArgs{DraftID: post.ID, ImageURL: imageURL})
	}

	return Created{ExternalID: a.ExternalID, DraftID: post.ID}
}

// insert allocates a slug and inserts the draft, retrying with a fresh
// slug when the insert loses a uniqueness race. A non-nil ImportResult
// ends the import.
func (im *Importer) insert(ctx context.Context, a InboundArticle, base string, params store.CreateDraftPostParams) (store.DraftPost, ImportResult) {
	for attempt := 0; ; attempt++ {
		slug, err := im.slugs.Allocate(ctx, base)
		if err != nil {
			return store.DraftPost{}, im.fail(a, err)
		}

		now := im.now()
		params.Slug = slug
		params.CreatedAt = now
		params.UpdatedAt = now

		post, err := im.queries.CreateDraftPost(ctx, params)
		if err == nil {
			return post, nil
		}
		if !store.IsUniqueViolation(err) {
			return store.DraftPost{}, im.fail(a, fmt.Errorf("creating draft post: %w", err))
		}

		if im.lostExternalIDRace(ctx, err, params.ExternalID.String) {
			im.logger.Info("concurrent import won for article", "outrank_id", params.ExternalID.String)
			return store.DraftPost{}, Skipped{ExternalID: a.ExternalID, Reason: ReasonDuplicate}
		}

		if attempt >= MaxInsertRetries {
			return store.DraftPost{}, im.fail(a, fmt.Errorf("%w: slug %q after %d retries", ErrInsertRetriesExhausted, base, MaxInsertRetries))
		}

		im.logger.Info("slug collision on insert, retrying",
			"outrank_id", params.ExternalID.String,
			"slug", slug,
			"attempt", attempt+1)
	}
}

// lostExternalIDRace reports whether a unique violation means another
// delivery already created this article.
func (im *Importer) lostExternalIDRace(ctx context.Context, err error, externalID string) bool {
	if externalID == "" {
		return false
	}
	if store.IsUniqueViolationOn(err, "draft_posts.external_id") {
		return true
	}
	imported, checkErr := im.guard.AlreadyImported(ctx, externalID)
	return checkErr == nil && imported
}

func (im *Importer) fail(a InboundArticle, err error) ImportResult {
	im.logger.Error("failed to import article", "outrank_id", a.ExternalID, "error", err, "category", "import")
	return Failed{ExternalID: a.ExternalID, Message: err.Error()}
}

// directSink enqueues one cover.fetch job per draft.
type directSink struct {
	im *Importer
}

func (s directSink) AddCover(ctx context.Context, req cover.FetchArgs) {
	if s.im.enqueuer == nil {
		s.im.logger.Debug("no job queue configured, cover not fetched", "draft_id", req.DraftID)
		return
	}
	if _, err := s.im.enqueuer.Enqueue(ctx, cover.JobFetch, req); err != nil {
		s.im.logger.Warn("failed to enqueue cover fetch", "draft_id", req.DraftID, "error", err, "category", "cover")
	}
}
