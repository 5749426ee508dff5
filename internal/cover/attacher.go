// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cover

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/afida/ingest/internal/imaging"
	"github.com/afida/ingest/internal/metrics"
	"github.com/afida/ingest/internal/store"
	"github.com/afida/ingest/internal/util"
)

// Fallbacks for responses that do not describe themselves.
const (
	DefaultFilename    = "cover-image.jpg"
	DefaultContentType = "application/octet-stream"
)

// coversDir is the subdirectory of the upload dir holding cover files.
const coversDir = "covers"

// ErrDraftMissing means the draft was deleted before its cover arrived.
var ErrDraftMissing = errors.New("draft post no longer exists")

// Attacher stores downloaded covers and links them to drafts.
type Attacher struct {
	db        *sql.DB
	queries   *store.Queries
	uploadDir string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewAttacher creates an attacher writing under uploadDir.
func NewAttacher(db *sql.DB, uploadDir string, logger *slog.Logger, m *metrics.Metrics) *Attacher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Attacher{
		db:        db,
		queries:   store.New(db),
		uploadDir: uploadDir,
		logger:    logger,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// DraftExists reports whether the draft is still there.
func (a *Attacher) DraftExists(ctx context.Context, draftID int64) (bool, error) {
	_, err := a.queries.GetDraftPost(ctx, draftID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading draft %d: %w", draftID, err)
	}
	return true, nil
}

// Attach writes dl under covers/<uuid>/, records a cover asset and links it
// to the draft. Decodable images also get their dimensions recorded and a
// thumbnail written next to the original.
func (a *Attacher) Attach(ctx context.Context, draftID int64, dl *Download) (store.CoverAsset, error) {
	filename := DefaultFilename
	if dl.URL != nil {
		filename = util.FilenameFromURLPath(dl.URL.Path, DefaultFilename)
	}
	contentType := contentTypeOf(dl)

	fileUUID := uuid.New().String()
	dir, err := util.SafeJoinPath(a.uploadDir, coversDir, fileUUID)
	if err != nil {
		return store.CoverAsset{}, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return store.CoverAsset{}, fmt.Errorf("creating cover directory: %w", err)
	}

	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			a.logger.Warn("failed to remove cover files", "dir", dir, "error", rmErr)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, filename), dl.Data, 0o640); err != nil {
		cleanup()
		return store.CoverAsset{}, fmt.Errorf("writing cover: %w", err)
	}

	var width, height int
	if img, decodeErr := imaging.Decode(dl.Data); decodeErr == nil {
		width, height = img.Width, img.Height
		a.writeThumbnail(dir, filename, img)
	} else {
		a.logger.Debug("cover is not a decodable image", "draft_id", draftID, "error", decodeErr)
	}

	asset, err := a.link(ctx, draftID, store.CreateCoverAssetParams{
		Uuid:        fileUUID,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(dl.Data)),
		Width:       util.NullInt64FromPositive(width),
		Height:      util.NullInt64FromPositive(height),
		FilePath:    filepath.ToSlash(filepath.Join(coversDir, fileUUID, filename)),
		SourceUrl:   sourceURL(dl),
		CreatedAt:   a.now(),
	})
	if err != nil {
		cleanup()
		return store.CoverAsset{}, err
	}

	a.metrics.CoverStored(asset.Size)
	return asset, nil
}

// link inserts the asset and points the draft at it in one transaction,
// so a draft deleted meanwhile leaves no orphan asset row.
func (a *Attacher) link(ctx context.Context, draftID int64, params store.CreateCoverAssetParams) (store.CoverAsset, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return store.CoverAsset{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := a.queries.WithTx(tx)

	asset, err := q.CreateCoverAsset(ctx, params)
	if err != nil {
		return store.CoverAsset{}, fmt.Errorf("creating cover asset: %w", err)
	}

	updated, err := q.SetDraftPostCover(ctx, store.SetDraftPostCoverParams{
		CoverAssetID: util.NullInt64FromValue(asset.ID),
		UpdatedAt:    a.now(),
		ID:           draftID,
	})
	if err != nil {
		return store.CoverAsset{}, fmt.Errorf("linking cover: %w", err)
	}
	if updated == 0 {
		return store.CoverAsset{}, ErrDraftMissing
	}

	if err := tx.Commit(); err != nil {
		return store.CoverAsset{}, fmt.Errorf("committing cover: %w", err)
	}
	return asset, nil
}

// ThumbnailName is the file name of the thumbnail written for filename.
func ThumbnailName(filename, format string) string {
	return "thumb_" + strings.TrimSuffix(filename, filepath.Ext(filename)) + imaging.ThumbnailExt(format)
}

func (a *Attacher) writeThumbnail(dir, filename string, img *imaging.Image) {
	thumb, err := img.Thumbnail(imaging.ThumbnailWidth, imaging.ThumbnailHeight, imaging.ThumbnailQuality)
	if err != nil {
		a.logger.Warn("failed to render cover thumbnail", "error", err, "category", "cover")
		return
	}
	path := filepath.Join(dir, ThumbnailName(filename, img.Format))
	if err := os.WriteFile(path, thumb.Data, 0o640); err != nil {
		a.logger.Warn("failed to write cover thumbnail", "path", path, "error", err, "category", "cover")
	}
}

// contentTypeOf prefers the response header. Without one, sniffed image
// types are accepted and anything else is stored as octet-stream.
func contentTypeOf(dl *Download) string {
	if mt := mediaType(dl.ContentType); mt != DefaultContentType {
		return mt
	}
	if sniffed := imaging.DetectMimeType(dl.Data); imaging.IsImage(sniffed) {
		return sniffed
	}
	return DefaultContentType
}

// mediaType strips parameters from a Content-Type header value.
func mediaType(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultContentType
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil || mt == "" {
		return DefaultContentType
	}
	return mt
}

func sourceURL(dl *Download) string {
	if dl.URL == nil {
		return ""
	}
	return dl.URL.String()
}
