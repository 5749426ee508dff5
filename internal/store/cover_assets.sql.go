// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

const createCoverAsset = `INSERT INTO cover_assets (
	uuid, filename, content_type, size, width, height, file_path, source_url, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, uuid, filename, content_type, size, width, height, file_path, source_url, created_at`

type CreateCoverAssetParams struct {
	Uuid        string
	Filename    string
	ContentType string
	Size        int64
	Width       sql.NullInt64
	Height      sql.NullInt64
	FilePath    string
	SourceUrl   string
	CreatedAt   time.Time
}

func (q *Queries) CreateCoverAsset(ctx context.Context, arg CreateCoverAssetParams) (CoverAsset, error) {
	row := q.db.QueryRowContext(ctx, createCoverAsset,
		arg.Uuid,
		arg.Filename,
		arg.ContentType,
		arg.Size,
		arg.Width,
		arg.Height,
		arg.FilePath,
		arg.SourceUrl,
		arg.CreatedAt,
	)
	var i CoverAsset
	err := row.Scan(
		&i.ID,
		&i.Uuid,
		&i.Filename,
		&i.ContentType,
		&i.Size,
		&i.Width,
		&i.Height,
		&i.FilePath,
		&i.SourceUrl,
		&i.CreatedAt,
	)
	return i, err
}

const getCoverAsset = `SELECT id, uuid, filename, content_type, size, width, height, file_path, source_url, created_at
FROM cover_assets WHERE id = ?`

func (q *Queries) GetCoverAsset(ctx context.Context, id int64) (CoverAsset, error) {
	row := q.db.QueryRowContext(ctx, getCoverAsset, id)
	var i CoverAsset
	err := row.Scan(
		&i.ID,
		&i.Uuid,
		&i.Filename,
		&i.ContentType,
		&i.Size,
		&i.Width,
		&i.Height,
		&i.FilePath,
		&i.SourceUrl,
		&i.CreatedAt,
	)
	return i, err
}

const deleteCoverAsset = `DELETE FROM cover_assets WHERE id = ?`

func (q *Queries) DeleteCoverAsset(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteCoverAsset, id)
	return err
}
