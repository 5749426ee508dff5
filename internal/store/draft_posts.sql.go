// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

const draftPostColumns = `id, external_id, title, slug, body, excerpt, meta_title, meta_description,
	category_id, published, published_at, cover_asset_id, created_at, updated_at`

func scanDraftPost(row interface{ Scan(...any) error }) (DraftPost, error) {
	var i DraftPost
	err := row.Scan(
		&i.ID,
		&i.ExternalID,
		&i.Title,
		&i.Slug,
		&i.Body,
		&i.Excerpt,
		&i.MetaTitle,
		&i.MetaDescription,
		&i.CategoryID,
		&i.Published,
		&i.PublishedAt,
		&i.CoverAssetID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const externalIDExists = `SELECT COUNT(*) FROM draft_posts WHERE external_id = ?`

func (q *Queries) ExternalIDExists(ctx context.Context, externalID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, externalIDExists, externalID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const draftSlugExists = `SELECT COUNT(*) FROM draft_posts WHERE slug = ?`

func (q *Queries) DraftSlugExists(ctx context.Context, slug string) (int64, error) {
	row := q.db.QueryRowContext(ctx, draftSlugExists, slug)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createDraftPost = `INSERT INTO draft_posts (
	external_id, title, slug, body, excerpt, meta_title, meta_description,
	category_id, published, published_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, ?, ?)
RETURNING ` + draftPostColumns

type CreateDraftPostParams struct {
	ExternalID      sql.NullString
	Title           string
	Slug            string
	Body            string
	Excerpt         sql.NullString
	MetaTitle       sql.NullString
	MetaDescription sql.NullString
	CategoryID      sql.NullInt64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateDraftPost inserts an unpublished post. published and published_at are
// fixed in the statement so no caller can create a live post.
func (q *Queries) CreateDraftPost(ctx context.Context, arg CreateDraftPostParams) (DraftPost, error) {
	row := q.db.QueryRowContext(ctx, createDraftPost,
		arg.ExternalID,
		arg.Title,
		arg.Slug,
		arg.Body,
		arg.Excerpt,
		arg.MetaTitle,
		arg.MetaDescription,
		arg.CategoryID,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return scanDraftPost(row)
}

const getDraftPost = `SELECT ` + draftPostColumns + ` FROM draft_posts WHERE id = ?`

func (q *Queries) GetDraftPost(ctx context.Context, id int64) (DraftPost, error) {
	return scanDraftPost(q.db.QueryRowContext(ctx, getDraftPost, id))
}

const getDraftPostByExternalID = `SELECT ` + draftPostColumns + ` FROM draft_posts WHERE external_id = ?`

func (q *Queries) GetDraftPostByExternalID(ctx context.Context, externalID string) (DraftPost, error) {
	return scanDraftPost(q.db.QueryRowContext(ctx, getDraftPostByExternalID, externalID))
}

const setDraftPostCover = `UPDATE draft_posts SET cover_asset_id = ?, updated_at = ? WHERE id = ?`

type SetDraftPostCoverParams struct {
	CoverAssetID sql.NullInt64
	UpdatedAt    time.Time
	ID           int64
}

// SetDraftPostCover returns the number of rows updated; zero means the post
// no longer exists.
func (q *Queries) SetDraftPostCover(ctx context.Context, arg SetDraftPostCoverParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, setDraftPostCover, arg.CoverAssetID, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countDraftPosts = `SELECT COUNT(*) FROM draft_posts`

func (q *Queries) CountDraftPosts(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countDraftPosts)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteDraftPost = `DELETE FROM draft_posts WHERE id = ?`

// DeleteDraftPost removes a post together with its cover link.
func (q *Queries) DeleteDraftPost(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, deleteDraftPost, id)
	return err
}
