// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const insertCategoryIfMissing = `INSERT INTO content_categories (name, slug, created_at, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO NOTHING`

type InsertCategoryIfMissingParams struct {
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InsertCategoryIfMissing is a no-op when a category with the same name
// already exists. A slug taken by a different name still raises a unique
// constraint violation.
func (q *Queries) InsertCategoryIfMissing(ctx context.Context, arg InsertCategoryIfMissingParams) error {
	_, err := q.db.ExecContext(ctx, insertCategoryIfMissing, arg.Name, arg.Slug, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const getCategoryByName = `SELECT id, name, slug, created_at, updated_at FROM content_categories WHERE name = ?`

func (q *Queries) GetCategoryByName(ctx context.Context, name string) (ContentCategory, error) {
	row := q.db.QueryRowContext(ctx, getCategoryByName, name)
	var i ContentCategory
	err := row.Scan(&i.ID, &i.Name, &i.Slug, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const categorySlugExists = `SELECT COUNT(*) FROM content_categories WHERE slug = ?`

func (q *Queries) CategorySlugExists(ctx context.Context, slug string) (int64, error) {
	row := q.db.QueryRowContext(ctx, categorySlugExists, slug)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countCategories = `SELECT COUNT(*) FROM content_categories`

func (q *Queries) CountCategories(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countCategories)
	var count int64
	err := row.Scan(&count)
	return count, err
}

// ListCategoriesByNames loads every category whose name is in names with a
// single IN query.
func (q *Queries) ListCategoriesByNames(ctx context.Context, names []string) ([]ContentCategory, error) {
	if len(names) == 0 {
		return nil, nil
	}

	query, args, err := sq.Select("id", "name", "slug", "created_at", "updated_at").
		From("content_categories").
		Where(sq.Eq{"name": names}).
		OrderBy("id").
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building category query: %w", err)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []ContentCategory
	for rows.Next() {
		var i ContentCategory
		if err := rows.Scan(&i.ID, &i.Name, &i.Slug, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
