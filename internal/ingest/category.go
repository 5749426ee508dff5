// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/afida/ingest/internal/store"
	"github.com/afida/ingest/internal/util"
)

const fallbackCategorySlug = "category"

// CategoryCache maps category names to rows for the duration of a batch.
// A nil cache is valid and caches nothing.
type CategoryCache struct {
	mu     sync.Mutex
	byName map[string]store.ContentCategory
}

// NewCategoryCache returns an empty cache.
func NewCategoryCache() *CategoryCache {
	return &CategoryCache{byName: make(map[string]store.ContentCategory)}
}

func (c *CategoryCache) get(name string) (store.ContentCategory, bool) {
	if c == nil {
		return store.ContentCategory{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cat, ok := c.byName[name]
	return cat, ok
}

func (c *CategoryCache) put(cat store.ContentCategory) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byName[cat.Name] = cat
}

// CategoryResolver finds or creates content categories by name.
type CategoryResolver struct {
	queries *store.Queries
	now     func() time.Time
}

// NewCategoryResolver creates a resolver on db.
func NewCategoryResolver(db store.DBTX) *CategoryResolver {
	return &CategoryResolver{
		queries: store.New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Preload fills a cache with every existing category named in articles,
// using one query.
func (r *CategoryResolver) Preload(ctx context.Context, articles []InboundArticle) (*CategoryCache, error) {
	cache := NewCategoryCache()

	seen := make(map[string]struct{})
	var names []string
	for _, a := range articles {
		name := a.CategoryName()
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	cats, err := r.queries.ListCategoriesByNames(ctx, names)
	if err != nil {
		return cache, fmt.Errorf("preloading categories: %w", err)
	}
	for _, c := range cats {
		cache.put(c)
	}
	return cache, nil
}

// Resolve returns the category called name, creating it when missing.
// Creation is INSERT ... ON CONFLICT(name) DO NOTHING followed by a read,
// so concurrent batches converge on the same row.
func (r *CategoryResolver) Resolve(ctx context.Context, name string, cache *CategoryCache) (store.ContentCategory, error) {
	if cat, ok := cache.get(name); ok {
		return cat, nil
	}

	cat, err := r.queries.GetCategoryByName(ctx, name)
	if err == nil {
		cache.put(cat)
		return cat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.ContentCategory{}, fmt.Errorf("loading category %q: %w", name, err)
	}

	base := util.Slugify(name)
	if base == "" {
		base = fallbackCategorySlug
	}

	for attempt := 0; attempt <= MaxInsertRetries; attempt++ {
		slug, err := allocateSlug(ctx, base, r.queries.CategorySlugExists)
		if err != nil {
			return store.ContentCategory{}, err
		}

		now := r.now()
		err = r.queries.InsertCategoryIfMissing(ctx, store.InsertCategoryIfMissingParams{
			Name:      name,
			Slug:      slug,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err == nil {
			break
		}
		if !store.IsUniqueViolation(err) {
			return store.ContentCategory{}, fmt.Errorf("creating category %q: %w", name, err)
		}
		if attempt == MaxInsertRetries {
			return store.ContentCategory{}, fmt.Errorf("%w: category %q", ErrInsertRetriesExhausted, name)
		}
		// another category took the slug between check and insert
	}

	cat, err = r.queries.GetCategoryByName(ctx, name)
	if err != nil {
		return store.ContentCategory{}, fmt.Errorf("loading category %q: %w", name, err)
	}
	cache.put(cat)
	return cat, nil
}
