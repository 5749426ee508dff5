// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/afida/ingest/internal/store"
	"github.com/afida/ingest/internal/util"
)

// MaxSlugAttempts bounds the candidates tried for one slug: the base and
// base-2 through base-100.
const MaxSlugAttempts = 100

// fallbackSlug is used when neither the slug hint nor the title yields one.
const fallbackSlug = "post"

// ErrSlugExhausted means every candidate for a base slug is taken. A
// hundred real collisions point at a systemic problem, so it is reported
// as a failure rather than papered over.
var ErrSlugExhausted = errors.New("slug candidates exhausted")

// SlugExistsFunc reports how many rows already use slug.
type SlugExistsFunc func(ctx context.Context, slug string) (int64, error)

// SlugAllocator finds a free slug for a draft post. The check is
// best-effort; the UNIQUE index on draft_posts.slug is authoritative.
type SlugAllocator struct {
	exists SlugExistsFunc
}

// NewSlugAllocator creates an allocator for draft post slugs.
func NewSlugAllocator(db store.DBTX) *SlugAllocator {
	return &SlugAllocator{exists: store.New(db).DraftSlugExists}
}

// Allocate returns base if it is free, otherwise the first free base-N.
func (a *SlugAllocator) Allocate(ctx context.Context, base string) (string, error) {
	return allocateSlug(ctx, base, a.exists)
}

func allocateSlug(ctx context.Context, base string, exists SlugExistsFunc) (string, error) {
	if base == "" {
		return "", errors.New("empty slug base")
	}

	for attempt := 1; attempt <= MaxSlugAttempts; attempt++ {
		candidate := base
		if attempt > 1 {
			candidate = base + "-" + strconv.Itoa(attempt)
		}

		count, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking slug %q: %w", candidate, err)
		}
		if count == 0 {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %q after %d attempts", ErrSlugExhausted, base, MaxSlugAttempts)
}

// SlugBase normalizes the slug hint, falling back to the title and then
// to a fixed word, so the result is never empty.
func SlugBase(hint, title string) string {
	if s := util.Slugify(hint); s != "" {
		return s
	}
	if s := util.Slugify(title); s != "" {
		return s
	}
	return fallbackSlug
}
