// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugBase(t *testing.T) {
	tests := []struct {
		hint, title, want string
	}{
		{"compostable-cups", "Ignored", "compostable-cups"},
		{"Hello World", "Ignored", "hello-world"},
		{"", "Paper Straws: A Guide", "paper-straws-a-guide"},
		{"   ", "Café Crème", "cafe-creme"},
		{"!!!", "???", "post"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SlugBase(tt.hint, tt.title), "hint=%q title=%q", tt.hint, tt.title)
	}
}

func TestAllocateSlug_Suffixes(t *testing.T) {
	taken := map[string]bool{"widget": true, "widget-2": true}
	exists := func(_ context.Context, slug string) (int64, error) {
		if taken[slug] {
			return 1, nil
		}
		return 0, nil
	}

	got, err := allocateSlug(context.Background(), "widget", exists)

	require.NoError(t, err)
	assert.Equal(t, "widget-3", got)
}

func TestAllocateSlug_Exhausted(t *testing.T) {
	var tried []string
	exists := func(_ context.Context, slug string) (int64, error) {
		tried = append(tried, slug)
		return 1, nil
	}

	_, err := allocateSlug(context.Background(), "widget", exists)

	require.ErrorIs(t, err, ErrSlugExhausted)
	assert.Len(t, tried, MaxSlugAttempts)
	assert.Equal(t, "widget", tried[0])
	assert.Equal(t, "widget-2", tried[1])
	assert.Equal(t, "widget-100", tried[len(tried)-1])
}

func TestAllocateSlug_LookupError(t *testing.T) {
	exists := func(context.Context, string) (int64, error) {
		return 0, errors.New("database is locked")
	}

	_, err := allocateSlug(context.Background(), "widget", exists)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestAllocateSlug_EmptyBase(t *testing.T) {
	_, err := allocateSlug(context.Background(), "", func(context.Context, string) (int64, error) {
		return 0, nil
	})
	assert.Error(t, err)
}

func TestImport_RetriesAfterStaleSlugCheck(t *testing.T) {
	e := newEnv(t)
	im := e.proc.Importer()
	e.draft(t, im.Import(context.Background(), article("w1", "Widget", "widget", "One.")))

	honest := im.slugs.exists
	lies := 1
	im.slugs.exists = func(ctx context.Context, slug string) (int64, error) {
		if lies > 0 {
			lies--
			return 0, nil
		}
		return honest(ctx, slug)
	}

	post := e.draft(t, im.Import(context.Background(), article("w2", "Widget", "widget", "Two.")))

	assert.Equal(t, "widget-2", post.Slug)
}

func TestImport_InsertRetriesExhausted(t *testing.T) {
	e := newEnv(t)
	im := e.proc.Importer()
	e.draft(t, im.Import(context.Background(), article("w1", "Widget", "widget", "One.")))

	honest := im.slugs.exists
	calls := 0
	im.slugs.exists = func(context.Context, string) (int64, error) {
		calls++
		return 0, nil
	}

	got := im.Import(context.Background(), article("w2", "Widget", "widget", "Two."))

	failed, ok := got.(Failed)
	require.True(t, ok, "expected Failed, got %#v", got)
	assert.Equal(t, "w2", failed.ExternalID)
	assert.True(t, strings.HasPrefix(failed.Message, ErrInsertRetriesExhausted.Error()), failed.Message)
	assert.Equal(t, MaxInsertRetries+1, calls)
	assert.Equal(t, int64(1), e.draftCount(t))

	// the retry budget belongs to one call
	im.slugs.exists = honest
	post := e.draft(t, im.Import(context.Background(), article("w3", "Widget", "widget", "Three.")))
	assert.Equal(t, "widget-2", post.Slug)
}

func TestInsert_LostExternalIDRace(t *testing.T) {
	e := newEnv(t)
	im := e.proc.Importer()
	first := e.draft(t, im.Import(context.Background(), article("race", "Race", "race", "Body.")))

	// a second delivery that passed the guard before the first committed
	a := article("race", "Race", "race-again", "Body.")
	params := storeParamsFor(a)
	_, result := im.insert(context.Background(), a, "race-again", params)

	assert.Equal(t, Skipped{ExternalID: "race", Reason: ReasonDuplicate}, result)
	assert.Equal(t, int64(1), e.draftCount(t))
	assert.NotZero(t, first.ID)
}
