// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"fmt"

	"github.com/afida/ingest/internal/store"
)

// Guard answers whether an external ID was already imported. It is only
// a fast path: two concurrent deliveries may both pass it, and the UNIQUE
// index on draft_posts.external_id decides which insert wins.
type Guard struct {
	queries *store.Queries
}

// NewGuard creates a guard reading from db.
func NewGuard(db store.DBTX) *Guard {
	return &Guard{queries: store.New(db)}
}

// AlreadyImported reports whether a draft with externalID exists.
func (g *Guard) AlreadyImported(ctx context.Context, externalID string) (bool, error) {
	count, err := g.queries.ExternalIDExists(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("checking external id %q: %w", externalID, err)
	}
	return count > 0, nil
}
