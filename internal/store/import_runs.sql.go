// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const createImportRun = `INSERT INTO import_runs (
	event_type, delivered_at, status, processed, created, skipped, failed, remote_ip, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, event_type, delivered_at, status, processed, created, skipped, failed, remote_ip, created_at`

type CreateImportRunParams struct {
	EventType   string
	DeliveredAt string
	Status      string
	Processed   int64
	Created     int64
	Skipped     int64
	Failed      int64
	RemoteIp    string
	CreatedAt   time.Time
}

func (q *Queries) CreateImportRun(ctx context.Context, arg CreateImportRunParams) (ImportRun, error) {
	row := q.db.QueryRowContext(ctx, createImportRun,
		arg.EventType,
		arg.DeliveredAt,
		arg.Status,
		arg.Processed,
		arg.Created,
		arg.Skipped,
		arg.Failed,
		arg.RemoteIp,
		arg.CreatedAt,
	)
	var i ImportRun
	err := row.Scan(
		&i.ID,
		&i.EventType,
		&i.DeliveredAt,
		&i.Status,
		&i.Processed,
		&i.Created,
		&i.Skipped,
		&i.Failed,
		&i.RemoteIp,
		&i.CreatedAt,
	)
	return i, err
}

const deleteImportRunsBefore = `DELETE FROM import_runs WHERE created_at <= ?`

func (q *Queries) DeleteImportRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteImportRunsBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
