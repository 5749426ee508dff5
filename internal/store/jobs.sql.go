// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"time"
)

const jobColumns = `id, name, args, status, error, created_at, updated_at, finished_at`

func scanJob(row interface{ Scan(...any) error }) (Job, error) {
	var i Job
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Args,
		&i.Status,
		&i.Error,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.FinishedAt,
	)
	return i, err
}

const createJob = `INSERT INTO jobs (name, args, status, created_at, updated_at)
VALUES (?, ?, 'pending', ?, ?)
RETURNING ` + jobColumns

type CreateJobParams struct {
	Name      string
	Args      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (q *Queries) CreateJob(ctx context.Context, arg CreateJobParams) (Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, createJob, arg.Name, arg.Args, arg.CreatedAt, arg.UpdatedAt))
}

const getJob = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

func (q *Queries) GetJob(ctx context.Context, id int64) (Job, error) {
	return scanJob(q.db.QueryRowContext(ctx, getJob, id))
}

const claimJob = `UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`

type ClaimJobParams struct {
	UpdatedAt time.Time
	ID        int64
}

// ClaimJob moves a pending job to running. It returns the number of rows
// changed, so zero means another worker got there first.
func (q *Queries) ClaimJob(ctx context.Context, arg ClaimJobParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimJob, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const finishJob = `UPDATE jobs SET status = ?, error = ?, finished_at = ?, updated_at = ? WHERE id = ?`

type FinishJobParams struct {
	Status     string
	Error      sql.NullString
	FinishedAt sql.NullTime
	UpdatedAt  time.Time
	ID         int64
}

func (q *Queries) FinishJob(ctx context.Context, arg FinishJobParams) error {
	_, err := q.db.ExecContext(ctx, finishJob, arg.Status, arg.Error, arg.FinishedAt, arg.UpdatedAt, arg.ID)
	return err
}

const listPendingJobs = `SELECT ` + jobColumns + `
FROM jobs WHERE status = 'pending' AND created_at <= ?
ORDER BY id LIMIT ?`

type ListPendingJobsParams struct {
	CreatedBefore time.Time
	Limit         int64
}

func (q *Queries) ListPendingJobs(ctx context.Context, arg ListPendingJobsParams) ([]Job, error) {
	rows, err := q.db.QueryContext(ctx, listPendingJobs, arg.CreatedBefore, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Job
	for rows.Next() {
		i, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const failStaleJobs = `UPDATE jobs SET status = 'failed', error = ?, finished_at = ?, updated_at = ?
WHERE status = 'running' AND updated_at <= ?`

type FailStaleJobsParams struct {
	Error         sql.NullString
	Now           time.Time
	UpdatedBefore time.Time
}

func (q *Queries) FailStaleJobs(ctx context.Context, arg FailStaleJobsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, failStaleJobs, arg.Error, arg.Now, arg.Now, arg.UpdatedBefore)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteFinishedJobs = `DELETE FROM jobs WHERE status IN ('done', 'failed', 'discarded') AND finished_at <= ?`

func (q *Queries) DeleteFinishedJobs(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteFinishedJobs, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
