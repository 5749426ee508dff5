// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"time"
)

type ContentCategory struct {
	ID        int64
	Name      string
	Slug      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CoverAsset struct {
	ID          int64
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

type DraftPost struct {
	ID              int64
	ExternalID      sql.NullString
	Title           string
	Slug            string
	Body            string
	Excerpt         sql.NullString
	MetaTitle       sql.NullString
	MetaDescription sql.NullString
	CategoryID      sql.NullInt64
	Published       bool
	PublishedAt     sql.NullTime
	CoverAssetID    sql.NullInt64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Event struct {
	ID        int64
	Level     string
	Category  string
	Message   string
	Metadata  string
	CreatedAt time.Time
}

type ImportRun struct {
	ID          int64
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

type Job struct {
	ID         int64
	Name       string
	Args       string
	Status     string
	Error      sql.NullString
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt sql.NullTime
}
