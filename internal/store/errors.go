// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const uniqueFailedPrefix = "UNIQUE constraint failed: "

// IsUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint. The modernc driver exposes extended result codes; other SQLite
// drivers (mattn in tests) are recognised by the SQLite message text.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	return strings.Contains(err.Error(), uniqueFailedPrefix)
}

// UniqueViolationColumns returns the "table.column" names SQLite reported for
// a unique violation, e.g. ["draft_posts.external_id"].
func UniqueViolationColumns(err error) []string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	idx := strings.Index(msg, uniqueFailedPrefix)
	if idx < 0 {
		return nil
	}
	rest := msg[idx+len(uniqueFailedPrefix):]
	if end := strings.IndexAny(rest, "()\n"); end >= 0 {
		rest = rest[:end]
	}

	var cols []string
	for _, c := range strings.Split(rest, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// IsUniqueViolationOn reports whether err is a unique violation on table.column.
func IsUniqueViolationOn(err error, column string) bool {
	if !IsUniqueViolation(err) {
		return false
	}
	for _, c := range UniqueViolationColumns(err) {
		if c == column {
			return true
		}
	}
	return false
}
