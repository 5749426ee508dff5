// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"database/sql"
	"strings"
)

// NullInt64FromValue creates a valid sql.NullInt64 from an int64 value.
func NullInt64FromValue(val int64) sql.NullInt64 {
	return sql.NullInt64{Int64: val, Valid: true}
}

// NullInt64FromPositive returns a valid NullInt64 only for values > 0.
func NullInt64FromPositive(val int) sql.NullInt64 {
	if val <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(val), Valid: true}
}

// NullStringFromValue creates a sql.NullString from a string value.
// Blank strings (after trimming) are stored as NULL.
func NullStringFromValue(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
