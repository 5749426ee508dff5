// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util provides general-purpose helpers: slug normalization,
// SSRF-safe dialing, safe path joins and sql.Null conversions.
package util

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// slugRegex matches non-alphanumeric characters (except hyphens)
	slugRegex = regexp.MustCompile(`[^a-z0-9-]+`)
	// multipleHyphens matches multiple consecutive hyphens
	multipleHyphens = regexp.MustCompile(`-{2,}`)
	// separators are turned into hyphens before filtering
	separators = strings.NewReplacer(" ", "-", "_", "-", ".", "-", "/", "-", "\t", "-", "\n", "-")
)

// MaxSlugLength bounds generated slugs so numeric suffixes still fit the URL.
const MaxSlugLength = 200

// Slugify converts a string to a URL-friendly slug.
// Accents are folded, non-Latin scripts are transliterated to ASCII,
// and everything outside [a-z0-9-] is dropped.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)

	result = unidecode.Unidecode(result)
	result = strings.ToLower(strings.TrimSpace(result))
	result = separators.Replace(result)
	result = slugRegex.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")

	if len(result) > MaxSlugLength {
		result = strings.TrimRight(result[:MaxSlugLength], "-")
	}

	return result
}
