// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"strings"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple title", input: "Hello World", expected: "hello-world"},
		{name: "with special characters", input: "Hello, World!", expected: "hello-world"},
		{name: "with numbers", input: "Page 123", expected: "page-123"},
		{name: "with accents", input: "Café résumé", expected: "cafe-resume"},
		{name: "with multiple spaces", input: "Hello   World", expected: "hello-world"},
		{name: "with hyphens", input: "Hello - World", expected: "hello-world"},
		{name: "with leading/trailing spaces", input: "  Hello World  ", expected: "hello-world"},
		{name: "underscores and dots", input: "eco_friendly.cups", expected: "eco-friendly-cups"},
		{name: "all special characters", input: "!@#$%^&*()", expected: ""},
		{name: "german umlauts", input: "Über München", expected: "uber-munchen"},
		{name: "cyrillic transliterated", input: "Привет мир", expected: "privet-mir"},
		{name: "already a slug", input: "widget", expected: "widget"},
		{name: "uppercase slug hint", input: "WIDGET", expected: "widget"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Slugify(tt.input)
			if result != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSlugify_Truncates(t *testing.T) {
	long := strings.Repeat("a", MaxSlugLength+50)
	got := Slugify(long)
	if len(got) != MaxSlugLength {
		t.Errorf("len = %d, want %d", len(got), MaxSlugLength)
	}
	if strings.HasSuffix(got, "-") || strings.Trim(got, "a") != "" {
		t.Errorf("truncated slug %q has unexpected characters", got)
	}
}
