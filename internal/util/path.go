// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// maxFilenameLength bounds stored file names.
const maxFilenameLength = 120

var filenameReplacer = strings.NewReplacer(
	" ", "-",
	"'", "",
	"\"", "",
	"<", "",
	">", "",
	"&", "",
	"#", "",
	"?", "",
	"%", "",
	"\\", "",
	":", "",
	"\x00", "",
)

// SanitizeFilename extracts only the base filename, removing any directory
// components and characters that are unsafe in URLs or file systems.
// Returns an error if nothing usable remains.
func SanitizeFilename(filename string) (string, error) {
	safe := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if safe == "." || safe == ".." || safe == "" || safe == string(filepath.Separator) {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}

	safe = filenameReplacer.Replace(safe)
	safe = strings.TrimLeft(safe, ".")
	if safe == "" {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}

	if len(safe) > maxFilenameLength {
		ext := filepath.Ext(safe)
		if len(ext) > 10 {
			ext = ""
		}
		safe = safe[:maxFilenameLength-len(ext)] + ext
	}
	return safe, nil
}

// FilenameFromURLPath returns the sanitized last element of a URL path,
// or fallback when the path has none.
func FilenameFromURLPath(urlPath, fallback string) string {
	base := path.Base(urlPath)
	if base == "/" || base == "." || base == "" {
		return fallback
	}
	name, err := SanitizeFilename(base)
	if err != nil {
		return fallback
	}
	return name
}

// ValidatePathWithinBase ensures that targetPath resolves inside basePath.
func ValidatePathWithinBase(basePath, targetPath string) error {
	absBase, err := filepath.Abs(filepath.Clean(basePath))
	if err != nil {
		return fmt.Errorf("invalid base path: %w", err)
	}

	absTarget, err := filepath.Abs(filepath.Clean(targetPath))
	if err != nil {
		return fmt.Errorf("invalid target path: %w", err)
	}

	// trailing separator so /uploads-x does not match /uploads
	if absTarget != absBase && !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: path escapes base directory")
	}

	return nil
}

// SafeJoinPath joins path components and validates the result is within
// the base directory.
func SafeJoinPath(basePath string, components ...string) (string, error) {
	fullPath := filepath.Join(append([]string{basePath}, components...)...)

	if err := ValidatePathWithinBase(basePath, fullPath); err != nil {
		return "", err
	}

	return fullPath, nil
}
