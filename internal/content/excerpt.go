// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package content

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExcerptMaxLength is the excerpt limit in runes, ellipsis included.
const ExcerptMaxLength = 160

const ellipsis = "..."

var (
	paragraphSplit = regexp.MustCompile(`\n[ \t]*\n`)
	whitespace     = regexp.MustCompile(`\s+`)
	markdown       = goldmark.New()
)

// Excerpt returns the plain text of the first paragraph of body that is
// not a heading, truncated to ExcerptMaxLength runes. ok is false when no
// such paragraph exists.
func Excerpt(body string) (excerpt string, ok bool) {
	body = strings.ReplaceAll(body, "\r\n", "\n")

	for _, chunk := range paragraphSplit.Split(body, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" || strings.HasPrefix(chunk, "#") {
			continue
		}
		plain := PlainText(chunk)
		if plain == "" {
			continue
		}
		return Truncate(plain, ExcerptMaxLength), true
	}
	return "", false
}

// PlainText renders markdown source as plain text: emphasis, code span
// and link syntax is dropped, link text is kept, images and raw HTML are
// skipped, and whitespace is collapsed.
func PlainText(src string) string {
	source := []byte(src)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Image, *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(source))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(whitespace.ReplaceAllString(buf.String(), " "))
}

// Truncate shortens s to at most limit runes, replacing the tail with an
// ellipsis when anything was cut.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	cut := limit - len(ellipsis)
	if cut < 0 {
		cut = 0
	}
	return string(runes[:cut]) + ellipsis
}
