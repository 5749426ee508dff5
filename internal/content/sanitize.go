// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package content turns untrusted article bodies into storable draft
// content: HTML sanitization and excerpt extraction.
package content

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// AllowedElements is the element whitelist applied to imported bodies.
// It has no <img>: images are removed with their attributes.
var AllowedElements = []string{
	"p", "br", "hr",
	"h1", "h2", "h3", "h4", "h5", "h6",
	"strong", "b", "em", "i", "u", "s", "del",
	"blockquote", "code", "pre",
	"ul", "ol", "li",
	"a",
	"table", "thead", "tbody", "tr", "th", "td",
	"span", "div", "sup", "sub",
}

// AllowedAttributes are kept on any whitelisted element; href only on <a>.
var AllowedAttributes = []string{"alt", "title", "class"}

// strippedSubtrees are removed together with everything inside them.
var strippedSubtrees = []string{
	"script", "style", "iframe", "object", "embed", "noscript",
	"frame", "frameset", "noembed", "noframes", "template", "svg", "math",
}

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// Policy returns the shared sanitization policy. bluemonday policies are
// safe for concurrent use once built.
func Policy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements(AllowedElements...)
		p.AllowAttrs(AllowedAttributes...).Globally()
		p.AllowAttrs("href").OnElements("a")
		p.AllowURLSchemes("http", "https", "mailto")
		p.AllowRelativeURLs(true)
		p.RequireParseableURLs(true)
		p.SkipElementsContent(strippedSubtrees...)
		policy = p
	})
	return policy
}

// Sanitize strips every element outside the whitelist from the raw HTML
// embedded in a markdown body. Dangerous containers lose their content as
// well. Markdown text, code and entities are copied through byte for byte;
// a literal "<" that could open a tag outside code is written as "&lt;".
func Sanitize(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}

	source := []byte(body)
	doc := markdown.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	b.Grow(len(source))
	pos := 0
	for _, e := range edits(source, collectSpans(doc)) {
		if e.start < pos {
			continue
		}
		b.Write(source[pos:e.start])
		b.WriteString(e.repl)
		pos = e.stop
	}
	b.Write(source[pos:])
	return b.String()
}

type spanKind int

const (
	spanHTMLBlock spanKind = iota
	spanRawHTML
	spanText
)

// span is a byte range of the source that may need rewriting. block is
// the end offset of the enclosing block and identifies it for inline spans.
type span struct {
	kind        spanKind
	start, stop int
	block       int
}

type edit struct {
	start, stop int
	repl        string
}

var rawTagName = regexp.MustCompile(`^<(/?)([A-Za-z][A-Za-z0-9-]*)`)

func collectSpans(doc ast.Node) []span {
	var spans []span
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.HTMLBlock:
			if start, stop, ok := htmlBlockRange(node); ok {
				spans = append(spans, span{kind: spanHTMLBlock, start: start, stop: stop, block: stop})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan, *ast.CodeBlock, *ast.FencedCodeBlock, *ast.AutoLink:
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			segs := node.Segments
			if segs == nil || segs.Len() == 0 {
				return ast.WalkSkipChildren, nil
			}
			start, stop := segs.At(0).Start, segs.At(segs.Len()-1).Stop
			spans = append(spans, span{kind: spanRawHTML, start: start, stop: stop, block: enclosingBlock(node)})
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			seg := node.Segment
			if seg.Stop > seg.Start {
				spans = append(spans, span{kind: spanText, start: seg.Start, stop: seg.Stop})
			}
		}
		return ast.WalkContinue, nil
	})
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans
}

func htmlBlockRange(node *ast.HTMLBlock) (start, stop int, ok bool) {
	lines := node.Lines()
	switch {
	case lines.Len() > 0:
		start, stop = lines.At(0).Start, lines.At(lines.Len()-1).Stop
		if node.HasClosure() {
			stop = node.ClosureLine.Stop
		}
	case node.HasClosure():
		start, stop = node.ClosureLine.Start, node.ClosureLine.Stop
	default:
		return 0, 0, false
	}
	return start, stop, stop > start
}

func enclosingBlock(n ast.Node) int {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() != ast.TypeBlock {
			continue
		}
		if lines := p.Lines(); lines != nil && lines.Len() > 0 {
			return lines.At(lines.Len() - 1).Stop
		}
		return -1
	}
	return -1
}

// edits turns spans into replacements. An inline opening tag is sanitized
// together with everything up to its closing tag in the same block, so
// stripped containers lose their content.
func edits(source []byte, spans []span) []edit {
	var out []edit
	for i := 0; i < len(spans); i++ {
		sp := spans[i]
		switch sp.kind {
		case spanHTMLBlock:
			out = append(out, edit{sp.start, sp.stop, Policy().Sanitize(string(source[sp.start:sp.stop]))})
		case spanRawHTML:
			stop := sp.stop
			if name, ok := openingTag(source[sp.start:sp.stop]); ok {
				if j := matchingClose(source, spans, i, name); j > 0 {
					stop = spans[j].stop
				}
			}
			out = append(out, edit{sp.start, stop, Policy().Sanitize(string(source[sp.start:stop]))})
		case spanText:
			if repl, changed := escapeTagOpeners(source, sp.start, sp.stop); changed {
				out = append(out, edit{sp.start, sp.stop, repl})
			}
		}
	}
	return out
}

func openingTag(tag []byte) (string, bool) {
	m := rawTagName.FindSubmatch(tag)
	if m == nil || len(m[1]) > 0 || strings.HasSuffix(strings.TrimSpace(string(tag)), "/>") {
		return "", false
	}
	return strings.ToLower(string(m[2])), true
}

func matchingClose(source []byte, spans []span, open int, name string) int {
	depth := 0
	for j := open + 1; j < len(spans); j++ {
		sp := spans[j]
		if sp.kind != spanRawHTML || sp.block != spans[open].block {
			continue
		}
		m := rawTagName.FindSubmatch(source[sp.start:sp.stop])
		if m == nil || strings.ToLower(string(m[2])) != name {
			continue
		}
		if len(m[1]) == 0 {
			depth++
			continue
		}
		if depth == 0 {
			return j
		}
		depth--
	}
	return -1
}

// escapeTagOpeners rewrites "<" as "&lt;" where an HTML parser would read
// it as the start of a tag. Backslash-escaped brackets are left alone.
func escapeTagOpeners(source []byte, start, stop int) (string, bool) {
	var b strings.Builder
	changed := false
	for i := start; i < stop; i++ {
		c := source[i]
		if c == '<' && i+1 < len(source) && isTagLead(source[i+1]) && (i == 0 || source[i-1] != '\\') {
			b.WriteString("&lt;")
			changed = true
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), changed
}

func isTagLead(c byte) bool {
	return c == '/' || c == '!' || c == '?' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
