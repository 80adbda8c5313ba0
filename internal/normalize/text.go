// Package normalize cleans extracted text, classifies grades, and derives
// canonical references and narrator attributions.
package normalize

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxTextLength caps cleaned record text, in runes.
const MaxTextLength = 10000

var blockTags = map[string]bool{
	"address": true, "article": true, "blockquote": true, "br": true, "dd": true,
	"div": true, "dl": true, "dt": true, "footer": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "ol": true, "p": true, "section": true, "table": true, "td": true,
	"th": true, "tr": true, "ul": true,
}

var skippedTags = map[string]bool{
	"head": true, "noscript": true, "script": true, "style": true, "template": true,
}

// CleanText strips markup, collapses whitespace, trims, and caps the result at
// MaxTextLength runes.
func CleanText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := raw
	if strings.ContainsRune(raw, '<') || strings.ContainsRune(raw, '&') {
		text = RenderText(raw)
	}
	return Truncate(strings.Join(strings.Fields(text), " "), MaxTextLength)
}

// RenderText converts an HTML fragment or document into plain text. Block
// elements become line breaks; each output line is trimmed and blank lines
// are dropped.
func RenderText(markup string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return markup
	}
	var b strings.Builder
	renderSelection(doc.Selection, &b)
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func renderSelection(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		name := goquery.NodeName(child)
		switch {
		case name == "#text":
			b.WriteString(child.Text())
		case skippedTags[name], name == "#comment":
		case blockTags[name]:
			b.WriteByte('\n')
			renderSelection(child, b)
			b.WriteByte('\n')
		default:
			renderSelection(child, b)
		}
	})
}

// Truncate caps s at maxRunes runes.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes]))
}

// Reference derives the canonical "{Display} {n}" reference string.
func Reference(display string, number int) string {
	return fmt.Sprintf("%s %d", strings.TrimSpace(display), number)
}
