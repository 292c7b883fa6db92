package markdown

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// WordsPerMinute is the reading speed used by ReadingTime.
const WordsPerMinute = 200

var stripPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// PlainText renders the body of md (frontmatter excluded) and strips all
// markup, collapsing whitespace to single spaces.
func PlainText(md string) string {
	_, body, _ := ParseFrontmatter(md)
	text := html.UnescapeString(stripPolicy.Sanitize(Render(body)))
	return strings.Join(strings.Fields(text), " ")
}

// ReadingTime estimates minutes needed to read md. Never less than one.
func ReadingTime(md string) int {
	words := len(strings.Fields(PlainText(md)))
	minutes := (words + WordsPerMinute - 1) / WordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

// Excerpt returns at most max runes of plain text, cut at a word boundary
// and suffixed with an ellipsis when truncated.
func Excerpt(md string, max int) string {
	text := PlainText(md)
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:max])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "…"
}
