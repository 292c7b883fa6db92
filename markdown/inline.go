package markdown

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	reBold             = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBoldUnderscore   = regexp.MustCompile(`__(.+?)__`)
	reItalic           = regexp.MustCompile(`\*([^*]+)\*`)
	reItalicUnderscore = regexp.MustCompile(`(^|[\s(])_([^_\s][^_]*)_($|[\s.,;:!?)])`)
	reLink             = regexp.MustCompile(`\[(.*?)\]\((.*?)\)(\^)?`)
	reImg              = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)\)`)
	// Math and code spans are cut out before emphasis runs. The leftmost span
	// wins, and at equal positions $$ beats $.
	reProtected = regexp.MustCompile(`\$\$[^$]+\$\$|\$[^$]+\$|` + "`[^`]+`")
)

// FormatInline applies inline formatting (math, code, images, links, bold,
// italic) to a single line of text. imageCount is shared across a document
// so only the first image is fetched eagerly.
func FormatInline(s string, imageCount *int) string {
	escaped := html.EscapeString(s)

	var protected []string
	escaped = reProtected.ReplaceAllStringFunc(escaped, func(m string) string {
		placeholder := "\x00P" + strconv.Itoa(len(protected)) + "\x00"
		protected = append(protected, protectedSpan(m))
		return placeholder
	})

	escaped = reImg.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reImg.FindStringSubmatch(m)
		src := SafeURL(match[2])
		if src == "" {
			return match[1]
		}
		return figure(match[1], src, imageCount)
	})
	escaped = reLink.ReplaceAllStringFunc(escaped, func(m string) string {
		match := reLink.FindStringSubmatch(m)
		href := SafeURL(match[2])
		if href == "" {
			return match[1]
		}
		attrs := ""
		if match[3] == "^" {
			attrs = ` target="_blank" rel="noopener noreferrer"`
		}
		return `<a href="` + href + `"` + attrs + `>` + match[1] + `</a>`
	})

	// Emphasis only outside tags so URLs in href/src are not corrupted.
	escaped = ApplyOutsideTags(escaped, func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reBoldUnderscore.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reItalic.ReplaceAllString(seg, "<em>$1</em>")
		seg = reItalicUnderscore.ReplaceAllString(seg, "$1<em>$2</em>$3")
		return seg
	})

	for i, span := range protected {
		escaped = strings.Replace(escaped, "\x00P"+strconv.Itoa(i)+"\x00", span, 1)
	}
	return escaped
}

func protectedSpan(m string) string {
	switch {
	case strings.HasPrefix(m, "$$"):
		return mathInline(m[2 : len(m)-2])
	case strings.HasPrefix(m, "$"):
		return mathInline(m[1 : len(m)-1])
	default:
		return "<code>" + m[1:len(m)-1] + "</code>"
	}
}

// mathInline wraps already-escaped TeX in KaTeX auto-render delimiters.
func mathInline(tex string) string {
	return `<span class="math math-inline">\(` + tex + `\)</span>`
}

func mathDisplay(tex string) string {
	return `<div class="math math-display">\[` + html.EscapeString(tex) + `\]</div>`
}

func figure(alt, src string, imageCount *int) string {
	*imageCount++
	loadAttr := `loading="lazy"`
	if *imageCount == 1 {
		loadAttr = `fetchpriority="high"`
	}
	out := `<figure class="md-figure"><img ` + loadAttr + ` src="` + src + `" alt="` + alt + `" decoding="async"/>`
	if alt != "" {
		out += "<figcaption>" + alt + "</figcaption>"
	}
	return out + "</figure>"
}

// ApplyOutsideTags applies fn only to text segments outside HTML tags,
// so that formatting regexes never touch URLs inside href attributes, etc.
func ApplyOutsideTags(s string, fn func(string) string) string {
	var buf strings.Builder
	for len(s) > 0 {
		lt := strings.Index(s, "<")
		if lt < 0 {
			buf.WriteString(fn(s))
			break
		}
		if lt > 0 {
			buf.WriteString(fn(s[:lt]))
		}
		gt := strings.Index(s[lt:], ">")
		if gt < 0 {
			buf.WriteString(s[lt:])
			break
		}
		buf.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return buf.String()
}

// SafeURL validates and sanitizes a URL for use in HTML attributes.
func SafeURL(raw string) string {
	val := strings.TrimSpace(html.UnescapeString(raw))
	if val == "" {
		return ""
	}
	if strings.HasPrefix(val, "/") || strings.HasPrefix(val, "#") {
		return html.EscapeString(val)
	}
	parsed, err := url.Parse(val)
	if err != nil || parsed.Scheme == "" {
		return ""
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https", "mailto", "tel":
		return html.EscapeString(val)
	default:
		return ""
	}
}
