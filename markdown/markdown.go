// Package markdown renders the restricted markdown dialect used for posts and
// comments: frontmatter, headings, lists, quotes, tables, fenced code with
// highlighting, and TeX math passed through for client-side typesetting.
package markdown

import (
	"bytes"
	"context"
	"html"
	"io"
	"regexp"
	"strings"

	"github.com/a-h/templ"
)

var (
	reOrderedList = regexp.MustCompile(`^(\d+)\.\s`)
	reListItem    = regexp.MustCompile(`^(\s*)-\s+(.*)`)
	reRule        = regexp.MustCompile(`^(\*{3,}|-{3,}|_{3,})$`)
	reImageLine   = regexp.MustCompile(`^!\[[^\]]*\]\([^)\s]+\)$`)
)

// Markdown returns a templ.Component that renders md as HTML.
func Markdown(content string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		RenderMarkdown(&buf, content)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// Render returns the HTML for md.
func Render(md string) string {
	var buf bytes.Buffer
	RenderMarkdown(&buf, md)
	return buf.String()
}

// RenderMarkdown writes the HTML representation of md to buf.
func RenderMarkdown(buf *bytes.Buffer, md string) {
	if fm, body, ok := ParseFrontmatter(md); ok {
		renderFrontmatter(buf, fm)
		md = body
	}

	imageCount := 0
	lines := strings.Split(md, "\n")
	listDepth := 0
	inOrderedList := false
	inPara := false
	inQuote := false
	inCode := false
	inMath := false
	codeLang := ""
	var block []string
	var tableRows []string

	flushCode := func() {
		if inCode {
			writeCodeBlock(buf, codeLang, strings.Join(block, "\n"))
			block = nil
			inCode = false
		}
	}
	flushMath := func() {
		if inMath {
			if tex := strings.TrimSpace(strings.Join(block, "\n")); tex != "" {
				buf.WriteString(mathDisplay(tex))
			}
			block = nil
			inMath = false
		}
	}
	flushPara := func() {
		if inPara {
			buf.WriteString("</p>")
			inPara = false
		}
	}
	flushQuote := func() {
		if inQuote {
			buf.WriteString("</blockquote>")
			inQuote = false
		}
	}
	flushList := func() {
		for listDepth > 0 {
			buf.WriteString("</li></ul>")
			listDepth--
		}
	}
	flushOrderedList := func() {
		if inOrderedList {
			buf.WriteString("</ol>")
			inOrderedList = false
		}
	}
	flushTable := func() {
		if len(tableRows) == 0 {
			return
		}
		if len(tableRows) < 2 {
			buf.WriteString("<p>")
			buf.WriteString(FormatInline(strings.TrimSpace(tableRows[0]), &imageCount))
			buf.WriteString("</p>")
		} else {
			writeTable(buf, tableRows, &imageCount)
		}
		tableRows = nil
	}
	flushBlocks := func() {
		flushPara()
		flushList()
		flushOrderedList()
		flushQuote()
		flushTable()
	}

	for i, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") && !inMath {
			if inCode {
				flushCode()
			} else {
				flushBlocks()
				codeLang = strings.TrimSpace(trimmed[3:])
				inCode = true
			}
			continue
		}
		if inCode {
			block = append(block, line)
			continue
		}
		if trimmed == "$$" {
			if inMath {
				flushMath()
				continue
			}
			if closesMath(lines[i+1:]) {
				flushBlocks()
				inMath = true
				continue
			}
		}
		if inMath {
			block = append(block, line)
			continue
		}

		if strings.HasPrefix(trimmed, "|") {
			if len(tableRows) == 0 {
				flushPara()
				flushList()
				flushOrderedList()
				flushQuote()
			}
			tableRows = append(tableRows, trimmed)
			continue
		}
		flushTable()

		if trimmed == "" {
			flushBlocks()
			continue
		}

		switch {
		case len(trimmed) > 4 && strings.HasPrefix(trimmed, "$$") && strings.HasSuffix(trimmed, "$$"):
			flushBlocks()
			if tex := strings.TrimSpace(trimmed[2 : len(trimmed)-2]); tex != "" {
				buf.WriteString(mathDisplay(tex))
			}
		case reRule.MatchString(trimmed):
			flushBlocks()
			buf.WriteString("<hr/>")
		case strings.HasPrefix(line, "# "):
			flushBlocks()
			writeHeading(buf, "h1", line[2:], &imageCount)
		case strings.HasPrefix(line, "## "):
			flushBlocks()
			writeHeading(buf, "h2", line[3:], &imageCount)
		case strings.HasPrefix(line, "### "):
			flushBlocks()
			writeHeading(buf, "h3", line[4:], &imageCount)
		case strings.HasPrefix(line, "> "):
			if !inQuote {
				flushPara()
				flushList()
				flushOrderedList()
				buf.WriteString("<blockquote>")
				inQuote = true
			} else {
				buf.WriteString(" ")
			}
			buf.WriteString(FormatInline(strings.TrimSpace(line[2:]), &imageCount))
		case reListItem.MatchString(line):
			match := reListItem.FindStringSubmatch(line)
			if listDepth == 0 {
				flushPara()
				flushOrderedList()
				flushQuote()
			}
			target := len(match[1])/2 + 1
			if target > listDepth+1 {
				target = listDepth + 1
			}
			if target > listDepth {
				buf.WriteString("<ul>")
				listDepth = target
			} else {
				for listDepth > target {
					buf.WriteString("</li></ul>")
					listDepth--
				}
				buf.WriteString("</li>")
			}
			buf.WriteString("<li>")
			buf.WriteString(FormatInline(strings.TrimSpace(match[2]), &imageCount))
		case reOrderedList.MatchString(line):
			if !inOrderedList {
				flushPara()
				flushList()
				flushQuote()
				buf.WriteString("<ol>")
				inOrderedList = true
			}
			content := reOrderedList.ReplaceAllString(line, "")
			buf.WriteString("<li>")
			buf.WriteString(FormatInline(strings.TrimSpace(content), &imageCount))
			buf.WriteString("</li>")
		case reImageLine.MatchString(trimmed):
			flushBlocks()
			buf.WriteString(FormatInline(trimmed, &imageCount))
		default:
			if !inPara {
				flushList()
				flushOrderedList()
				flushQuote()
				buf.WriteString("<p>")
				inPara = true
			} else {
				buf.WriteString(" ")
			}
			buf.WriteString(FormatInline(trimmed, &imageCount))
		}
	}
	flushBlocks()
	flushCode()
	flushMath()
}

// closesMath reports whether a later line is a lone $$. A $$ line without
// one stays ordinary text.
func closesMath(rest []string) bool {
	for _, l := range rest {
		if strings.TrimSpace(l) == "$$" {
			return true
		}
	}
	return false
}

func writeHeading(buf *bytes.Buffer, tag, text string, imageCount *int) {
	buf.WriteString("<" + tag + ">")
	buf.WriteString(FormatInline(strings.TrimSpace(text), imageCount))
	buf.WriteString("</" + tag + ">")
}

func writeCodeBlock(buf *bytes.Buffer, lang, code string) {
	label := "TEXT"
	if lang != "" {
		label = html.EscapeString(lang)
	}
	buf.WriteString(`<div class="code-block"><div class="code-header"><span class="code-lang">`)
	buf.WriteString(label)
	buf.WriteString(`</span></div><pre><code`)
	if lang != "" {
		buf.WriteString(` class="language-` + html.EscapeString(lang) + `"`)
	}
	buf.WriteString(">")
	buf.WriteString(Highlight(lang, code))
	buf.WriteString("</code></pre></div>")
}

func writeTable(buf *bytes.Buffer, rows []string, imageCount *int) {
	body := rows[1:]
	if isTableSeparator(body[0]) {
		body = body[1:]
	}
	buf.WriteString("<table><thead><tr>")
	for _, cell := range parseTableCells(rows[0]) {
		buf.WriteString("<th>")
		buf.WriteString(FormatInline(cell, imageCount))
		buf.WriteString("</th>")
	}
	buf.WriteString("</tr></thead><tbody>")
	for _, row := range body {
		buf.WriteString("<tr>")
		for _, cell := range parseTableCells(row) {
			buf.WriteString("<td>")
			buf.WriteString(FormatInline(cell, imageCount))
			buf.WriteString("</td>")
		}
		buf.WriteString("</tr>")
	}
	buf.WriteString("</tbody></table>")
}

func renderFrontmatter(buf *bytes.Buffer, fm Frontmatter) {
	if len(fm) == 0 {
		return
	}
	buf.WriteString(`<div class="frontmatter"><div class="frontmatter-title">Metadata</div><dl>`)
	for _, f := range fm {
		buf.WriteString("<dt>")
		buf.WriteString(html.EscapeString(f.Key))
		buf.WriteString("</dt><dd>")
		if f.IsArray() {
			for _, item := range f.Items {
				buf.WriteString(`<span class="pill">`)
				buf.WriteString(html.EscapeString(item))
				buf.WriteString("</span>")
			}
		} else {
			buf.WriteString(html.EscapeString(f.Value))
		}
		buf.WriteString("</dd>")
	}
	buf.WriteString("</dl></div>")
}

// parseTableCells splits a row on pipes, dropping the empty first and last
// cells produced by outer pipes.
func parseTableCells(line string) []string {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) == "" {
		parts = parts[1:]
	}
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func isTableSeparator(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.Contains(line, "-") {
		return false
	}
	line = strings.Trim(line, "|")
	for _, cell := range strings.Split(line, "|") {
		cell = strings.TrimSpace(cell)
		cleaned := strings.ReplaceAll(strings.ReplaceAll(cell, "-", ""), ":", "")
		if cleaned != "" {
			return false
		}
	}
	return true
}
