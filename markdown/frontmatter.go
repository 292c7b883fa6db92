package markdown

import "strings"

// Field is a single `key: value` line from a frontmatter block.
type Field struct {
	Key   string
	Value string
	// Items holds the elements of an array value such as `[go, web]`.
	// It is nil for scalar values.
	Items []string
}

// IsArray reports whether the field was written with array syntax.
func (f Field) IsArray() bool {
	return f.Items != nil
}

// Frontmatter is the ordered list of fields found between the `---` delimiters.
type Frontmatter []Field

// Get returns the first field named key.
func (fm Frontmatter) Get(key string) (Field, bool) {
	for _, f := range fm {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// String returns the scalar value for key, or "" when absent.
func (fm Frontmatter) String(key string) string {
	f, ok := fm.Get(key)
	if !ok {
		return ""
	}
	return f.Value
}

// List returns the items for key. A scalar value is returned as a
// single-element list so `tags: go` and `tags: [go]` read the same.
func (fm Frontmatter) List(key string) []string {
	f, ok := fm.Get(key)
	if !ok {
		return nil
	}
	if f.IsArray() {
		return f.Items
	}
	if f.Value == "" {
		return nil
	}
	return []string{f.Value}
}

// ParseFrontmatter splits md into its frontmatter and the remaining body.
// The block must open on the first line and be closed by a later `---` line;
// otherwise ok is false and body is md unchanged.
func ParseFrontmatter(md string) (fm Frontmatter, body string, ok bool) {
	lines := strings.Split(md, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return nil, md, false
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, md, false
	}
	fm = Frontmatter{}
	for _, line := range lines[1:end] {
		if f, ok := parseField(line); ok {
			fm = append(fm, f)
		}
	}
	return fm, strings.Join(lines[end+1:], "\n"), true
}

func parseField(line string) (Field, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Field{}, false
	}
	colon := strings.Index(line, ":")
	if colon < 0 {
		return Field{}, false
	}
	key := strings.TrimSpace(line[:colon])
	if key == "" {
		return Field{}, false
	}
	val := unquote(strings.TrimSpace(line[colon+1:]))
	f := Field{Key: key, Value: val}
	if len(val) >= 2 && val[0] == '[' && val[len(val)-1] == ']' {
		f.Items = []string{}
		for _, part := range strings.Split(val[1:len(val)-1], ",") {
			item := trimQuoteChars(strings.TrimSpace(part))
			if item != "" {
				f.Items = append(f.Items, item)
			}
		}
	}
	return f, true
}

// unquote strips one pair of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// trimQuoteChars drops a leading and a trailing quote character independently.
func trimQuoteChars(s string) string {
	if s != "" && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	if s != "" && (s[len(s)-1] == '"' || s[len(s)-1] == '\'') {
		s = s[:len(s)-1]
	}
	return s
}
