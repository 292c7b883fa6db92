package nomadlabs

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nomadlabs/nomadlabs/markdown"
)

// PostInputFromMarkdown builds a PostInput from a markdown document. Metadata
// is read from its frontmatter (title, subtitle, slug, type, status, tags,
// abstract, version, citations, cover); the remaining body becomes the
// content. Without a title the file name is used.
func PostInputFromMarkdown(filename, md string) PostInput {
	fm, body, _ := markdown.ParseFrontmatter(md)
	in := PostInput{
		Title:      fm.String("title"),
		Subtitle:   fm.String("subtitle"),
		Slug:       fm.String("slug"),
		Type:       PostType(normalizeEnum(fm.String("type"))),
		Status:     PostStatus(normalizeEnum(fm.String("status"))),
		Content:    strings.TrimLeft(body, "\n"),
		CoverImage: fm.String("cover"),
		Abstract:   fm.String("abstract"),
		Version:    fm.String("version"),
		Tags:       FilterEmpty(fm.List("tags")),
	}
	if n, err := strconv.Atoi(fm.String("citations")); err == nil && n > 0 {
		in.Citations = n
	}
	if in.Title == "" {
		base := filepath.Base(filename)
		in.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return in
}

// normalizeEnum turns "lab note" or "lab-note" into "LAB_NOTE".
func normalizeEnum(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
