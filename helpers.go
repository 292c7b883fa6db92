package nomadlabs

import (
	"net/url"
	"path"
	"strings"
)

// Slugify converts a title to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BuildURL joins a base URL with path segments.
func BuildURL(base string, pathSegments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	u.Path = path.Join(u.Path, path.Join(pathSegments...))
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// FilterEmpty removes empty/whitespace-only strings from a slice and trims
// the rest.
func FilterEmpty(vals []string) []string {
	var out []string
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RelatedPosts returns up to n posts sharing at least one tag with current.
func RelatedPosts(current Post, posts []Post, n int) []Post {
	tagSet := make(map[string]struct{})
	for _, t := range current.Tags {
		tagSet[t.Slug] = struct{}{}
	}
	var related []Post
	for _, p := range posts {
		if p.ID == current.ID {
			continue
		}
		for _, t := range p.Tags {
			if _, ok := tagSet[t.Slug]; ok {
				related = append(related, p)
				break
			}
		}
		if len(related) == n {
			break
		}
	}
	return related
}

// AvatarURL returns a generated initials avatar for name.
func AvatarURL(name string) string {
	return "https://api.dicebear.com/7.x/initials/svg?seed=" + url.QueryEscape(name)
}

// joinList encodes values in the ",a,b," form used for list columns so a
// single entry can be matched with instr().
func joinList(vals []string) string {
	vals = FilterEmpty(vals)
	if len(vals) == 0 {
		return ","
	}
	return "," + strings.Join(vals, ",") + ","
}

// parseList splits a ",a,b," column back into a slice.
func parseList(s string) []string {
	s = strings.Trim(s, ",")
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
