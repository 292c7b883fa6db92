package nomadlabs

import (
	"sort"
	"strings"
)

const (
	maxRecommended = 3
	maxLatest      = 6
)

// HomeFeed is the sectioned front page.
type HomeFeed struct {
	Featured    *Post  `json:"featured"`
	Pinned      []Post `json:"pinned"`
	Recommended []Post `json:"recommended"`
	Latest      []Post `json:"latest"`
}

// BuildHomeFeed splits published posts (newest first) into feed sections.
// The featured post is the first one flagged featured, else the first paper,
// else the newest post. Recommendations are only computed for a signed-in
// viewer. No post appears in more than one section.
func BuildHomeFeed(posts []Post, viewer *User) HomeFeed {
	feed := HomeFeed{Pinned: []Post{}, Recommended: []Post{}, Latest: []Post{}}
	if len(posts) == 0 {
		return feed
	}
	used := make(map[string]bool)

	featured := -1
	for i, p := range posts {
		if p.Featured {
			featured = i
			break
		}
	}
	if featured < 0 {
		for i, p := range posts {
			if p.Type == TypePaper {
				featured = i
				break
			}
		}
	}
	if featured < 0 {
		featured = 0
	}
	f := posts[featured]
	feed.Featured = &f
	used[f.ID] = true

	for _, p := range posts {
		if p.Pinned && !used[p.ID] {
			feed.Pinned = append(feed.Pinned, p)
			used[p.ID] = true
		}
	}

	if viewer != nil {
		type scored struct {
			post  Post
			score int
		}
		var candidates []scored
		for _, p := range posts {
			if used[p.ID] {
				continue
			}
			if s := RecommendationScore(p, viewer); s > 0 {
				candidates = append(candidates, scored{p, s})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
		for _, c := range candidates {
			if len(feed.Recommended) == maxRecommended {
				break
			}
			feed.Recommended = append(feed.Recommended, c.post)
			used[c.post.ID] = true
		}
	}

	for _, p := range posts {
		if len(feed.Latest) == maxLatest {
			break
		}
		if !used[p.ID] {
			feed.Latest = append(feed.Latest, p)
		}
	}
	return feed
}

// RecommendationScore rates how well p matches the viewer's interests:
// 5 for a followed author, 3 per followed tag, 1 per tag matching the
// viewer's expertise.
func RecommendationScore(p Post, viewer *User) int {
	score := 0
	for _, id := range viewer.FollowingUsers {
		if id == p.AuthorID {
			score += 5
			break
		}
	}
	for _, t := range p.Tags {
		if containsFold(viewer.FollowingTags, t.Name) {
			score += 3
		}
		if containsFold(viewer.Expertise, t.Name) {
			score++
		}
	}
	return score
}

// Category is an explore-page filter over post types.
type Category string

const (
	CategoryAll      Category = "All"
	CategoryPapers   Category = "Papers"
	CategoryArticles Category = "Articles"
	CategoryLabNotes Category = "Lab Notes"
)

// ParseCategory accepts a category name case-insensitively, with "-" or "_"
// in place of the space. Unknown values mean All.
func ParseCategory(s string) Category {
	norm := strings.ToLower(strings.NewReplacer("-", " ", "_", " ").Replace(strings.TrimSpace(s)))
	for _, c := range []Category{CategoryPapers, CategoryArticles, CategoryLabNotes} {
		if strings.ToLower(string(c)) == norm {
			return c
		}
	}
	return CategoryAll
}

func (c Category) postType() PostType {
	switch c {
	case CategoryPapers:
		return TypePaper
	case CategoryArticles:
		return TypeArticle
	case CategoryLabNotes:
		return TypeLabNote
	}
	return ""
}

// Explore filters posts by category and a case-insensitive query matched
// against title, subtitle, abstract, content, and tag names.
func Explore(posts []Post, category Category, query string) []Post {
	typ := category.postType()
	q := strings.ToLower(strings.TrimSpace(query))
	out := []Post{}
	for _, p := range posts {
		if typ != "" && p.Type != typ {
			continue
		}
		if q != "" && !postMatches(p, q) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func postMatches(p Post, q string) bool {
	for _, field := range []string{p.Title, p.Subtitle, p.Abstract, p.Content} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t.Name), q) {
			return true
		}
	}
	return false
}

// Profile is the public view of a user with their work.
type Profile struct {
	User      Author   `json:"user"`
	Bio       string   `json:"bio,omitempty"`
	Expertise []string `json:"expertise"`
	Followers int      `json:"followers"`
	Following int      `json:"following"`
	Posts     []Post   `json:"posts"`
	Drafts    []Post   `json:"drafts,omitempty"`
	Counts    struct {
		Papers   int `json:"papers"`
		Articles int `json:"articles"`
		LabNotes int `json:"labNotes"`
	} `json:"counts"`
}

// BuildProfile assembles a profile from all of a user's posts. Unpublished
// posts are only included when the viewer owns the profile.
func BuildProfile(u User, posts []Post, followers int, viewer *User) Profile {
	prof := Profile{
		User:      u.Summary(),
		Bio:       u.Bio,
		Expertise: u.Expertise,
		Followers: followers,
		Following: len(u.FollowingUsers),
		Posts:     []Post{},
	}
	owner := viewer != nil && viewer.ID == u.ID
	for _, p := range posts {
		if p.Status != StatusPublished {
			if owner {
				prof.Drafts = append(prof.Drafts, p)
			}
			continue
		}
		prof.Posts = append(prof.Posts, p)
		switch p.Type {
		case TypePaper:
			prof.Counts.Papers++
		case TypeArticle:
			prof.Counts.Articles++
		case TypeLabNote:
			prof.Counts.LabNotes++
		}
	}
	return prof
}
