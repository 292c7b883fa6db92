package nomadlabs

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// buildSitemap lists the landing pages, every published post, each tag page
// and the profile of every author with a published post.
func buildSitemap(base string, posts []Post, tags []TagCount) sitemapURLSet {
	const day = "2006-01-02"
	home := sitemapURL{Loc: BuildURL(base), ChangeFreq: "daily", Priority: "1.0"}
	if len(posts) > 0 {
		home.LastMod = posts[0].UpdatedAt.Format(day)
	}
	set := sitemapURLSet{XMLNS: sitemapNS, URLs: []sitemapURL{
		home,
		{Loc: BuildURL(base, "explore"), ChangeFreq: "daily", Priority: "0.8"},
	}}

	authors := make(map[string]string)
	var order []string
	for _, p := range posts {
		set.URLs = append(set.URLs, sitemapURL{
			Loc:      BuildURL(base, "posts", p.Slug),
			LastMod:  p.UpdatedAt.Format(day),
			Priority: "0.7",
		})
		if p.AuthorID == "" {
			continue
		}
		if _, ok := authors[p.AuthorID]; !ok {
			order = append(order, p.AuthorID)
			authors[p.AuthorID] = p.UpdatedAt.Format(day)
		}
	}
	for _, t := range tags {
		set.URLs = append(set.URLs, sitemapURL{Loc: BuildURL(base, "tags", t.Slug), ChangeFreq: "weekly", Priority: "0.5"})
	}
	for _, id := range order {
		set.URLs = append(set.URLs, sitemapURL{Loc: BuildURL(base, "users", id), LastMod: authors[id], Priority: "0.4"})
	}
	return set
}

func (a *App) renderSitemap(c echo.Context, posts []Post, tags []TagCount) error {
	out, err := xml.Marshal(buildSitemap(a.Config.URL, posts, tags))
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/xml; charset=utf-8", append([]byte(xml.Header), out...))
}
