package nomadlabs

import (
	"encoding/xml"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nomadlabs/nomadlabs/markdown"
)

type rssXML struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Link        string    `xml:"link"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description"`
	Author      string   `xml:"author,omitempty"`
	Categories  []string `xml:"category"`
	PubDate     string   `xml:"pubDate,omitempty"`
	GUID        string   `xml:"guid"`
}

// rssDescription prefers the abstract, then the subtitle, then an excerpt.
func rssDescription(p Post) string {
	switch {
	case p.Abstract != "":
		return p.Abstract
	case p.Subtitle != "":
		return p.Subtitle
	}
	return markdown.Excerpt(p.Content, 280)
}

// buildRSS describes the published posts as an RSS 2.0 channel.
func buildRSS(cfg SiteConfig, posts []Post) rssXML {
	items := make([]rssItem, 0, len(posts))
	for _, p := range posts {
		link := BuildURL(cfg.URL, "posts", p.Slug)
		item := rssItem{
			Title:       p.Title,
			Link:        link,
			Description: rssDescription(p),
			Author:      p.Author.Name,
			GUID:        link,
		}
		if p.PublishedAt != nil {
			item.PubDate = p.PublishedAt.Format(time.RFC1123Z)
		}
		for _, t := range p.Tags {
			item.Categories = append(item.Categories, t.Name)
		}
		items = append(items, item)
	}
	return rssXML{
		Version: "2.0",
		Channel: rssChannel{
			Title:       cfg.Name,
			Link:        cfg.URL,
			Description: cfg.Description,
			Items:       items,
		},
	}
}

func (a *App) renderRSS(c echo.Context, posts []Post) error {
	out, err := xml.Marshal(buildRSS(a.Config, posts))
	if err != nil {
		return err
	}
	return c.Blob(http.StatusOK, "application/rss+xml; charset=utf-8", append([]byte(xml.Header), out...))
}
