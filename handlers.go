package nomadlabs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nomadlabs/nomadlabs/markdown"
)

// postResponse is a post with a few related published posts.
type postResponse struct {
	Post
	Related []Post `json:"related"`
}

func (a *App) handleListPosts(c echo.Context) error {
	posts, err := a.Cache.ListPosts(c.QueryParam("tag"))
	if err != nil {
		return err
	}
	if t := PostType(strings.ToUpper(c.QueryParam("type"))); t != "" {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown post type %q", ErrInvalidInput, t)
		}
		filtered := []Post{}
		for _, p := range posts {
			if p.Type == t {
				filtered = append(filtered, p)
			}
		}
		posts = filtered
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleExplore(c echo.Context) error {
	posts, err := a.Cache.ListPosts("")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Explore(posts, ParseCategory(c.QueryParam("category")), c.QueryParam("q")))
}

func (a *App) handleHomeFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts("")
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BuildHomeFeed(posts, CurrentUser(c)))
}

// canSee reports whether u may read p. Unpublished posts are only visible
// to their author and admins.
func canSee(u *User, p Post) bool {
	return p.Status == StatusPublished || u.IsAdmin() || (u != nil && u.ID == p.AuthorID)
}

// visiblePost finds a post by slug, hiding posts the current user may not
// see behind ErrNotFound.
func (a *App) visiblePost(c echo.Context, slug string) (Post, error) {
	p, err := a.Cache.GetPost(slug)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Post{}, err
	}
	p, err = a.Store.GetPostBySlug(slug)
	if err != nil {
		return Post{}, err
	}
	if !canSee(CurrentUser(c), p) {
		return Post{}, fmt.Errorf("%w: post %q", ErrNotFound, slug)
	}
	return p, nil
}

// visiblePostByID is visiblePost keyed by id.
func (a *App) visiblePostByID(c echo.Context, id string) (Post, error) {
	p, err := a.Store.GetPost(id)
	if err != nil {
		return Post{}, err
	}
	if !canSee(CurrentUser(c), p) {
		return Post{}, fmt.Errorf("%w: post %q", ErrNotFound, id)
	}
	return p, nil
}

func (a *App) handleGetPost(c echo.Context) error {
	p, err := a.visiblePost(c, c.Param("slug"))
	if err != nil {
		return err
	}
	posts, err := a.Cache.ListPosts("")
	if err != nil {
		return err
	}
	related := RelatedPosts(p, posts, 3)
	if related == nil {
		related = []Post{}
	}
	return c.JSON(http.StatusOK, postResponse{Post: p, Related: related})
}

// handlePostHTML returns the rendered body of a post as an HTML fragment.
func (a *App) handlePostHTML(c echo.Context) error {
	p, err := a.visiblePost(c, c.Param("slug"))
	if err != nil {
		return err
	}
	html := a.Renderer.Render(c.Request().Context(), p.Content)
	return Render(c, prose(html))
}

type previewRequest struct {
	Content string `json:"content" validate:"max=200000"`
}

// handlePreview renders unsaved markdown for the editor. Previews bypass the
// render cache.
func (a *App) handlePreview(c echo.Context) error {
	var req previewRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return Render(c, markdown.Markdown(req.Content))
}

func (a *App) handleListTags(c echo.Context) error {
	tags, err := a.Cache.ListTags()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tags)
}

func (a *App) handleCreatePost(c echo.Context) error {
	var in PostInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	u := CurrentUser(c)
	if in.Status != "" && in.Status != StatusDraft && in.Status != StatusPublished && !u.IsAdmin() {
		return fmt.Errorf("%w: new posts start as DRAFT or PUBLISHED", ErrInvalidTransition)
	}
	p, err := a.Store.CreatePost(u.ID, in)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	a.metrics.postsSaved.WithLabelValues(string(p.Status)).Inc()
	return c.JSON(http.StatusCreated, p)
}

// ownedPost loads a post by id and checks that the current user may edit it.
func (a *App) ownedPost(c echo.Context) (Post, error) {
	p, err := a.Store.GetPost(c.Param("id"))
	if err != nil {
		return Post{}, err
	}
	u := CurrentUser(c)
	if !u.IsAdmin() && u.ID != p.AuthorID {
		return Post{}, fmt.Errorf("%w: not the author of this post", ErrForbidden)
	}
	return p, nil
}

func (a *App) handleUpdatePost(c echo.Context) error {
	p, err := a.ownedPost(c)
	if err != nil {
		return err
	}
	var in PostInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	updated, err := a.Store.UpdatePost(p.ID, in, CurrentUser(c).IsAdmin())
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	a.metrics.postsSaved.WithLabelValues(string(updated.Status)).Inc()
	return c.JSON(http.StatusOK, updated)
}

func (a *App) handleDeletePost(c echo.Context) error {
	p, err := a.ownedPost(c)
	if err != nil {
		return err
	}
	if err := a.Store.DeletePost(p.ID); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleSitemap(c echo.Context) error {
	posts, err := a.Cache.ListPosts("")
	if err != nil {
		return err
	}
	tags, err := a.Cache.ListTags()
	if err != nil {
		return err
	}
	return a.renderSitemap(c, posts, tags)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPosts("")
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func (a *App) handleRobots(c echo.Context) error {
	body := "User-agent: *\nDisallow: /api/\nAllow: /\n\nSitemap: " + BuildURL(a.Config.URL, "sitemap.xml") + "\n"
	return c.String(http.StatusOK, body)
}

func (a *App) handleHealth(c echo.Context) error {
	if err := a.Store.Ping(); err != nil {
		c.Logger().Errorf("health check: %v", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
