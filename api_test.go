package nomadlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	bcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

const browserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func testConfig(t *testing.T) SiteConfig {
	t.Helper()
	dir := t.TempDir()
	return SiteConfig{
		Name:                  "Test Lab",
		URL:                   "https://lab.example",
		DatabasePath:          filepath.Join(dir, "nomadlabs.db"),
		AnalyticsEnabled:      true,
		AnalyticsDatabasePath: filepath.Join(dir, "analytics.db"),
		SessionSecret:         "test-session-secret-0123456789abcdef",
		UploadDir:             filepath.Join(dir, "uploads"),
		LogLevel:              "off",
		CommentsPerMinute:     100,
	}
}

func startApp(t *testing.T, cfg SiteConfig, opts ...Option) (*App, *httptest.Server) {
	t.Helper()
	app := New(cfg, opts...)
	require.NoError(t, app.Setup())
	srv := httptest.NewServer(app.Echo)
	t.Cleanup(func() {
		srv.Close()
		app.Close()
	})
	return app, srv
}

func newTestApp(t *testing.T, tweaks ...func(*SiteConfig)) (*App, *httptest.Server) {
	t.Helper()
	cfg := testConfig(t)
	for _, tweak := range tweaks {
		tweak(&cfg)
	}
	return startApp(t, cfg)
}

// apiClient is a browser-like client with its own cookie jar and CSRF token.
type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
	csrf string
}

func newClient(t *testing.T, srv *httptest.Server) *apiClient {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := &apiClient{t: t, base: srv.URL, http: &http.Client{Jar: jar}}
	var sess struct {
		CSRFToken string `json:"csrfToken"`
	}
	c.json(http.MethodGet, "/api/session", nil, http.StatusOK, &sess)
	require.NotEmpty(t, sess.CSRFToken)
	c.csrf = sess.CSRFToken
	return c
}

func (c *apiClient) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	req.Header.Set("User-Agent", browserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, data
}

// json sends a request, asserts the status and decodes the body into out.
func (c *apiClient) json(method, path string, body any, wantStatus int, out any) {
	c.t.Helper()
	code, data := c.do(method, path, body)
	require.Equal(c.t, wantStatus, code, "%s %s: %s", method, path, data)
	if out != nil {
		require.NoError(c.t, json.Unmarshal(data, out), "%s %s: %s", method, path, data)
	}
}

// errorOf asserts an error response and returns its message.
func (c *apiClient) errorOf(method, path string, body any, wantStatus int) string {
	c.t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	c.json(method, path, body, wantStatus, &e)
	return e.Error
}

func (c *apiClient) register(name, email string) User {
	c.t.Helper()
	var u User
	c.json(http.MethodPost, "/api/auth/register", map[string]string{
		"name": name, "email": email, "password": "correct-horse",
	}, http.StatusCreated, &u)
	return u
}

// signedIn registers a fresh account and promotes it to role.
func signedIn(t *testing.T, app *App, srv *httptest.Server, name string, role Role) (*apiClient, User) {
	t.Helper()
	c := newClient(t, srv)
	u := c.register(name, strings.ToLower(name)+"@lab.test")
	if role != RoleMember {
		require.NoError(t, app.Store.SetRole(u.ID, role))
		u.Role = role
	}
	return c, u
}

func newMultipart(t *testing.T, buf *bytes.Buffer, field, filename string, data []byte) string {
	t.Helper()
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return mw.FormDataContentType()
}

func TestAPISessionAnonymous(t *testing.T) {
	_, srv := newTestApp(t)
	c := newClient(t, srv)

	var sess struct {
		User *User `json:"user"`
	}
	c.json(http.MethodGet, "/api/session", nil, http.StatusOK, &sess)
	assert.Nil(t, sess.User)
}

func TestAPIRequiresCSRFToken(t *testing.T) {
	_, srv := newTestApp(t)
	c := newClient(t, srv)
	c.csrf = ""

	msg := c.errorOf(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "X", "email": "x@lab.test", "password": "correct-horse",
	}, http.StatusForbidden)
	assert.Equal(t, "invalid csrf token", msg)
}

func TestAPIAuthFlow(t *testing.T) {
	_, srv := newTestApp(t)
	c := newClient(t, srv)

	u := c.register("Rosalind", "Rosalind@Lab.test")
	assert.Equal(t, "rosalind@lab.test", u.Email)
	assert.Equal(t, RoleMember, u.Role)

	var sess struct {
		User *User `json:"user"`
	}
	c.json(http.MethodGet, "/api/session", nil, http.StatusOK, &sess)
	require.NotNil(t, sess.User)
	assert.Equal(t, u.ID, sess.User.ID)

	other := newClient(t, srv)
	msg := other.errorOf(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Imposter", "email": "ROSALIND@lab.test", "password": "correct-horse",
	}, http.StatusConflict)
	assert.Contains(t, msg, "exists")

	c.json(http.MethodPost, "/api/auth/logout", nil, http.StatusNoContent, nil)
	c.json(http.MethodGet, "/api/session", nil, http.StatusOK, &sess)
	assert.Nil(t, sess.User)

	c.errorOf(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "rosalind@lab.test", "password": "wrong-password",
	}, http.StatusUnauthorized)

	var back User
	c.json(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "rosalind@lab.test", "password": "correct-horse",
	}, http.StatusOK, &back)
	assert.Equal(t, u.ID, back.ID)

	msg = c.errorOf(http.MethodPost, "/api/auth/register", map[string]string{
		"name": "Short", "email": "short@lab.test", "password": "1234",
	}, http.StatusBadRequest)
	assert.Contains(t, msg, "password")
}

func TestAPILoginIsRateLimited(t *testing.T) {
	_, srv := newTestApp(t)
	c := newClient(t, srv)
	bad := map[string]string{"email": "nobody@lab.test", "password": "nope-nope"}

	for i := 0; i < 5; i++ {
		c.errorOf(http.MethodPost, "/api/auth/login", bad, http.StatusUnauthorized)
	}
	c.errorOf(http.MethodPost, "/api/auth/login", bad, http.StatusTooManyRequests)
}

func TestAPIPostLifecycle(t *testing.T) {
	app, srv := newTestApp(t)
	author, _ := signedIn(t, app, srv, "Author", RoleAuthor)
	member, _ := signedIn(t, app, srv, "Member", RoleMember)
	anon := newClient(t, srv)

	draft := PostInput{Title: "Phase Transitions", Content: "# Heading\n\nWater *boils*.", Type: TypePaper, Tags: []string{"Physics"}}
	member.errorOf(http.MethodPost, "/api/posts", draft, http.StatusForbidden)
	anon.errorOf(http.MethodPost, "/api/posts", draft, http.StatusUnauthorized)

	under := draft
	under.Status = StatusArchived
	author.errorOf(http.MethodPost, "/api/posts", under, http.StatusUnprocessableEntity)

	var p Post
	author.json(http.MethodPost, "/api/posts", draft, http.StatusCreated, &p)
	assert.Equal(t, "phase-transitions", p.Slug)
	assert.Equal(t, StatusDraft, p.Status)

	anon.errorOf(http.MethodGet, "/api/posts/phase-transitions", nil, http.StatusNotFound)
	member.errorOf(http.MethodGet, "/api/posts/phase-transitions", nil, http.StatusNotFound)
	var own postResponse
	author.json(http.MethodGet, "/api/posts/phase-transitions", nil, http.StatusOK, &own)
	assert.Equal(t, p.ID, own.ID)
	assert.NotNil(t, own.Related)

	member.errorOf(http.MethodPut, "/api/posts/"+p.ID, PostInput{Title: "Hijack"}, http.StatusForbidden)

	published := draft
	published.Status = StatusPublished
	author.json(http.MethodPut, "/api/posts/"+p.ID, published, http.StatusOK, &p)
	require.NotNil(t, p.PublishedAt)

	var list []Post
	anon.json(http.MethodGet, "/api/posts", nil, http.StatusOK, &list)
	require.Len(t, list, 1)
	anon.json(http.MethodGet, "/api/posts?tag=physics&type=paper", nil, http.StatusOK, &list)
	require.Len(t, list, 1)
	anon.json(http.MethodGet, "/api/posts?type=article", nil, http.StatusOK, &list)
	assert.Empty(t, list)
	anon.errorOf(http.MethodGet, "/api/posts?type=podcast", nil, http.StatusBadRequest)

	code, html := anon.do(http.MethodGet, "/api/posts/phase-transitions/html", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(string(html), `<article class="prose">`))
	assert.Contains(t, string(html), "<em>boils</em>")

	var tags []TagCount
	anon.json(http.MethodGet, "/api/tags", nil, http.StatusOK, &tags)
	require.Len(t, tags, 1)
	assert.Equal(t, 1, tags[0].Count)

	backToDraft := published
	backToDraft.Status = StatusDraft
	msg := author.errorOf(http.MethodPut, "/api/posts/"+p.ID, backToDraft, http.StatusUnprocessableEntity)
	assert.Contains(t, msg, "PUBLISHED to DRAFT")

	author.json(http.MethodDelete, "/api/posts/"+p.ID, nil, http.StatusNoContent, nil)
	anon.json(http.MethodGet, "/api/posts", nil, http.StatusOK, &list)
	assert.Empty(t, list)
}

func TestAPIPreview(t *testing.T) {
	app, srv := newTestApp(t)
	c, _ := signedIn(t, app, srv, "Writer", RoleMember)

	code, body := c.do(http.MethodPost, "/api/preview", map[string]string{"content": "**draft** text"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "<strong>draft</strong>")

	newClient(t, srv).errorOf(http.MethodPost, "/api/preview", map[string]string{"content": "x"}, http.StatusUnauthorized)
}

func TestAPIDiscussion(t *testing.T) {
	app, srv := newTestApp(t)
	author, _ := signedIn(t, app, srv, "Author", RoleAuthor)
	alice, _ := signedIn(t, app, srv, "Alice", RoleMember)
	bob, _ := signedIn(t, app, srv, "Bob", RoleMember)
	guest, _ := signedIn(t, app, srv, "Guest", RoleGuest)

	var p Post
	author.json(http.MethodPost, "/api/posts", PostInput{Title: "Open Problem", Status: StatusPublished}, http.StatusCreated, &p)
	commentsURL := "/api/posts/" + p.ID + "/comments"

	guest.errorOf(http.MethodPost, commentsURL, map[string]string{"content": "hi"}, http.StatusForbidden)
	alice.errorOf(http.MethodPost, commentsURL, map[string]string{"content": ""}, http.StatusBadRequest)

	var root, reply Comment
	alice.json(http.MethodPost, commentsURL, map[string]string{"content": "Is this decidable?"}, http.StatusCreated, &root)
	assert.NotNil(t, root.Replies)
	assert.Len(t, root.Reactions, len(ReactionTypes))
	var created createdCommentResponse
	bob.json(http.MethodPost, commentsURL, map[string]string{"content": "Probably not.", "parentId": root.ID}, http.StatusCreated, &created)
	reply = created.Comment
	assert.Equal(t, root.ID, reply.ParentID)
	assert.Equal(t, 2, created.Thread.Total)
	assert.Equal(t, 2, created.Thread.Depth)
	require.Len(t, created.Thread.Comments, 1)
	require.Len(t, created.Thread.Comments[0].Replies, 1)
	assert.Equal(t, reply.ID, created.Thread.Comments[0].Replies[0].ID)

	alice.errorOf(http.MethodPost, commentsURL, map[string]string{"content": "x", "parentId": "missing"}, http.StatusNotFound)

	var react reactionResponse
	bob.json(http.MethodPost, "/api/comments/"+root.ID+"/reactions", map[string]string{"type": "BRAIN"}, http.StatusOK, &react)
	assert.True(t, react.Reacted)
	assert.Equal(t, Reaction{Type: ReactionBrain, Count: 1, UserHasReacted: true}, react.Reactions[2])
	bob.errorOf(http.MethodPost, "/api/comments/"+root.ID+"/reactions", map[string]string{"type": "HEART"}, http.StatusBadRequest)

	var disc discussionResponse
	alice.json(http.MethodGet, commentsURL, nil, http.StatusOK, &disc)
	assert.Equal(t, 2, disc.Total)
	require.Len(t, disc.Comments, 1)
	require.Len(t, disc.Comments[0].Replies, 1)
	assert.Equal(t, reply.ID, disc.Comments[0].Replies[0].ID)
	assert.Equal(t, 1, disc.Comments[0].Reactions[2].Count)
	assert.False(t, disc.Comments[0].Reactions[2].UserHasReacted, "alice did not react")

	bob.errorOf(http.MethodPut, "/api/comments/"+root.ID, map[string]string{"content": "edited"}, http.StatusForbidden)
	var edited Comment
	alice.json(http.MethodPut, "/api/comments/"+root.ID, map[string]string{"content": "Is this semi-decidable?"}, http.StatusOK, &edited)
	assert.Equal(t, "Is this semi-decidable?", edited.Content)

	var deleted map[string]int
	alice.json(http.MethodDelete, "/api/comments/"+root.ID, nil, http.StatusOK, &deleted)
	assert.Equal(t, 2, deleted["deleted"])

	newClient(t, srv).json(http.MethodGet, commentsURL, nil, http.StatusOK, &disc)
	assert.Zero(t, disc.Total)
	assert.Empty(t, disc.Comments)

	newClient(t, srv).errorOf(http.MethodGet, "/api/posts/missing/comments", nil, http.StatusNotFound)
}

func TestAPIDraftDiscussionIsPrivate(t *testing.T) {
	app, srv := newTestApp(t)
	author, _ := signedIn(t, app, srv, "Author", RoleAuthor)
	member, _ := signedIn(t, app, srv, "Member", RoleMember)
	admin, _ := signedIn(t, app, srv, "Admin", RoleAdmin)
	anon := newClient(t, srv)

	var p Post
	author.json(http.MethodPost, "/api/posts", PostInput{Title: "Secret Draft"}, http.StatusCreated, &p)
	require.Equal(t, StatusDraft, p.Status)
	url := "/api/posts/" + p.ID + "/comments"

	var note Comment
	author.json(http.MethodPost, url, map[string]string{"content": "private note"}, http.StatusCreated, &note)

	anon.errorOf(http.MethodGet, url, nil, http.StatusNotFound)
	member.errorOf(http.MethodGet, url, nil, http.StatusNotFound)
	member.errorOf(http.MethodPost, url, map[string]string{"content": "let me in"}, http.StatusNotFound)
	member.errorOf(http.MethodPost, "/api/comments/"+note.ID+"/reactions", map[string]string{"type": "LIKE"}, http.StatusNotFound)

	var disc discussionResponse
	admin.json(http.MethodGet, url, nil, http.StatusOK, &disc)
	assert.Equal(t, 1, disc.Total)
	author.json(http.MethodGet, url, nil, http.StatusOK, &disc)
	assert.Equal(t, 1, disc.Total)

	author.json(http.MethodPut, "/api/posts/"+p.ID, PostInput{Title: p.Title, Status: StatusPublished}, http.StatusOK, nil)
	anon.json(http.MethodGet, url, nil, http.StatusOK, &disc)
	require.Len(t, disc.Comments, 1)
	assert.Equal(t, "private note", disc.Comments[0].Content)
}

func TestAPICommentThrottle(t *testing.T) {
	app, srv := newTestApp(t, func(cfg *SiteConfig) { cfg.CommentsPerMinute = 2 })
	author, _ := signedIn(t, app, srv, "Author", RoleAuthor)

	var p Post
	author.json(http.MethodPost, "/api/posts", PostInput{Title: "Busy", Status: StatusPublished}, http.StatusCreated, &p)
	url := "/api/posts/" + p.ID + "/comments"

	author.errorOf(http.MethodPost, url, map[string]string{"content": ""}, http.StatusBadRequest)
	author.errorOf(http.MethodPost, "/api/posts/missing/comments", map[string]string{"content": "lost"}, http.StatusNotFound)
	author.json(http.MethodPost, url, map[string]string{"content": "one"}, http.StatusCreated, nil)
	author.json(http.MethodPost, url, map[string]string{"content": "two"}, http.StatusCreated, nil)
	author.errorOf(http.MethodPost, url, map[string]string{"content": "three"}, http.StatusTooManyRequests)
}

func TestAPIFollowsAndFeed(t *testing.T) {
	app, srv := newTestApp(t)
	author, au := signedIn(t, app, srv, "Author", RoleAuthor)
	reader, ru := signedIn(t, app, srv, "Reader", RoleMember)

	for _, in := range []PostInput{
		{Title: "Featured Paper", Type: TypePaper, Status: StatusPublished},
		{Title: "Go Notes", Type: TypeLabNote, Status: StatusPublished, Tags: []string{"Go"}},
		{Title: "Other", Type: TypeArticle, Status: StatusPublished},
	} {
		author.json(http.MethodPost, "/api/posts", in, http.StatusCreated, nil)
	}

	guest, _ := signedIn(t, app, srv, "Guest", RoleGuest)
	guest.errorOf(http.MethodPost, "/api/users/"+au.ID+"/follow", nil, http.StatusForbidden)
	guest.errorOf(http.MethodPost, "/api/tags/Go/follow", nil, http.StatusForbidden)
	newClient(t, srv).errorOf(http.MethodPost, "/api/tags/Go/follow", nil, http.StatusUnauthorized)

	var follow followResponse
	reader.json(http.MethodPost, "/api/tags/Go/follow", nil, http.StatusOK, &follow)
	assert.True(t, follow.Following)
	assert.Equal(t, []string{"go"}, follow.User.FollowingTags)

	reader.errorOf(http.MethodPost, "/api/users/"+ru.ID+"/follow", nil, http.StatusBadRequest)
	reader.json(http.MethodPost, "/api/users/"+au.ID+"/follow", nil, http.StatusOK, &follow)
	assert.Equal(t, []string{au.ID}, follow.User.FollowingUsers)

	var feed HomeFeed
	reader.json(http.MethodGet, "/api/feed", nil, http.StatusOK, &feed)
	require.NotNil(t, feed.Featured)
	assert.Equal(t, "featured-paper", feed.Featured.Slug)
	require.Len(t, feed.Recommended, 2)
	assert.Equal(t, "go-notes", feed.Recommended[0].Slug, "followed tag and author outrank author only")

	var explore []Post
	reader.json(http.MethodGet, "/api/explore?category=lab-notes", nil, http.StatusOK, &explore)
	require.Len(t, explore, 1)
	assert.Equal(t, "go-notes", explore[0].Slug)

	var prof Profile
	reader.json(http.MethodGet, "/api/users/"+au.ID, nil, http.StatusOK, &prof)
	assert.Equal(t, 1, prof.Followers)
	assert.Len(t, prof.Posts, 3)
	newClient(t, srv).errorOf(http.MethodGet, "/api/users/missing", nil, http.StatusNotFound)

	var me User
	reader.json(http.MethodPut, "/api/users/me", map[string]any{"bio": "Reads a lot.", "expertise": []string{"Go"}}, http.StatusOK, &me)
	assert.Equal(t, "Reads a lot.", me.Bio)
	assert.Equal(t, []string{"Go"}, me.Expertise)
}

func TestAPIAdmin(t *testing.T) {
	app, srv := newTestApp(t)
	admin, adminUser := signedIn(t, app, srv, "Admin", RoleAdmin)
	member, mu := signedIn(t, app, srv, "Member", RoleMember)
	anon := newClient(t, srv)

	anon.errorOf(http.MethodGet, "/api/admin/status", nil, http.StatusUnauthorized)
	member.errorOf(http.MethodGet, "/api/admin/status", nil, http.StatusForbidden)

	var p Post
	admin.json(http.MethodPost, "/api/posts", PostInput{Title: "Review Me", Status: StatusUnderReview, Tags: []string{"Rust"}}, http.StatusCreated, &p)
	assert.Equal(t, StatusUnderReview, p.Status, "admins may create in any status")

	var status systemStatus
	admin.json(http.MethodGet, "/api/admin/status", nil, http.StatusOK, &status)
	assert.Equal(t, 1, status.Posts[StatusUnderReview])
	assert.Equal(t, 1, status.Users[RoleAdmin])
	assert.NotNil(t, status.TopReads)

	var posts []Post
	admin.json(http.MethodGet, "/api/admin/posts?status=under_review", nil, http.StatusOK, &posts)
	assert.Len(t, posts, 1)
	admin.errorOf(http.MethodGet, "/api/admin/posts?status=lost", nil, http.StatusBadRequest)

	admin.json(http.MethodPost, "/api/admin/posts/"+p.ID+"/featured", nil, http.StatusOK, &p)
	assert.True(t, p.Featured)
	admin.json(http.MethodPost, "/api/admin/posts/"+p.ID+"/pinned", nil, http.StatusOK, &p)
	assert.True(t, p.Pinned)

	admin.errorOf(http.MethodPut, "/api/admin/users/"+adminUser.ID+"/role", map[string]string{"role": "MEMBER"}, http.StatusForbidden)
	admin.errorOf(http.MethodPut, "/api/admin/users/"+mu.ID+"/role", map[string]string{"role": "KING"}, http.StatusBadRequest)
	var promoted User
	admin.json(http.MethodPut, "/api/admin/users/"+mu.ID+"/role", map[string]string{"role": "AUTHOR"}, http.StatusOK, &promoted)
	assert.Equal(t, RoleAuthor, promoted.Role)
	member.json(http.MethodPost, "/api/posts", PostInput{Title: "Now I Write"}, http.StatusCreated, nil)

	admin.json(http.MethodPut, "/api/admin/tags/rust/type", map[string]string{"type": "TECH"}, http.StatusNoContent, nil)
	admin.errorOf(http.MethodPut, "/api/admin/tags/none/type", map[string]string{"type": "TECH"}, http.StatusNotFound)

	var users []User
	admin.json(http.MethodGet, "/api/admin/users", nil, http.StatusOK, &users)
	assert.Len(t, users, 2)

	admin.errorOf(http.MethodDelete, "/api/admin/users/"+adminUser.ID, nil, http.StatusForbidden)
	admin.json(http.MethodDelete, "/api/admin/users/"+mu.ID, nil, http.StatusNoContent, nil)

	var sess struct {
		User *User `json:"user"`
	}
	member.json(http.MethodGet, "/api/session", nil, http.StatusOK, &sess)
	assert.Nil(t, sess.User, "deleted account is signed out")
}

func TestAPIAnalytics(t *testing.T) {
	app, srv := newTestApp(t)
	author, _ := signedIn(t, app, srv, "Author", RoleAdmin)
	var p Post
	author.json(http.MethodPost, "/api/posts", PostInput{Title: "Counted", Status: StatusPublished}, http.StatusCreated, &p)

	reader := newClient(t, srv)
	reader.csrf = ""
	reader.json(http.MethodPost, "/api/analytics/read", map[string]string{"slug": "counted"}, http.StatusNoContent, nil)
	reader.json(http.MethodPost, "/api/analytics/read", map[string]string{"slug": "counted"}, http.StatusNoContent, nil)
	reader.json(http.MethodPost, "/api/analytics/read", map[string]string{"slug": "not-a-post"}, http.StatusNoContent, nil)

	var stats struct {
		TotalReads int `json:"totalReads"`
		TopPosts   []struct {
			Slug  string `json:"slug"`
			Reads int    `json:"reads"`
		} `json:"topPosts"`
	}
	author.json(http.MethodGet, "/api/admin/analytics?period=today", nil, http.StatusOK, &stats)
	assert.Equal(t, 1, stats.TotalReads)
	require.Len(t, stats.TopPosts, 1)
	assert.Equal(t, "counted", stats.TopPosts[0].Slug)

	reader.errorOf(http.MethodGet, "/api/admin/analytics", nil, http.StatusUnauthorized)
}

func TestAPIPublicDocuments(t *testing.T) {
	app, srv := newTestApp(t)
	author, _ := signedIn(t, app, srv, "Author", RoleAuthor)
	author.json(http.MethodPost, "/api/posts", PostInput{
		Title: "Feed Me", Abstract: "An abstract.", Status: StatusPublished, Tags: []string{"Meta"},
	}, http.StatusCreated, nil)
	author.json(http.MethodPost, "/api/posts", PostInput{Title: "Secret Draft"}, http.StatusCreated, nil)
	anon := newClient(t, srv)

	code, body := anon.do(http.MethodGet, "/feed.xml", nil)
	require.Equal(t, http.StatusOK, code)
	feed := string(body)
	assert.Contains(t, feed, "<title>Test Lab</title>")
	assert.Contains(t, feed, "<link>https://lab.example/posts/feed-me</link>")
	assert.Contains(t, feed, "<description>An abstract.</description>")
	assert.Contains(t, feed, "<category>Meta</category>")
	assert.NotContains(t, feed, "Secret Draft")

	code, body = anon.do(http.MethodGet, "/sitemap.xml", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "<loc>https://lab.example/posts/feed-me</loc>")
	assert.Contains(t, string(body), "<loc>https://lab.example/explore</loc>")
	assert.NotContains(t, string(body), "secret-draft")

	code, body = anon.do(http.MethodGet, "/robots.txt", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "Sitemap: https://lab.example/sitemap.xml")

	var health map[string]string
	anon.json(http.MethodGet, "/healthz", nil, http.StatusOK, &health)
	assert.Equal(t, "ok", health["status"])

	code, body = anon.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "nomadlabs_posts_saved_total")
}

func TestAPIErrorShape(t *testing.T) {
	_, srv := newTestApp(t)
	c := newClient(t, srv)

	msg := c.errorOf(http.MethodGet, "/api/posts/nothing-here", nil, http.StatusNotFound)
	assert.Contains(t, msg, "not found")

	msg = c.errorOf(http.MethodGet, "/api/no-such-route", nil, http.StatusNotFound)
	assert.NotEmpty(t, msg)
}

func TestAPIImages(t *testing.T) {
	app, srv := newTestApp(t)
	author, _ := signedIn(t, app, srv, "Author", RoleAuthor)

	var buf bytes.Buffer
	w := newMultipart(t, &buf, "image", "Lab Bench.png", pngBytes(t, 1600, 800))
	req, err := http.NewRequest(http.MethodPost, author.base+"/api/images", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w)
	req.Header.Set("X-CSRF-Token", author.csrf)
	resp, err := author.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var img Image
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&img))
	assert.Equal(t, "lab-bench.jpg", img.Filename)
	assert.Equal(t, "/uploads/lab-bench.jpg", img.URL)
	assert.Equal(t, 1200, img.Width)

	code, _ := newClient(t, srv).do(http.MethodGet, img.URL, nil)
	assert.Equal(t, http.StatusOK, code)

	var images []Image
	author.json(http.MethodGet, "/api/images", nil, http.StatusOK, &images)
	require.Len(t, images, 1)

	author.json(http.MethodDelete, "/api/images/lab-bench.jpg", nil, http.StatusNoContent, nil)
	author.errorOf(http.MethodDelete, "/api/images/lab-bench.jpg", nil, http.StatusNotFound)
	_, err = os.Stat(filepath.Join(app.Config.UploadDir, "lab-bench.jpg"))
	assert.True(t, os.IsNotExist(err))
}

// tokenAuth accepts any stored user presenting the shared token.
type tokenAuth struct {
	store *Store
	token string
}

func (a tokenAuth) Authenticate(_ context.Context, email, password string) (User, error) {
	if password != a.token {
		return User{}, ErrUnauthorized
	}
	u, err := a.store.GetUserByEmail(email)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrUnauthorized
	}
	return u, err
}

func TestAPIOptions(t *testing.T) {
	cfg := testConfig(t)
	store, err := NewStore(cfg.DatabasePath)
	require.NoError(t, err)
	defer store.Close()
	cache, err := NewLocalRenderCache(1 << 20)
	require.NoError(t, err)

	app, srv := startApp(t, cfg,
		WithAuthenticator(tokenAuth{store: store, token: "sso-token"}),
		WithRenderCache(cache),
		WithCustomRoutes(func(a *App) {
			a.Echo.GET("/lab/ping", func(c echo.Context) error {
				return c.String(http.StatusOK, "pong")
			})
		}),
	)

	u, err := app.Store.CreateUser(User{Name: "External", Email: "ext@lab.test", Role: RoleAuthor})
	require.NoError(t, err)
	p, err := app.Store.CreatePost(u.ID, PostInput{Title: "Cached", Status: StatusPublished, Content: "Some *ink*."})
	require.NoError(t, err)
	app.Cache.Invalidate()

	c := newClient(t, srv)
	c.errorOf(http.MethodPost, "/api/auth/login", loginRequest{Email: "ext@lab.test", Password: "wrong-token"}, http.StatusUnauthorized)
	var me User
	c.json(http.MethodPost, "/api/auth/login", loginRequest{Email: "ext@lab.test", Password: "sso-token"}, http.StatusOK, &me)
	assert.Equal(t, u.ID, me.ID)

	code, body := c.do(http.MethodGet, "/api/posts/"+p.Slug+"/html", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "<em>ink</em>")
	cache.Wait()
	html, ok := cache.Get(context.Background(), contentKey(p.Content))
	require.True(t, ok)
	assert.Contains(t, string(body), html)

	code, body = c.do(http.MethodGet, "/lab/ping", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", string(body))
}
