package nomadlabs

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nomadlabs/nomadlabs/markdown"
)

// PostInput carries the editable fields of a post.
type PostInput struct {
	Title      string     `json:"title" validate:"required,max=200"`
	Subtitle   string     `json:"subtitle" validate:"max=300"`
	Slug       string     `json:"slug" validate:"max=120"`
	Type       PostType   `json:"type" validate:"omitempty,posttype"`
	Status     PostStatus `json:"status" validate:"omitempty,poststatus"`
	Content    string     `json:"content"`
	CoverImage string     `json:"coverImage" validate:"max=500"`
	Abstract   string     `json:"abstract" validate:"max=2000"`
	Version    string     `json:"version" validate:"max=40"`
	Citations  int        `json:"citations" validate:"min=0"`
	Tags       []string   `json:"tags" validate:"max=12,dive,max=40"`
}

// PostFilter narrows ListPosts. Zero fields match everything.
type PostFilter struct {
	Status   PostStatus
	AuthorID string
	Type     PostType
	Tag      string
}

const postSelect = `SELECT p.id, p.slug, p.title, p.subtitle, p.type, p.status, p.author_id,
    COALESCE(u.name, ''), COALESCE(u.avatar_url, ''), COALESCE(u.role, ''),
    p.content, p.cover_image, p.abstract, p.version, p.citations, p.featured, p.pinned,
    p.read_time, p.published_at, p.created_at, p.updated_at
FROM posts p LEFT JOIN users u ON u.id = p.author_id`

func scanPost(row rowScanner) (Post, error) {
	var p Post
	var typ, status, authorRole, created, updated string
	var featured, pinned int
	var published sql.NullString
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Subtitle, &typ, &status, &p.AuthorID,
		&p.Author.Name, &p.Author.AvatarURL, &authorRole,
		&p.Content, &p.CoverImage, &p.Abstract, &p.Version, &p.Citations, &featured, &pinned,
		&p.ReadTimeMinutes, &published, &created, &updated)
	if err != nil {
		return Post{}, err
	}
	p.Type = PostType(typ)
	p.Status = PostStatus(status)
	p.Author.ID = p.AuthorID
	p.Author.Role = Role(authorRole)
	p.Featured = featured == 1
	p.Pinned = pinned == 1
	if published.Valid && published.String != "" {
		t := parseTime(published.String)
		p.PublishedAt = &t
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	p.Tags = []Tag{}
	return p, nil
}

// GetPost returns a post by id regardless of status.
func (s *Store) GetPost(id string) (Post, error) {
	return s.getPostWhere(`p.id = ?`, id)
}

// GetPostBySlug returns a post by slug regardless of status.
func (s *Store) GetPostBySlug(slug string) (Post, error) {
	return s.getPostWhere(`p.slug = ?`, slug)
}

func (s *Store) getPostWhere(where string, arg any) (Post, error) {
	p, err := scanPost(s.db.QueryRow(postSelect+` WHERE `+where, arg))
	if err != nil {
		return Post{}, notFound(err, "post")
	}
	posts := []Post{p}
	if err := s.loadTags(posts); err != nil {
		return Post{}, err
	}
	return posts[0], nil
}

// ListPosts returns posts matching f, newest first by publication date
// (creation date for unpublished posts).
func (s *Store) ListPosts(f PostFilter) ([]Post, error) {
	var where []string
	var args []any
	if f.Status != "" {
		where = append(where, `p.status = ?`)
		args = append(args, string(f.Status))
	}
	if f.AuthorID != "" {
		where = append(where, `p.author_id = ?`)
		args = append(args, f.AuthorID)
	}
	if f.Type != "" {
		where = append(where, `p.type = ?`)
		args = append(args, string(f.Type))
	}
	if f.Tag != "" {
		where = append(where, `p.id IN (SELECT pt.post_id FROM post_tags pt JOIN tags t ON t.id = pt.tag_id WHERE t.slug = ?)`)
		args = append(args, Slugify(f.Tag))
	}
	query := postSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY COALESCE(p.published_at, p.created_at) DESC, p.created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	posts := []Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()
	if err := s.loadTags(posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// ListPublished returns all published posts, newest first.
func (s *Store) ListPublished() ([]Post, error) {
	return s.ListPosts(PostFilter{Status: StatusPublished})
}

func (s *Store) loadTags(posts []Post) error {
	if len(posts) == 0 {
		return nil
	}
	index := make(map[string]int, len(posts))
	args := make([]any, len(posts))
	for i, p := range posts {
		index[p.ID] = i
		args[i] = p.ID
	}
	rows, err := s.db.Query(`SELECT pt.post_id, t.id, t.slug, t.name, t.type
FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
WHERE pt.post_id IN (`+placeholders(len(posts))+`) ORDER BY pt.position`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var postID, typ string
		var t Tag
		if err := rows.Scan(&postID, &t.ID, &t.Slug, &t.Name, &typ); err != nil {
			return err
		}
		t.Type = TagType(typ)
		i := index[postID]
		posts[i].Tags = append(posts[i].Tags, t)
	}
	return rows.Err()
}

// CreatePost inserts a new post by authorID. The slug defaults to the
// slugified title; a slug already in use gets a millisecond suffix.
func (s *Store) CreatePost(authorID string, in PostInput) (Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Post{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(in.Title)
	}
	if slug == "" {
		return Post{}, fmt.Errorf("%w: slug is required, add a title or slug", ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = TypeArticle
	}
	if in.Status == "" {
		in.Status = StatusDraft
	}
	if !in.Type.Valid() || !in.Status.Valid() {
		return Post{}, fmt.Errorf("%w: unknown type or status", ErrInvalidInput)
	}

	id := uuid.NewString()
	now := s.now()
	var publishedAt any
	if in.Status == StatusPublished {
		publishedAt = formatTime(now)
	}
	err := s.withTx(func(tx *sql.Tx) error {
		slug, err := s.uniqueSlug(tx, slug, "")
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO posts (id, slug, title, subtitle, type, status, author_id, content,
    cover_image, abstract, version, citations, read_time, published_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, slug, in.Title, strings.TrimSpace(in.Subtitle), string(in.Type), string(in.Status), authorID, in.Content,
			strings.TrimSpace(in.CoverImage), strings.TrimSpace(in.Abstract), strings.TrimSpace(in.Version), in.Citations,
			markdown.ReadingTime(in.Content), publishedAt, formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("insert post: %w", err)
		}
		return setPostTagsTx(tx, id, in.Tags)
	})
	if err != nil {
		return Post{}, err
	}
	return s.GetPost(id)
}

// UpdatePost replaces the editable fields of a post. Status changes must
// follow the lifecycle unless admin is set. PublishedAt is stamped the first
// time the post is published.
func (s *Store) UpdatePost(id string, in PostInput, admin bool) (Post, error) {
	existing, err := s.GetPost(id)
	if err != nil {
		return Post{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return Post{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = existing.Type
	}
	if in.Status == "" {
		in.Status = existing.Status
	}
	if !in.Type.Valid() {
		return Post{}, fmt.Errorf("%w: unknown type %q", ErrInvalidInput, in.Type)
	}
	if !CanTransition(existing.Status, in.Status, admin) {
		return Post{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, existing.Status, in.Status)
	}
	var publishedAt any
	if existing.PublishedAt != nil {
		publishedAt = formatTime(*existing.PublishedAt)
	} else if in.Status == StatusPublished {
		publishedAt = formatTime(s.now())
	}

	err = s.withTx(func(tx *sql.Tx) error {
		slug := existing.Slug
		if requested := Slugify(in.Slug); requested != "" && requested != existing.Slug {
			var err error
			if slug, err = s.uniqueSlug(tx, requested, id); err != nil {
				return err
			}
		}
		_, err := tx.Exec(`UPDATE posts SET slug = ?, title = ?, subtitle = ?, type = ?, status = ?, content = ?,
    cover_image = ?, abstract = ?, version = ?, citations = ?, read_time = ?, published_at = ?, updated_at = ?
WHERE id = ?`,
			slug, in.Title, strings.TrimSpace(in.Subtitle), string(in.Type), string(in.Status), in.Content,
			strings.TrimSpace(in.CoverImage), strings.TrimSpace(in.Abstract), strings.TrimSpace(in.Version), in.Citations,
			markdown.ReadingTime(in.Content), publishedAt, formatTime(s.now()), id)
		if err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		return setPostTagsTx(tx, id, in.Tags)
	})
	if err != nil {
		return Post{}, err
	}
	return s.GetPost(id)
}

// uniqueSlug returns slug, or slug suffixed with the current unix millis
// when another post already uses it.
func (s *Store) uniqueSlug(tx *sql.Tx, slug, excludeID string) (string, error) {
	var n int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM posts WHERE slug = ? AND id != ?`, slug, excludeID).Scan(&n); err != nil {
		return "", err
	}
	if n == 0 {
		return slug, nil
	}
	return fmt.Sprintf("%s-%d", slug, s.now().UnixMilli()), nil
}

func setPostTagsTx(tx *sql.Tx, postID string, names []string) error {
	if _, err := tx.Exec(`DELETE FROM post_tags WHERE post_id = ?`, postID); err != nil {
		return err
	}
	seen := make(map[string]bool)
	position := 0
	for _, name := range FilterEmpty(names) {
		slug := Slugify(name)
		if slug == "" || seen[slug] {
			continue
		}
		seen[slug] = true
		if _, err := tx.Exec(`INSERT INTO tags (id, slug, name, type) VALUES (?, ?, ?, ?) ON CONFLICT(slug) DO NOTHING`,
			uuid.NewString(), slug, name, string(TagTopic)); err != nil {
			return fmt.Errorf("upsert tag: %w", err)
		}
		var tagID string
		if err := tx.QueryRow(`SELECT id FROM tags WHERE slug = ?`, slug).Scan(&tagID); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT INTO post_tags (post_id, tag_id, position) VALUES (?, ?, ?)`, postID, tagID, position); err != nil {
			return err
		}
		position++
	}
	return nil
}

// ToggleFeatured flips the featured flag of a post.
func (s *Store) ToggleFeatured(id string) (Post, error) {
	return s.toggleFlag(id, "featured")
}

// TogglePinned flips the pinned flag of a post.
func (s *Store) TogglePinned(id string) (Post, error) {
	return s.toggleFlag(id, "pinned")
}

func (s *Store) toggleFlag(id, column string) (Post, error) {
	res, err := s.db.Exec(`UPDATE posts SET `+column+` = 1 - `+column+`, updated_at = ? WHERE id = ?`, formatTime(s.now()), id)
	if err != nil {
		return Post{}, err
	}
	if err := expectAffected(res, "post"); err != nil {
		return Post{}, err
	}
	return s.GetPost(id)
}

// DeletePost removes a post with its comments, reactions, and tag links.
func (s *Store) DeletePost(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		return deletePostTx(tx, id)
	})
}

func deletePostTx(tx *sql.Tx, id string) error {
	res, err := tx.Exec(`DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := expectAffected(res, "post"); err != nil {
		return err
	}
	for _, q := range []string{
		`DELETE FROM reactions WHERE comment_id IN (SELECT id FROM comments WHERE post_id = ?)`,
		`DELETE FROM comments WHERE post_id = ?`,
		`DELETE FROM post_tags WHERE post_id = ?`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}
	return nil
}

// ListTags returns tags carried by published posts with their counts, most
// used first.
func (s *Store) ListTags() ([]TagCount, error) {
	rows, err := s.db.Query(`SELECT t.id, t.slug, t.name, t.type, COUNT(p.id)
FROM tags t
JOIN post_tags pt ON pt.tag_id = t.id
JOIN posts p ON p.id = pt.post_id AND p.status = ?
GROUP BY t.id, t.slug, t.name, t.type
ORDER BY COUNT(p.id) DESC, t.name`, string(StatusPublished))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := []TagCount{}
	for rows.Next() {
		var tc TagCount
		var typ string
		if err := rows.Scan(&tc.ID, &tc.Slug, &tc.Name, &typ, &tc.Count); err != nil {
			return nil, err
		}
		tc.Type = TagType(typ)
		tags = append(tags, tc)
	}
	return tags, rows.Err()
}

// SetTagType reclassifies a tag.
func (s *Store) SetTagType(slug string, typ TagType) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: unknown tag type %q", ErrInvalidInput, typ)
	}
	res, err := s.db.Exec(`UPDATE tags SET type = ? WHERE slug = ?`, string(typ), slug)
	if err != nil {
		return err
	}
	return expectAffected(res, "tag")
}

// StatusCounts returns the number of posts in each status.
func (s *Store) StatusCounts() (map[PostStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM posts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[PostStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[PostStatus(status)] = n
	}
	return counts, rows.Err()
}
