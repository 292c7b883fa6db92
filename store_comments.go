package nomadlabs

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const commentSelect = `SELECT c.id, c.post_id, c.parent_id, c.author_id,
    COALESCE(u.name, ''), COALESCE(u.avatar_url, ''), COALESCE(u.role, ''), c.content, c.created_at
FROM comments c LEFT JOIN users u ON u.id = c.author_id`

func scanComment(row rowScanner) (Comment, error) {
	var c Comment
	var role, created string
	if err := row.Scan(&c.ID, &c.PostID, &c.ParentID, &c.Author.ID, &c.Author.Name, &c.Author.AvatarURL, &role, &c.Content, &created); err != nil {
		return Comment{}, err
	}
	c.Author.Role = Role(role)
	c.CreatedAt = parseTime(created)
	return c, nil
}

// ListComments returns a post's comments as flat rows in creation order.
func (s *Store) ListComments(postID string) ([]Comment, error) {
	rows, err := s.db.Query(commentSelect+` WHERE c.post_id = ? ORDER BY c.created_at, c.id`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var comments []Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// GetComment returns a single comment without replies.
func (s *Store) GetComment(id string) (Comment, error) {
	c, err := scanComment(s.db.QueryRow(commentSelect+` WHERE c.id = ?`, id))
	if err != nil {
		return Comment{}, notFound(err, "comment")
	}
	return c, nil
}

// CreateComment adds a comment to a post. A non-empty parentID must name a
// comment on the same post.
func (s *Store) CreateComment(postID, parentID, authorID, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, fmt.Errorf("%w: comment is empty", ErrInvalidInput)
	}
	if _, err := s.GetPost(postID); err != nil {
		return Comment{}, err
	}
	if parentID != "" {
		parent, err := s.GetComment(parentID)
		if err != nil {
			return Comment{}, err
		}
		if parent.PostID != postID {
			return Comment{}, fmt.Errorf("%w: parent comment belongs to another post", ErrInvalidInput)
		}
	}
	id := uuid.NewString()
	_, err := s.db.Exec(`INSERT INTO comments (id, post_id, parent_id, author_id, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, postID, parentID, authorID, content, formatTime(s.now()))
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return s.GetComment(id)
}

// UpdateComment replaces a comment's content.
func (s *Store) UpdateComment(id, content string) (Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Comment{}, fmt.Errorf("%w: comment is empty", ErrInvalidInput)
	}
	res, err := s.db.Exec(`UPDATE comments SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return Comment{}, err
	}
	if err := expectAffected(res, "comment"); err != nil {
		return Comment{}, err
	}
	return s.GetComment(id)
}

// DeleteComment removes a comment and every reply beneath it. It returns
// the number of comments removed.
func (s *Store) DeleteComment(id string) (int, error) {
	var n int
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		n, err = deleteCommentTreeTx(tx, id)
		return err
	})
	return n, err
}

func deleteCommentTreeTx(tx *sql.Tx, id string) (int, error) {
	ids, err := queryStrings(tx, `WITH RECURSIVE subtree(id) AS (
    SELECT id FROM comments WHERE id = ?
    UNION
    SELECT c.id FROM comments c JOIN subtree ON c.parent_id = subtree.id
) SELECT id FROM subtree`, id)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, v := range ids {
		args[i] = v
	}
	in := placeholders(len(ids))
	if _, err := tx.Exec(`DELETE FROM reactions WHERE comment_id IN (`+in+`)`, args...); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`DELETE FROM comments WHERE id IN (`+in+`)`, args...); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// ListReactions returns every reaction on the post's comments.
func (s *Store) ListReactions(postID string) ([]RawReaction, error) {
	rows, err := s.db.Query(`SELECT r.comment_id, r.user_id, r.type FROM reactions r
JOIN comments c ON c.id = r.comment_id WHERE c.post_id = ? ORDER BY r.rowid`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RawReaction
	for rows.Next() {
		var r RawReaction
		var typ string
		if err := rows.Scan(&r.CommentID, &r.UserID, &typ); err != nil {
			return nil, err
		}
		r.Type = ReactionType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ToggleReaction adds the user's reaction to a comment, or removes it if
// present. It reports whether the reaction is now set.
func (s *Store) ToggleReaction(commentID, userID string, typ ReactionType) (bool, error) {
	if !typ.Valid() {
		return false, fmt.Errorf("%w: unknown reaction %q", ErrInvalidInput, typ)
	}
	if _, err := s.GetComment(commentID); err != nil {
		return false, err
	}
	res, err := s.db.Exec(`DELETE FROM reactions WHERE comment_id = ? AND user_id = ? AND type = ?`, commentID, userID, string(typ))
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	if _, err := s.db.Exec(`INSERT INTO reactions (comment_id, user_id, type) VALUES (?, ?, ?)`, commentID, userID, string(typ)); err != nil {
		return false, err
	}
	return true, nil
}

// CountAllComments returns the total number of comments.
func (s *Store) CountAllComments() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM comments`).Scan(&n)
	return n, err
}
