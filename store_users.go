package nomadlabs

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const userColumns = `id, name, email, avatar_url, role, expertise, bio, password_hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var role, expertise, created string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.AvatarURL, &role, &expertise, &u.Bio, &u.PasswordHash, &created); err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	u.Expertise = parseList(expertise)
	u.CreatedAt = parseTime(created)
	return u, nil
}

// CreateUser inserts a new user. Email is matched case-insensitively and
// must be unused. Missing role, expertise, and avatar get defaults.
func (s *Store) CreateUser(u User) (User, error) {
	u.Email = normalizeEmail(u.Email)
	u.Name = strings.TrimSpace(u.Name)
	if u.Email == "" || u.Name == "" {
		return User{}, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM users WHERE email = ?`, u.Email).Scan(&exists)
	if err != nil {
		return User{}, err
	}
	if exists > 0 {
		return User{}, ErrUserExists
	}
	u.ID = uuid.NewString()
	if !u.Role.Valid() {
		u.Role = RoleMember
	}
	u.Expertise = FilterEmpty(u.Expertise)
	if len(u.Expertise) == 0 {
		u.Expertise = []string{"Novice"}
	}
	if u.AvatarURL == "" {
		u.AvatarURL = AvatarURL(u.Name)
	}
	u.CreatedAt = s.now()
	_, err = s.db.Exec(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.AvatarURL, string(u.Role), joinList(u.Expertise), u.Bio, u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	u.FollowingUsers = []string{}
	u.FollowingTags = []string{}
	return u, nil
}

// GetUser returns a user with their follow lists.
func (s *Store) GetUser(id string) (User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return User{}, notFound(err, "user")
	}
	return u, s.loadFollowing(&u)
}

// GetUserByEmail looks a user up by email, ignoring case.
func (s *Store) GetUserByEmail(email string) (User, error) {
	u, err := scanUser(s.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, normalizeEmail(email)))
	if err != nil {
		return User{}, notFound(err, "user")
	}
	return u, s.loadFollowing(&u)
}

func (s *Store) loadFollowing(u *User) error {
	u.FollowingUsers = []string{}
	u.FollowingTags = []string{}
	rows, err := s.db.Query(`SELECT followee_id FROM user_follows WHERE follower_id = ? ORDER BY rowid`, u.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		u.FollowingUsers = append(u.FollowingUsers, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.db.Query(`SELECT tag FROM tag_follows WHERE user_id = ? ORDER BY rowid`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return err
		}
		u.FollowingTags = append(u.FollowingTags, tag)
	}
	return rows.Err()
}

// ListUsers returns every user ordered by creation time.
func (s *Store) ListUsers() ([]User, error) {
	rows, err := s.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ProfileUpdate holds the fields a user may change on their own profile.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	Name      *string  `json:"name" validate:"omitempty,min=1,max=80"`
	Bio       *string  `json:"bio" validate:"omitempty,max=1000"`
	AvatarURL *string  `json:"avatarUrl" validate:"omitempty,url"`
	Expertise []string `json:"expertise" validate:"omitempty,max=20,dive,max=60"`
}

// UpdateProfile applies upd to the user's profile.
func (s *Store) UpdateProfile(id string, upd ProfileUpdate) (User, error) {
	u, err := s.GetUser(id)
	if err != nil {
		return User{}, err
	}
	if upd.Name != nil {
		if name := strings.TrimSpace(*upd.Name); name != "" {
			u.Name = name
		}
	}
	if upd.Bio != nil {
		u.Bio = strings.TrimSpace(*upd.Bio)
	}
	if upd.AvatarURL != nil {
		u.AvatarURL = strings.TrimSpace(*upd.AvatarURL)
		if u.AvatarURL == "" {
			u.AvatarURL = AvatarURL(u.Name)
		}
	}
	if upd.Expertise != nil {
		u.Expertise = FilterEmpty(upd.Expertise)
	}
	_, err = s.db.Exec(`UPDATE users SET name = ?, bio = ?, avatar_url = ?, expertise = ? WHERE id = ?`,
		u.Name, u.Bio, u.AvatarURL, joinList(u.Expertise), id)
	if err != nil {
		return User{}, fmt.Errorf("update profile: %w", err)
	}
	if u.Expertise == nil {
		u.Expertise = []string{}
	}
	return u, nil
}

// SetRole changes a user's role.
func (s *Store) SetRole(id string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	res, err := s.db.Exec(`UPDATE users SET role = ? WHERE id = ?`, string(role), id)
	if err != nil {
		return err
	}
	return expectAffected(res, "user")
}

// SetPassword replaces a user's password hash.
func (s *Store) SetPassword(id, hash string) error {
	res, err := s.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return err
	}
	return expectAffected(res, "user")
}

// DeleteUser removes a user together with their posts, comments (and the
// replies beneath them), reactions, and follow relations.
func (s *Store) DeleteUser(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if err := expectAffected(res, "user"); err != nil {
			return err
		}
		postIDs, err := queryStrings(tx, `SELECT id FROM posts WHERE author_id = ?`, id)
		if err != nil {
			return err
		}
		for _, pid := range postIDs {
			if err := deletePostTx(tx, pid); err != nil {
				return err
			}
		}
		commentIDs, err := queryStrings(tx, `SELECT id FROM comments WHERE author_id = ?`, id)
		if err != nil {
			return err
		}
		for _, cid := range commentIDs {
			if _, err := deleteCommentTreeTx(tx, cid); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(`DELETE FROM reactions WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete reactions: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM user_follows WHERE follower_id = ? OR followee_id = ?`, id, id); err != nil {
			return fmt.Errorf("delete user follows: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM tag_follows WHERE user_id = ?`, id); err != nil {
			return fmt.Errorf("delete tag follows: %w", err)
		}
		return nil
	})
}

// ToggleFollowUser follows target if the user does not follow them yet and
// unfollows otherwise. It reports whether the user now follows target.
func (s *Store) ToggleFollowUser(userID, targetID string) (bool, error) {
	if userID == targetID {
		return false, fmt.Errorf("%w: cannot follow yourself", ErrInvalidInput)
	}
	if _, err := s.GetUser(targetID); err != nil {
		return false, err
	}
	res, err := s.db.Exec(`DELETE FROM user_follows WHERE follower_id = ? AND followee_id = ?`, userID, targetID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	_, err = s.db.Exec(`INSERT INTO user_follows (follower_id, followee_id) VALUES (?, ?)`, userID, targetID)
	return err == nil, err
}

// ToggleFollowTag follows or unfollows a tag by name. Tag names are stored
// lowercased.
func (s *Store) ToggleFollowTag(userID, tag string) (bool, error) {
	tag = normalizeTag(tag)
	if tag == "" {
		return false, fmt.Errorf("%w: tag is required", ErrInvalidInput)
	}
	res, err := s.db.Exec(`DELETE FROM tag_follows WHERE user_id = ? AND tag = ?`, userID, tag)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	_, err = s.db.Exec(`INSERT INTO tag_follows (user_id, tag) VALUES (?, ?)`, userID, tag)
	return err == nil, err
}

// CountFollowers returns how many users follow id.
func (s *Store) CountFollowers(id string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM user_follows WHERE followee_id = ?`, id).Scan(&n)
	return n, err
}

// RoleCounts returns the number of users per role.
func (s *Store) RoleCounts() (map[Role]int, error) {
	rows, err := s.db.Query(`SELECT role, COUNT(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Role]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[Role(role)] = n
	}
	return counts, rows.Err()
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func queryStrings(q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
