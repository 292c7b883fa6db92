package nomadlabs

import (
	"errors"
	"time"
)

// Sentinel errors returned by the store and handlers. The HTTP error handler
// maps them to status codes.
var (
	ErrNotFound          = errors.New("not found")
	ErrUserExists        = errors.New("user already exists")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid input")
)

// Role is a user's access level.
type Role string

const (
	RoleGuest    Role = "GUEST"
	RoleMember   Role = "MEMBER"
	RoleAuthor   Role = "AUTHOR"
	RoleReviewer Role = "REVIEWER"
	RoleAdmin    Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleMember, RoleAuthor, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// Satisfies reports whether a user holding r may access something that
// requires the given role. Admins satisfy every requirement.
func (r Role) Satisfies(required Role) bool {
	return r == required || r == RoleAdmin
}

// PostType is the kind of content a post holds.
type PostType string

const (
	TypeArticle PostType = "ARTICLE"
	TypePaper   PostType = "PAPER"
	TypeLabNote PostType = "LAB_NOTE"
)

func (t PostType) Valid() bool {
	return t == TypeArticle || t == TypePaper || t == TypeLabNote
}

// PostStatus is a post's position in the publishing lifecycle.
type PostStatus string

const (
	StatusDraft       PostStatus = "DRAFT"
	StatusUnderReview PostStatus = "UNDER_REVIEW"
	StatusPublished   PostStatus = "PUBLISHED"
	StatusArchived    PostStatus = "ARCHIVED"
)

func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusUnderReview, StatusPublished, StatusArchived:
		return true
	}
	return false
}

var statusTransitions = map[PostStatus][]PostStatus{
	StatusDraft:       {StatusUnderReview, StatusPublished},
	StatusUnderReview: {StatusDraft, StatusPublished},
	StatusPublished:   {StatusArchived},
	StatusArchived:    {StatusDraft},
}

// CanTransition reports whether a post may move from one status to another.
// Staying put is always allowed; admins may jump to any valid status.
func CanTransition(from, to PostStatus, admin bool) bool {
	if !to.Valid() {
		return false
	}
	if from == to || admin {
		return true
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TagType classifies a tag.
type TagType string

const (
	TagTopic TagType = "TOPIC"
	TagTech  TagType = "TECH"
	TagStack TagType = "STACK"
)

func (t TagType) Valid() bool {
	return t == TagTopic || t == TagTech || t == TagStack
}

// ReactionType is one of the fixed comment reactions.
type ReactionType string

const (
	ReactionLike   ReactionType = "LIKE"
	ReactionFire   ReactionType = "FIRE"
	ReactionBrain  ReactionType = "BRAIN"
	ReactionRocket ReactionType = "ROCKET"
)

// ReactionTypes lists every reaction in display order.
var ReactionTypes = []ReactionType{ReactionLike, ReactionFire, ReactionBrain, ReactionRocket}

func (t ReactionType) Valid() bool {
	for _, rt := range ReactionTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	AvatarURL      string    `json:"avatarUrl"`
	Role           Role      `json:"role"`
	Expertise      []string  `json:"expertise"`
	Bio            string    `json:"bio,omitempty"`
	FollowingUsers []string  `json:"followingUsers"`
	FollowingTags  []string  `json:"followingTags"`
	CreatedAt      time.Time `json:"createdAt"`
	PasswordHash   string    `json:"-"`
}

// IsAdmin reports whether u is non-nil and an administrator.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Author is the public summary of a user embedded in posts and comments.
type Author struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
	Role      Role   `json:"role"`
}

// Summary returns the public author view of u.
func (u User) Summary() Author {
	return Author{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL, Role: u.Role}
}

// Tag labels posts.
type Tag struct {
	ID   string  `json:"id"`
	Slug string  `json:"slug"`
	Name string  `json:"name"`
	Type TagType `json:"type"`
}

// TagCount is a tag with the number of published posts carrying it.
type TagCount struct {
	Tag
	Count int `json:"count"`
}

// Post is the core content type stored in SQLite.
type Post struct {
	ID              string     `json:"id"`
	Slug            string     `json:"slug"`
	Title           string     `json:"title"`
	Subtitle        string     `json:"subtitle,omitempty"`
	Type            PostType   `json:"type"`
	Status          PostStatus `json:"status"`
	AuthorID        string     `json:"authorId"`
	Author          Author     `json:"author"`
	Content         string     `json:"content"`
	CoverImage      string     `json:"coverImage,omitempty"`
	Tags            []Tag      `json:"tags"`
	PublishedAt     *time.Time `json:"publishedAt,omitempty"`
	ReadTimeMinutes int        `json:"readTimeMinutes"`
	Abstract        string     `json:"abstract,omitempty"`
	Version         string     `json:"version,omitempty"`
	Citations       int        `json:"citations"`
	Featured        bool       `json:"featured"`
	Pinned          bool       `json:"pinned"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// HasTag reports whether p carries a tag whose name or slug matches name,
// ignoring case.
func (p Post) HasTag(name string) bool {
	n, slug := normalizeTag(name), Slugify(name)
	for _, t := range p.Tags {
		if normalizeTag(t.Name) == n || t.Slug == slug {
			return true
		}
	}
	return false
}

// Comment is one entry in a post's discussion. Replies and Reactions are
// derived on read.
type Comment struct {
	ID        string     `json:"id"`
	PostID    string     `json:"postId"`
	ParentID  string     `json:"parentId,omitempty"`
	Author    Author     `json:"author"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Replies   []Comment  `json:"replies"`
	Reactions []Reaction `json:"reactions"`
}

// Reaction is the aggregated view of one reaction type on a comment.
type Reaction struct {
	Type           ReactionType `json:"type"`
	Count          int          `json:"count"`
	UserHasReacted bool         `json:"userHasReacted"`
}

// RawReaction is a single user's reaction as stored.
type RawReaction struct {
	CommentID string
	UserID    string
	Type      ReactionType
}

// Image holds metadata for an uploaded cover image.
type Image struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	URL          string `json:"url"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Size         int    `json:"size"`
	UploadedAt   string `json:"uploadedAt"`
}
