package nomadlabs

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type discussionResponse struct {
	Comments []Comment `json:"comments"`
	Total    int       `json:"total"`
	Depth    int       `json:"depth"`
}

func newDiscussionResponse(tree []Comment) discussionResponse {
	return discussionResponse{Comments: tree, Total: CountComments(tree), Depth: Depth(tree)}
}

// createdCommentResponse is the new comment plus the thread it joined.
type createdCommentResponse struct {
	Comment
	Thread discussionResponse `json:"thread"`
}

type commentRequest struct {
	Content  string `json:"content" validate:"required,max=10000"`
	ParentID string `json:"parentId" validate:"omitempty,max=64"`
}

type editCommentRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

type reactionRequest struct {
	Type ReactionType `json:"type" validate:"required,reaction"`
}

type reactionResponse struct {
	Reacted   bool       `json:"reacted"`
	Reactions []Reaction `json:"reactions"`
}

// discussion loads a post's comments and reactions and builds the tree as
// seen by viewerID.
func (a *App) discussion(postID, viewerID string) ([]Comment, error) {
	flat, err := a.Store.ListComments(postID)
	if err != nil {
		return nil, err
	}
	raw, err := a.Store.ListReactions(postID)
	if err != nil {
		return nil, err
	}
	attachReactions(flat, raw, viewerID)
	return BuildTree(flat), nil
}

func viewerID(c echo.Context) string {
	if u := CurrentUser(c); u != nil {
		return u.ID
	}
	return ""
}

func (a *App) handleListComments(c echo.Context) error {
	p, err := a.visiblePostByID(c, c.Param("id"))
	if err != nil {
		return err
	}
	tree, err := a.discussion(p.ID, viewerID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newDiscussionResponse(tree))
}

func (a *App) handleCreateComment(c echo.Context) error {
	var req commentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := a.visiblePostByID(c, c.Param("id"))
	if err != nil {
		return err
	}
	u := CurrentUser(c)
	if !a.commentThrottle.Allow(u.ID) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "posting too fast, wait a moment")
	}
	tree, err := a.discussion(p.ID, u.ID)
	if err != nil {
		return err
	}
	cm, err := a.Store.CreateComment(p.ID, req.ParentID, u.ID, req.Content)
	if err != nil {
		return err
	}
	cm.Replies = []Comment{}
	cm.Reactions = AggregateReactions(nil, u.ID)
	a.metrics.commentsPosted.Inc()

	if cm.ParentID == "" {
		tree = append([]Comment{cm}, tree...)
	} else if merged, ok := InsertReply(tree, cm.ParentID, cm); ok {
		tree = merged
	} else if tree, err = a.discussion(p.ID, u.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, createdCommentResponse{Comment: cm, Thread: newDiscussionResponse(tree)})
}

// ownedComment loads a comment and checks that the current user wrote it,
// or is an admin when allowAdmin is set.
func (a *App) ownedComment(c echo.Context, allowAdmin bool) (Comment, error) {
	cm, err := a.Store.GetComment(c.Param("id"))
	if err != nil {
		return Comment{}, err
	}
	u := CurrentUser(c)
	if cm.Author.ID == u.ID || (allowAdmin && u.IsAdmin()) {
		return cm, nil
	}
	return Comment{}, fmt.Errorf("%w: not the author of this comment", ErrForbidden)
}

func (a *App) handleUpdateComment(c echo.Context) error {
	cm, err := a.ownedComment(c, false)
	if err != nil {
		return err
	}
	var req editCommentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	updated, err := a.Store.UpdateComment(cm.ID, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (a *App) handleDeleteComment(c echo.Context) error {
	cm, err := a.ownedComment(c, true)
	if err != nil {
		return err
	}
	n, err := a.Store.DeleteComment(cm.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

func (a *App) handleToggleReaction(c echo.Context) error {
	var req reactionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	u := CurrentUser(c)
	cm, err := a.Store.GetComment(c.Param("id"))
	if err != nil {
		return err
	}
	if _, err := a.visiblePostByID(c, cm.PostID); err != nil {
		return err
	}
	reacted, err := a.Store.ToggleReaction(cm.ID, u.ID, req.Type)
	if err != nil {
		return err
	}
	a.metrics.reactionsToggled.WithLabelValues(string(req.Type)).Inc()

	tree, err := a.discussion(cm.PostID, u.ID)
	if err != nil {
		return err
	}
	resp := reactionResponse{Reacted: reacted, Reactions: AggregateReactions(nil, u.ID)}
	if found, ok := FindComment(tree, cm.ID); ok {
		resp.Reactions = found.Reactions
	}
	return c.JSON(http.StatusOK, resp)
}
