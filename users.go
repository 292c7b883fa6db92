package nomadlabs

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type followResponse struct {
	Following bool `json:"following"`
	User      User `json:"user"`
}

func (a *App) handleGetProfile(c echo.Context) error {
	u, err := a.Store.GetUser(c.Param("id"))
	if err != nil {
		return err
	}
	posts, err := a.Store.ListPosts(PostFilter{AuthorID: u.ID})
	if err != nil {
		return err
	}
	followers, err := a.Store.CountFollowers(u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BuildProfile(u, posts, followers, CurrentUser(c)))
}

func (a *App) handleUpdateProfile(c echo.Context) error {
	var upd ProfileUpdate
	if err := bindAndValidate(c, &upd); err != nil {
		return err
	}
	u, err := a.Store.UpdateProfile(CurrentUser(c).ID, upd)
	if err != nil {
		return err
	}
	// Author names and avatars are embedded in cached posts.
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, u)
}

func (a *App) handleFollowUser(c echo.Context) error {
	me := CurrentUser(c)
	following, err := a.Store.ToggleFollowUser(me.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return a.followResult(c, me.ID, following)
}

func (a *App) handleFollowTag(c echo.Context) error {
	me := CurrentUser(c)
	following, err := a.Store.ToggleFollowTag(me.ID, c.Param("name"))
	if err != nil {
		return err
	}
	return a.followResult(c, me.ID, following)
}

func (a *App) followResult(c echo.Context, userID string, following bool) error {
	u, err := a.Store.GetUser(userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, followResponse{Following: following, User: u})
}
