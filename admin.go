package nomadlabs

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/nomadlabs/nomadlabs/analytics"
)

// systemStatus is the admin dashboard summary.
type systemStatus struct {
	Posts    map[PostStatus]int   `json:"posts"`
	Users    map[Role]int         `json:"users"`
	Comments int                  `json:"comments"`
	TopReads []analytics.PostStat `json:"topReads"`
}

type roleRequest struct {
	Role Role `json:"role" validate:"required,role"`
}

type tagTypeRequest struct {
	Type TagType `json:"type" validate:"required,tagtype"`
}

func (a *App) handleAdminStatus(c echo.Context) error {
	posts, err := a.Store.StatusCounts()
	if err != nil {
		return err
	}
	users, err := a.Store.RoleCounts()
	if err != nil {
		return err
	}
	comments, err := a.Store.CountAllComments()
	if err != nil {
		return err
	}
	status := systemStatus{Posts: posts, Users: users, Comments: comments, TopReads: []analytics.PostStat{}}
	if a.analyticsStore != nil {
		stats, err := a.analyticsStore.GetStats("month", 5)
		if err != nil {
			return err
		}
		status.TopReads = stats.TopPosts
	}
	return c.JSON(http.StatusOK, status)
}

func (a *App) handleAdminPosts(c echo.Context) error {
	var f PostFilter
	if s := PostStatus(strings.ToUpper(c.QueryParam("status"))); s != "" {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
		}
		f.Status = s
	}
	posts, err := a.Store.ListPosts(f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, posts)
}

func (a *App) handleToggleFeatured(c echo.Context) error {
	p, err := a.Store.ToggleFeatured(c.Param("id"))
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, p)
}

func (a *App) handleTogglePinned(c echo.Context) error {
	p, err := a.Store.TogglePinned(c.Param("id"))
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, p)
}

func (a *App) handleAdminUsers(c echo.Context) error {
	users, err := a.Store.ListUsers()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

func (a *App) handleSetRole(c echo.Context) error {
	id := c.Param("id")
	if id == CurrentUser(c).ID {
		return fmt.Errorf("%w: cannot change your own role", ErrForbidden)
	}
	var req roleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := a.Store.SetRole(id, req.Role); err != nil {
		return err
	}
	u, err := a.Store.GetUser(id)
	if err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.JSON(http.StatusOK, u)
}

func (a *App) handleAdminDeleteUser(c echo.Context) error {
	id := c.Param("id")
	if id == CurrentUser(c).ID {
		return fmt.Errorf("%w: cannot delete your own account", ErrForbidden)
	}
	if err := a.Store.DeleteUser(id); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleSetTagType(c echo.Context) error {
	var req tagTypeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := a.Store.SetTagType(c.Param("slug"), req.Type); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return c.NoContent(http.StatusNoContent)
}
