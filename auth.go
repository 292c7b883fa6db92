package nomadlabs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// Authenticator verifies sign-in credentials and returns the matching user.
// The user must exist in the Store; providers backed by an external identity
// service are expected to provision it first.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (User, error)
}

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// PasswordAuthenticator checks bcrypt hashes stored with each user.
type PasswordAuthenticator struct {
	Store *Store
}

func (p PasswordAuthenticator) Authenticate(_ context.Context, email, password string) (User, error) {
	u, err := p.Store.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrUnauthorized
		}
		return User{}, err
	}
	if u.PasswordHash == "" {
		return User{}, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrUnauthorized
	}
	return u, nil
}

// RegisterUser creates a MEMBER account with a hashed password.
func (a *App) RegisterUser(name, email, password string) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	return a.Store.CreateUser(User{Name: name, Email: email, Role: RoleMember, PasswordHash: hash})
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=80"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	User      *User  `json:"user"`
	CSRFToken string `json:"csrfToken"`
}

func (a *App) handleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, sessionResponse{User: CurrentUser(c), CSRFToken: CsrfToken(c)})
}

func (a *App) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	u, err := a.RegisterUser(req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	if err := setUserSession(c, u.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		a.metrics.logins.WithLabelValues("throttled").Inc()
		wait := a.loginLimiter.RetryAfter(ip).Round(time.Second)
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		return echo.NewHTTPError(http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	var req loginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	u, err := a.auth.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			a.loginLimiter.Record(ip)
			a.metrics.logins.WithLabelValues("failed").Inc()
			return fmt.Errorf("%w: invalid email or password", ErrUnauthorized)
		}
		return err
	}
	if err := setUserSession(c, u.ID); err != nil {
		return err
	}
	a.loginLimiter.Reset(ip)
	a.metrics.logins.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, u)
}

func (a *App) handleLogout(c echo.Context) error {
	if err := clearUserSession(c); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
