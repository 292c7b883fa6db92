// Package nomadlabs is the server for the Nomad Labs research publishing
// platform: papers, articles and lab notes written in markdown, with
// threaded discussions, reactions, follows and an admin dashboard.
//
// The App type wires the SQLite store, caches, middleware and the JSON API
// onto an Echo instance. Rendering of post content lives in the markdown
// subpackage and read counting in analytics.
package nomadlabs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/nomadlabs/nomadlabs/analytics"
)

// App is the central Nomad Labs application. It wires together the store,
// caches, handlers, and middleware.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Store    *Store
	Cache    *PostCache
	Renderer *Renderer

	auth             Authenticator
	renderCache      RenderCache
	loginLimiter     *LoginLimiter
	commentThrottle  *UserThrottle
	analyticsStore   *analytics.Store
	analyticsHandler *analytics.Handler
	metrics          *metrics
	stopCleanup      func()
	customRoutes     []func(*App)
}

// New creates a new App with the given configuration.
func New(cfg SiteConfig, opts ...Option) *App {
	cfg.setDefaults()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(parseLogLevel(cfg.LogLevel))

	a := &App{
		Config:  cfg,
		Echo:    e,
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func parseLogLevel(s string) log.Lvl {
	switch strings.ToLower(s) {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// Setup opens the databases and registers middleware and routes. Start calls
// it; tests call it directly and serve a.Echo.
func (a *App) Setup() error {
	if a.Config.SessionSecret == "" {
		return errors.New("nomadlabs: SessionSecret is required")
	}

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("nomadlabs: init store: %w", err)
	}
	a.Store = store
	a.Cache = NewPostCache(a.Store, a.Config.PostCacheTTL)

	if a.auth == nil {
		a.auth = PasswordAuthenticator{Store: a.Store}
	}

	if a.renderCache == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := newRenderCache(ctx, a.Config.RedisURL)
		cancel()
		if err != nil {
			return fmt.Errorf("nomadlabs: init render cache: %w", err)
		}
		a.renderCache = rc
	}
	a.Renderer = NewRenderer(a.renderCache, a.metrics)

	a.loginLimiter = NewLoginLimiter(5, time.Minute)
	a.commentThrottle = NewUserThrottle(a.Config.CommentsPerMinute, a.Config.CommentsPerMinute)

	if a.Config.AnalyticsEnabled {
		as, err := analytics.NewStore(a.Config.AnalyticsDatabasePath)
		if err != nil {
			return fmt.Errorf("nomadlabs: init analytics: %w", err)
		}
		a.analyticsStore = as
		if err := analytics.InitSalt(as); err != nil {
			return fmt.Errorf("nomadlabs: init analytics salt: %w", err)
		}
		a.stopCleanup = as.StartCleanupScheduler(365, 24*time.Hour)
		a.analyticsHandler = analytics.NewHandler(as, func(slug string) bool {
			_, err := a.Cache.GetPost(slug)
			return err == nil
		})
	}

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start sets the app up and serves until the server is shut down.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	if err := a.Echo.Start(a.Config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static("/uploads", a.Config.UploadDir)
	e.GET("/robots.txt", a.handleRobots)
	e.GET("/sitemap.xml", a.handleSitemap)
	e.GET("/feed.xml", a.handleFeed)
	e.GET("/healthz", a.handleHealth)
	e.GET("/metrics", a.metrics.handler())

	api := e.Group("/api")

	api.GET("/session", a.handleSession)
	api.POST("/auth/register", a.handleRegister)
	api.POST("/auth/login", a.handleLogin)
	api.POST("/auth/logout", a.handleLogout)

	api.GET("/posts", a.handleListPosts)
	api.GET("/explore", a.handleExplore)
	api.GET("/feed", a.handleHomeFeed)
	api.GET("/posts/:slug", a.handleGetPost)
	api.GET("/posts/:slug/html", a.handlePostHTML)
	api.POST("/posts", a.handleCreatePost, requireRole(RoleAuthor))
	api.PUT("/posts/:id", a.handleUpdatePost, requireUser)
	api.DELETE("/posts/:id", a.handleDeletePost, requireUser)
	api.POST("/preview", a.handlePreview, requireUser)
	api.GET("/tags", a.handleListTags)

	api.GET("/posts/:id/comments", a.handleListComments)
	api.POST("/posts/:id/comments", a.handleCreateComment, requireMember)
	api.PUT("/comments/:id", a.handleUpdateComment, requireUser)
	api.DELETE("/comments/:id", a.handleDeleteComment, requireUser)
	api.POST("/comments/:id/reactions", a.handleToggleReaction, requireMember)

	api.PUT("/users/me", a.handleUpdateProfile, requireUser)
	api.GET("/users/:id", a.handleGetProfile)
	api.POST("/users/:id/follow", a.handleFollowUser, requireMember)
	api.POST("/tags/:name/follow", a.handleFollowTag, requireMember)

	api.GET("/images", a.handleImageList, requireRole(RoleAuthor))
	api.POST("/images", a.handleImageUpload, requireRole(RoleAuthor))
	api.DELETE("/images/:filename", a.handleImageDelete, requireRole(RoleAuthor))

	admin := api.Group("/admin", requireRole(RoleAdmin))
	admin.GET("/status", a.handleAdminStatus)
	admin.GET("/posts", a.handleAdminPosts)
	admin.POST("/posts/:id/featured", a.handleToggleFeatured)
	admin.POST("/posts/:id/pinned", a.handleTogglePinned)
	admin.GET("/users", a.handleAdminUsers)
	admin.PUT("/users/:id/role", a.handleSetRole)
	admin.DELETE("/users/:id", a.handleAdminDeleteUser)
	admin.PUT("/tags/:slug/type", a.handleSetTagType)

	if a.analyticsHandler != nil {
		a.analyticsHandler.RegisterRoutes(e, requireRole(RoleAdmin))
	}
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.analyticsHandler != nil {
		a.analyticsHandler.Close()
	}
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	var errs []error
	if a.renderCache != nil {
		errs = append(errs, a.renderCache.Close())
	}
	if a.analyticsStore != nil {
		errs = append(errs, a.analyticsStore.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
