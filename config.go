package nomadlabs

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SiteConfig holds all configuration for a Nomad Labs server.
type SiteConfig struct {
	Name        string // Site name (default "Nomad Labs")
	URL         string // Canonical URL (default "http://localhost:3000")
	Description string // Site description for RSS

	Addr         string // Listen address (default ":3000")
	DatabasePath string // SQLite path (default "data/nomadlabs.db")

	AnalyticsEnabled      bool   // Record post reads
	AnalyticsDatabasePath string // Analytics SQLite path (default "data/analytics.db")

	SessionSecret string // Required: session encryption secret
	CookieSecure  bool   // Set true for HTTPS

	PostCacheTTL time.Duration // Published post cache TTL (default 5min)
	RedisURL     string        // Shared render cache; in-process cache when empty
	UploadDir    string        // Cover image directory (default "data/uploads")
	LogLevel     string        // debug, info, warn, error (default "info")

	CommentsPerMinute int // Per-user comment throttle (default 6)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Nomad Labs"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/nomadlabs.db"
	}
	if c.AnalyticsDatabasePath == "" {
		c.AnalyticsDatabasePath = "data/analytics.db"
	}
	if c.PostCacheTTL == 0 {
		c.PostCacheTTL = 5 * time.Minute
	}
	if c.UploadDir == "" {
		c.UploadDir = "data/uploads"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CommentsPerMinute <= 0 {
		c.CommentsPerMinute = 6
	}
}

// ConfigFromEnv reads NOMADLABS_* environment variables.
func ConfigFromEnv() SiteConfig {
	cfg := SiteConfig{
		Name:                  os.Getenv("NOMADLABS_NAME"),
		URL:                   os.Getenv("NOMADLABS_URL"),
		Description:           EnvOr("NOMADLABS_DESCRIPTION", "Research notes, papers and lab logs."),
		Addr:                  os.Getenv("NOMADLABS_ADDR"),
		DatabasePath:          os.Getenv("NOMADLABS_DATABASE_PATH"),
		AnalyticsEnabled:      EnvOr("NOMADLABS_ANALYTICS_ENABLED", "true") == "true",
		AnalyticsDatabasePath: os.Getenv("NOMADLABS_ANALYTICS_DATABASE_PATH"),
		SessionSecret:         os.Getenv("NOMADLABS_SESSION_SECRET"),
		CookieSecure:          os.Getenv("NOMADLABS_COOKIE_SECURE") == "true",
		RedisURL:              os.Getenv("NOMADLABS_REDIS_URL"),
		UploadDir:             os.Getenv("NOMADLABS_UPLOAD_DIR"),
		LogLevel:              os.Getenv("NOMADLABS_LOG_LEVEL"),
	}
	if d, err := time.ParseDuration(os.Getenv("NOMADLABS_POST_CACHE_TTL")); err == nil {
		cfg.PostCacheTTL = d
	}
	if n, err := strconv.Atoi(os.Getenv("NOMADLABS_COMMENT_RATE")); err == nil {
		cfg.CommentsPerMinute = n
	}
	return cfg
}

// fileConfig mirrors SiteConfig for YAML files. Pointer fields distinguish
// "unset" from false.
type fileConfig struct {
	Name                  string `yaml:"name"`
	URL                   string `yaml:"url"`
	Description           string `yaml:"description"`
	Addr                  string `yaml:"addr"`
	DatabasePath          string `yaml:"database_path"`
	AnalyticsEnabled      *bool  `yaml:"analytics_enabled"`
	AnalyticsDatabasePath string `yaml:"analytics_database_path"`
	SessionSecret         string `yaml:"session_secret"`
	CookieSecure          *bool  `yaml:"cookie_secure"`
	PostCacheTTL          string `yaml:"post_cache_ttl"`
	RedisURL              string `yaml:"redis_url"`
	UploadDir             string `yaml:"upload_dir"`
	LogLevel              string `yaml:"log_level"`
	CommentRate           int    `yaml:"comment_rate"`
}

// LoadConfigFile overlays the non-empty fields of the YAML file at path on cfg.
func LoadConfigFile(path string, cfg *SiteConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	setIf := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setIf(&cfg.Name, fc.Name)
	setIf(&cfg.URL, fc.URL)
	setIf(&cfg.Description, fc.Description)
	setIf(&cfg.Addr, fc.Addr)
	setIf(&cfg.DatabasePath, fc.DatabasePath)
	setIf(&cfg.AnalyticsDatabasePath, fc.AnalyticsDatabasePath)
	setIf(&cfg.SessionSecret, fc.SessionSecret)
	setIf(&cfg.RedisURL, fc.RedisURL)
	setIf(&cfg.UploadDir, fc.UploadDir)
	setIf(&cfg.LogLevel, fc.LogLevel)
	if fc.AnalyticsEnabled != nil {
		cfg.AnalyticsEnabled = *fc.AnalyticsEnabled
	}
	if fc.CookieSecure != nil {
		cfg.CookieSecure = *fc.CookieSecure
	}
	if fc.PostCacheTTL != "" {
		d, err := time.ParseDuration(fc.PostCacheTTL)
		if err != nil {
			return fmt.Errorf("parse post_cache_ttl: %w", err)
		}
		cfg.PostCacheTTL = d
	}
	if fc.CommentRate > 0 {
		cfg.CommentsPerMinute = fc.CommentRate
	}
	return nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithAuthenticator replaces the bundled password authenticator, e.g. with
// an external identity provider.
func WithAuthenticator(auth Authenticator) Option {
	return func(a *App) {
		a.auth = auth
	}
}

// WithRenderCache sets the cache used for rendered markdown.
func WithRenderCache(cache RenderCache) Option {
	return func(a *App) {
		a.renderCache = cache
	}
}
