package nomadlabs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/nomadlabs/nomadlabs/markdown"
)

// RenderCache stores rendered markdown keyed by content hash.
type RenderCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, html string)
	Close() error
}

// LocalRenderCache keeps rendered HTML in process memory, bounded by size.
type LocalRenderCache struct {
	cache *ristretto.Cache[string, string]
}

// NewLocalRenderCache creates an in-process cache holding about maxBytes of HTML.
func NewLocalRenderCache(maxBytes int64) (*LocalRenderCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: 100_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create render cache: %w", err)
	}
	return &LocalRenderCache{cache: c}, nil
}

func (l *LocalRenderCache) Get(_ context.Context, key string) (string, bool) {
	return l.cache.Get(key)
}

func (l *LocalRenderCache) Set(_ context.Context, key, html string) {
	l.cache.Set(key, html, int64(len(html)))
}

// Wait blocks until buffered writes are applied.
func (l *LocalRenderCache) Wait() {
	l.cache.Wait()
}

func (l *LocalRenderCache) Close() error {
	l.cache.Close()
	return nil
}

// RedisRenderCache shares rendered HTML between server instances.
type RedisRenderCache struct {
	rdb *redis.Client
	ttl time.Duration
}

const renderKeyPrefix = "nomadlabs:render:"

// NewRedisRenderCache connects to the Redis server at url
// (redis://[:password@]host:port/db).
func NewRedisRenderCache(ctx context.Context, url string, ttl time.Duration) (*RedisRenderCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisRenderCache{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisRenderCache) Get(ctx context.Context, key string) (string, bool) {
	html, err := r.rdb.Get(ctx, renderKeyPrefix+key).Result()
	if err != nil {
		return "", false
	}
	return html, true
}

func (r *RedisRenderCache) Set(ctx context.Context, key, html string) {
	r.rdb.Set(ctx, renderKeyPrefix+key, html, r.ttl)
}

func (r *RedisRenderCache) Close() error {
	return r.rdb.Close()
}

// Renderer renders markdown through a RenderCache. Concurrent renders of
// identical content share one render.
type Renderer struct {
	cache   RenderCache
	group   singleflight.Group
	metrics *metrics
}

// NewRenderer creates a Renderer. A nil cache disables caching.
func NewRenderer(cache RenderCache, m *metrics) *Renderer {
	return &Renderer{cache: cache, metrics: m}
}

// Render returns the HTML for md.
func (r *Renderer) Render(ctx context.Context, md string) string {
	key := contentKey(md)
	if r.cache != nil {
		if html, ok := r.cache.Get(ctx, key); ok {
			r.metrics.renderLookup("hit")
			return html
		}
	}
	r.metrics.renderLookup("miss")
	v, _, _ := r.group.Do(key, func() (any, error) {
		html := markdown.Render(md)
		if r.cache != nil {
			r.cache.Set(context.WithoutCancel(ctx), key, html)
		}
		return html, nil
	})
	return v.(string)
}

func contentKey(md string) string {
	sum := sha256.Sum256([]byte(md))
	return hex.EncodeToString(sum[:])
}

// newRenderCache picks the Redis cache when url is set, else the local one.
func newRenderCache(ctx context.Context, url string) (RenderCache, error) {
	if url != "" {
		c, err := NewRedisRenderCache(ctx, url, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	c, err := NewLocalRenderCache(64 << 20)
	if err != nil {
		return nil, err
	}
	return c, nil
}
