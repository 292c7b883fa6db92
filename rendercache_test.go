package nomadlabs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRenderCache(t *testing.T) {
	c, err := NewLocalRenderCache(1 << 20)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", "<p>hi</p>")
	c.Wait()

	html, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "<p>hi</p>", html)
}

func TestRedisRenderCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewRedisRenderCache(ctx, "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", "<p>shared</p>")
	html, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "<p>shared</p>", html)
	assert.True(t, mr.Exists(renderKeyPrefix+"k"))

	mr.FastForward(2 * time.Hour)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "entries expire after the ttl")
}

func TestRedisRenderCacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedisRenderCache(ctx, "redis://"+addr, time.Hour)
	assert.Error(t, err)

	_, err = NewRedisRenderCache(ctx, "not-a-url", time.Hour)
	assert.ErrorContains(t, err, "parse redis url")
}

func TestRendererCachesOutput(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cache, err := NewRedisRenderCache(ctx, "redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	m := newMetrics()
	r := NewRenderer(cache, m)
	md := "# Title\n\nSome *text*."

	first := r.Render(ctx, md)
	assert.Contains(t, first, "<em>text</em>")
	second := r.Render(ctx, md)
	assert.Equal(t, first, second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.renderLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.renderLookups.WithLabelValues("hit")))

	cached, ok := cache.Get(ctx, contentKey(md))
	require.True(t, ok)
	assert.Equal(t, first, cached)
}

func TestRendererWithoutCache(t *testing.T) {
	r := NewRenderer(nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Render(ctx, "plain **bold**")
		}(i)
	}
	wg.Wait()
	for _, html := range results {
		assert.Contains(t, html, "<strong>bold</strong>")
	}
}

func TestNewRenderCacheChoosesBackend(t *testing.T) {
	ctx := context.Background()

	local, err := newRenderCache(ctx, "")
	require.NoError(t, err)
	defer local.Close()
	assert.IsType(t, &LocalRenderCache{}, local)

	mr := miniredis.RunT(t)
	remote, err := newRenderCache(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	defer remote.Close()
	assert.IsType(t, &RedisRenderCache{}, remote)
}
