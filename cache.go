package nomadlabs

import (
	"slices"
	"sync"
	"time"
)

// catalog is one loaded view of the published site: posts newest first,
// indexed by slug and by tag.
type catalog struct {
	posts    []Post
	tags     []TagCount
	bySlug   map[string]int
	byTag    map[string][]int
	loadedAt time.Time
}

func newCatalog(posts []Post, tags []TagCount, now time.Time) *catalog {
	if posts == nil {
		posts = []Post{}
	}
	if tags == nil {
		tags = []TagCount{}
	}
	cat := &catalog{
		posts:    posts,
		tags:     tags,
		bySlug:   make(map[string]int, len(posts)),
		byTag:    make(map[string][]int),
		loadedAt: now,
	}
	for i, p := range posts {
		cat.bySlug[p.Slug] = i
		for _, t := range p.Tags {
			keys := []string{t.Slug}
			if name := normalizeTag(t.Name); name != t.Slug {
				keys = append(keys, name)
			}
			for _, k := range keys {
				if idx := cat.byTag[k]; len(idx) == 0 || idx[len(idx)-1] != i {
					cat.byTag[k] = append(idx, i)
				}
			}
		}
	}
	return cat
}

// tagged returns the posts carrying tag, matched by name or slug.
func (cat *catalog) tagged(tag string) []Post {
	idx := slices.Concat(cat.byTag[normalizeTag(tag)], cat.byTag[Slugify(tag)])
	slices.Sort(idx)
	idx = slices.Compact(idx)
	out := make([]Post, 0, len(idx))
	for _, i := range idx {
		out = append(out, cat.posts[i])
	}
	return out
}

// PostCache keeps the published catalog in memory and reloads it from the
// Store once the TTL passes or after Invalidate.
type PostCache struct {
	mu    sync.RWMutex
	cat   *catalog
	ttl   time.Duration
	store *Store
}

// NewPostCache creates a PostCache backed by the given Store.
func NewPostCache(s *Store, ttl time.Duration) *PostCache {
	return &PostCache{store: s, ttl: ttl}
}

func (c *PostCache) fresh() bool {
	return c.cat != nil && time.Since(c.cat.loadedAt) < c.ttl
}

// Invalidate drops the catalog; the next read reloads it.
func (c *PostCache) Invalidate() {
	c.mu.Lock()
	c.cat = nil
	c.mu.Unlock()
}

// current returns a fresh catalog. Readers share the read lock; a stale
// catalog is rebuilt under the write lock by whichever reader gets there first.
func (c *PostCache) current() (*catalog, error) {
	c.mu.RLock()
	if c.fresh() {
		cat := c.cat
		c.mu.RUnlock()
		return cat, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() {
		return c.cat, nil
	}
	posts, err := c.store.ListPublished()
	if err != nil {
		return nil, err
	}
	tags, err := c.store.ListTags()
	if err != nil {
		return nil, err
	}
	c.cat = newCatalog(posts, tags, time.Now())
	return c.cat, nil
}

// ListPosts returns published posts, optionally filtered by tag name or slug.
// An unfiltered result is shared; callers must not modify it.
func (c *PostCache) ListPosts(tag string) ([]Post, error) {
	cat, err := c.current()
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return cat.posts, nil
	}
	return cat.tagged(tag), nil
}

// ListTags returns tags of published posts with counts.
func (c *PostCache) ListTags() ([]TagCount, error) {
	cat, err := c.current()
	if err != nil {
		return nil, err
	}
	return cat.tags, nil
}

// GetPost returns a published post by slug.
func (c *PostCache) GetPost(slug string) (Post, error) {
	cat, err := c.current()
	if err != nil {
		return Post{}, err
	}
	i, ok := cat.bySlug[slug]
	if !ok {
		return Post{}, ErrNotFound
	}
	return cat.posts[i], nil
}
