package search

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CategoryReference supplies the set of valid category ids.
type CategoryReference interface {
	ValidIDs(ctx context.Context) (map[int64]struct{}, error)
}

// CategoryCache holds the category reference set in memory for ttl.
// Concurrent misses share one load.
type CategoryCache struct {
	src   CategoryReference
	ttl   time.Duration
	group singleflight.Group
	now   func() time.Time

	mu       sync.RWMutex
	ids      map[int64]struct{}
	loadedAt time.Time
}

func NewCategoryCache(src CategoryReference, ttl time.Duration) *CategoryCache {
	return &CategoryCache{src: src, ttl: ttl, now: time.Now}
}

func (c *CategoryCache) ValidIDs(ctx context.Context) (map[int64]struct{}, error) {
	c.mu.RLock()
	ids, fresh := c.ids, c.ids != nil && c.now().Sub(c.loadedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return ids, nil
	}

	v, err, _ := c.group.Do("categories", func() (any, error) {
		ids, err := c.src.ValidIDs(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.ids = ids
		c.loadedAt = c.now()
		c.mu.Unlock()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[int64]struct{}), nil
}

// Invalidate drops the cached set so the next call reloads it.
func (c *CategoryCache) Invalidate() {
	c.mu.Lock()
	c.ids = nil
	c.mu.Unlock()
}
