// Package cache keeps the child collections of parents that are being viewed.
//
// It is not an LRU: a collection stays until it is invalidated or forgotten.
// Every write bumps a per-parent generation so a fetch that started before
// the write cannot overwrite it when it returns.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/shelf/internal/content"
)

// FetchFunc loads the live children of a parent from the store.
type FetchFunc func(ctx context.Context) ([]content.Child, error)

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]content.Child
	gen     map[string]uint64
	group   singleflight.Group
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string][]content.Child),
		gen:     make(map[string]uint64),
	}
}

// Get returns a copy of the cached children. The second value is false when
// the parent is not loaded.
func (c *Cache) Get(parentID string) ([]content.Child, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	children, ok := c.entries[parentID]
	if !ok {
		return nil, false
	}
	return cloneNonNil(children), true
}

// Put replaces the cached children of parentID.
func (c *Cache) Put(parentID string, children []content.Child) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[parentID]++
	c.entries[parentID] = cloneNonNil(children)
}

// Invalidate drops the cached children; the next Load fetches again.
func (c *Cache) Invalidate(parentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[parentID]++
	delete(c.entries, parentID)
}

// Forget releases a parent nobody is viewing anymore.
func (c *Cache) Forget(parentID string) {
	c.Invalidate(parentID)
}

// Loaded reports whether parentID has a cached collection.
func (c *Cache) Loaded(parentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[parentID]
	return ok
}

// Len returns the number of cached parents.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Load returns the cached children or fetches them. Concurrent loads of one
// parent share a single fetch.
func (c *Cache) Load(ctx context.Context, parentID string, fetch FetchFunc) ([]content.Child, error) {
	if children, ok := c.Get(parentID); ok {
		return children, nil
	}

	v, err, _ := c.group.Do(parentID, func() (any, error) {
		c.mu.Lock()
		start := c.gen[parentID]
		c.mu.Unlock()

		children, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen[parentID] != start {
			// A write landed while we were fetching; it is newer than us.
			if cur, ok := c.entries[parentID]; ok {
				return cloneNonNil(cur), nil
			}
			return cloneNonNil(children), nil
		}
		c.entries[parentID] = cloneNonNil(children)
		return cloneNonNil(children), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneNonNil(v.([]content.Child)), nil
}

func cloneNonNil(children []content.Child) []content.Child {
	out := make([]content.Child, len(children))
	copy(out, children)
	return out
}
