package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/bus"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/store"
)

// Scope returns the displayed entries of a scope, loading it on first use.
func (c *Coordinator) Scope(ctx context.Context, spaceID string, kind content.Kind) ([]content.Entry, error) {
	scope, err := entryScope(spaceID, kind)
	if err != nil {
		return nil, err
	}
	if err := c.ensureScope(ctx, scope); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return content.CloneEntries(c.scopes[scope.Key()].entries), nil
}

// Entry returns one displayed entry.
func (c *Coordinator) Entry(ctx context.Context, id string) (*content.Entry, error) {
	e, err := c.entryFor(ctx, id)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Children returns the displayed children of a parent, loading them on
// first use.
func (c *Coordinator) Children(ctx context.Context, parentID string) ([]content.Child, error) {
	parent, err := c.entryFor(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.Kind.HasChildren() {
		return nil, errors.NewInvalidRequest(string(parent.Kind) + " entries cannot have children")
	}
	return c.loadChildren(ctx, parentID)
}

// WatchScope subscribes to a scope. The first value is the current
// displayed state.
func (c *Coordinator) WatchScope(ctx context.Context, spaceID string, kind content.Kind) (*bus.Subscription[ScopeView], error) {
	scope, err := entryScope(spaceID, kind)
	if err != nil {
		return nil, err
	}
	sub := c.entries.Subscribe(scope.Key())
	if err := c.ensureScope(ctx, scope); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// WatchChildren subscribes to the children of a parent. Until they are
// fetched watchers see a view with Loaded false.
func (c *Coordinator) WatchChildren(ctx context.Context, parentID string) (*bus.Subscription[ChildrenView], error) {
	parent, err := c.entryFor(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.Kind.HasChildren() {
		return nil, errors.NewInvalidRequest(string(parent.Kind) + " entries cannot have children")
	}

	key := content.ChildScope(parentID).Key()
	sub := c.kids.Subscribe(key)
	if _, ok := c.kids.Latest(key); !ok {
		c.mu.Lock()
		c.publishChildren(parentID)
		c.mu.Unlock()
	}
	if _, err := c.loadChildren(ctx, parentID); err != nil {
		sub.Close()
		return nil, err
	}
	return sub, nil
}

// Forget releases the children of a parent that is no longer viewed.
func (c *Coordinator) Forget(parentID string) {
	if c.kids.Subscribers(content.ChildScope(parentID).Key()) > 0 {
		return
	}
	c.mu.Lock()
	c.cache.Forget(parentID)
	c.dropChildren(parentID)
	c.mu.Unlock()
}

// ListSpaces returns the spaces that hold live entries.
func (c *Coordinator) ListSpaces(ctx context.Context) ([]string, error) {
	var spaces []string
	err := c.read(ctx, store.OpListSpaces, func(ctx context.Context) error {
		var err error
		spaces, err = c.store.ListSpaces(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return spaces, nil
}

func entryScope(spaceID string, kind content.Kind) (content.Scope, error) {
	scope := content.EntryScope(content.Normalize(spaceID), kind)
	if err := scope.Validate(); err != nil {
		return content.Scope{}, errors.NewInvalidRequest(err.Error())
	}
	return scope, nil
}
