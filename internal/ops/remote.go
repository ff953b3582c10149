package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/bus"
	"github.com/hpungsan/shelf/internal/content"
)

// Listen starts receiving change notices from other processes. Scopes this
// process displays are refreshed from the store when another process changes
// them. It is a no-op without a forwarder.
func (c *Coordinator) Listen(ctx context.Context) error {
	if c.fwd == nil {
		return nil
	}
	return c.fwd.Start(ctx, func(n bus.Notice) {
		c.onNotice(context.WithoutCancel(ctx), n)
	})
}

func (c *Coordinator) onNotice(ctx context.Context, n bus.Notice) {
	if n.Origin == c.origin || n.Owner != c.owner {
		return
	}

	if n.Scope.IsChildScope() {
		if !c.cache.Loaded(n.Scope.ParentID) {
			return
		}
		c.log.Debug("remote change", "scope", n.Scope.Key())
		c.reloadChildren(ctx, n.Scope.ParentID)
		c.refreshParent(ctx, n.Scope.ParentID)
		return
	}

	c.mu.Lock()
	_, displayed := c.scopes[n.Scope.Key()]
	c.mu.Unlock()
	if !displayed {
		return
	}
	c.log.Debug("remote change", "scope", n.Scope.Key())
	_ = c.refreshScope(ctx, n.Scope)
}

// refreshParent reloads the scope that displays parentID.
func (c *Coordinator) refreshParent(ctx context.Context, parentID string) {
	c.mu.Lock()
	key, ok := c.where[parentID]
	var scope content.Scope
	if ok {
		scope = c.scopes[key].scope
	}
	c.mu.Unlock()
	if ok {
		_ = c.refreshScope(ctx, scope)
	}
}
