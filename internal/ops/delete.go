package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/store"
)

// DeleteEntry removes an entry and its children. Deleting an entry that is
// already gone succeeds. The remaining entries keep their sort orders.
func (c *Coordinator) DeleteEntry(ctx context.Context, id string) error {
	if _, err := c.entryFor(ctx, id); err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}

	c.mu.Lock()
	key, ok := c.where[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	st := c.scopes[key]
	i := content.EntryIndex(st.entries, id)
	if i < 0 {
		c.mu.Unlock()
		return nil
	}
	prev := content.CloneEntries(st.entries)
	next := make([]content.Entry, 0, len(st.entries)-1)
	next = append(next, st.entries[:i]...)
	next = append(next, st.entries[i+1:]...)
	st.entries = next
	delete(c.where, id)
	version := c.publishScope(st)

	done := c.submit(ctx, store.OpDeleteEntry, func(ctx context.Context) error {
		return c.store.DeleteEntry(ctx, id)
	})
	c.mu.Unlock()

	err := c.settleScopes(ctx, <-done, scopeChange{scope: st.scope, prev: prev, version: version})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.kids.Watched(content.ChildScope(id).Key()) {
		c.cache.Put(id, nil)
		c.publishChildren(id)
	}
	c.cache.Forget(id)
	c.dropChildren(id)
	c.mu.Unlock()
	return nil
}
