package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// MoveToSpace moves an entry to the end of its kind's scope in another
// space. Watchers of both the source and the destination scope are notified.
func (c *Coordinator) MoveToSpace(ctx context.Context, entryID, destSpaceID string) (*content.Entry, error) {
	dest := content.Normalize(destSpaceID)
	if dest == "" {
		return nil, errors.NewInvalidRequest("destination space is required")
	}
	e, err := c.entryFor(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if e.SpaceID == dest {
		return &e, nil
	}
	destScope := content.EntryScope(dest, e.Kind)
	if err := c.ensureScope(ctx, destScope); err != nil {
		return nil, err
	}

	c.mu.Lock()
	e, ok := c.lookup(entryID)
	if !ok {
		c.mu.Unlock()
		return nil, errors.NewNotFound(entryID)
	}
	srcScope := e.Scope()
	if srcScope == destScope {
		c.mu.Unlock()
		return &e, nil
	}
	src := c.scopes[srcScope.Key()]
	dst := c.scopes[destScope.Key()]

	renumber, order, err := c.slot(sequence.EntryItems(dst.entries), nil)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	prevSrc := content.CloneEntries(src.entries)
	prevDst := content.CloneEntries(dst.entries)

	// 1. Drop from the source scope.
	i := content.EntryIndex(src.entries, entryID)
	nextSrc := make([]content.Entry, 0, len(src.entries)-1)
	nextSrc = append(nextSrc, src.entries[:i]...)
	nextSrc = append(nextSrc, src.entries[i+1:]...)
	src.entries = nextSrc

	// 2. Append to the destination scope.
	e.SpaceID = dest
	e.SortOrder = order
	e.UpdatedAt = c.now()
	nextDst := applyEntryOrders(dst.entries, renumber)
	nextDst = append(nextDst, e)
	content.SortEntries(nextDst)
	dst.entries = nextDst
	c.where[entryID] = destScope.Key()

	// 3. Both scopes see the move before it is persisted.
	srcVersion := c.publishScope(src)
	dstVersion := c.publishScope(dst)

	// Only space and order change; every other field keeps its stored value.
	at := e.UpdatedAt
	done := c.submit(ctx, store.OpUpdateEntry, func(ctx context.Context) error {
		return c.store.Atomic(ctx, func(tx store.Store) error {
			if len(renumber) > 0 {
				if err := tx.ReassignOrder(ctx, destScope, renumber); err != nil {
					return err
				}
			}
			row, err := tx.GetEntry(ctx, entryID)
			if err != nil {
				return err
			}
			row.SpaceID = dest
			row.SortOrder = order
			row.UpdatedAt = at
			return tx.UpdateEntry(ctx, row)
		})
	})
	c.mu.Unlock()

	err = c.settleScopes(ctx, <-done,
		scopeChange{scope: srcScope, prev: prevSrc, version: srcVersion},
		scopeChange{scope: destScope, prev: prevDst, version: dstVersion},
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
