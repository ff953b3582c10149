package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// Reorder moves the row at oldIndex of the displayed scope to newIndex.
// The displayed list is used even if the store has changed underneath it;
// the scope is loaded first when it was never displayed.
func (c *Coordinator) Reorder(ctx context.Context, scope content.Scope, oldIndex, newIndex int) error {
	if err := scope.Validate(); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if scope.IsChildScope() {
		return c.reorderChildren(ctx, scope.ParentID, oldIndex, newIndex)
	}
	if err := c.ensureScope(ctx, scope); err != nil {
		return err
	}

	c.mu.Lock()
	st := c.scopes[scope.Key()]
	assignments, err := c.seq.PlanMove(sequence.EntryItems(st.entries), oldIndex, newIndex)
	if err != nil || len(assignments) == 0 {
		c.mu.Unlock()
		return err
	}

	prev := content.CloneEntries(st.entries)
	st.entries = applyEntryOrders(moved(st.entries, oldIndex, newIndex), assignments)
	version := c.publishScope(st)

	done := c.submit(ctx, store.OpReassignOrder, func(ctx context.Context) error {
		return c.store.ReassignOrder(ctx, scope, assignments)
	})
	c.mu.Unlock()

	return c.settleScopes(ctx, <-done, scopeChange{scope: scope, prev: prev, version: version})
}

// renumberEntries rewrites the displayed order of scope to multiples of the
// step. It returns how many rows changed.
func (c *Coordinator) renumberEntries(ctx context.Context, scope content.Scope) (int, error) {
	if err := c.ensureScope(ctx, scope); err != nil {
		return 0, err
	}

	c.mu.Lock()
	st := c.scopes[scope.Key()]
	items := sequence.EntryItems(st.entries)
	sequence.Sort(items)
	assignments := c.seq.Renumber(items)
	if len(assignments) == 0 {
		c.mu.Unlock()
		return 0, nil
	}

	prev := content.CloneEntries(st.entries)
	next := applyEntryOrders(st.entries, assignments)
	content.SortEntries(next)
	st.entries = next
	version := c.publishScope(st)

	done := c.submit(ctx, store.OpReassignOrder, func(ctx context.Context) error {
		return c.store.ReassignOrder(ctx, scope, assignments)
	})
	c.mu.Unlock()

	err := <-done
	if err != nil {
		return 0, c.settleScopes(ctx, err, scopeChange{scope: scope, prev: prev, version: version})
	}
	c.notify(ctx, scope)
	return len(assignments), nil
}
