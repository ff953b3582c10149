package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/aggregate"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/store"
)

// ReconcileOutput contains the result of the Reconcile operation.
type ReconcileOutput struct {
	ParentID string           `json:"parent_id"`
	Counters content.Counters `json:"counters"`
	Repaired bool             `json:"repaired"`
}

// Reconcile recounts a parent from its stored children and persists the
// counters if they were wrong. It runs behind every queued write, so it sees
// the result of all commands issued before it.
func (c *Coordinator) Reconcile(ctx context.Context, parentID string) (*ReconcileOutput, error) {
	if parentID == "" {
		return nil, errors.NewInvalidRequest("parent_id is required")
	}

	var (
		parent   content.Entry
		children []content.Child
		repaired bool
	)
	c.mu.Lock()
	done := c.submit(ctx, store.OpAtomic, func(ctx context.Context) error {
		return c.store.Atomic(ctx, func(tx store.Store) error {
			p, err := tx.GetEntry(ctx, parentID)
			if err != nil {
				return err
			}
			if !p.Kind.HasChildren() {
				return errors.NewInvalidRequest(string(p.Kind) + " entries have no counters")
			}
			kids, err := tx.ListChildren(ctx, parentID)
			if err != nil {
				return err
			}
			counters := aggregate.Recompute(kids)
			repaired = counters != p.Counters
			if repaired {
				p.Counters = counters
				p.UpdatedAt = c.now()
				if err := tx.SetCounters(ctx, parentID, counters, p.UpdatedAt); err != nil {
					return err
				}
			}
			parent, children = *p, kids
			return nil
		})
	})
	c.mu.Unlock()
	if err := <-done; err != nil {
		return nil, err
	}

	if repaired {
		c.log.Warn("parent counters repaired", "parent_id", parentID,
			"total", parent.Counters.Total, "completed", parent.Counters.Completed)
	}

	c.mu.Lock()
	c.replaceEntry(parent)
	c.cache.Invalidate(parentID)
	if c.kids.Watched(content.ChildScope(parentID).Key()) {
		c.cache.Put(parentID, children)
	}
	c.publishChildren(parentID)
	c.mu.Unlock()

	if repaired {
		c.notify(ctx, content.ChildScope(parentID), parent.Scope())
	}
	return &ReconcileOutput{ParentID: parentID, Counters: parent.Counters, Repaired: repaired}, nil
}
