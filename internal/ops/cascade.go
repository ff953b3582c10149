package ops

import (
	"context"
	stderrors "errors"

	"github.com/hpungsan/shelf/internal/aggregate"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// errNoop tells applyChildMutation that the plan changes nothing.
var errNoop = stderrors.New("no change")

// childPlan is the outcome of a child mutation computed from the displayed
// parent and children.
type childPlan struct {
	children []content.Child
	counters content.Counters
	write    func(ctx context.Context, tx store.Store) error
}

// childMutation describes one child command. keep is set for in-place
// mutations whose optimistic children are final, so the cache keeps them;
// every other mutation reloads the children after it lands.
type childMutation struct {
	op       string
	parentID string
	keep     bool
	plan     func(parent content.Entry, children []content.Child) (childPlan, error)
}

// applyChildMutation is the single path every child command takes. It
// publishes the new children and parent counters, then writes both in one
// atomic unit. Only the parent's counters are written, never fields another
// pending command may have edited. A commit with unknown outcome schedules a reconciliation of
// the parent.
func (c *Coordinator) applyChildMutation(ctx context.Context, m childMutation) error {
	parent, err := c.entryFor(ctx, m.parentID)
	if err != nil {
		return err
	}
	if !parent.Kind.HasChildren() {
		return errors.NewInvalidRequest(string(parent.Kind) + " entries cannot have children")
	}
	loaded, err := c.loadChildren(ctx, m.parentID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	parent, ok := c.lookup(m.parentID)
	if !ok {
		c.mu.Unlock()
		return errors.NewNotFound(m.parentID)
	}
	children, ok := c.cache.Get(m.parentID)
	if !ok {
		children = loaded
	}

	p, err := m.plan(parent, children)
	if err != nil {
		c.mu.Unlock()
		if stderrors.Is(err, errNoop) {
			return nil
		}
		return err
	}

	prevParent := parent
	scopeKey := c.where[m.parentID]
	prevScope := content.CloneEntries(c.scopes[scopeKey].entries)
	scopeVersion := c.scopeVersion(scopeKey)

	writeParent := p.counters != parent.Counters
	parentRow := parent
	if writeParent {
		parentRow = aggregate.ApplyToEntry(parent, p.counters)
		parentRow.UpdatedAt = c.now()
		scopeVersion = c.replaceEntry(parentRow)
	}
	c.cache.Put(m.parentID, p.children)
	childVersion := c.publishChildren(m.parentID)

	done := c.submit(ctx, m.op, func(ctx context.Context) error {
		return c.store.Atomic(ctx, func(tx store.Store) error {
			if err := p.write(ctx, tx); err != nil {
				return err
			}
			if !writeParent {
				return nil
			}
			return tx.SetCounters(ctx, m.parentID, parentRow.Counters, parentRow.UpdatedAt)
		})
	})
	c.mu.Unlock()

	err = <-done
	if err == nil {
		if !m.keep {
			c.mu.Lock()
			if c.childVer[m.parentID] == childVersion {
				c.mu.Unlock()
				c.reloadChildren(ctx, m.parentID)
			} else {
				c.mu.Unlock()
			}
		}
		c.checkChildren(ctx, m.parentID)
		c.notify(ctx, content.ChildScope(m.parentID), prevParent.Scope())
		return nil
	}

	switch {
	case store.IsCommitUnknown(err):
		c.log.Warn("commit outcome unknown, reconciling parent", "parent_id", m.parentID, "error", err)
		if _, rerr := c.Reconcile(ctx, m.parentID); rerr != nil {
			c.log.Error("reconcile after unknown commit failed", "parent_id", m.parentID, "error", rerr)
		}
	case errors.KindOf(err) == errors.KindNotFound:
		c.rollbackChildren(m.parentID, childVersion, children, scopeKey, scopeVersion, prevScope)
		_ = c.refreshScope(ctx, prevParent.Scope())
		c.reloadChildren(ctx, m.parentID)
	default:
		c.log.Warn("child write failed, rolling back",
			"parent_id", m.parentID, "kind", errors.KindOf(err).String(), "error", err)
		if stale := c.rollbackChildren(m.parentID, childVersion, children, scopeKey, scopeVersion, prevScope); stale {
			_ = c.refreshScope(ctx, prevParent.Scope())
		}
	}
	return err
}

// rollbackChildren restores the children and parent shown before a failed
// mutation. Children a later command changed are reloaded on next use; it
// reports whether the parent's scope changed too and needs a refresh.
func (c *Coordinator) rollbackChildren(parentID string, childVersion uint64, prevChildren []content.Child,
	scopeKey string, scopeVersion uint64, prevScope []content.Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := false
	if st, ok := c.scopes[scopeKey]; ok {
		if st.version == scopeVersion {
			c.install(st.scope, prevScope)
		} else {
			stale = true
		}
	}
	if c.childVer[parentID] == childVersion {
		c.cache.Put(parentID, prevChildren)
	} else {
		c.cache.Invalidate(parentID)
	}
	c.publishChildren(parentID)
	return stale
}

// checkChildren verifies the displayed children of parentID: their order
// and the parent's counters. A broken order is renumbered and wrong counters
// are reconciled.
func (c *Coordinator) checkChildren(ctx context.Context, parentID string) {
	children, ok := c.cache.Get(parentID)
	if !ok {
		return
	}
	c.mu.Lock()
	parent, found := c.lookup(parentID)
	c.mu.Unlock()

	if err := sequence.Verify(sequence.ChildItems(children)); err != nil {
		scope := content.ChildScope(parentID)
		c.log.Error("child order check failed, renumbering",
			"error", errors.NewConsistency(scope.Key(), err.Error()))
		if _, err := c.renumberChildren(ctx, parentID); err != nil {
			c.log.Error("renumber failed", "scope", scope.Key(), "error", err)
		}
	}
	if found && !aggregate.Matches(parent, children) {
		c.log.Error("counter check failed, reconciling",
			"error", errors.NewConsistency(content.ChildScope(parentID).Key(), "counters do not match children"))
		if _, err := c.Reconcile(ctx, parentID); err != nil {
			c.log.Error("reconcile failed", "parent_id", parentID, "error", err)
		}
	}
}
