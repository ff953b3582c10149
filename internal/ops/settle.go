package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/bus"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// scopeChange is an optimistic change to one entry scope: the state before
// it and the version it was published as.
type scopeChange struct {
	scope   content.Scope
	prev    []content.Entry
	version uint64
}

// settleScopes finishes an optimistic change to entry scopes once its write
// has returned. On failure each scope is rolled back to the exact previous
// state, or refreshed from the store when a later command touched it.
func (c *Coordinator) settleScopes(ctx context.Context, err error, changes ...scopeChange) error {
	if err == nil {
		for _, ch := range changes {
			c.verifyScope(ctx, ch.scope)
		}
		c.notify(ctx, scopesOf(changes)...)
		return nil
	}

	kind := errors.KindOf(err)
	switch {
	case store.IsCommitUnknown(err):
		c.log.Warn("commit outcome unknown, refreshing", "error", err)
		for _, ch := range changes {
			_ = c.refreshScope(ctx, ch.scope)
		}
		return err
	case kind == errors.KindNotFound:
		c.rollbackScopes(changes)
		for _, ch := range changes {
			_ = c.refreshScope(ctx, ch.scope)
		}
		return err
	default:
		c.log.Warn("write failed, rolling back", "kind", kind.String(), "error", err)
		stale := c.rollbackScopes(changes)
		for _, ch := range stale {
			_ = c.refreshScope(ctx, ch.scope)
		}
		return err
	}
}

// rollbackScopes restores every scope nobody touched since the change and
// returns the ones that need a refresh instead.
func (c *Coordinator) rollbackScopes(changes []scopeChange) []scopeChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stale []scopeChange
	for _, ch := range changes {
		if c.scopeVersion(ch.scope.Key()) != ch.version {
			stale = append(stale, ch)
			continue
		}
		c.install(ch.scope, ch.prev)
	}
	return stale
}

// verifyScope checks the displayed order of scope and renumbers it when the
// order is broken.
func (c *Coordinator) verifyScope(ctx context.Context, scope content.Scope) {
	c.mu.Lock()
	st, ok := c.scopes[scope.Key()]
	var err error
	if ok {
		err = sequence.Verify(sequence.EntryItems(st.entries))
	}
	c.mu.Unlock()
	if err == nil {
		return
	}

	c.log.Error("order check failed, renumbering",
		"error", errors.NewConsistency(scope.Key(), err.Error()))
	if _, err := c.renumberEntries(ctx, scope); err != nil {
		c.log.Error("renumber failed", "scope", scope.Key(), "error", err)
	}
}

// notify tells other processes that scopes changed.
func (c *Coordinator) notify(ctx context.Context, scopes ...content.Scope) {
	if c.fwd == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, s := range scopes {
		n := bus.Notice{Origin: c.origin, Owner: c.owner, Scope: s}
		if err := c.fwd.Publish(ctx, n); err != nil {
			c.log.Warn("change notice not sent", "scope", s.Key(), "error", err)
		}
	}
}

func scopesOf(changes []scopeChange) []content.Scope {
	out := make([]content.Scope, len(changes))
	for i, ch := range changes {
		out[i] = ch.scope
	}
	return out
}
