package ops

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/shelf/internal/aggregate"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// auditParallelism bounds the parents checked at once.
const auditParallelism = 4

// AuditOutput contains the result of the Audit operation.
type AuditOutput struct {
	SpaceID        string   `json:"space_id"`
	Scopes         int      `json:"scopes"`
	Parents        int      `json:"parents"`
	OrderRepairs   []string `json:"order_repairs"`
	CounterRepairs []string `json:"counter_repairs"`
}

// Audit sweeps every scope of a space from the store: entry order, child
// order and parent counters. Anything broken is repaired and reported.
func (c *Coordinator) Audit(ctx context.Context, spaceID string) (*AuditOutput, error) {
	spaceID = content.Normalize(spaceID)
	if spaceID == "" {
		return nil, errors.NewInvalidRequest("space_id is required")
	}

	out := &AuditOutput{SpaceID: spaceID, OrderRepairs: []string{}, CounterRepairs: []string{}}
	var mu sync.Mutex
	record := func(list *[]string, key string) {
		mu.Lock()
		defer mu.Unlock()
		*list = append(*list, key)
	}

	for _, kind := range content.Kinds {
		scope := content.EntryScope(spaceID, kind)
		entries, err := c.fetchScope(ctx, scope)
		if err != nil {
			return nil, err
		}
		out.Scopes++
		if brokenOrder(sequence.EntryItems(entries)) {
			c.log.Error("stored order broken", "error", errors.NewConsistency(scope.Key(), "ties or disorder"))
			if err := c.refreshScope(ctx, scope); err != nil {
				return nil, err
			}
			if _, err := c.renumberEntries(ctx, scope); err != nil {
				return nil, err
			}
			record(&out.OrderRepairs, scope.Key())
		}
		if !kind.HasChildren() {
			continue
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(auditParallelism)
		for _, e := range entries {
			out.Parents++
			g.Go(func() error {
				return c.auditParent(gctx, e, record, out)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	sort.Strings(out.OrderRepairs)
	sort.Strings(out.CounterRepairs)
	return out, nil
}

func (c *Coordinator) auditParent(ctx context.Context, e content.Entry, record func(*[]string, string), out *AuditOutput) error {
	var children []content.Child
	err := c.read(ctx, store.OpListChildren, func(ctx context.Context) error {
		var err error
		children, err = c.store.ListChildren(ctx, e.ID)
		return err
	})
	if err != nil {
		return err
	}

	if !aggregate.Matches(e, children) {
		res, err := c.Reconcile(ctx, e.ID)
		if err != nil {
			return err
		}
		if res.Repaired {
			record(&out.CounterRepairs, e.ID)
		}
	}

	scope := content.ChildScope(e.ID)
	if brokenOrder(sequence.ChildItems(children)) {
		c.log.Error("stored child order broken", "error", errors.NewConsistency(scope.Key(), "ties or disorder"))
		c.cache.Invalidate(e.ID)
		if _, err := c.renumberChildren(ctx, e.ID); err != nil {
			return err
		}
		record(&out.OrderRepairs, scope.Key())
	}
	return nil
}

// brokenOrder reports rows that tie on sort order or are out of order.
// Ties are legal but leave no gap to insert between, so the audit spreads them.
func brokenOrder(items []sequence.Item) bool {
	if sequence.Verify(items) != nil {
		return true
	}
	for i := 1; i < len(items); i++ {
		if items[i-1].SortOrder == items[i].SortOrder {
			return true
		}
	}
	return false
}
