package ops

import (
	"context"
	stderrors "errors"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// CreateEntryInput contains parameters for the CreateEntry operation.
type CreateEntryInput struct {
	SpaceID string
	Kind    content.Kind
	Title   string
	Body    string
	Style   content.ListStyle

	// Index places the entry at a position of the displayed scope;
	// nil appends it.
	Index *int
}

// CreateEntry adds an entry to a space.
func (c *Coordinator) CreateEntry(ctx context.Context, input CreateEntryInput) (*content.Entry, error) {
	now := c.now()
	e := content.Entry{
		SpaceID:   content.Normalize(input.SpaceID),
		OwnerID:   c.owner,
		Kind:      input.Kind,
		Title:     content.CleanText(input.Title),
		Body:      input.Body,
		Style:     input.Style,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if e.Kind == content.KindList && e.Style == "" {
		e.Style = content.StylePlain
	}
	if err := content.ValidateEntry(e); err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	id, err := content.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	e.ID = id

	scope := e.Scope()
	if err := c.ensureScope(ctx, scope); err != nil {
		return nil, err
	}

	c.mu.Lock()
	st := c.scopes[scope.Key()]
	items := sequence.EntryItems(st.entries)
	renumber, order, err := c.slot(items, input.Index)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	e.SortOrder = order

	prev := content.CloneEntries(st.entries)
	next := applyEntryOrders(st.entries, renumber)
	next = append(next, e)
	content.SortEntries(next)
	st.entries = next
	c.where[e.ID] = scope.Key()
	version := c.publishScope(st)

	persisted := e
	done := c.submit(ctx, store.OpCreateEntry, func(ctx context.Context) error {
		return c.store.Atomic(ctx, func(tx store.Store) error {
			if len(renumber) > 0 {
				if err := tx.ReassignOrder(ctx, scope, renumber); err != nil {
					return err
				}
			}
			row := persisted
			return tx.CreateEntry(ctx, &row)
		})
	})
	c.mu.Unlock()

	if err := c.settleScopes(ctx, <-done, scopeChange{scope: scope, prev: prev, version: version}); err != nil {
		return nil, err
	}
	return &e, nil
}

// slot picks the sort order for a new row of a scope displayed as items.
// It appends when index is nil and renumbers when the order space is spent.
func (c *Coordinator) slot(items []sequence.Item, index *int) ([]sequence.Assignment, int64, error) {
	if index != nil {
		ins, err := c.seq.PlanInsertAt(items, *index)
		if err != nil {
			return nil, 0, err
		}
		return ins.Renumber, ins.SortOrder, nil
	}

	order, err := c.seq.NextOnAppend(sequence.Orders(items))
	if stderrors.Is(err, sequence.ErrExhausted) {
		renumber := c.seq.Renumber(items)
		order, err = c.seq.NextOnAppend(sequence.Orders(sequence.Apply(items, renumber)))
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		return renumber, order, nil
	}
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return nil, order, nil
}

// applyEntryOrders returns a copy of entries with assignments applied.
func applyEntryOrders(entries []content.Entry, assignments []sequence.Assignment) []content.Entry {
	out := content.CloneEntries(entries)
	if out == nil {
		out = []content.Entry{}
	}
	if len(assignments) == 0 {
		return out
	}
	byID := make(map[string]int64, len(assignments))
	for _, a := range assignments {
		byID[a.ID] = a.SortOrder
	}
	for i := range out {
		if v, ok := byID[out[i].ID]; ok {
			out[i].SortOrder = v
		}
	}
	return out
}

// applyChildOrders returns a copy of children with assignments applied.
func applyChildOrders(children []content.Child, assignments []sequence.Assignment) []content.Child {
	out := content.CloneChildren(children)
	if out == nil {
		out = []content.Child{}
	}
	if len(assignments) == 0 {
		return out
	}
	byID := make(map[string]int64, len(assignments))
	for _, a := range assignments {
		byID[a.ID] = a.SortOrder
	}
	for i := range out {
		if v, ok := byID[out[i].ID]; ok {
			out[i].SortOrder = v
		}
	}
	return out
}

// moved returns a copy of xs with xs[oldIndex] relocated to newIndex.
func moved[T any](xs []T, oldIndex, newIndex int) []T {
	out := make([]T, 0, len(xs))
	out = append(out, xs[:oldIndex]...)
	out = append(out, xs[oldIndex+1:]...)
	item := xs[oldIndex]
	var zero T
	out = append(out, zero)
	copy(out[newIndex+1:], out[newIndex:])
	out[newIndex] = item
	return out
}
