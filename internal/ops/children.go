package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/aggregate"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// AddChildInput contains parameters for the AddChild operation.
type AddChildInput struct {
	ParentID string
	Text     string
	Done     bool

	// Index places the child at a position of the displayed children;
	// nil appends it.
	Index *int
}

// AddChild adds a task to a task list or an item to a list.
func (c *Coordinator) AddChild(ctx context.Context, input AddChildInput) (*content.Child, error) {
	text := content.CleanText(input.Text)
	if text == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	id, err := content.NewID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	var added content.Child
	err = c.applyChildMutation(ctx, childMutation{
		op:       store.OpCreateChild,
		parentID: input.ParentID,
		plan: func(parent content.Entry, children []content.Child) (childPlan, error) {
			kind, _ := parent.Kind.ChildKind()
			if input.Done && !content.Checkable(parent) {
				return childPlan{}, errors.NewInvalidRequest("items of a plain list cannot be checked")
			}
			renumber, order, err := c.slot(sequence.ChildItems(children), input.Index)
			if err != nil {
				return childPlan{}, err
			}

			now := c.now()
			added = content.Child{
				ID:        id,
				ParentID:  parent.ID,
				OwnerID:   c.owner,
				Kind:      kind,
				Text:      text,
				Done:      input.Done,
				SortOrder: order,
				CreatedAt: now,
				UpdatedAt: now,
			}
			next := applyChildOrders(children, renumber)
			next = append(next, added)
			content.SortChildren(next)

			row := added
			return childPlan{
				children: next,
				counters: aggregate.OnChildCreated(parent.Counters, added.Done),
				write: func(ctx context.Context, tx store.Store) error {
					if len(renumber) > 0 {
						if err := tx.ReassignOrder(ctx, content.ChildScope(parent.ID), renumber); err != nil {
							return err
						}
					}
					child := row
					return tx.CreateChild(ctx, &child)
				},
			}, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// UpdateChildInput contains parameters for the UpdateChild operation.
type UpdateChildInput struct {
	ID string

	// Editable fields (nil = don't change)
	Text *string
	Done *bool
}

// UpdateChild edits the text or state of a child.
func (c *Coordinator) UpdateChild(ctx context.Context, input UpdateChildInput) (*content.Child, error) {
	if input.Text == nil && input.Done == nil {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}
	if input.Text != nil && content.CleanText(*input.Text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	parentID, err := c.parentOfChild(ctx, input.ID)
	if err != nil {
		return nil, err
	}

	var updated content.Child
	err = c.applyChildMutation(ctx, childMutation{
		op:       store.OpUpdateChild,
		parentID: parentID,
		keep:     true,
		plan: func(parent content.Entry, children []content.Child) (childPlan, error) {
			i := content.ChildIndex(children, input.ID)
			if i < 0 {
				return childPlan{}, errors.NewNotFound(input.ID)
			}
			ch := children[i]
			from := ch.Done
			if input.Text != nil {
				ch.Text = content.CleanText(*input.Text)
			}
			if input.Done != nil {
				if *input.Done != from && !content.Checkable(parent) {
					return childPlan{}, errors.NewInvalidRequest("items of a plain list cannot be checked")
				}
				ch.Done = *input.Done
			}
			ch.UpdatedAt = c.now()
			updated = ch
			return replaceChild(parent, children, i, ch, from), nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ToggleChild flips the completed or checked state of a child.
func (c *Coordinator) ToggleChild(ctx context.Context, childID string) (*content.Child, error) {
	parentID, err := c.parentOfChild(ctx, childID)
	if err != nil {
		return nil, err
	}

	var toggled content.Child
	err = c.applyChildMutation(ctx, childMutation{
		op:       store.OpUpdateChild,
		parentID: parentID,
		keep:     true,
		plan: func(parent content.Entry, children []content.Child) (childPlan, error) {
			if !content.Checkable(parent) {
				return childPlan{}, errors.NewInvalidRequest("items of a plain list cannot be checked")
			}
			i := content.ChildIndex(children, childID)
			if i < 0 {
				return childPlan{}, errors.NewNotFound(childID)
			}
			ch := children[i]
			from := ch.Done
			ch.Done = !from
			ch.UpdatedAt = c.now()
			toggled = ch
			return replaceChild(parent, children, i, ch, from), nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &toggled, nil
}

// replaceChild plans an in-place change of children[i].
func replaceChild(parent content.Entry, children []content.Child, i int, ch content.Child, from bool) childPlan {
	next := content.CloneChildren(children)
	next[i] = ch
	row := ch
	return childPlan{
		children: next,
		counters: aggregate.OnChildToggled(parent.Counters, from, ch.Done),
		write: func(ctx context.Context, tx store.Store) error {
			child := row
			return tx.UpdateChild(ctx, &child)
		},
	}
}

// DeleteChild removes a child. Deleting a child that is already gone succeeds.
func (c *Coordinator) DeleteChild(ctx context.Context, childID string) error {
	parentID, err := c.parentOfChild(ctx, childID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}

	err = c.applyChildMutation(ctx, childMutation{
		op:       store.OpDeleteChild,
		parentID: parentID,
		plan: func(parent content.Entry, children []content.Child) (childPlan, error) {
			i := content.ChildIndex(children, childID)
			if i < 0 {
				return childPlan{}, errNoop
			}
			wasDone := children[i].Done
			next := make([]content.Child, 0, len(children)-1)
			next = append(next, children[:i]...)
			next = append(next, children[i+1:]...)
			return childPlan{
				children: next,
				counters: aggregate.OnChildDeleted(parent.Counters, wasDone),
				write: func(ctx context.Context, tx store.Store) error {
					return tx.DeleteChild(ctx, childID)
				},
			}, nil
		},
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.parentOf, childID)
	c.mu.Unlock()
	return nil
}

// reorderChildren moves the child at oldIndex of the displayed children to
// newIndex.
func (c *Coordinator) reorderChildren(ctx context.Context, parentID string, oldIndex, newIndex int) error {
	return c.applyChildMutation(ctx, childMutation{
		op:       store.OpReassignOrder,
		parentID: parentID,
		plan: func(parent content.Entry, children []content.Child) (childPlan, error) {
			assignments, err := c.seq.PlanMove(sequence.ChildItems(children), oldIndex, newIndex)
			if err != nil {
				return childPlan{}, err
			}
			if len(assignments) == 0 {
				return childPlan{}, errNoop
			}
			return childPlan{
				children: applyChildOrders(moved(children, oldIndex, newIndex), assignments),
				counters: parent.Counters,
				write: func(ctx context.Context, tx store.Store) error {
					return tx.ReassignOrder(ctx, content.ChildScope(parentID), assignments)
				},
			}, nil
		},
	})
}

// renumberChildren rewrites the children of parentID to multiples of the
// step. It returns how many rows changed.
func (c *Coordinator) renumberChildren(ctx context.Context, parentID string) (int, error) {
	changed := 0
	err := c.applyChildMutation(ctx, childMutation{
		op:       store.OpReassignOrder,
		parentID: parentID,
		keep:     true,
		plan: func(parent content.Entry, children []content.Child) (childPlan, error) {
			items := sequence.ChildItems(children)
			sequence.Sort(items)
			assignments := c.seq.Renumber(items)
			if len(assignments) == 0 {
				return childPlan{}, errNoop
			}
			changed = len(assignments)
			next := applyChildOrders(children, assignments)
			content.SortChildren(next)
			return childPlan{
				children: next,
				counters: parent.Counters,
				write: func(ctx context.Context, tx store.Store) error {
					return tx.ReassignOrder(ctx, content.ChildScope(parentID), assignments)
				},
			}, nil
		},
	})
	return changed, err
}
