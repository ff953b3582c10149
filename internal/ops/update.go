package ops

import (
	"context"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/store"
)

// UpdateEntryInput contains parameters for the UpdateEntry operation.
type UpdateEntryInput struct {
	ID string

	// Editable fields (nil = don't change)
	Title *string
	Body  *string
	Style *content.ListStyle
}

// UpdateEntry modifies the text fields of an entry.
func (c *Coordinator) UpdateEntry(ctx context.Context, input UpdateEntryInput) (*content.Entry, error) {
	if input.Title == nil && input.Body == nil && input.Style == nil {
		return nil, errors.NewInvalidRequest("at least one editable field must be provided")
	}
	if _, err := c.entryFor(ctx, input.ID); err != nil {
		return nil, err
	}

	c.mu.Lock()
	e, ok := c.lookup(input.ID)
	if !ok {
		c.mu.Unlock()
		return nil, errors.NewNotFound(input.ID)
	}
	if input.Title != nil {
		e.Title = content.CleanText(*input.Title)
	}
	if input.Body != nil {
		e.Body = *input.Body
	}
	if input.Style != nil {
		e.Style = *input.Style
	}
	if err := content.ValidateEntry(e); err != nil {
		c.mu.Unlock()
		return nil, errors.NewInvalidRequest(err.Error())
	}
	e.UpdatedAt = c.now()

	scope := e.Scope()
	prev := content.CloneEntries(c.scopes[scope.Key()].entries)
	version := c.replaceEntry(e)

	persisted := e
	done := c.submit(ctx, store.OpUpdateEntry, func(ctx context.Context) error {
		row := persisted
		return c.store.UpdateEntry(ctx, &row)
	})
	c.mu.Unlock()

	if err := c.settleScopes(ctx, <-done, scopeChange{scope: scope, prev: prev, version: version}); err != nil {
		return nil, err
	}
	return &e, nil
}
