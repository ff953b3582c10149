package store

import (
	"fmt"
	"time"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
)

// PrepareEntry fills the id and timestamps of a new entry and validates it.
// Both backends call it so creation behaves the same everywhere.
func PrepareEntry(e *content.Entry, ownerID string) error {
	if e == nil {
		return errors.NewInvalidRequest("entry is required")
	}
	if err := content.ValidateEntry(*e); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if e.ID == "" {
		id, err := content.NewID()
		if err != nil {
			return errors.NewInternal(err)
		}
		e.ID = id
	}
	e.OwnerID = ownerID
	stamp(&e.CreatedAt, &e.UpdatedAt)
	if !e.Kind.HasChildren() {
		e.Counters = content.Counters{}
	}
	return nil
}

// PrepareChild fills the id and timestamps of a new child and validates it.
func PrepareChild(c *content.Child, ownerID string) error {
	if c == nil {
		return errors.NewInvalidRequest("child is required")
	}
	if err := content.ValidateChild(*c); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if c.ID == "" {
		id, err := content.NewID()
		if err != nil {
			return errors.NewInternal(err)
		}
		c.ID = id
	}
	c.OwnerID = ownerID
	stamp(&c.CreatedAt, &c.UpdatedAt)
	return nil
}

// Touch sets UpdatedAt for a replace, leaving a caller-supplied value alone.
func Touch(updatedAt *time.Time) {
	if updatedAt.IsZero() {
		*updatedAt = content.Now()
		return
	}
	*updatedAt = content.Truncate(*updatedAt)
}

// CheckCounters rejects counters no set of children could produce.
func CheckCounters(c content.Counters) error {
	if c.Total < 0 || c.Completed < 0 || c.Completed > c.Total {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid counters %d/%d", c.Completed, c.Total))
	}
	return nil
}

func stamp(createdAt, updatedAt *time.Time) {
	now := content.Now()
	if createdAt.IsZero() {
		*createdAt = now
	} else {
		*createdAt = content.Truncate(*createdAt)
	}
	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	} else {
		*updatedAt = content.Truncate(*updatedAt)
	}
}

// CheckParent verifies that a parent of kind parentKind may own c, filling
// c.Kind when the caller left it empty.
func CheckParent(parentKind content.Kind, c *content.Child) error {
	want, ok := parentKind.ChildKind()
	if !ok {
		return errors.NewInvalidRequest(string(parentKind) + " entries cannot have children")
	}
	if c.Kind == "" {
		c.Kind = want
	}
	if c.Kind != want {
		return errors.NewInvalidRequest("a " + string(parentKind) + " holds " + string(want) + " children, not " + string(c.Kind))
	}
	return nil
}
