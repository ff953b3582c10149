// Package aggregate maintains the child counters stored on task lists and lists.
package aggregate

import "github.com/hpungsan/shelf/internal/content"

// OnChildCreated accounts for a new child.
func OnChildCreated(c content.Counters, done bool) content.Counters {
	c.Total++
	if done {
		c.Completed++
	}
	return clamp(c)
}

// OnChildDeleted accounts for a removed child. Counters never go below zero,
// even when the caller's snapshot is stale.
func OnChildDeleted(c content.Counters, wasDone bool) content.Counters {
	c.Total--
	if wasDone {
		c.Completed--
	}
	return clamp(c)
}

// OnChildToggled accounts for a child whose done flag changed from one value
// to another. Unchanged flags leave the counters alone.
func OnChildToggled(c content.Counters, from, to bool) content.Counters {
	switch {
	case from == to:
		return c
	case to:
		c.Completed++
	default:
		c.Completed--
	}
	return clamp(c)
}

// Recompute counts the given live children from scratch.
func Recompute(children []content.Child) content.Counters {
	var c content.Counters
	for _, ch := range children {
		c.Total++
		if ch.Done {
			c.Completed++
		}
	}
	return c
}

// ApplyToEntry returns a copy of e carrying counters. Notes keep zero counters.
func ApplyToEntry(e content.Entry, c content.Counters) content.Entry {
	if !e.Kind.HasChildren() {
		e.Counters = content.Counters{}
		return e
	}
	e.Counters = c
	return e
}

// Matches reports whether the counters on e agree with children.
func Matches(e content.Entry, children []content.Child) bool {
	if !e.Kind.HasChildren() {
		return e.Counters == content.Counters{}
	}
	return e.Counters == Recompute(children)
}

func clamp(c content.Counters) content.Counters {
	if c.Total < 0 {
		c.Total = 0
	}
	if c.Completed < 0 {
		c.Completed = 0
	}
	if c.Completed > c.Total {
		c.Completed = c.Total
	}
	return c
}
