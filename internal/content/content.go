// Package content defines the entries and children that live inside a Space,
// the scopes they are ordered in, and the comparator that orders them.
package content

import "time"

// Counters are the aggregate counts a parent entry keeps about its children.
// Completed counts completed tasks for task lists and checked items for lists.
type Counters struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// Entry is a top-level piece of content in a Space: a note, a task list, or a list.
type Entry struct {
	// ID is a ULID that uniquely identifies this entry
	ID string `json:"id"`

	// SpaceID is the normalized id of the Space the entry belongs to
	SpaceID string `json:"space_id"`

	// OwnerID is the account that owns the entry; set by the store binding
	OwnerID string `json:"owner_id"`

	Kind Kind `json:"kind"`

	Title string `json:"title"`

	// Body is the markdown body of a note; empty for lists
	Body string `json:"body,omitempty"`

	// Style is only set for generic lists
	Style ListStyle `json:"style,omitempty"`

	// SortOrder positions the entry inside its (SpaceID, Kind) scope
	SortOrder int64 `json:"sort_order"`

	// Counters are zero for notes
	Counters Counters `json:"counters"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the ordering scope of the entry.
func (e Entry) Scope() Scope {
	return EntryScope(e.SpaceID, e.Kind)
}

// Child is a task of a task list or an item of a list.
type Child struct {
	ID       string    `json:"id"`
	ParentID string    `json:"parent_id"`
	OwnerID  string    `json:"owner_id"`
	Kind     ChildKind `json:"kind"`
	Text     string    `json:"text"`

	// Done is "completed" for tasks and "checked" for list items
	Done bool `json:"done"`

	SortOrder int64     `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scope returns the ordering scope of the child.
func (c Child) Scope() Scope {
	return ChildScope(c.ParentID)
}

// Now returns the current time at the precision both backends persist.
func Now() time.Time {
	return Truncate(time.Now())
}

// Truncate normalizes a timestamp to UTC milliseconds.
func Truncate(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// CloneEntries returns a copy of entries that shares no backing array.
func CloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// CloneChildren returns a copy of children that shares no backing array.
func CloneChildren(children []Child) []Child {
	if children == nil {
		return nil
	}
	out := make([]Child, len(children))
	copy(out, children)
	return out
}
