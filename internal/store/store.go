// Package store defines the persistence contract shared by the embedded and
// relational backends.
package store

import (
	"context"
	"time"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/sequence"
)

// Operation names, used in error details and by fault injection.
const (
	OpCreateEntry   = "create_entry"
	OpGetEntry      = "get_entry"
	OpListEntries   = "list_entries"
	OpUpdateEntry   = "update_entry"
	OpDeleteEntry   = "delete_entry"
	OpSetCounters   = "set_counters"
	OpCreateChild   = "create_child"
	OpGetChild      = "get_child"
	OpListChildren  = "list_children"
	OpUpdateChild   = "update_child"
	OpDeleteChild   = "delete_child"
	OpReassignOrder = "reassign_order"
	OpAtomic        = "atomic"
	OpListSpaces    = "list_spaces"
	OpPurge         = "purge"
)

// Store is an owner-bound view of persisted content. Every read and write is
// implicitly limited to the owner the Store was opened for.
//
// Reads return live rows ordered by sort order, then id. Updates of missing
// or deleted rows fail with NOT_FOUND; deletes of missing rows succeed.
type Store interface {
	CreateEntry(ctx context.Context, e *content.Entry) error
	GetEntry(ctx context.Context, id string) (*content.Entry, error)
	ListEntries(ctx context.Context, spaceID string, kind content.Kind) ([]content.Entry, error)
	// UpdateEntry replaces space, title, body, style, sort order and counters.
	UpdateEntry(ctx context.Context, e *content.Entry) error
	// SetCounters replaces only the counters and update time of an entry.
	SetCounters(ctx context.Context, id string, counters content.Counters, at time.Time) error
	// DeleteEntry soft-deletes the entry and its children.
	DeleteEntry(ctx context.Context, id string) error

	CreateChild(ctx context.Context, c *content.Child) error
	GetChild(ctx context.Context, id string) (*content.Child, error)
	ListChildren(ctx context.Context, parentID string) ([]content.Child, error)
	// UpdateChild replaces text, done and sort order.
	UpdateChild(ctx context.Context, c *content.Child) error
	DeleteChild(ctx context.Context, id string) error

	// ReassignOrder applies every assignment or none of them. An id that is
	// not a live row of scope aborts the batch with NOT_FOUND.
	ReassignOrder(ctx context.Context, scope content.Scope, assignments []sequence.Assignment) error

	// Atomic runs fn inside one transaction. fn must only use tx.
	Atomic(ctx context.Context, fn func(tx Store) error) error

	// ListSpaces returns the spaces that hold at least one live entry.
	ListSpaces(ctx context.Context) ([]string, error)

	// Purge hard-deletes rows soft-deleted at least olderThan ago and returns
	// how many entries and children were removed.
	Purge(ctx context.Context, olderThan time.Duration) (int, error)
}

// Backend hands out owner-bound stores over one database.
type Backend interface {
	ForOwner(ownerID string) (Store, error)
	Close() error
}
