// Package storetest holds the behavior every store.Store backend must share,
// expressed as a test suite, plus a fault-injecting wrapper for callers.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// Factory opens a fresh, empty backend for one subtest.
type Factory func(t *testing.T) store.Backend

// Run executes the shared contract against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, b store.Backend)
	}{
		{"CreateAndGetEntry", testCreateAndGetEntry},
		{"CreateEntryValidates", testCreateEntryValidates},
		{"CreateEntryDuplicateID", testCreateEntryDuplicateID},
		{"ListEntriesOrder", testListEntriesOrder},
		{"ListEntriesScoped", testListEntriesScoped},
		{"UpdateEntry", testUpdateEntry},
		{"UpdateEntryNotFound", testUpdateEntryNotFound},
		{"SetCounters", testSetCounters},
		{"DeleteEntryIdempotent", testDeleteEntryIdempotent},
		{"DeleteEntryCascades", testDeleteEntryCascades},
		{"Children", testChildren},
		{"CreateChildNeedsParent", testCreateChildNeedsParent},
		{"UpdateChildNotFound", testUpdateChildNotFound},
		{"ReassignOrder", testReassignOrder},
		{"ReassignOrderAllOrNothing", testReassignOrderAllOrNothing},
		{"ReassignChildOrder", testReassignChildOrder},
		{"AtomicCommit", testAtomicCommit},
		{"AtomicRollback", testAtomicRollback},
		{"OwnerIsolation", testOwnerIsolation},
		{"ListSpaces", testListSpaces},
		{"Purge", testPurge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			t.Cleanup(func() { _ = b.Close() })
			tt.fn(t, b)
		})
	}
}

const ownerA, ownerB = "owner-a", "owner-b"

func open(t *testing.T, b store.Backend, owner string) store.Store {
	t.Helper()
	s, err := b.ForOwner(owner)
	require.NoError(t, err)
	return s
}

func newNote(space, title string, order int64) *content.Entry {
	return &content.Entry{SpaceID: space, Kind: content.KindNote, Title: title, SortOrder: order}
}

func newTaskList(space, title string, order int64) *content.Entry {
	return &content.Entry{SpaceID: space, Kind: content.KindTaskList, Title: title, SortOrder: order}
}

func newTask(parentID, text string, order int64) *content.Child {
	return &content.Child{ParentID: parentID, Kind: content.ChildTask, Text: text, SortOrder: order}
}

func ids(entries []content.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func childIDs(children []content.Child) []string {
	out := make([]string, len(children))
	for i, c := range children {
		out[i] = c.ID
	}
	return out
}

func requireCode(t *testing.T, err error, code errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, code), "got %v, want %s", err, code)
}

func testCreateAndGetEntry(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	e := &content.Entry{
		SpaceID:   "home",
		Kind:      content.KindList,
		Title:     "Books",
		Style:     content.StyleChecklist,
		SortOrder: 2048,
		Counters:  content.Counters{Total: 2, Completed: 1},
	}
	require.NoError(t, s.CreateEntry(ctx, e))
	require.Len(t, e.ID, 26, "ULID assigned")
	require.False(t, e.CreatedAt.IsZero())
	require.Equal(t, ownerA, e.OwnerID)

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, *e, *got)
}

func testCreateEntryValidates(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	err := s.CreateEntry(ctx, &content.Entry{SpaceID: "home", Kind: "board", Title: "x"})
	require.True(t, errors.IsValidation(err), "got %v", err)

	err = s.CreateEntry(ctx, &content.Entry{Kind: content.KindNote, Title: "x"})
	require.True(t, errors.IsValidation(err), "got %v", err)

	err = s.CreateChild(ctx, &content.Child{ParentID: "p", Kind: content.ChildTask})
	require.True(t, errors.IsValidation(err), "got %v", err)
}

func testCreateEntryDuplicateID(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	e := newNote("home", "one", 0)
	require.NoError(t, s.CreateEntry(ctx, e))

	dup := newNote("home", "two", 1024)
	dup.ID = e.ID
	requireCode(t, s.CreateEntry(ctx, dup), errors.ErrPersistencePermanent)
}

func testListEntriesOrder(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	c := newNote("home", "c", 2048)
	c.ID = "03C"
	a := newNote("home", "a", 0)
	a.ID = "01A"
	bb := newNote("home", "b", 2048)
	bb.ID = "02B"
	neg := newNote("home", "neg", -1024)
	neg.ID = "04N"
	for _, e := range []*content.Entry{c, a, bb, neg} {
		require.NoError(t, s.CreateEntry(ctx, e))
	}

	got, err := s.ListEntries(ctx, "home", content.KindNote)
	require.NoError(t, err)
	// ties on sort order resolve by id
	require.Equal(t, []string{"04N", "01A", "02B", "03C"}, ids(got))
}

func testListEntriesScoped(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	require.NoError(t, s.CreateEntry(ctx, newNote("home", "n", 0)))
	require.NoError(t, s.CreateEntry(ctx, newTaskList("home", "t", 0)))
	require.NoError(t, s.CreateEntry(ctx, newNote("work", "w", 0)))

	notes, err := s.ListEntries(ctx, "home", content.KindNote)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	lists, err := s.ListEntries(ctx, "home", content.KindTaskList)
	require.NoError(t, err)
	require.Len(t, lists, 1)

	empty, err := s.ListEntries(ctx, "nowhere", content.KindNote)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testUpdateEntry(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	e := newTaskList("home", "Groceries", 0)
	require.NoError(t, s.CreateEntry(ctx, e))

	updated := *e
	updated.Title = "Weekly groceries"
	updated.SpaceID = "work"
	updated.SortOrder = 4096
	updated.Counters = content.Counters{Total: 3, Completed: 1}
	updated.UpdatedAt = e.UpdatedAt.Add(time.Second)
	require.NoError(t, s.UpdateEntry(ctx, &updated))

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	require.Equal(t, updated, *got)
	require.Equal(t, e.CreatedAt, got.CreatedAt)

	home, err := s.ListEntries(ctx, "home", content.KindTaskList)
	require.NoError(t, err)
	require.Empty(t, home)
}

func testUpdateEntryNotFound(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	missing := newNote("home", "ghost", 0)
	missing.ID = "01MISSING"
	requireCode(t, s.UpdateEntry(ctx, missing), errors.ErrNotFound)

	e := newNote("home", "gone", 0)
	require.NoError(t, s.CreateEntry(ctx, e))
	require.NoError(t, s.DeleteEntry(ctx, e.ID))
	requireCode(t, s.UpdateEntry(ctx, e), errors.ErrNotFound)

	_, err := s.GetEntry(ctx, e.ID)
	requireCode(t, err, errors.ErrNotFound)
}

func testSetCounters(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	e := newTaskList("home", "Groceries", 1024)
	require.NoError(t, s.CreateEntry(ctx, e))

	at := e.UpdatedAt.Add(time.Minute)
	require.NoError(t, s.SetCounters(ctx, e.ID, content.Counters{Total: 3, Completed: 1}, at))

	got, err := s.GetEntry(ctx, e.ID)
	require.NoError(t, err)
	want := *e
	want.Counters = content.Counters{Total: 3, Completed: 1}
	want.UpdatedAt = content.Truncate(at)
	require.Equal(t, want, *got, "only counters and update time change")

	requireCode(t, s.SetCounters(ctx, e.ID, content.Counters{Total: 1, Completed: 2}, at), errors.ErrInvalidRequest)
	requireCode(t, s.SetCounters(ctx, "01MISSING", content.Counters{}, at), errors.ErrNotFound)
	requireCode(t, open(t, b, ownerB).SetCounters(ctx, e.ID, content.Counters{}, at), errors.ErrNotFound)

	require.NoError(t, s.DeleteEntry(ctx, e.ID))
	requireCode(t, s.SetCounters(ctx, e.ID, content.Counters{}, at), errors.ErrNotFound)
}

func testDeleteEntryIdempotent(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	e := newNote("home", "x", 0)
	require.NoError(t, s.CreateEntry(ctx, e))

	require.NoError(t, s.DeleteEntry(ctx, e.ID))
	require.NoError(t, s.DeleteEntry(ctx, e.ID))
	require.NoError(t, s.DeleteEntry(ctx, "never-existed"))
	require.NoError(t, s.DeleteChild(ctx, "never-existed"))
}

func testDeleteEntryCascades(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	parent := newTaskList("home", "Groceries", 0)
	require.NoError(t, s.CreateEntry(ctx, parent))
	child := newTask(parent.ID, "milk", 0)
	require.NoError(t, s.CreateChild(ctx, child))

	require.NoError(t, s.DeleteEntry(ctx, parent.ID))

	children, err := s.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	require.Empty(t, children)

	_, err = s.GetChild(ctx, child.ID)
	requireCode(t, err, errors.ErrNotFound)
}

func testChildren(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	parent := newTaskList("home", "Groceries", 0)
	require.NoError(t, s.CreateEntry(ctx, parent))

	milk := newTask(parent.ID, "milk", 1024)
	eggs := newTask(parent.ID, "eggs", 0)
	bread := newTask(parent.ID, "bread", 2048)
	for _, c := range []*content.Child{milk, eggs, bread} {
		require.NoError(t, s.CreateChild(ctx, c))
	}
	require.Equal(t, ownerA, milk.OwnerID)

	got, err := s.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, []string{eggs.ID, milk.ID, bread.ID}, childIDs(got))

	milk.Done = true
	milk.Text = "oat milk"
	require.NoError(t, s.UpdateChild(ctx, milk))

	fetched, err := s.GetChild(ctx, milk.ID)
	require.NoError(t, err)
	require.Equal(t, *milk, *fetched)

	require.NoError(t, s.DeleteChild(ctx, eggs.ID))
	require.NoError(t, s.DeleteChild(ctx, eggs.ID))

	got, err = s.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, []string{milk.ID, bread.ID}, childIDs(got))
}

func testCreateChildNeedsParent(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	requireCode(t, s.CreateChild(ctx, newTask("01NOPARENT", "x", 0)), errors.ErrNotFound)

	note := newNote("home", "n", 0)
	require.NoError(t, s.CreateEntry(ctx, note))
	err := s.CreateChild(ctx, newTask(note.ID, "x", 0))
	require.True(t, errors.IsValidation(err), "notes cannot own children, got %v", err)
}

func testUpdateChildNotFound(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	parent := newTaskList("home", "p", 0)
	require.NoError(t, s.CreateEntry(ctx, parent))
	c := newTask(parent.ID, "x", 0)
	require.NoError(t, s.CreateChild(ctx, c))
	require.NoError(t, s.DeleteChild(ctx, c.ID))

	requireCode(t, s.UpdateChild(ctx, c), errors.ErrNotFound)
}

func testReassignOrder(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	var created []*content.Entry
	for i, title := range []string{"A", "B", "C"} {
		e := newNote("home", title, int64(i)*sequence.Step)
		require.NoError(t, s.CreateEntry(ctx, e))
		created = append(created, e)
	}

	list, err := s.ListEntries(ctx, "home", content.KindNote)
	require.NoError(t, err)
	plan, err := sequence.PlanMove(sequence.EntryItems(list), 0, 2)
	require.NoError(t, err)

	scope := content.EntryScope("home", content.KindNote)
	require.NoError(t, s.ReassignOrder(ctx, scope, plan))

	got, err := s.ListEntries(ctx, "home", content.KindNote)
	require.NoError(t, err)
	require.Equal(t, []string{created[1].ID, created[2].ID, created[0].ID}, ids(got))

	require.NoError(t, s.ReassignOrder(ctx, scope, nil))
}

func testReassignOrderAllOrNothing(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	a := newNote("home", "A", 0)
	other := newNote("work", "W", 0)
	require.NoError(t, s.CreateEntry(ctx, a))
	require.NoError(t, s.CreateEntry(ctx, other))

	scope := content.EntryScope("home", content.KindNote)
	err := s.ReassignOrder(ctx, scope, []sequence.Assignment{
		{ID: a.ID, SortOrder: 999},
		{ID: "01UNKNOWN", SortOrder: 5},
	})
	requireCode(t, err, errors.ErrNotFound)

	// a row from another scope is unknown to this one
	err = s.ReassignOrder(ctx, scope, []sequence.Assignment{
		{ID: a.ID, SortOrder: 999},
		{ID: other.ID, SortOrder: 5},
	})
	requireCode(t, err, errors.ErrNotFound)

	got, err := s.GetEntry(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(0), got.SortOrder, "nothing applied")
}

func testReassignChildOrder(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	parent := newTaskList("home", "p", 0)
	require.NoError(t, s.CreateEntry(ctx, parent))
	x := newTask(parent.ID, "x", 0)
	y := newTask(parent.ID, "y", 1024)
	require.NoError(t, s.CreateChild(ctx, x))
	require.NoError(t, s.CreateChild(ctx, y))

	err := s.ReassignOrder(ctx, content.ChildScope(parent.ID), []sequence.Assignment{{ID: x.ID, SortOrder: 2048}})
	require.NoError(t, err)

	got, err := s.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, []string{y.ID, x.ID}, childIDs(got))
}

func testAtomicCommit(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	parent := newTaskList("home", "p", 0)
	require.NoError(t, s.CreateEntry(ctx, parent))

	err := s.Atomic(ctx, func(tx store.Store) error {
		if err := tx.CreateChild(ctx, newTask(parent.ID, "x", 0)); err != nil {
			return err
		}
		p, err := tx.GetEntry(ctx, parent.ID)
		if err != nil {
			return err
		}
		p.Counters = content.Counters{Total: 1}
		return tx.UpdateEntry(ctx, p)
	})
	require.NoError(t, err)

	got, err := s.GetEntry(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Counters.Total)
	children, err := s.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func testAtomicRollback(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	parent := newTaskList("home", "p", 0)
	require.NoError(t, s.CreateEntry(ctx, parent))

	err := s.Atomic(ctx, func(tx store.Store) error {
		if err := tx.CreateChild(ctx, newTask(parent.ID, "x", 0)); err != nil {
			return err
		}
		missing := *parent
		missing.ID = "01MISSING"
		return tx.UpdateEntry(ctx, &missing)
	})
	requireCode(t, err, errors.ErrNotFound)

	children, err := s.ListChildren(ctx, parent.ID)
	require.NoError(t, err)
	require.Empty(t, children, "child insert rolled back")
}

func testOwnerIsolation(t *testing.T, b store.Backend) {
	ctx := context.Background()
	a := open(t, b, ownerA)
	other := open(t, b, ownerB)

	e := newTaskList("shared-name", "mine", 0)
	require.NoError(t, a.CreateEntry(ctx, e))
	c := newTask(e.ID, "secret", 0)
	require.NoError(t, a.CreateChild(ctx, c))

	_, err := other.GetEntry(ctx, e.ID)
	requireCode(t, err, errors.ErrNotFound)
	_, err = other.GetChild(ctx, c.ID)
	requireCode(t, err, errors.ErrNotFound)

	list, err := other.ListEntries(ctx, "shared-name", content.KindTaskList)
	require.NoError(t, err)
	require.Empty(t, list)
	children, err := other.ListChildren(ctx, e.ID)
	require.NoError(t, err)
	require.Empty(t, children)

	stolen := *e
	stolen.Title = "stolen"
	requireCode(t, other.UpdateEntry(ctx, &stolen), errors.ErrNotFound)
	requireCode(t, other.CreateChild(ctx, newTask(e.ID, "intruder", 0)), errors.ErrNotFound)
	requireCode(t, other.ReassignOrder(ctx, content.EntryScope("shared-name", content.KindTaskList),
		[]sequence.Assignment{{ID: e.ID, SortOrder: 7}}), errors.ErrNotFound)

	require.NoError(t, other.DeleteEntry(ctx, e.ID))
	got, err := a.GetEntry(ctx, e.ID)
	require.NoError(t, err, "delete by another owner must not touch the row")
	require.Equal(t, "mine", got.Title)

	spaces, err := other.ListSpaces(ctx)
	require.NoError(t, err)
	require.Empty(t, spaces)
}

func testListSpaces(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	require.NoError(t, s.CreateEntry(ctx, newNote("work", "w", 0)))
	require.NoError(t, s.CreateEntry(ctx, newNote("home", "h", 0)))
	require.NoError(t, s.CreateEntry(ctx, newTaskList("home", "t", 0)))
	gone := newNote("attic", "a", 0)
	require.NoError(t, s.CreateEntry(ctx, gone))
	require.NoError(t, s.DeleteEntry(ctx, gone.ID))

	spaces, err := s.ListSpaces(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"home", "work"}, spaces)
}

func testPurge(t *testing.T, b store.Backend) {
	ctx := context.Background()
	s := open(t, b, ownerA)

	parent := newTaskList("home", "p", 0)
	require.NoError(t, s.CreateEntry(ctx, parent))
	require.NoError(t, s.CreateChild(ctx, newTask(parent.ID, "x", 0)))
	keep := newNote("home", "keep", 0)
	require.NoError(t, s.CreateEntry(ctx, keep))
	require.NoError(t, s.DeleteEntry(ctx, parent.ID))

	n, err := s.Purge(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, n, "nothing old enough")

	n, err = s.Purge(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n, "entry and its child")

	// the id is free again after a purge
	reused := newNote("home", "reborn", 0)
	reused.ID = parent.ID
	require.NoError(t, s.CreateEntry(ctx, reused))

	_, err = s.GetEntry(ctx, keep.ID)
	require.NoError(t, err)
}
