package ops

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
	"github.com/hpungsan/shelf/internal/store/storetest"
)

func TestToggle_PermanentFailureRollsBack(t *testing.T) {
	c, f, s := newTestCoordinator(t)
	ctx := context.Background()

	list := createTaskList(t, c, "A", "Groceries")
	tasks := addTasks(t, c, list.ID, "milk", "eggs", "bread")

	sub, err := c.WatchChildren(ctx, list.ID)
	require.NoError(t, err)
	defer sub.Close()

	beforeChildren, err := c.Children(ctx, list.ID)
	require.NoError(t, err)
	beforeScope, err := c.Scope(ctx, "a", content.KindTaskList)
	require.NoError(t, err)

	f.Reset()
	f.Fail(store.OpUpdateChild, storetest.ErrRejected, -1)

	_, err = c.ToggleChild(ctx, tasks[1].ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPersistencePermanent), "got %v", err)
	assert.Equal(t, 1, f.Calls(store.OpUpdateChild), "permanent failures are not retried")

	afterChildren, err := c.Children(ctx, list.ID)
	require.NoError(t, err)
	afterScope, err := c.Scope(ctx, "a", content.KindTaskList)
	require.NoError(t, err)
	assert.Equal(t, beforeChildren, afterChildren)
	assert.Equal(t, beforeScope, afterScope)

	view := latest(t, sub.C())
	assert.False(t, view.Children[1].Done)
	assert.Equal(t, content.Counters{Total: 3}, view.Counters)

	stored, err := s.GetEntry(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, content.Counters{Total: 3}, stored.Counters)
}

func TestUpdateEntry_PermanentFailureRollsBack(t *testing.T) {
	c, f, _ := newTestCoordinator(t)
	ctx := context.Background()
	note := createNote(t, c, "A", "keep me")

	sub, err := c.WatchScope(ctx, "a", content.KindNote)
	require.NoError(t, err)
	defer sub.Close()
	before := latest(t, sub.C())

	f.Fail(store.OpUpdateEntry, storetest.ErrRejected, 1)
	title := "lost"
	_, err = c.UpdateEntry(ctx, UpdateEntryInput{ID: note.ID, Title: &title})
	assert.True(t, errors.Is(err, errors.ErrPersistencePermanent), "got %v", err)

	after := latest(t, sub.C())
	assert.Equal(t, before.Entries, after.Entries)
	assert.Greater(t, after.Version, before.Version)
}

func TestReorder_FailureRestoresOrder(t *testing.T) {
	c, f, s := newTestCoordinator(t)
	ctx := context.Background()
	createNote(t, c, "A", "A")
	createNote(t, c, "A", "B")
	createNote(t, c, "A", "C")

	f.Fail(store.OpReassignOrder, storetest.ErrRejected, 1)
	err := c.Reorder(ctx, content.EntryScope("a", content.KindNote), 0, 2)
	assert.True(t, errors.Is(err, errors.ErrPersistencePermanent), "got %v", err)

	displayed, err := c.Scope(ctx, "a", content.KindNote)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, titles(displayed))
	stored, err := s.ListEntries(ctx, "a", content.KindNote)
	require.NoError(t, err)
	assert.Equal(t, displayed, stored)
}

func TestCreateEntry_FailureRemovesOptimisticRow(t *testing.T) {
	c, f, _ := newTestCoordinator(t)
	ctx := context.Background()
	createNote(t, c, "A", "A")

	f.Fail(store.OpCreateEntry, storetest.ErrRejected, 1)
	_, err := c.CreateEntry(ctx, CreateEntryInput{SpaceID: "a", Kind: content.KindNote, Title: "B"})
	assert.True(t, errors.Is(err, errors.ErrPersistencePermanent), "got %v", err)

	displayed, err := c.Scope(ctx, "a", content.KindNote)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, titles(displayed))
}

func TestTransientFailure_Retried(t *testing.T) {
	c, f, s := newTestCoordinator(t)
	ctx := context.Background()
	list := createTaskList(t, c, "A", "Retry")
	tasks := addTasks(t, c, list.ID, "one")

	f.Reset()
	f.Fail(store.OpAtomic, storetest.ErrBusy, 2)

	toggled, err := c.ToggleChild(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.True(t, toggled.Done)
	assert.Equal(t, 3, f.Calls(store.OpAtomic))

	stored, err := s.GetChild(ctx, tasks[0].ID)
	require.NoError(t, err)
	assert.True(t, stored.Done)
}

func TestTransientFailure_GivesUp(t *testing.T) {
	c, f, s := newTestCoordinator(t)
	ctx := context.Background()
	list := createTaskList(t, c, "A", "Busy")
	tasks := addTasks(t, c, list.ID, "one")

	f.Reset()
	f.Fail(store.OpAtomic, storetest.ErrBusy, -1)

	_, err := c.ToggleChild(ctx, tasks[0].ID)
	assert.True(t, errors.Is(err, errors.ErrPersistenceTransient), "got %v", err)
	assert.Equal(t, testRetry.MaxAttempts, f.Calls(store.OpAtomic))

	children, err := c.Children(ctx, list.ID)
	require.NoError(t, err)
	assert.False(t, children[0].Done)
	displayed, stored := counters(t, c, s, list.ID)
	assert.Equal(t, content.Counters{Total: 1}, displayed)
	assert.Equal(t, displayed, stored)
}

func TestUpdateEntry_NotFoundRefreshesScope(t *testing.T) {
	c, _, s := newTestCoordinator(t)
	ctx := context.Background()
	keep := createNote(t, c, "A", "keep")
	gone := createNote(t, c, "A", "gone")

	// Another writer deletes the entry.
	require.NoError(t, s.DeleteEntry(ctx, gone.ID))

	title := "edited"
	_, err := c.UpdateEntry(ctx, UpdateEntryInput{ID: gone.ID, Title: &title})
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)

	displayed, err := c.Scope(ctx, "a", content.KindNote)
	require.NoError(t, err)
	require.Len(t, displayed, 1)
	assert.Equal(t, keep.ID, displayed[0].ID)
}

func TestAddChild_UnknownCommitReconciles(t *testing.T) {
	c, f, s := newTestCoordinator(t)
	ctx := context.Background()
	list := createTaskList(t, c, "A", "Flaky")

	f.LoseCommit(1)
	_, err := c.AddChild(ctx, AddChildInput{ParentID: list.ID, Text: "landed anyway"})
	require.Error(t, err)
	assert.True(t, store.IsCommitUnknown(err), "got %v", err)

	// The commit did land; reconciliation made the display agree with it.
	children, err := c.Children(ctx, list.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "landed anyway", children[0].Text)

	displayed, stored := counters(t, c, s, list.ID)
	assert.Equal(t, content.Counters{Total: 1}, displayed)
	assert.Equal(t, displayed, stored)
}

func TestValidationErrors_NeverReachStore(t *testing.T) {
	c, f, _ := newTestCoordinator(t)
	ctx := context.Background()
	note := createNote(t, c, "A", "n")
	f.Reset()

	_, err := c.AddChild(ctx, AddChildInput{ParentID: note.ID, Text: "nope"})
	assert.True(t, errors.IsValidation(err), "got %v", err)
	_, err = c.AddChild(ctx, AddChildInput{ParentID: note.ID})
	assert.True(t, errors.IsValidation(err), "got %v", err)
	_, err = c.MoveToSpace(ctx, note.ID, "  ")
	assert.True(t, errors.IsValidation(err), "got %v", err)

	assert.Equal(t, 0, f.Calls(store.OpAtomic))
	assert.Equal(t, 0, f.Calls(store.OpCreateChild))
}

func TestReorder_FailureWithLaterReorderMatchesStore(t *testing.T) {
	c, f, s := newTestCoordinator(t)
	ctx := context.Background()
	createNote(t, c, "A", "A")
	createNote(t, c, "A", "B")
	createNote(t, c, "A", "C")
	scope := content.EntryScope("a", content.KindNote)

	sub, err := c.WatchScope(ctx, "a", content.KindNote)
	require.NoError(t, err)
	defer sub.Close()

	started, release := f.Hold(store.OpReassignOrder)
	defer release()
	f.Fail(store.OpReassignOrder, storetest.ErrRejected, 1)

	first := make(chan error, 1)
	go func() { first <- c.Reorder(ctx, scope, 0, 2) }()
	<-started

	// The second move is planned from the first one's optimistic order.
	second := make(chan error, 1)
	go func() { second <- c.Reorder(ctx, scope, 0, 1) }()
	require.Eventually(t, func() bool {
		displayed, err := c.Scope(ctx, "a", content.KindNote)
		return err == nil && assert.ObjectsAreEqual([]string{"C", "B", "A"}, titles(displayed))
	}, time.Second, time.Millisecond)

	release()
	err = <-first
	assert.True(t, errors.Is(err, errors.ErrPersistencePermanent), "got %v", err)
	require.NoError(t, <-second)

	displayed, err := c.Scope(ctx, "a", content.KindNote)
	require.NoError(t, err)
	stored, err := s.ListEntries(ctx, "a", content.KindNote)
	require.NoError(t, err)
	assert.Equal(t, stored, displayed)
	assert.Equal(t, stored, latest(t, sub.C()).Entries)
}

func TestUpdateEntry_FailureWithQueuedToggleKeepsStoredFields(t *testing.T) {
	c, f, s := newTestCoordinator(t)
	ctx := context.Background()
	list := createTaskList(t, c, "A", "Groceries")
	tasks := addTasks(t, c, list.ID, "milk")
	_, err := c.Children(ctx, list.ID)
	require.NoError(t, err)

	started, release := f.Hold(store.OpUpdateEntry)
	defer release()
	f.Fail(store.OpUpdateEntry, storetest.ErrRejected, 1)

	updated := make(chan error, 1)
	go func() {
		title := "rejected"
		_, err := c.UpdateEntry(ctx, UpdateEntryInput{ID: list.ID, Title: &title})
		updated <- err
	}()
	<-started

	toggled := make(chan error, 1)
	go func() {
		_, err := c.ToggleChild(ctx, tasks[0].ID)
		toggled <- err
	}()
	require.Eventually(t, func() bool {
		e, err := c.Entry(ctx, list.ID)
		return err == nil && e.Title == "rejected" && e.Counters.Completed == 1
	}, time.Second, time.Millisecond)

	release()
	err = <-updated
	assert.True(t, errors.Is(err, errors.ErrPersistencePermanent), "got %v", err)
	require.NoError(t, <-toggled)

	stored, err := s.GetEntry(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", stored.Title)
	assert.Equal(t, content.Counters{Total: 1, Completed: 1}, stored.Counters)

	displayed, err := c.Entry(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, *stored, *displayed)
}

func TestCreateEntry_AppendRenumbersExhaustedScope(t *testing.T) {
	c, _, s := newTestCoordinator(t)
	ctx := context.Background()

	// Another writer left the scope at the top of the order space.
	for i, title := range []string{"X", "Y"} {
		e := &content.Entry{SpaceID: "a", Kind: content.KindNote, Title: title, SortOrder: math.MaxInt64 - 10 + int64(i)}
		require.NoError(t, s.CreateEntry(ctx, e))
	}

	created := createNote(t, c, "A", "Z")

	displayed, err := c.Scope(ctx, "a", content.KindNote)
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y", "Z"}, titles(displayed))
	orders := make([]int64, len(displayed))
	for i, e := range displayed {
		orders[i] = e.SortOrder
	}
	assert.Equal(t, []int64{sequence.Base, sequence.Base + sequence.Step, sequence.Base + 2*sequence.Step}, orders)
	assert.Equal(t, created.SortOrder, orders[2])

	stored, err := s.ListEntries(ctx, "a", content.KindNote)
	require.NoError(t, err)
	assert.Equal(t, displayed, stored)
}
