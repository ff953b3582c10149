package aggregate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hpungsan/shelf/internal/content"
)

func TestCreateThreeChildren(t *testing.T) {
	// Empty task list "Groceries" gets three open tasks.
	var c content.Counters
	for i := 0; i < 3; i++ {
		c = OnChildCreated(c, false)
	}
	require.Equal(t, content.Counters{Total: 3, Completed: 0}, c)
}

func TestToggleForwardAndBack(t *testing.T) {
	c := content.Counters{Total: 3}

	c = OnChildToggled(c, false, true)
	require.Equal(t, 1, c.Completed)

	c = OnChildToggled(c, true, false)
	require.Equal(t, 0, c.Completed)
}

func TestToggleUnchangedIsNoop(t *testing.T) {
	c := content.Counters{Total: 2, Completed: 1}
	require.Equal(t, c, OnChildToggled(c, true, true))
	require.Equal(t, c, OnChildToggled(c, false, false))
}

func TestDeleteCompletedChild(t *testing.T) {
	c := OnChildDeleted(content.Counters{Total: 3, Completed: 1}, true)
	require.Equal(t, content.Counters{Total: 2, Completed: 0}, c)
}

func TestDeleteClampsAtZero(t *testing.T) {
	c := OnChildDeleted(content.Counters{}, true)
	require.Equal(t, content.Counters{}, c)

	c = OnChildToggled(content.Counters{Total: 1}, true, false)
	require.Equal(t, content.Counters{Total: 1}, c)
}

func TestApplyToEntry(t *testing.T) {
	list := content.Entry{Kind: content.KindTaskList}
	got := ApplyToEntry(list, content.Counters{Total: 4, Completed: 2})
	require.Equal(t, content.Counters{Total: 4, Completed: 2}, got.Counters)
	require.Equal(t, content.Counters{}, list.Counters, "input must not change")

	note := ApplyToEntry(content.Entry{Kind: content.KindNote}, content.Counters{Total: 1})
	require.Equal(t, content.Counters{}, note.Counters)
}

func TestMatches(t *testing.T) {
	children := []content.Child{{ID: "a", Done: true}, {ID: "b"}}
	e := content.Entry{Kind: content.KindList, Counters: content.Counters{Total: 2, Completed: 1}}
	require.True(t, Matches(e, children))

	e.Counters.Completed = 0
	require.False(t, Matches(e, children))
}

// ============================================================================
// Property tests
// ============================================================================

type event struct {
	op   string // create, delete, toggle
	done bool
}

// Incremental counters stay equal to a full recount after every event, and
// recounting is idempotent.
func testCounters_Properties(t *rapid.T) {
	var (
		counters content.Counters
		children []content.Child
		nextID   int
	)

	steps := rapid.IntRange(0, 60).Draw(t, "steps")
	for s := 0; s < steps; s++ {
		op := rapid.SampledFrom([]string{"create", "delete", "toggle"}).Draw(t, "op")
		switch op {
		case "create":
			done := rapid.Bool().Draw(t, "done")
			children = append(children, content.Child{ID: fmt.Sprint(nextID), Done: done})
			nextID++
			counters = OnChildCreated(counters, done)
		case "delete":
			if len(children) == 0 {
				continue
			}
			i := rapid.IntRange(0, len(children)-1).Draw(t, "deleteIndex")
			counters = OnChildDeleted(counters, children[i].Done)
			children = append(children[:i], children[i+1:]...)
		case "toggle":
			if len(children) == 0 {
				continue
			}
			i := rapid.IntRange(0, len(children)-1).Draw(t, "toggleIndex")
			from := children[i].Done
			children[i].Done = !from
			counters = OnChildToggled(counters, from, !from)
		}

		want := Recompute(children)
		if counters != want {
			t.Fatalf("after %s: counters = %+v, recount = %+v", op, counters, want)
		}
	}

	once := Recompute(children)
	twice := Recompute(children)
	if once != twice {
		t.Fatalf("Recompute not idempotent: %+v vs %+v", once, twice)
	}
}

func TestCounters_Properties(t *testing.T) {
	rapid.Check(t, testCounters_Properties)
}

func FuzzCounters_Properties(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testCounters_Properties))
}
