package ops

import (
	"context"
	"fmt"
	"os"
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/db"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

var propertySpaces = []string{"a", "b"}

// openRapidCoordinator opens a coordinator over a fresh store in its own
// directory. A small step makes the generated sequences hit renumbering.
func openRapidCoordinator(t *rapid.T) (*Coordinator, store.Store, func()) {
	dir, err := os.MkdirTemp("", "shelf-rapid-*")
	if err != nil {
		t.Fatalf("temp dir: %v", err)
	}
	b, err := db.Open(dir, nil)
	if err != nil {
		_ = os.RemoveAll(dir)
		t.Fatalf("open: %v", err)
	}
	s, err := b.ForOwner(testOwner)
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	c := New(s, Options{Owner: testOwner, Retry: testRetry, Step: 2})
	return c, s, func() {
		_ = c.Close()
		_ = b.Close()
		_ = os.RemoveAll(dir)
	}
}

// checkScopes asserts that each displayed scope matches the store, is in
// strictly increasing order and holds exactly the modelled titles.
func checkScopes(t *rapid.T, c *Coordinator, s store.Store, model map[string][]string) {
	ctx := context.Background()
	for _, space := range propertySpaces {
		displayed, err := c.Scope(ctx, space, content.KindNote)
		if err != nil {
			t.Fatalf("scope %s: %v", space, err)
		}
		stored, err := s.ListEntries(ctx, space, content.KindNote)
		if err != nil {
			t.Fatalf("list %s: %v", space, err)
		}
		if err := sequence.Verify(sequence.EntryItems(displayed)); err != nil {
			t.Fatalf("space %s: %v", space, err)
		}
		if got, want := titles(displayed), titles(stored); !slices.Equal(got, want) {
			t.Fatalf("space %s: displayed %v, stored %v", space, got, want)
		}
		if got := titles(displayed); !slices.Equal(got, model[space]) {
			t.Fatalf("space %s: displayed %v, expected %v", space, got, model[space])
		}
		for i := range displayed {
			if displayed[i].SortOrder != stored[i].SortOrder {
				t.Fatalf("space %s row %d: displayed order %d, stored %d",
					space, i, displayed[i].SortOrder, stored[i].SortOrder)
			}
			if displayed[i].SpaceID != space {
				t.Fatalf("space %s row %d carries space %q", space, i, displayed[i].SpaceID)
			}
		}
	}
}

func testOrdering_Properties(t *rapid.T) {
	c, s, done := openRapidCoordinator(t)
	defer done()
	ctx := context.Background()

	model := map[string][]string{"a": nil, "b": nil}
	ids := map[string]string{} // title -> id
	next := 0

	steps := rapid.IntRange(1, 25).Draw(t, "steps")
	for i := 0; i < steps; i++ {
		space := rapid.SampledFrom(propertySpaces).Draw(t, "space")
		rows := model[space]

		switch action := rapid.IntRange(0, 3).Draw(t, "action"); {
		case action == 0 || len(rows) == 0:
			title := fmt.Sprintf("n%d", next)
			next++
			input := CreateEntryInput{SpaceID: space, Kind: content.KindNote, Title: title}
			at := len(rows)
			if rapid.Bool().Draw(t, "at_index") {
				at = rapid.IntRange(0, len(rows)).Draw(t, "index")
				input.Index = &at
			}
			e, err := c.CreateEntry(ctx, input)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			ids[title] = e.ID
			model[space] = slices.Insert(rows, at, title)

		case action == 1:
			from := rapid.IntRange(0, len(rows)-1).Draw(t, "from")
			to := rapid.IntRange(0, len(rows)-1).Draw(t, "to")
			if err := c.Reorder(ctx, content.EntryScope(space, content.KindNote), from, to); err != nil {
				t.Fatalf("reorder %d->%d: %v", from, to, err)
			}
			model[space] = moved(rows, from, to)

		case action == 2:
			at := rapid.IntRange(0, len(rows)-1).Draw(t, "delete")
			if err := c.DeleteEntry(ctx, ids[rows[at]]); err != nil {
				t.Fatalf("delete: %v", err)
			}
			model[space] = slices.Delete(slices.Clone(rows), at, at+1)

		default:
			dest := propertySpaces[0]
			if space == dest {
				dest = propertySpaces[1]
			}
			at := rapid.IntRange(0, len(rows)-1).Draw(t, "move")
			title := rows[at]
			e, err := c.MoveToSpace(ctx, ids[title], dest)
			if err != nil {
				t.Fatalf("move: %v", err)
			}
			if e.SpaceID != dest {
				t.Fatalf("moved entry carries space %q, want %q", e.SpaceID, dest)
			}
			model[space] = slices.Delete(slices.Clone(rows), at, at+1)
			model[dest] = append(slices.Clone(model[dest]), title)
		}

		checkScopes(t, c, s, model)
	}
}

func TestOrdering_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testOrdering_Properties)
}

func testCounters_Properties(t *rapid.T) {
	c, s, done := openRapidCoordinator(t)
	defer done()
	ctx := context.Background()

	list, err := c.CreateEntry(ctx, CreateEntryInput{SpaceID: "a", Kind: content.KindTaskList, Title: "tasks"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var kids []string
	steps := rapid.IntRange(1, 20).Draw(t, "steps")
	for i := 0; i < steps; i++ {
		switch action := rapid.IntRange(0, 3).Draw(t, "action"); {
		case action == 0 || len(kids) == 0:
			ch, err := c.AddChild(ctx, AddChildInput{
				ParentID: list.ID,
				Text:     fmt.Sprintf("t%d", i),
				Done:     rapid.Bool().Draw(t, "done"),
			})
			if err != nil {
				t.Fatalf("add: %v", err)
			}
			kids = append(kids, ch.ID)
		case action == 1:
			at := rapid.IntRange(0, len(kids)-1).Draw(t, "toggle")
			if _, err := c.ToggleChild(ctx, kids[at]); err != nil {
				t.Fatalf("toggle: %v", err)
			}
		case action == 2:
			at := rapid.IntRange(0, len(kids)-1).Draw(t, "delete")
			if err := c.DeleteChild(ctx, kids[at]); err != nil {
				t.Fatalf("delete: %v", err)
			}
			kids = slices.Delete(kids, at, at+1)
		default:
			from := rapid.IntRange(0, len(kids)-1).Draw(t, "from")
			to := rapid.IntRange(0, len(kids)-1).Draw(t, "to")
			if err := c.Reorder(ctx, content.ChildScope(list.ID), from, to); err != nil {
				t.Fatalf("reorder: %v", err)
			}
		}

		children, err := s.ListChildren(ctx, list.ID)
		if err != nil {
			t.Fatalf("list children: %v", err)
		}
		want := content.Counters{Total: len(children)}
		for _, ch := range children {
			if ch.Done {
				want.Completed++
			}
		}
		displayed, err := c.Entry(ctx, list.ID)
		if err != nil {
			t.Fatalf("entry: %v", err)
		}
		stored, err := s.GetEntry(ctx, list.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if displayed.Counters != want || stored.Counters != want {
			t.Fatalf("counters: displayed %+v, stored %+v, children say %+v", displayed.Counters, stored.Counters, want)
		}
		if len(children) != len(kids) {
			t.Fatalf("stored %d children, expected %d", len(children), len(kids))
		}
	}
}

func TestCounters_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCounters_Properties)
}
