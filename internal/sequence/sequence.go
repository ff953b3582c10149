// Package sequence computes sort order values for ordered scopes.
//
// Everything here is pure and deterministic: the same displayed order and the
// same request always produce the same assignments. Gaps between values are
// allowed; a scope is only renumbered when no integer gap is left.
package sequence

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/hpungsan/shelf/internal/content"
	shelferrors "github.com/hpungsan/shelf/internal/errors"
)

const (
	// Step is the distance between consecutive values on append and renumber.
	Step int64 = 1024

	// Base is the value given to the first item of an empty scope.
	Base int64 = 0
)

// ErrExhausted is returned when an append would overflow int64. The caller
// renumbers the scope and tries again.
var ErrExhausted = errors.New("sequence: sort order space exhausted")

// Item is one row of a displayed, ordered scope.
type Item struct {
	ID        string
	SortOrder int64
}

// Assignment is a new sort order for one id.
type Assignment struct {
	ID        string `json:"id"`
	SortOrder int64  `json:"sort_order"`
}

// Insert is the result of planning an insertion. When Renumber is non-empty
// it must be persisted together with the new row.
type Insert struct {
	SortOrder int64
	Renumber  []Assignment
}

// Sequencer plans sort orders with a fixed step.
type Sequencer struct {
	Step int64
}

// Default uses Step.
var Default = Sequencer{Step: Step}

// New returns a Sequencer with the given step; non-positive steps use Step.
func New(step int64) Sequencer {
	if step <= 0 {
		step = Step
	}
	return Sequencer{Step: step}
}

func (s Sequencer) step() int64 {
	if s.Step <= 0 {
		return Step
	}
	return s.Step
}

// NextOnAppend returns the value for an item appended after orders.
func (s Sequencer) NextOnAppend(orders []int64) (int64, error) {
	if len(orders) == 0 {
		return Base, nil
	}
	top := orders[0]
	for _, o := range orders[1:] {
		if o > top {
			top = o
		}
	}
	if top > math.MaxInt64-s.step() {
		return 0, ErrExhausted
	}
	return top + s.step(), nil
}

// PlanMove relocates items[oldIndex] to newIndex. items is the displayed
// order. Only the rows whose value changes are returned.
func (s Sequencer) PlanMove(items []Item, oldIndex, newIndex int) ([]Assignment, error) {
	n := len(items)
	if oldIndex < 0 || oldIndex >= n {
		return nil, shelferrors.NewOutOfRange(oldIndex, n)
	}
	if newIndex < 0 || newIndex >= n {
		return nil, shelferrors.NewOutOfRange(newIndex, n)
	}
	if oldIndex == newIndex {
		return nil, nil
	}

	target := Moved(items, oldIndex, newIndex)
	moved := target[newIndex]
	rest := make([]Item, 0, n-1)
	rest = append(rest, target[:newIndex]...)
	rest = append(rest, target[newIndex+1:]...)

	if strictlyIncreasing(rest) {
		if v, ok := s.between(rest, newIndex); ok {
			return []Assignment{{ID: moved.ID, SortOrder: v}}, nil
		}
	}
	return s.Renumber(target), nil
}

// PlanInsertAt returns the value for a new row placed at index, which is in
// [0, len(items)]. When no gap exists the existing rows are renumbered and a
// slot is left free at index.
func (s Sequencer) PlanInsertAt(items []Item, index int) (Insert, error) {
	n := len(items)
	if index < 0 || index > n {
		return Insert{}, shelferrors.NewOutOfRange(index, n)
	}
	if n == 0 {
		return Insert{SortOrder: Base}, nil
	}
	if strictlyIncreasing(items) {
		if v, ok := s.between(items, index); ok {
			return Insert{SortOrder: v}, nil
		}
	}

	var out []Assignment
	for i, it := range items {
		slot := i
		if i >= index {
			slot = i + 1
		}
		want := Base + int64(slot)*s.step()
		if it.SortOrder != want {
			out = append(out, Assignment{ID: it.ID, SortOrder: want})
		}
	}
	return Insert{SortOrder: Base + int64(index)*s.step(), Renumber: out}, nil
}

// between returns a value that sorts strictly between rest[index-1] and
// rest[index], treating missing neighbours as unbounded.
func (s Sequencer) between(rest []Item, index int) (int64, bool) {
	hasPrev := index > 0
	hasNext := index < len(rest)

	switch {
	case !hasPrev && !hasNext:
		return Base, true
	case !hasPrev:
		next := rest[index].SortOrder
		if next < math.MinInt64+s.step() {
			return 0, false
		}
		return next - s.step(), true
	case !hasNext:
		prev := rest[index-1].SortOrder
		if prev > math.MaxInt64-s.step() {
			return 0, false
		}
		return prev + s.step(), true
	}

	lo, hi := rest[index-1].SortOrder, rest[index].SortOrder
	if lo >= hi {
		return 0, false
	}
	// uint64 subtraction cannot overflow when lo < hi.
	gap := uint64(hi) - uint64(lo)
	if gap < 2 {
		return 0, false
	}
	return lo + int64(gap/2), true
}

// Renumber assigns i*Step to items in their given order, returning only the
// rows whose value changes.
func (s Sequencer) Renumber(items []Item) []Assignment {
	var out []Assignment
	for i, it := range items {
		want := Base + int64(i)*s.step()
		if it.SortOrder != want {
			out = append(out, Assignment{ID: it.ID, SortOrder: want})
		}
	}
	return out
}

// Moved returns a copy of items with items[oldIndex] relocated to newIndex.
// Indices must be valid.
func Moved(items []Item, oldIndex, newIndex int) []Item {
	out := make([]Item, 0, len(items))
	out = append(out, items[:oldIndex]...)
	out = append(out, items[oldIndex+1:]...)
	moved := items[oldIndex]
	out = append(out, Item{})
	copy(out[newIndex+1:], out[newIndex:])
	out[newIndex] = moved
	return out
}

// Apply returns a copy of items with assignments applied, sorted by the
// scope comparator.
func Apply(items []Item, assignments []Assignment) []Item {
	byID := make(map[string]int64, len(assignments))
	for _, a := range assignments {
		byID[a.ID] = a.SortOrder
	}
	out := make([]Item, len(items))
	for i, it := range items {
		if v, ok := byID[it.ID]; ok {
			it.SortOrder = v
		}
		out[i] = it
	}
	Sort(out)
	return out
}

// Sort orders items by sort order, then id.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
}

// OrderError reports two adjacent rows that are not strictly ordered.
type OrderError struct {
	Index int
	Prev  Item
	Next  Item
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order violated at %d: %s(%d) !< %s(%d)",
		e.Index, e.Prev.ID, e.Prev.SortOrder, e.Next.ID, e.Next.SortOrder)
}

// Verify checks that items are strictly ordered by the scope comparator and
// returns the first violation.
func Verify(items []Item) error {
	for i := 1; i < len(items); i++ {
		if !less(items[i-1], items[i]) {
			return &OrderError{Index: i, Prev: items[i-1], Next: items[i]}
		}
	}
	return nil
}

// IDs returns the ids of items in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// EntryItems projects entries onto their ordering fields.
func EntryItems(entries []content.Entry) []Item {
	items := make([]Item, len(entries))
	for i, e := range entries {
		items[i] = Item{ID: e.ID, SortOrder: e.SortOrder}
	}
	return items
}

// ChildItems projects children onto their ordering fields.
func ChildItems(children []content.Child) []Item {
	items := make([]Item, len(children))
	for i, c := range children {
		items[i] = Item{ID: c.ID, SortOrder: c.SortOrder}
	}
	return items
}

// Orders returns the sort orders of items.
func Orders(items []Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.SortOrder
	}
	return out
}

func less(a, b Item) bool {
	return content.Less(a.SortOrder, a.ID, b.SortOrder, b.ID)
}

func strictlyIncreasing(items []Item) bool {
	for i := 1; i < len(items); i++ {
		if items[i-1].SortOrder >= items[i].SortOrder {
			return false
		}
	}
	return true
}

// NextOnAppend uses the default step.
func NextOnAppend(orders []int64) (int64, error) { return Default.NextOnAppend(orders) }

// PlanMove uses the default step.
func PlanMove(items []Item, oldIndex, newIndex int) ([]Assignment, error) {
	return Default.PlanMove(items, oldIndex, newIndex)
}

// PlanInsertAt uses the default step.
func PlanInsertAt(items []Item, index int) (Insert, error) {
	return Default.PlanInsertAt(items, index)
}

// Renumber uses the default step.
func Renumber(items []Item) []Assignment { return Default.Renumber(items) }
