package content

import "sort"

// Less orders by sort order, breaking ties by id. Two distinct live rows never
// compare equal because ids are unique.
func Less(aOrder int64, aID string, bOrder int64, bID string) bool {
	if aOrder != bOrder {
		return aOrder < bOrder
	}
	return aID < bID
}

// SortEntries sorts entries in display order.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i].SortOrder, entries[i].ID, entries[j].SortOrder, entries[j].ID)
	})
}

// SortChildren sorts children in display order.
func SortChildren(children []Child) {
	sort.SliceStable(children, func(i, j int) bool {
		return Less(children[i].SortOrder, children[i].ID, children[j].SortOrder, children[j].ID)
	})
}

// EntryIndex returns the index of id in entries, or -1.
func EntryIndex(entries []Entry, id string) int {
	for i := range entries {
		if entries[i].ID == id {
			return i
		}
	}
	return -1
}

// ChildIndex returns the index of id in children, or -1.
func ChildIndex(children []Child, id string) int {
	for i := range children {
		if children[i].ID == id {
			return i
		}
	}
	return -1
}
