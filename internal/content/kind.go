package content

// Kind is the closed set of entry kinds. Adding a kind means extending every
// switch in this package; callers dispatch through these methods.
type Kind string

const (
	KindNote     Kind = "note"
	KindTaskList Kind = "tasklist"
	KindList     Kind = "list"
)

// Kinds lists all entry kinds in display order.
var Kinds = []Kind{KindNote, KindTaskList, KindList}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindNote, KindTaskList, KindList:
		return true
	}
	return false
}

// HasChildren reports whether entries of this kind own children and counters.
func (k Kind) HasChildren() bool {
	switch k {
	case KindTaskList, KindList:
		return true
	case KindNote:
		return false
	}
	return false
}

// ChildKind returns the kind of children an entry of this kind owns.
// The second value is false for kinds without children.
func (k Kind) ChildKind() (ChildKind, bool) {
	switch k {
	case KindTaskList:
		return ChildTask, true
	case KindList:
		return ChildItem, true
	case KindNote:
		return "", false
	}
	return "", false
}

// ParseKind converts user input into a Kind.
func ParseKind(s string) (Kind, bool) {
	k := Kind(Normalize(s))
	switch k {
	case "notes":
		k = KindNote
	case "tasks", "task_list", "tasklists":
		k = KindTaskList
	case "lists", "generic", "genericlist":
		k = KindList
	}
	return k, k.Valid()
}

// ChildKind is the closed set of child kinds.
type ChildKind string

const (
	ChildTask ChildKind = "task"
	ChildItem ChildKind = "item"
)

// Valid reports whether c is a known child kind.
func (c ChildKind) Valid() bool {
	switch c {
	case ChildTask, ChildItem:
		return true
	}
	return false
}

// ListStyle is the presentation variant of a generic list.
type ListStyle string

const (
	StylePlain     ListStyle = "plain"
	StyleChecklist ListStyle = "checklist"
)

// Valid reports whether s is a known style.
func (s ListStyle) Valid() bool {
	switch s {
	case StylePlain, StyleChecklist:
		return true
	}
	return false
}

// Checkable reports whether children of entry e may be toggled.
// Tasks can always be completed; list items only in checklist style.
func Checkable(e Entry) bool {
	switch e.Kind {
	case KindTaskList:
		return true
	case KindList:
		return e.Style == StyleChecklist
	case KindNote:
		return false
	}
	return false
}
