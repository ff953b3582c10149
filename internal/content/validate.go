package content

import "fmt"

// ValidateEntry checks the fields a caller supplies when creating or updating
// an entry. It does not look at ids, sort orders or timestamps.
func ValidateEntry(e Entry) error {
	if e.SpaceID == "" {
		return fmt.Errorf("space_id is required")
	}
	switch e.Kind {
	case KindNote:
		if e.Title == "" && e.Body == "" {
			return fmt.Errorf("a note needs a title or a body")
		}
		if e.Style != "" {
			return fmt.Errorf("notes have no style")
		}
	case KindTaskList:
		if e.Title == "" {
			return fmt.Errorf("title is required")
		}
		if e.Style != "" {
			return fmt.Errorf("task lists have no style")
		}
		if e.Body != "" {
			return fmt.Errorf("task lists have no body")
		}
	case KindList:
		if e.Title == "" {
			return fmt.Errorf("title is required")
		}
		if !e.Style.Valid() {
			return fmt.Errorf("unknown list style %q", e.Style)
		}
		if e.Body != "" {
			return fmt.Errorf("lists have no body")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// ValidateChild checks the caller-supplied fields of a child. An empty kind
// is allowed; the store derives it from the parent.
func ValidateChild(c Child) error {
	if c.ParentID == "" {
		return fmt.Errorf("parent_id is required")
	}
	if c.Kind != "" && !c.Kind.Valid() {
		return fmt.Errorf("unknown child kind %q", c.Kind)
	}
	if c.Text == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}
