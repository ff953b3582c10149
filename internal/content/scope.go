package content

import "fmt"

// Scope is the partition inside which sort orders are compared: either the
// entries of one kind in one Space, or the children of one parent.
type Scope struct {
	SpaceID  string `json:"space_id,omitempty"`
	Kind     Kind   `json:"kind,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// EntryScope returns the scope of entries of kind in space.
func EntryScope(spaceID string, kind Kind) Scope {
	return Scope{SpaceID: spaceID, Kind: kind}
}

// ChildScope returns the scope of the children of parentID.
func ChildScope(parentID string) Scope {
	return Scope{ParentID: parentID}
}

// IsChildScope reports whether the scope addresses children.
func (s Scope) IsChildScope() bool {
	return s.ParentID != ""
}

// Key returns a stable string form used as a map key and bus topic.
func (s Scope) Key() string {
	if s.IsChildScope() {
		return "children:" + s.ParentID
	}
	return fmt.Sprintf("space:%s:%s", s.SpaceID, s.Kind)
}

func (s Scope) String() string { return s.Key() }

// Validate checks that exactly one addressing mode is used.
func (s Scope) Validate() error {
	if s.IsChildScope() {
		if s.SpaceID != "" || s.Kind != "" {
			return fmt.Errorf("scope cannot address both a parent and a space")
		}
		return nil
	}
	if s.SpaceID == "" {
		return fmt.Errorf("scope requires a space id")
	}
	if !s.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", s.Kind)
	}
	return nil
}
