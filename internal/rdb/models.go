package rdb

import (
	"time"

	"gorm.io/gorm"

	"github.com/hpungsan/shelf/internal/content"
)

// EntryRow is the entries table. Timestamps are unix milliseconds so both
// backends return identical values; deletion uses gorm's soft delete.
type EntryRow struct {
	ID             string         `gorm:"primaryKey;type:text"`
	OwnerID        string         `gorm:"type:text;not null;index:idx_entries_owner_scope,priority:1"`
	SpaceID        string         `gorm:"type:text;not null;index:idx_entries_owner_scope,priority:2"`
	Kind           string         `gorm:"type:text;not null;index:idx_entries_owner_scope,priority:3;check:kind IN ('note','tasklist','list')"`
	Title          string         `gorm:"type:text;not null"`
	Body           string         `gorm:"type:text;not null"`
	Style          string         `gorm:"type:text;not null"`
	SortOrder      int64          `gorm:"not null;index:idx_entries_owner_scope,priority:4"`
	TotalCount     int            `gorm:"not null;check:total_count >= 0"`
	CompletedCount int            `gorm:"not null;check:completed_count >= 0"`
	CreatedMs      int64          `gorm:"column:created_at;not null"`
	UpdatedMs      int64          `gorm:"column:updated_at;not null"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (EntryRow) TableName() string { return "entries" }

// ChildRow is the children table.
type ChildRow struct {
	ID        string         `gorm:"primaryKey;type:text"`
	OwnerID   string         `gorm:"type:text;not null;index:idx_children_owner_parent,priority:1"`
	ParentID  string         `gorm:"type:text;not null;index:idx_children_owner_parent,priority:2"`
	Kind      string         `gorm:"type:text;not null;check:kind IN ('task','item')"`
	Text      string         `gorm:"type:text;not null"`
	Done      bool           `gorm:"not null"`
	SortOrder int64          `gorm:"not null;index:idx_children_owner_parent,priority:3"`
	CreatedMs int64          `gorm:"column:created_at;not null"`
	UpdatedMs int64          `gorm:"column:updated_at;not null"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (ChildRow) TableName() string { return "children" }

func entryRow(e *content.Entry) *EntryRow {
	return &EntryRow{
		ID:             e.ID,
		OwnerID:        e.OwnerID,
		SpaceID:        e.SpaceID,
		Kind:           string(e.Kind),
		Title:          e.Title,
		Body:           e.Body,
		Style:          string(e.Style),
		SortOrder:      e.SortOrder,
		TotalCount:     e.Counters.Total,
		CompletedCount: e.Counters.Completed,
		CreatedMs:      e.CreatedAt.UnixMilli(),
		UpdatedMs:      e.UpdatedAt.UnixMilli(),
	}
}

func (r *EntryRow) entry() content.Entry {
	return content.Entry{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		SpaceID:   r.SpaceID,
		Kind:      content.Kind(r.Kind),
		Title:     r.Title,
		Body:      r.Body,
		Style:     content.ListStyle(r.Style),
		SortOrder: r.SortOrder,
		Counters:  content.Counters{Total: r.TotalCount, Completed: r.CompletedCount},
		CreatedAt: time.UnixMilli(r.CreatedMs).UTC(),
		UpdatedAt: time.UnixMilli(r.UpdatedMs).UTC(),
	}
}

func childRow(c *content.Child) *ChildRow {
	return &ChildRow{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		ParentID:  c.ParentID,
		Kind:      string(c.Kind),
		Text:      c.Text,
		Done:      c.Done,
		SortOrder: c.SortOrder,
		CreatedMs: c.CreatedAt.UnixMilli(),
		UpdatedMs: c.UpdatedAt.UnixMilli(),
	}
}

func (r *ChildRow) child() content.Child {
	return content.Child{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		ParentID:  r.ParentID,
		Kind:      content.ChildKind(r.Kind),
		Text:      r.Text,
		Done:      r.Done,
		SortOrder: r.SortOrder,
		CreatedAt: time.UnixMilli(r.CreatedMs).UTC(),
		UpdatedAt: time.UnixMilli(r.UpdatedMs).UTC(),
	}
}
