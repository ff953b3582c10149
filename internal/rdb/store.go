package rdb

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// Store is the owner-bound relational store. Every call runs in a
// transaction so the owner setting is in place for row-level security.
type Store struct {
	db    *gorm.DB
	tx    *gorm.DB
	owner string
	rls   bool
}

var _ store.Store = (*Store)(nil)

// run executes fn in the current transaction, or in a new one.
func (s *Store) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	if s.tx != nil {
		return fn(s.tx.WithContext(ctx))
	}
	return s.begin(ctx, op, fn)
}

func (s *Store) begin(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return store.Classify(op, tx.Error)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if s.rls {
		if err := tx.Exec("SELECT set_config(?, ?, true)", ownerSetting, s.owner).Error; err != nil {
			return store.Classify(op, err)
		}
	}
	if err := fn(tx); err != nil {
		return store.Classify(op, err)
	}
	committed = true
	if err := tx.Commit().Error; err != nil {
		return store.ClassifyCommit(op, err)
	}
	return nil
}

func (s *Store) owned(tx *gorm.DB) *gorm.DB {
	return tx.Where("owner_id = ?", s.owner)
}

func (s *Store) CreateEntry(ctx context.Context, e *content.Entry) error {
	if err := store.PrepareEntry(e, s.owner); err != nil {
		return err
	}
	return s.run(ctx, store.OpCreateEntry, func(tx *gorm.DB) error {
		return tx.Create(entryRow(e)).Error
	})
}

func (s *Store) GetEntry(ctx context.Context, id string) (*content.Entry, error) {
	var out *content.Entry
	err := s.run(ctx, store.OpGetEntry, func(tx *gorm.DB) error {
		e, err := s.getEntry(tx, id)
		out = e
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) getEntry(tx *gorm.DB, id string) (*content.Entry, error) {
	var row EntryRow
	err := s.owned(tx).Where("id = ?", id).Take(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	e := row.entry()
	return &e, nil
}

func (s *Store) ListEntries(ctx context.Context, spaceID string, kind content.Kind) ([]content.Entry, error) {
	entries := []content.Entry{}
	err := s.run(ctx, store.OpListEntries, func(tx *gorm.DB) error {
		var rows []EntryRow
		err := s.owned(tx).
			Where("space_id = ? AND kind = ?", spaceID, string(kind)).
			Order("sort_order ASC").Order("id ASC").
			Find(&rows).Error
		if err != nil {
			return err
		}
		for i := range rows {
			entries = append(entries, rows[i].entry())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) UpdateEntry(ctx context.Context, e *content.Entry) error {
	if err := content.ValidateEntry(*e); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	store.Touch(&e.UpdatedAt)
	return s.run(ctx, store.OpUpdateEntry, func(tx *gorm.DB) error {
		result := s.owned(tx.Model(&EntryRow{})).Where("id = ?", e.ID).Updates(map[string]any{
			"space_id":        e.SpaceID,
			"title":           e.Title,
			"body":            e.Body,
			"style":           string(e.Style),
			"sort_order":      e.SortOrder,
			"total_count":     e.Counters.Total,
			"completed_count": e.Counters.Completed,
			"updated_at":      e.UpdatedAt.UnixMilli(),
		})
		return expectRow(result, e.ID)
	})
}

func (s *Store) SetCounters(ctx context.Context, id string, counters content.Counters, at time.Time) error {
	if err := store.CheckCounters(counters); err != nil {
		return err
	}
	store.Touch(&at)
	return s.run(ctx, store.OpSetCounters, func(tx *gorm.DB) error {
		result := s.owned(tx.Model(&EntryRow{})).Where("id = ?", id).Updates(map[string]any{
			"total_count":     counters.Total,
			"completed_count": counters.Completed,
			"updated_at":      at.UnixMilli(),
		})
		return expectRow(result, id)
	})
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	return s.run(ctx, store.OpDeleteEntry, func(tx *gorm.DB) error {
		result := s.owned(tx).Where("id = ?", id).Delete(&EntryRow{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		return s.owned(tx).Where("parent_id = ?", id).Delete(&ChildRow{}).Error
	})
}

func (s *Store) CreateChild(ctx context.Context, c *content.Child) error {
	if err := store.PrepareChild(c, s.owner); err != nil {
		return err
	}
	return s.run(ctx, store.OpCreateChild, func(tx *gorm.DB) error {
		parent, err := s.getEntry(tx, c.ParentID)
		if err != nil {
			return err
		}
		if err := store.CheckParent(parent.Kind, c); err != nil {
			return err
		}
		return tx.Create(childRow(c)).Error
	})
}

func (s *Store) GetChild(ctx context.Context, id string) (*content.Child, error) {
	var out content.Child
	err := s.run(ctx, store.OpGetChild, func(tx *gorm.DB) error {
		var row ChildRow
		err := s.owned(tx).Where("id = ?", id).Take(&row).Error
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.NewNotFound(id)
		}
		if err != nil {
			return err
		}
		out = row.child()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]content.Child, error) {
	children := []content.Child{}
	err := s.run(ctx, store.OpListChildren, func(tx *gorm.DB) error {
		var rows []ChildRow
		err := s.owned(tx).
			Where("parent_id = ?", parentID).
			Order("sort_order ASC").Order("id ASC").
			Find(&rows).Error
		if err != nil {
			return err
		}
		for i := range rows {
			children = append(children, rows[i].child())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

func (s *Store) UpdateChild(ctx context.Context, c *content.Child) error {
	if c.Text == "" {
		return errors.NewInvalidRequest("text is required")
	}
	store.Touch(&c.UpdatedAt)
	return s.run(ctx, store.OpUpdateChild, func(tx *gorm.DB) error {
		result := s.owned(tx.Model(&ChildRow{})).Where("id = ?", c.ID).Updates(map[string]any{
			"text":       c.Text,
			"done":       c.Done,
			"sort_order": c.SortOrder,
			"updated_at": c.UpdatedAt.UnixMilli(),
		})
		return expectRow(result, c.ID)
	})
}

func (s *Store) DeleteChild(ctx context.Context, id string) error {
	return s.run(ctx, store.OpDeleteChild, func(tx *gorm.DB) error {
		return s.owned(tx).Where("id = ?", id).Delete(&ChildRow{}).Error
	})
}

func (s *Store) ReassignOrder(ctx context.Context, scope content.Scope, assignments []sequence.Assignment) error {
	if err := scope.Validate(); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if len(assignments) == 0 {
		return nil
	}
	return s.run(ctx, store.OpReassignOrder, func(tx *gorm.DB) error {
		for _, a := range assignments {
			var q *gorm.DB
			if scope.IsChildScope() {
				q = s.owned(tx.Model(&ChildRow{})).Where("id = ? AND parent_id = ?", a.ID, scope.ParentID)
			} else {
				q = s.owned(tx.Model(&EntryRow{})).
					Where("id = ? AND space_id = ? AND kind = ?", a.ID, scope.SpaceID, string(scope.Kind))
			}
			if err := expectRow(q.Update("sort_order", a.SortOrder), a.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Atomic runs fn in one transaction. Nested calls join the outer one.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	return s.begin(ctx, store.OpAtomic, func(tx *gorm.DB) error {
		return fn(&Store{db: s.db, tx: tx, owner: s.owner, rls: s.rls})
	})
}

func (s *Store) ListSpaces(ctx context.Context) ([]string, error) {
	spaces := []string{}
	err := s.run(ctx, store.OpListSpaces, func(tx *gorm.DB) error {
		return s.owned(tx.Model(&EntryRow{})).
			Distinct("space_id").
			Order("space_id ASC").
			Pluck("space_id", &spaces).Error
	})
	if err != nil {
		return nil, err
	}
	return spaces, nil
}

func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan < 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("older_than must not be negative, got %s", olderThan))
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	var total int64
	err := s.run(ctx, store.OpPurge, func(tx *gorm.DB) error {
		purged := s.owned(tx.Unscoped().Model(&EntryRow{})).
			Select("id").
			Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff)

		result := s.owned(tx.Unscoped()).
			Where("(deleted_at IS NOT NULL AND deleted_at <= ?) OR parent_id IN (?)", cutoff, purged).
			Delete(&ChildRow{})
		if result.Error != nil {
			return result.Error
		}
		total += result.RowsAffected

		result = s.owned(tx.Unscoped()).
			Where("deleted_at IS NOT NULL AND deleted_at <= ?", cutoff).
			Delete(&EntryRow{})
		if result.Error != nil {
			return result.Error
		}
		total += result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// expectRow turns a write that touched no rows into NOT_FOUND.
func expectRow(result *gorm.DB, id string) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}
