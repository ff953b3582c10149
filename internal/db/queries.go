package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

const entryColumns = `id, owner_id, space_id, kind, title, body, style, sort_order,
	total_count, completed_count, created_at, updated_at`

const childColumns = `id, owner_id, parent_id, kind, text, done, sort_order,
	created_at, updated_at`

// InsertEntry stores a new entry. The entry must already be prepared.
func InsertEntry(ctx context.Context, q querier, e *content.Entry) error {
	query := `
		INSERT INTO entries (` + entryColumns + `, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := q.ExecContext(ctx, query,
		e.ID, e.OwnerID, e.SpaceID, string(e.Kind), e.Title, e.Body, string(e.Style), e.SortOrder,
		e.Counters.Total, e.Counters.Completed, e.CreatedAt.UnixMilli(), e.UpdatedAt.UnixMilli(),
	)
	return store.Classify(store.OpCreateEntry, err)
}

// GetEntry retrieves a live entry by its ULID.
func GetEntry(ctx context.Context, q querier, owner, id string) (*content.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`

	e, err := scanEntry(q.QueryRowContext(ctx, query, id, owner))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, store.Classify(store.OpGetEntry, err)
	}
	return e, nil
}

// ListEntries returns the live entries of one scope in display order.
func ListEntries(ctx context.Context, q querier, owner, spaceID string, kind content.Kind) ([]content.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries
		WHERE owner_id = ? AND space_id = ? AND kind = ? AND deleted_at IS NULL
		ORDER BY sort_order ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, owner, spaceID, string(kind))
	if err != nil {
		return nil, store.Classify(store.OpListEntries, err)
	}
	defer rows.Close()

	entries := []content.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, store.Classify(store.OpListEntries, err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(store.OpListEntries, err)
	}
	return entries, nil
}

// UpdateEntry replaces the mutable fields of a live entry.
// Does NOT change: id, owner, kind, created_at
func UpdateEntry(ctx context.Context, q querier, owner string, e *content.Entry) error {
	query := `
		UPDATE entries
		SET space_id = ?, title = ?, body = ?, style = ?, sort_order = ?,
			total_count = ?, completed_count = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
	`
	result, err := q.ExecContext(ctx, query,
		e.SpaceID, e.Title, e.Body, string(e.Style), e.SortOrder,
		e.Counters.Total, e.Counters.Completed, e.UpdatedAt.UnixMilli(),
		e.ID, owner,
	)
	return expectRow(result, err, store.OpUpdateEntry, e.ID)
}

// SetCounters rewrites the counters of a live entry and nothing else.
func SetCounters(ctx context.Context, q querier, owner, id string, counters content.Counters, at time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE entries SET total_count = ?, completed_count = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
	`, counters.Total, counters.Completed, at.UnixMilli(), id, owner)
	return expectRow(result, err, store.OpSetCounters, id)
}

// SoftDeleteEntry marks an entry and its children as deleted. Missing rows
// are not an error.
func SoftDeleteEntry(ctx context.Context, q querier, owner, id string, now time.Time) error {
	ms := now.UnixMilli()
	result, err := q.ExecContext(ctx, `
		UPDATE entries SET deleted_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
	`, ms, id, owner)
	if err != nil {
		return store.Classify(store.OpDeleteEntry, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil
	}

	_, err = q.ExecContext(ctx, `
		UPDATE children SET deleted_at = ?
		WHERE parent_id = ? AND owner_id = ? AND deleted_at IS NULL
	`, ms, id, owner)
	return store.Classify(store.OpDeleteEntry, err)
}

// InsertChild stores a new child. The child must already be prepared.
func InsertChild(ctx context.Context, q querier, c *content.Child) error {
	query := `
		INSERT INTO children (` + childColumns + `, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
	`
	_, err := q.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.ParentID, string(c.Kind), c.Text, c.Done, c.SortOrder,
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli(),
	)
	return store.Classify(store.OpCreateChild, err)
}

// GetChild retrieves a live child by its ULID.
func GetChild(ctx context.Context, q querier, owner, id string) (*content.Child, error) {
	query := `SELECT ` + childColumns + ` FROM children
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL`

	c, err := scanChild(q.QueryRowContext(ctx, query, id, owner))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, store.Classify(store.OpGetChild, err)
	}
	return c, nil
}

// ListChildren returns the live children of a parent in display order.
func ListChildren(ctx context.Context, q querier, owner, parentID string) ([]content.Child, error) {
	query := `SELECT ` + childColumns + ` FROM children
		WHERE owner_id = ? AND parent_id = ? AND deleted_at IS NULL
		ORDER BY sort_order ASC, id ASC`

	rows, err := q.QueryContext(ctx, query, owner, parentID)
	if err != nil {
		return nil, store.Classify(store.OpListChildren, err)
	}
	defer rows.Close()

	children := []content.Child{}
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, store.Classify(store.OpListChildren, err)
		}
		children = append(children, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(store.OpListChildren, err)
	}
	return children, nil
}

// UpdateChild replaces text, done and sort order of a live child.
func UpdateChild(ctx context.Context, q querier, owner string, c *content.Child) error {
	result, err := q.ExecContext(ctx, `
		UPDATE children
		SET text = ?, done = ?, sort_order = ?, updated_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
	`, c.Text, c.Done, c.SortOrder, c.UpdatedAt.UnixMilli(), c.ID, owner)
	return expectRow(result, err, store.OpUpdateChild, c.ID)
}

// SoftDeleteChild marks a child as deleted. Missing rows are not an error.
func SoftDeleteChild(ctx context.Context, q querier, owner, id string, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE children SET deleted_at = ?
		WHERE id = ? AND owner_id = ? AND deleted_at IS NULL
	`, now.UnixMilli(), id, owner)
	return store.Classify(store.OpDeleteChild, err)
}

// SetSortOrder moves one live row of scope. A row outside the scope is
// reported as not found.
func SetSortOrder(ctx context.Context, q querier, owner string, scope content.Scope, a sequence.Assignment) error {
	var (
		result sql.Result
		err    error
	)
	if scope.IsChildScope() {
		result, err = q.ExecContext(ctx, `
			UPDATE children SET sort_order = ?
			WHERE id = ? AND owner_id = ? AND parent_id = ? AND deleted_at IS NULL
		`, a.SortOrder, a.ID, owner, scope.ParentID)
	} else {
		result, err = q.ExecContext(ctx, `
			UPDATE entries SET sort_order = ?
			WHERE id = ? AND owner_id = ? AND space_id = ? AND kind = ? AND deleted_at IS NULL
		`, a.SortOrder, a.ID, owner, scope.SpaceID, string(scope.Kind))
	}
	return expectRow(result, err, store.OpReassignOrder, a.ID)
}

// ListSpaces returns the distinct spaces holding live entries, sorted.
func ListSpaces(ctx context.Context, q querier, owner string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT space_id FROM entries
		WHERE owner_id = ? AND deleted_at IS NULL
		ORDER BY space_id ASC
	`, owner)
	if err != nil {
		return nil, store.Classify(store.OpListSpaces, err)
	}
	defer rows.Close()

	spaces := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, store.Classify(store.OpListSpaces, err)
		}
		spaces = append(spaces, s)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Classify(store.OpListSpaces, err)
	}
	return spaces, nil
}

// PurgeDeleted hard-deletes rows soft-deleted at or before cutoffMs, plus the
// children of purged entries.
func PurgeDeleted(ctx context.Context, q querier, owner string, cutoffMs int64) (int, error) {
	var total int64

	result, err := q.ExecContext(ctx, `
		DELETE FROM children
		WHERE owner_id = ? AND (
			(deleted_at IS NOT NULL AND deleted_at <= ?)
			OR parent_id IN (
				SELECT id FROM entries
				WHERE owner_id = ? AND deleted_at IS NOT NULL AND deleted_at <= ?
			)
		)
	`, owner, cutoffMs, owner, cutoffMs)
	if err != nil {
		return 0, store.Classify(store.OpPurge, err)
	}
	n, _ := result.RowsAffected()
	total += n

	result, err = q.ExecContext(ctx, `
		DELETE FROM entries
		WHERE owner_id = ? AND deleted_at IS NOT NULL AND deleted_at <= ?
	`, owner, cutoffMs)
	if err != nil {
		return 0, store.Classify(store.OpPurge, err)
	}
	n, _ = result.RowsAffected()
	total += n

	return int(total), nil
}

// expectRow turns a write that touched no rows into NOT_FOUND.
func expectRow(result sql.Result, err error, op, id string) error {
	if err != nil {
		return store.Classify(op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEntry scans a single row into an Entry.
func scanEntry(row scanner) (*content.Entry, error) {
	var (
		e                    content.Entry
		kind, style          string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.SpaceID, &kind, &e.Title, &e.Body, &style, &e.SortOrder,
		&e.Counters.Total, &e.Counters.Completed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Kind = content.Kind(kind)
	e.Style = content.ListStyle(style)
	e.CreatedAt = time.UnixMilli(createdAt).UTC()
	e.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &e, nil
}

// scanChild scans a single row into a Child.
func scanChild(row scanner) (*content.Child, error) {
	var (
		c                    content.Child
		kind                 string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.ParentID, &kind, &c.Text, &c.Done, &c.SortOrder,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Kind = content.ChildKind(kind)
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &c, nil
}
