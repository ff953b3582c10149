package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpungsan/shelf/internal/config"
	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/sequence"
	"github.com/hpungsan/shelf/internal/store"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Backend hands out owner-bound stores over one SQLite database.
type Backend struct {
	db *sql.DB
}

var _ store.Backend = (*Backend)(nil)

// New wraps an initialized database.
func New(db *sql.DB) *Backend {
	return &Backend{db: db}
}

// Open initializes baseDir/shelf.db and wraps it.
func Open(baseDir string, cfg *config.Config) (*Backend, error) {
	database, err := Init(baseDir)
	if err != nil {
		return nil, err
	}
	ConfigurePool(database, cfg)
	return New(database), nil
}

// DB exposes the underlying handle for maintenance commands.
func (b *Backend) DB() *sql.DB { return b.db }

// ForOwner returns a Store limited to ownerID.
func (b *Backend) ForOwner(ownerID string) (store.Store, error) {
	if ownerID == "" {
		return nil, errors.NewInvalidRequest("owner is required")
	}
	return &Store{db: b.db, q: b.db, owner: ownerID}, nil
}

// Close closes the database.
func (b *Backend) Close() error { return b.db.Close() }

// Store is the owner-bound embedded store. Inside Atomic, q is the open
// transaction.
type Store struct {
	db    *sql.DB
	q     querier
	owner string
	inTx  bool
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreateEntry(ctx context.Context, e *content.Entry) error {
	if err := store.PrepareEntry(e, s.owner); err != nil {
		return err
	}
	return InsertEntry(ctx, s.q, e)
}

func (s *Store) GetEntry(ctx context.Context, id string) (*content.Entry, error) {
	return GetEntry(ctx, s.q, s.owner, id)
}

func (s *Store) ListEntries(ctx context.Context, spaceID string, kind content.Kind) ([]content.Entry, error) {
	return ListEntries(ctx, s.q, s.owner, spaceID, kind)
}

func (s *Store) UpdateEntry(ctx context.Context, e *content.Entry) error {
	if err := content.ValidateEntry(*e); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	store.Touch(&e.UpdatedAt)
	return UpdateEntry(ctx, s.q, s.owner, e)
}

func (s *Store) SetCounters(ctx context.Context, id string, counters content.Counters, at time.Time) error {
	if err := store.CheckCounters(counters); err != nil {
		return err
	}
	store.Touch(&at)
	return SetCounters(ctx, s.q, s.owner, id, counters, at)
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	return s.Atomic(ctx, func(tx store.Store) error {
		return SoftDeleteEntry(ctx, tx.(*Store).q, s.owner, id, content.Now())
	})
}

func (s *Store) CreateChild(ctx context.Context, c *content.Child) error {
	if err := store.PrepareChild(c, s.owner); err != nil {
		return err
	}
	parent, err := GetEntry(ctx, s.q, s.owner, c.ParentID)
	if err != nil {
		return err
	}
	if err := store.CheckParent(parent.Kind, c); err != nil {
		return err
	}
	return InsertChild(ctx, s.q, c)
}

func (s *Store) GetChild(ctx context.Context, id string) (*content.Child, error) {
	return GetChild(ctx, s.q, s.owner, id)
}

func (s *Store) ListChildren(ctx context.Context, parentID string) ([]content.Child, error) {
	return ListChildren(ctx, s.q, s.owner, parentID)
}

func (s *Store) UpdateChild(ctx context.Context, c *content.Child) error {
	if c.Text == "" {
		return errors.NewInvalidRequest("text is required")
	}
	store.Touch(&c.UpdatedAt)
	return UpdateChild(ctx, s.q, s.owner, c)
}

func (s *Store) DeleteChild(ctx context.Context, id string) error {
	return SoftDeleteChild(ctx, s.q, s.owner, id, content.Now())
}

func (s *Store) ReassignOrder(ctx context.Context, scope content.Scope, assignments []sequence.Assignment) error {
	if err := scope.Validate(); err != nil {
		return errors.NewInvalidRequest(err.Error())
	}
	if len(assignments) == 0 {
		return nil
	}
	return s.Atomic(ctx, func(tx store.Store) error {
		q := tx.(*Store).q
		for _, a := range assignments {
			if err := SetSortOrder(ctx, q, s.owner, scope, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Atomic runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Classify(store.OpAtomic, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&Store{db: s.db, q: tx, owner: s.owner, inTx: true}); err != nil {
		return store.Classify(store.OpAtomic, err)
	}
	if err := tx.Commit(); err != nil {
		return store.ClassifyCommit(store.OpAtomic, err)
	}
	return nil
}

func (s *Store) ListSpaces(ctx context.Context) ([]string, error) {
	return ListSpaces(ctx, s.q, s.owner)
}

func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan < 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("older_than must not be negative, got %s", olderThan))
	}
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	var total int
	err := s.Atomic(ctx, func(tx store.Store) error {
		n, err := PurgeDeleted(ctx, tx.(*Store).q, s.owner, cutoff)
		total = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
