package rdb

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/store"
	"github.com/hpungsan/shelf/internal/store/storetest"
)

func openSQLite(t *testing.T) *Backend {
	t.Helper()
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "rdb.db"), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestStoreContract_SQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		return openSQLite(t)
	})
}

// TestStoreContract_Postgres runs the shared contract against a real
// PostgreSQL. Skipped unless TEST_POSTGRES_DSN is set.
func TestStoreContract_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Backend {
		b, err := OpenPostgres(dsn, Options{})
		require.NoError(t, err)
		require.NoError(t, b.DB().Exec("TRUNCATE entries, children").Error)
		t.Cleanup(func() { _ = b.Close() })
		return b
	})
}

func TestOpen_NoRowLevelSecurityOnSQLite(t *testing.T) {
	b := openSQLite(t)
	assert.False(t, b.rls)
	assert.True(t, b.DB().Migrator().HasTable(&EntryRow{}))
	assert.True(t, b.DB().Migrator().HasTable(&ChildRow{}))
	assert.True(t, b.DB().Migrator().HasIndex(&EntryRow{}, "idx_entries_owner_scope"))
}

func TestMigrate_Idempotent(t *testing.T) {
	b := openSQLite(t)
	require.NoError(t, b.Migrate())
	require.NoError(t, b.Migrate())
}

func TestRLSStatements(t *testing.T) {
	stmts := rlsStatements("entries")
	require.Len(t, stmts, 3)
	assert.Equal(t, "ALTER TABLE entries ENABLE ROW LEVEL SECURITY", stmts[0])
	assert.Equal(t, "ALTER TABLE entries FORCE ROW LEVEL SECURITY", stmts[1])
	assert.Contains(t, stmts[2], "CREATE POLICY entries_owner_isolation ON entries")
	assert.Contains(t, stmts[2], "current_setting('shelf.owner_id', true)")
	assert.Equal(t, 2, strings.Count(stmts[2], "current_setting"))
}

func TestForOwner_RequiresOwner(t *testing.T) {
	b := openSQLite(t)
	_, err := b.ForOwner("")
	assert.True(t, errors.IsValidation(err))
}

func TestSoftDelete_KeepsRowUntilPurge(t *testing.T) {
	b := openSQLite(t)
	s, err := b.ForOwner("me")
	require.NoError(t, err)
	ctx := context.Background()

	e := &content.Entry{SpaceID: "home", Kind: content.KindTaskList, Title: "chores"}
	require.NoError(t, s.CreateEntry(ctx, e))
	require.NoError(t, s.DeleteEntry(ctx, e.ID))

	var n int64
	require.NoError(t, b.DB().Unscoped().Model(&EntryRow{}).Where("id = ?", e.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	_, err = s.GetEntry(ctx, e.ID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	purged, err := s.Purge(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	require.NoError(t, b.DB().Unscoped().Model(&EntryRow{}).Where("id = ?", e.ID).Count(&n).Error)
	assert.EqualValues(t, 0, n)
}

func TestUpdate_DeletedEntryIsNotFound(t *testing.T) {
	b := openSQLite(t)
	s, _ := b.ForOwner("me")
	ctx := context.Background()

	e := &content.Entry{SpaceID: "home", Kind: content.KindNote, Title: "gone"}
	require.NoError(t, s.CreateEntry(ctx, e))
	require.NoError(t, s.DeleteEntry(ctx, e.ID))

	e.Title = "back"
	err := s.UpdateEntry(ctx, e)
	assert.True(t, errors.Is(err, errors.ErrNotFound), "got %v", err)
}
