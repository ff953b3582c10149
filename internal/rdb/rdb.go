// Package rdb is the relational backend built on gorm. In production it runs
// on PostgreSQL, where row-level security enforces owner isolation inside the
// database; tests run the same code on gorm's SQLite dialect.
package rdb

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/logger"
	"github.com/hpungsan/shelf/internal/store"
)

// ownerSetting is the session setting the row-level security policies read.
const ownerSetting = "shelf.owner_id"

// Options tune the connection.
type Options struct {
	Logger        *logger.Logger
	SlowThreshold time.Duration
	MaxOpenConns  int
	MaxIdleConns  int
}

// Backend hands out owner-bound stores over one gorm connection.
type Backend struct {
	db  *gorm.DB
	rls bool
}

var _ store.Backend = (*Backend)(nil)

// OpenPostgres connects to dsn, migrates the schema and installs the
// row-level security policies.
func OpenPostgres(dsn string, opts Options) (*Backend, error) {
	return open(postgres.Open(dsn), opts)
}

// OpenSQLite opens a SQLite file through gorm using the modernc driver.
func OpenSQLite(path string, opts Options) (*Backend, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	return open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), opts)
}

func open(dialector gorm.Dialector, opts Options) (*Backend, error) {
	if opts.SlowThreshold == 0 {
		opts.SlowThreshold = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	gormLog := gormLogger.New(
		gormWriter{log: log.With("service", "gorm")},
		gormLogger.Config{
			SlowThreshold:             opts.SlowThreshold,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection pool: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}

	b := &Backend{db: db, rls: db.Dialector.Name() == "postgres"}
	if err := b.Migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return b, nil
}

// Migrate creates missing tables, columns and indexes, then enables
// row-level security when running on PostgreSQL.
func (b *Backend) Migrate() error {
	if err := b.db.AutoMigrate(&EntryRow{}, &ChildRow{}); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	if !b.rls {
		return nil
	}
	for _, table := range []string{"entries", "children"} {
		for _, stmt := range rlsStatements(table) {
			if err := b.db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("row level security on %s: %w", table, err)
			}
		}
	}
	return nil
}

// rlsStatements enable forced row-level security on table with a policy that
// only admits rows of the owner set for the current transaction.
func rlsStatements(table string) []string {
	return []string{
		fmt.Sprintf(`ALTER TABLE %s ENABLE ROW LEVEL SECURITY`, table),
		fmt.Sprintf(`ALTER TABLE %s FORCE ROW LEVEL SECURITY`, table),
		fmt.Sprintf(`DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1 FROM pg_policies WHERE tablename = '%[1]s' AND policyname = '%[1]s_owner_isolation'
  ) THEN
    CREATE POLICY %[1]s_owner_isolation ON %[1]s
      USING (owner_id = current_setting('%[2]s', true))
      WITH CHECK (owner_id = current_setting('%[2]s', true));
  END IF;
END
$$`, table, ownerSetting),
	}
}

// ForOwner returns a Store limited to ownerID.
func (b *Backend) ForOwner(ownerID string) (store.Store, error) {
	if ownerID == "" {
		return nil, errors.NewInvalidRequest("owner is required")
	}
	return &Store{db: b.db, owner: ownerID, rls: b.rls}, nil
}

// DB exposes the gorm handle for tests and maintenance.
func (b *Backend) DB() *gorm.DB { return b.db }

// Close closes the connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormWriter routes gorm's slow-query and error lines into zap.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(fmt.Sprintf(format, args...))
}
