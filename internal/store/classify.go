package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hpungsan/shelf/internal/errors"
)

// CommitError reports a transaction whose commit failed after the work inside
// it succeeded. The caller cannot tell whether the data landed.
type CommitError struct {
	Err error
}

func (e *CommitError) Error() string { return "commit outcome unknown: " + e.Err.Error() }

func (e *CommitError) Unwrap() error { return e.Err }

// IsCommitUnknown reports whether err came from an ambiguous commit.
func IsCommitUnknown(err error) bool {
	var ce *CommitError
	return stderrors.As(err, &ce)
}

// Classify converts a backend error into the shelf error taxonomy. Errors that
// are already classified pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}

	switch {
	case stderrors.Is(err, sql.ErrNoRows), stderrors.Is(err, gorm.ErrRecordNotFound):
		return errors.NewNotFound(op)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.NewTransient(op, err)
	case stderrors.Is(err, sql.ErrConnDone), stderrors.Is(err, gorm.ErrInvalidDB):
		return errors.NewTransient(op, err)
	}

	var sqliteErr *sqlite.Error
	if stderrors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return errors.NewTransient(op, err)
		default:
			return errors.NewPermanent(op, err)
		}
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case code == "40001", code == "40P01", code == "55P03", code == "57P03":
			return errors.NewTransient(op, err) // serialization/deadlock/lock_not_available/cannot_connect_now
		case strings.HasPrefix(code, "08"):
			return errors.NewTransient(op, err) // connection exception
		default:
			return errors.NewPermanent(op, err)
		}
	}
	if pgconn.Timeout(err) {
		return errors.NewTransient(op, err)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "sqlite_busy"),
		strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "temporar"):
		return errors.NewTransient(op, err)
	default:
		return errors.NewPermanent(op, err)
	}
}

// ClassifyCommit wraps a failed commit so callers can schedule reconciliation.
func ClassifyCommit(op string, err error) error {
	if err == nil {
		return nil
	}
	classified := Classify(op, err)
	sErr, _ := errors.As(classified)
	return &errors.ShelfError{
		Code:    sErr.Code,
		Status:  sErr.Status,
		Message: sErr.Message,
		Details: sErr.Details,
		Cause:   &CommitError{Err: err},
	}
}
