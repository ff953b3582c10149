package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/hpungsan/shelf/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errors.Kind
	}{
		{"no rows", sql.ErrNoRows, errors.KindNotFound},
		{"gorm not found", fmt.Errorf("get: %w", gorm.ErrRecordNotFound), errors.KindNotFound},
		{"deadline", context.DeadlineExceeded, errors.KindTransient},
		{"sqlite busy text", stderrors.New("database is locked (5) (SQLITE_BUSY)"), errors.KindTransient},
		{"pg serialization", &pgconn.PgError{Code: "40001"}, errors.KindTransient},
		{"pg deadlock", &pgconn.PgError{Code: "40P01"}, errors.KindTransient},
		{"pg connection", &pgconn.PgError{Code: "08006"}, errors.KindTransient},
		{"pg unique", &pgconn.PgError{Code: "23505"}, errors.KindPermanent},
		{"pg check", &pgconn.PgError{Code: "23514"}, errors.KindPermanent},
		{"sqlite constraint text", stderrors.New("UNIQUE constraint failed: entries.id"), errors.KindPermanent},
		{"quota", stderrors.New("disk quota exceeded"), errors.KindPermanent},
		{"already classified", errors.NewInvalidRequest("x"), errors.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify("op", tt.err)
			if k := errors.KindOf(got); k != tt.want {
				t.Errorf("Classify(%v) kind = %v, want %v", tt.err, k, tt.want)
			}
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify("op", nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
	if ClassifyCommit("op", nil) != nil {
		t.Error("ClassifyCommit(nil) should be nil")
	}
}

func TestClassifyCommit(t *testing.T) {
	err := ClassifyCommit("atomic", stderrors.New("connection reset by peer"))

	if !IsCommitUnknown(err) {
		t.Error("expected commit-unknown marker")
	}
	if errors.KindOf(err) != errors.KindTransient {
		t.Errorf("kind = %v, want transient", errors.KindOf(err))
	}
	if IsCommitUnknown(errors.NewTransient("x", nil)) {
		t.Error("plain transient error should not be commit-unknown")
	}
}
