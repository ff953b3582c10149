package db

import (
	"context"
	"testing"

	"github.com/hpungsan/shelf/internal/content"
	"github.com/hpungsan/shelf/internal/errors"
	"github.com/hpungsan/shelf/internal/store"
	"github.com/hpungsan/shelf/internal/store/storetest"
)

func newTestBackend(t *testing.T) store.Backend {
	t.Helper()
	b, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return b
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, newTestBackend)
}

func TestForOwner_RequiresOwner(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()

	if _, err := b.ForOwner(""); !errors.IsValidation(err) {
		t.Errorf("ForOwner(\"\") error = %v, want validation error", err)
	}
}

func TestAtomic_Nested(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()
	s, _ := b.ForOwner("me")
	ctx := context.Background()

	e := &content.Entry{SpaceID: "home", Kind: content.KindNote, Title: "a"}
	err := s.Atomic(ctx, func(tx store.Store) error {
		return tx.Atomic(ctx, func(inner store.Store) error {
			return inner.CreateEntry(ctx, e)
		})
	})
	if err != nil {
		t.Fatalf("nested Atomic failed: %v", err)
	}
	if _, err := s.GetEntry(ctx, e.ID); err != nil {
		t.Errorf("GetEntry after nested commit: %v", err)
	}
}

func TestPurge_RejectsNegative(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()
	s, _ := b.ForOwner("me")

	if _, err := s.Purge(context.Background(), -1); !errors.IsValidation(err) {
		t.Errorf("Purge(-1) error = %v, want validation error", err)
	}
}

func TestReassignOrder_InvalidScope(t *testing.T) {
	b := newTestBackend(t)
	defer b.Close()
	s, _ := b.ForOwner("me")

	err := s.ReassignOrder(context.Background(), content.Scope{}, nil)
	if !errors.IsValidation(err) {
		t.Errorf("ReassignOrder(empty scope) error = %v, want validation error", err)
	}
}
