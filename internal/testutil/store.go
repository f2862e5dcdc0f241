// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/xiaot623/gogo/convstore/internal/repository"
)

// NewSQLiteStore opens a migrated in-memory SQLite store that is closed when
// the test finishes.
func NewSQLiteStore(t *testing.T) *repository.SQLStore {
	t.Helper()

	ctx := context.Background()
	db, err := repository.Open(ctx, repository.DialectSQLite, ":memory:", repository.PoolOptions{})
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	if err := repository.Migrate(ctx, db, repository.DialectSQLite); err != nil {
		db.Close()
		t.Fatalf("failed to migrate sqlite store: %v", err)
	}

	s := repository.NewSQLStore(db, repository.DialectSQLite)
	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	return repository.NewMemoryStore()
}
