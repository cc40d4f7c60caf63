package enrichment

import (
	"context"
	"testing"

	"github.com/hyperjump/parmesan/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func stats(t *testing.T, store *storage.SQLiteStorage) *storage.Stats {
	t.Helper()
	st, err := store.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return st
}
