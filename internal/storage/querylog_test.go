package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestSQLiteStorage_RecordQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.GetQuery(ctx, "functor"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound before first record, got %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := store.RecordQuery(ctx, "functor"); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.RecordQuery(ctx, "Functor"); err != nil {
		t.Fatal(err)
	}

	e, err := store.GetQuery(ctx, "functor")
	if err != nil {
		t.Fatal(err)
	}
	if e.Count != 3 {
		t.Errorf("count = %d, want 3", e.Count)
	}
	e, _ = store.GetQuery(ctx, "Functor")
	if e.Count != 1 {
		t.Errorf("queries are case-sensitive keys; count = %d, want 1", e.Count)
	}
}

func TestSQLiteStorage_RecordQuery_concurrent(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "queries.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := store.RecordQuery(ctx, "monad"); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	e, err := store.GetQuery(ctx, "monad")
	if err != nil {
		t.Fatal(err)
	}
	if e.Count != workers*perWorker {
		t.Errorf("count = %d, want %d", e.Count, workers*perWorker)
	}
}

func TestSQLiteStorage_TopQueries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for q, n := range map[string]int{"sheaf": 2, "topos": 5, "adjunction": 2, "limit": 1} {
		for i := 0; i < n; i++ {
			_ = store.RecordQuery(ctx, q)
		}
	}
	top, err := store.TopQueries(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"topos", "adjunction", "sheaf"}
	if len(top) != len(want) {
		t.Fatalf("top = %d entries, want %d", len(top), len(want))
	}
	for i, q := range want {
		if top[i].Query != q {
			t.Errorf("top[%d] = %s, want %s", i, top[i].Query, q)
		}
	}
}
