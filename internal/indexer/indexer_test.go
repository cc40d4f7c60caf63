package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/parmesan/internal/conllu"
	"github.com/hyperjump/parmesan/internal/keyword"
	"github.com/hyperjump/parmesan/internal/storage"
)

// conlluDoc renders one document whose tokens have form == lemma.
func conlluDoc(id, title string, sentences ...string) string {
	var b strings.Builder
	for i, s := range sentences {
		if i == 0 {
			fmt.Fprintf(&b, "# doc_id = %s\n# doc_title = %s\n", id, title)
		}
		fmt.Fprintf(&b, "# text = %s\n", s)
		for j, w := range strings.Fields(s) {
			fmt.Fprintf(&b, "%d\t%s\t%s\tX\t_\t_\t0\tdep\t_\t_\n", j+1, w, w)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

type testEnv struct {
	idx    *Indexer
	store  *storage.SQLiteStorage
	lemmas *keyword.BleveIndex
}

func newTestEnv(t *testing.T, opts ...IndexerOption) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	lemmas, err := keyword.NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lemmas.Close() })
	return &testEnv{idx: NewIndexer(store, lemmas, opts...), store: store, lemmas: lemmas}
}

func counter() conllu.IDFunc {
	n := 0
	return func(sourceID string) string {
		n++
		return fmt.Sprintf("%s-%d", sourceID, n)
	}
}

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".conllu", []string{".conllu"}, true},
		{".CONLLU", []string{"conllu"}, true},
		{".txt", []string{".conllu", ".txt"}, true},
		{".go", []string{".conllu"}, false},
		{"", []string{".conllu"}, false},
	}
	for _, tt := range tests {
		if got := ExtensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("ExtensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestCollectionForPath(t *testing.T) {
	root := filepath.FromSlash("/corpus")
	tests := []struct {
		path string
		want string
	}{
		{"/corpus/a.conllu", "default"},
		{"/corpus/papers/a.conllu", "papers"},
		{"/corpus/papers/2021/a.conllu", "papers"},
		{"/elsewhere/a.conllu", "default"},
	}
	for _, tt := range tests {
		if got := CollectionForPath(root, filepath.FromSlash(tt.path), "default"); got != tt.want {
			t.Errorf("CollectionForPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIngestFile_createSkipAndReplace(t *testing.T) {
	env := newTestEnv(t, WithIDFunc(counter()))
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "algebra.conllu")
	writeFile(t, path, conlluDoc("g", "Groups", "a group be a monoid", "every group have an identity")+
		conlluDoc("r", "Rings", "a ring have two operation"))

	res, err := env.idx.IngestFile(ctx, path, "algebra")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || res.Documents != 2 || res.Sentences != 3 || res.Collection != "algebra" {
		t.Errorf("unexpected result %+v", res)
	}
	doc, err := env.store.GetDocument(ctx, "g-1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "Groups" || doc.SourcePath != res.Path {
		t.Errorf("document = %+v", doc)
	}
	if freq, _ := env.lemmas.GetTermFrequency("group"); freq != 1 {
		t.Errorf("lemma frequency(group) = %d, want 1", freq)
	}

	again, err := env.idx.IngestFile(ctx, path, "algebra")
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped {
		t.Error("unchanged file should be skipped")
	}

	writeFile(t, path, conlluDoc("m", "Modules", "a module over a ring"))
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	res, err = env.idx.IngestFile(ctx, path, "algebra")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || res.Documents != 1 || res.Removed != 2 {
		t.Errorf("unexpected replace result %+v", res)
	}
	if _, err := env.store.GetDocument(ctx, "g-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("replaced document still present: %v", err)
	}
	if ok, _ := env.lemmas.ContainsTerm("group"); ok {
		t.Error("lemma of replaced document still indexed")
	}
	if ok, _ := env.lemmas.ContainsTerm("module"); !ok {
		t.Error("new lemma missing")
	}
	st, err := env.store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Documents != 1 || st.Sentences != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestIngestFile_movedToAnotherCollection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "x.conllu")
	writeFile(t, path, conlluDoc("x", "X", "a b c"))

	if _, err := env.idx.IngestFile(ctx, path, "one"); err != nil {
		t.Fatal(err)
	}
	res, err := env.idx.IngestFile(ctx, path, "two")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped {
		t.Error("file assigned to another collection should be re-ingested")
	}
	two, err := env.store.GetCollectionByName(ctx, "two")
	if err != nil {
		t.Fatal(err)
	}
	docs, err := env.store.ListDocuments(ctx, two.ID, 0, 10)
	if err != nil || len(docs) != 1 {
		t.Errorf("documents in two = %d, %v", len(docs), err)
	}
}

func TestIngestFile_errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dir := t.TempDir()

	if _, err := env.idx.IngestFile(ctx, dir, "c"); err == nil {
		t.Error("expected error for directory")
	}
	if _, err := env.idx.IngestFile(ctx, filepath.Join(dir, "missing.conllu"), "c"); err == nil {
		t.Error("expected error for missing file")
	}

	orphan := filepath.Join(dir, "orphan.conllu")
	writeFile(t, orphan, "1\tword\tword\tX\t_\t_\t0\troot\t_\t_\n\n")
	if _, err := env.idx.IngestFile(ctx, orphan, "c"); !errors.Is(err, conllu.ErrNoDocuments) {
		t.Errorf("err = %v, want ErrNoDocuments", err)
	}
}

func TestIngestDirectory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "loose.conllu"), conlluDoc("l", "Loose", "a loose file"))
	writeFile(t, filepath.Join(root, "papers", "a.conllu"), conlluDoc("a", "A", "first paper"))
	writeFile(t, filepath.Join(root, "papers", "sub", "b.conllu"), conlluDoc("b", "B", "second paper"))
	writeFile(t, filepath.Join(root, "papers", "notes.txt"), "not a corpus file")

	results, err := env.idx.IngestDirectory(ctx, root, "", []string{".conllu"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("ingested %d files, want 3", len(results))
	}
	byName := map[string]int{}
	for _, r := range results {
		byName[r.Collection]++
	}
	if byName["papers"] != 2 || byName[DefaultCollection] != 1 {
		t.Errorf("collections = %v", byName)
	}

	results, err = env.idx.IngestDirectory(ctx, root, "everything", []string{".conllu"})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Collection != "everything" || r.Skipped {
			t.Errorf("unexpected result %+v", r)
		}
	}

	if _, err := env.idx.IngestDirectory(ctx, filepath.Join(root, "loose.conllu"), "", nil); err == nil {
		t.Error("expected error for file passed as directory")
	}
}

func TestRemoveFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "x.conllu")
	writeFile(t, path, conlluDoc("x", "X", "unique lemma here")+conlluDoc("y", "Y", "another one"))

	if _, err := env.idx.IngestFile(ctx, path, "c"); err != nil {
		t.Fatal(err)
	}
	n, err := env.idx.RemoveFile(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if ok, _ := env.lemmas.ContainsTerm("unique"); ok {
		t.Error("lemma still indexed after removal")
	}
	if _, err := env.store.GetFileState(ctx, filepath.Clean(path)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("file state still recorded: %v", err)
	}
}

func TestReindex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "x.conllu")
	writeFile(t, path, conlluDoc("x", "X", "sheaf cohomology"))

	withoutLemmas := NewIndexer(env.store, nil)
	if _, err := withoutLemmas.IngestFile(ctx, path, "c"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := env.lemmas.ContainsTerm("sheaf"); ok {
		t.Fatal("lemma index should still be empty")
	}

	n, err := env.idx.Reindex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("reindexed %d documents, want 1", n)
	}
	if ok, _ := env.lemmas.ContainsTerm("sheaf"); !ok {
		t.Error("lemma missing after reindex")
	}
}

func TestRemoveCollection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "x.conllu")
	writeFile(t, path, conlluDoc("x", "X", "cohomology ring"))

	res, err := env.idx.IngestFile(ctx, path, "doomed")
	if err != nil {
		t.Fatal(err)
	}
	c, err := env.store.GetCollectionByName(ctx, res.Collection)
	if err != nil {
		t.Fatal(err)
	}
	n, err := env.idx.RemoveCollection(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("removed %d documents, want 1", n)
	}
	if ok, _ := env.lemmas.ContainsTerm("cohomology"); ok {
		t.Error("lemma still indexed after collection removal")
	}
	if _, err := env.idx.RemoveCollection(ctx, c.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
