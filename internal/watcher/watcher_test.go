package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	ingests []string
	removes []string
	roots   []string
}

func (r *recorder) ingest(root, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingests = append(r.ingests, path)
	r.roots = append(r.roots, root)
}

func (r *recorder) remove(_, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes = append(r.removes, path)
}

func (r *recorder) snapshot() (ingests, removes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ingests...), append([]string(nil), r.removes...)
}

func (r *recorder) waitFor(t *testing.T, cond func(ingests, removes []string) bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond(r.snapshot()) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	ingests, removes := r.snapshot()
	t.Fatalf("condition not met: ingests=%v removes=%v", ingests, removes)
}

func startWatcher(t *testing.T, roots []string, rec *recorder) *Watcher {
	t.Helper()
	w := NewWatcher(roots, []string{".conllu"}, true, rec.ingest, rec.remove, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func contains(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	path := filepath.Join(dir, "a.conllu")
	for i := 0; i < 5; i++ {
		if err := writeFile(path, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(filepath.Join(dir, "notes.txt"), "skip"); err != nil {
		t.Fatal(err)
	}

	rec.waitFor(t, func(ingests, _ []string) bool { return len(ingests) >= 1 })
	time.Sleep(200 * time.Millisecond)
	ingests, _ := rec.snapshot()
	if len(ingests) != 1 {
		t.Errorf("burst of writes produced %d ingests: %v", len(ingests), ingests)
	}
	if contains(ingests, "notes.txt") {
		t.Error("notes.txt should be filtered out")
	}
	rec.mu.Lock()
	root := rec.roots[0]
	rec.mu.Unlock()
	if root != filepath.Clean(dir) {
		t.Errorf("root = %q, want %q", root, dir)
	}
}

func TestWatcher_Remove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.conllu")
	if err := writeFile(path, "x"); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, func(_, removes []string) bool { return contains(removes, "gone.conllu") })
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, rec)

	nested := filepath.Join(dir, "papers", "2021")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.conllu"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}

	rec.waitFor(t, func(ingests, _ []string) bool { return contains(ingests, "deep.conllu") })
	ingests, _ := rec.snapshot()
	if contains(ingests, "ignore.xyz") {
		t.Error("ignore.xyz should not be ingested")
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.conllu"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := mkdirAll(filepath.Join(dir, "sub")); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "sub", "b.conllu"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	w := NewWatcher([]string{dir}, []string{".conllu"}, true, rec.ingest, nil)
	if n := w.SyncExistingFiles(); n != 2 {
		t.Errorf("synced %d files, want 2", n)
	}

	flat := &recorder{}
	w = NewWatcher([]string{dir}, []string{".conllu"}, false, flat.ingest, nil)
	if n := w.SyncExistingFiles(); n != 1 {
		t.Errorf("non-recursive sync reported %d files, want 1", n)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w := NewWatcher([]string{root}, nil, true, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root should exist after Start: %v", err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != root {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestRootFor(t *testing.T) {
	w := NewWatcher([]string{"/corpus", "/corpus/special"}, nil, true, nil, nil)
	tests := []struct {
		path string
		want string
	}{
		{"/corpus/a.conllu", "/corpus"},
		{"/corpus/special/b.conllu", "/corpus/special"},
		{"/other/c.conllu", ""},
	}
	for _, tt := range tests {
		if got := w.rootFor(tt.path); got != tt.want {
			t.Errorf("rootFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.conllu", []string{".conllu"}, true},
		{"/a/b.CONLLU", []string{".conllu"}, true},
		{"/a/b.md", []string{".conllu"}, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.conllu", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
