package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/internal/ranking"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// sentence builds a sentence whose tokens have form == lemma.
func sentence(words ...string) *models.Sentence {
	s := &models.Sentence{}
	for i, w := range words {
		s.Tokens = append(s.Tokens, models.Token{Index: i + 1, Form: w, Lemma: w})
	}
	s.Lemmas = models.JoinLemmas(s.Tokens)
	s.Text = s.Lemmas
	return s
}

func doc(id, title string, sentences ...*models.Sentence) *models.Document {
	return &models.Document{ID: id, Title: title, Sentences: sentences}
}

func ingest(t *testing.T, store *SQLiteStorage, collectionID int64, path string, docs ...*models.Document) []string {
	t.Helper()
	removed, err := store.ReplaceSource(context.Background(), &FileState{
		Path: path, CollectionID: collectionID, ModTime: time.Unix(1700000000, 0), Size: 10,
	}, docs)
	if err != nil {
		t.Fatal(err)
	}
	return removed
}

func TestSQLiteStorage_Collections(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	low := &models.Collection{Name: "low", Priority: 1}
	high := &models.Collection{Name: "high", Description: "important", Priority: 5}
	if err := store.CreateCollection(ctx, low); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateCollection(ctx, high); err != nil {
		t.Fatal(err)
	}
	if low.ID == 0 || high.ID == 0 {
		t.Fatal("IDs should be set")
	}
	if err := store.CreateCollection(ctx, &models.Collection{Name: "low"}); err == nil {
		t.Error("duplicate name should fail")
	}

	list, err := store.ListCollections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "high" || list[1].Name != "low" {
		t.Errorf("collections should be ordered by priority: %+v", list)
	}

	ensured, err := store.EnsureCollection(ctx, "high")
	if err != nil {
		t.Fatal(err)
	}
	if ensured.ID != high.ID || ensured.Description != "important" {
		t.Errorf("EnsureCollection should return existing row: %+v", ensured)
	}
	created, err := store.EnsureCollection(ctx, "new")
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == 0 || created.Priority != 0 {
		t.Errorf("unexpected new collection: %+v", created)
	}

	byName, err := store.GetCollectionByName(ctx, "low")
	if err != nil || byName.ID != low.ID {
		t.Errorf("GetCollectionByName: %+v, %v", byName, err)
	}
	if _, err := store.GetCollection(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteCollection(ctx, low.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteCollection(ctx, low.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStorage_ReplaceSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	coll, _ := store.EnsureCollection(ctx, "papers")

	pub := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	d1 := doc("d1", "First", sentence("the", "cat", "sit"), sentence("a", "dog"))
	d1.Authors = []string{"Ada", "Grace"}
	d1.PubDate = &pub
	d1.URL = "https://example.org/d1"
	if removed := ingest(t, store, coll.ID, "/in/a.conllu", d1, doc("d2", "Second", sentence("cat"))); len(removed) != 0 {
		t.Errorf("first ingest removed %v", removed)
	}

	got, err := store.GetDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "First" || got.CollectionID != coll.ID || got.SourcePath != "/in/a.conllu" {
		t.Errorf("unexpected document: %+v", got)
	}
	if len(got.Authors) != 2 || got.Authors[1] != "Grace" {
		t.Errorf("authors = %v", got.Authors)
	}
	if got.PubDate == nil || !got.PubDate.Equal(pub) {
		t.Errorf("pub_date = %v", got.PubDate)
	}
	if d1.Sentences[0].ID == 0 || d1.Sentences[1].Position != 1 {
		t.Error("sentence IDs and positions should be assigned")
	}

	lemmas, err := store.DocumentLemmas(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(lemmas) != 2 || lemmas[0] != "the cat sit" {
		t.Errorf("lemmas = %v", lemmas)
	}

	// Re-ingesting the same path replaces its documents.
	removed := ingest(t, store, coll.ID, "/in/a.conllu", doc("d3", "Third", sentence("bird")))
	if len(removed) != 2 {
		t.Errorf("removed = %v, want d1 and d2", removed)
	}
	if _, err := store.GetDocument(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("d1 should be gone, got %v", err)
	}
	if _, err := store.GetSentence(ctx, d1.Sentences[0].ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("d1 sentences should cascade, got %v", err)
	}

	docs, err := store.ListDocuments(ctx, coll.ID, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != "d3" {
		t.Errorf("documents = %+v", docs)
	}

	state, err := store.GetFileState(ctx, "/in/a.conllu")
	if err != nil {
		t.Fatal(err)
	}
	if state.Size != 10 || !state.ModTime.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("state = %+v", state)
	}
	if !state.Unchanged(&FileState{Size: 10, ModTime: time.Unix(1700000000, 0)}) {
		t.Error("same size and mtime should be unchanged")
	}

	removed, err = store.RemoveSource(ctx, "/in/a.conllu")
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "d3" {
		t.Errorf("removed = %v", removed)
	}
	if _, err := store.GetFileState(ctx, "/in/a.conllu"); !errors.Is(err, ErrNotFound) {
		t.Errorf("file state should be forgotten, got %v", err)
	}
}

func TestSQLiteStorage_ReplaceSource_rollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	coll, _ := store.EnsureCollection(ctx, "c")
	ingest(t, store, coll.ID, "/a", doc("keep", "Keep", sentence("x")))

	// Duplicate IDs in one batch fail; the earlier state must survive.
	_, err := store.ReplaceSource(ctx, &FileState{Path: "/a", CollectionID: coll.ID},
		[]*models.Document{doc("dup", "A", sentence("y")), doc("dup", "B", sentence("z"))})
	if err == nil {
		t.Fatal("expected error for duplicate document IDs")
	}
	if _, err := store.GetDocument(ctx, "keep"); err != nil {
		t.Errorf("previous document should survive a failed replace: %v", err)
	}
}

func TestSQLiteStorage_MatchDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a, _ := store.EnsureCollection(ctx, "a")
	b, _ := store.EnsureCollection(ctx, "b")

	ingest(t, store, a.ID, "/1",
		doc("one", "One", sentence("cat"), sentence("dog"), sentence("the", "cat")),
		doc("two", "Two", sentence("category", "theory")),
		doc("three", "Three", sentence("Cat")),
	)
	ingest(t, store, b.ID, "/2", doc("other", "Other", sentence("cat")))

	pattern := `(?i)\bcat\b`
	matches, err := store.MatchDocuments(ctx, a.ID, pattern)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Document.ID != "one" || matches[0].SentenceMatches != 2 {
		t.Errorf("first match = %s/%d", matches[0].Document.ID, matches[0].SentenceMatches)
	}
	if matches[1].Document.ID != "three" || matches[1].SentenceMatches != 1 {
		t.Errorf("second match = %s/%d", matches[1].Document.ID, matches[1].SentenceMatches)
	}

	sentences, err := store.MatchingSentences(ctx, "one", pattern, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(sentences) != 1 || sentences[0].Position != 0 {
		t.Fatalf("sentences = %+v", sentences)
	}
	if len(sentences[0].Tokens) != 1 || sentences[0].Tokens[0].Lemma != "cat" {
		t.Errorf("tokens = %+v", sentences[0].Tokens)
	}

	all, err := store.MatchingSentences(ctx, "one", pattern, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[1].Position != 2 {
		t.Errorf("all matching = %+v", all)
	}
	if all[1].Tokens[0].Index != 1 || all[1].Tokens[1].Index != 2 {
		t.Error("tokens should be ordered by index")
	}
}

func TestSQLiteStorage_MatchDocuments_nonASCIILemmas(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	c, _ := store.EnsureCollection(ctx, "mixed")

	ingest(t, store, c.ID, "/mixed",
		doc("fr", "Morphismes", sentence("un", "morphisme", "étale"), sentence("étalement")),
		doc("ru", "Категории", sentence("это", "категория"), sentence("подкатегория")),
		doc("de", "Übungen", sentence("die", "übung")),
	)

	tmpl := ranking.MustTemplate(ranking.DefaultTemplate)
	tests := []struct {
		query   string
		wantDoc string
		want    int
	}{
		{"étale", "fr", 1},
		{"Étale", "fr", 1},
		{"категория", "ru", 1},
		{"Übung", "de", 1},
		{"morphisme étale", "fr", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			matches, err := store.MatchDocuments(ctx, c.ID, tmpl.Pattern(tt.query))
			if err != nil {
				t.Fatal(err)
			}
			if len(matches) != 1 {
				t.Fatalf("matches = %d, want 1", len(matches))
			}
			if matches[0].Document.ID != tt.wantDoc || matches[0].SentenceMatches != tt.want {
				t.Errorf("match = %s/%d, want %s/%d",
					matches[0].Document.ID, matches[0].SentenceMatches, tt.wantDoc, tt.want)
			}
		})
	}
}

func TestSQLiteStorage_GetSentence_tokens(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	coll, _ := store.EnsureCollection(ctx, "c")
	head := 2
	s := &models.Sentence{
		Text:   "sat.",
		Lemmas: "sit .",
		Tokens: []models.Token{
			{Index: 1, Form: "sat", Lemma: "sit", UPOS: "VERB", Head: nil, NoSpaceAfter: true, Misc: "SpaceAfter=No"},
			{Index: 2, Form: ".", Lemma: ".", UPOS: "PUNCT", Head: &head, DepRel: "punct"},
		},
	}
	ingest(t, store, coll.ID, "/s", doc("d", "T", s))

	got, err := store.GetSentence(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tokens) != 2 {
		t.Fatalf("tokens = %d", len(got.Tokens))
	}
	if !got.Tokens[0].NoSpaceAfter || got.Tokens[0].Head != nil || got.Tokens[0].UPOS != "VERB" {
		t.Errorf("token 1 = %+v", got.Tokens[0])
	}
	if got.Tokens[1].Head == nil || *got.Tokens[1].Head != 2 || got.Tokens[1].DepRel != "punct" {
		t.Errorf("token 2 = %+v", got.Tokens[1])
	}
}

func TestSQLiteStorage_Stats(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStorage(filepath.Join(dir, "db", "corpus.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	coll, _ := store.EnsureCollection(ctx, "c")
	ingest(t, store, coll.ID, "/x", doc("d", "T", sentence("a"), sentence("b")))
	_ = store.RecordQuery(ctx, "a")
	_ = store.SaveDefinition(ctx, &models.Definition{Term: "a", Source: models.SourceNLab})

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Collections: 1, Documents: 1, Sentences: 2, Terms: 1, Definitions: 1, Queries: 1}
	if *st != want {
		t.Errorf("stats = %+v, want %+v", *st, want)
	}
}
