// Package indexer loads CoNLL-U files into storage and the lemma dictionary.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/parmesan/internal/conllu"
	"github.com/hyperjump/parmesan/internal/keyword"
	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/internal/storage"
)

// DefaultCollection receives files that are not inside a collection directory.
const DefaultCollection = "default"

// IngestResult describes what one IngestFile call did.
type IngestResult struct {
	Path       string `json:"path"`
	Collection string `json:"collection"`
	Skipped    bool   `json:"skipped"`
	Documents  int    `json:"documents"`
	Sentences  int    `json:"sentences"`
	Removed    int    `json:"removed"`
	Orphans    int    `json:"orphans"`
}

// Indexer ingests CoNLL-U files into storage and keeps the lemma dictionary in sync.
type Indexer struct {
	storage storage.Storage
	lemmas  keyword.LemmaIndex
	newID   conllu.IDFunc
	logger  *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) {
		if l != nil {
			idx.logger = l
		}
	}
}

// WithIDFunc sets how stored document IDs are assigned. Defaults to random UUIDs.
func WithIDFunc(fn conllu.IDFunc) IndexerOption {
	return func(idx *Indexer) { idx.newID = fn }
}

// NewIndexer creates an indexer. lemmas may be nil; then only storage is updated.
func NewIndexer(store storage.Storage, lemmas keyword.LemmaIndex, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		storage: store,
		lemmas:  lemmas,
		newID:   func(string) string { return uuid.NewString() },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IngestFile loads the documents of a CoNLL-U file into the named collection, replacing
// everything previously loaded from the same path in one transaction.
// Files with the same mtime and size as last time are skipped.
func (idx *Indexer) IngestFile(ctx context.Context, path, collectionName string) (*IngestResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	if collectionName == "" {
		collectionName = DefaultCollection
	}

	collection, err := idx.storage.EnsureCollection(ctx, collectionName)
	if err != nil {
		return nil, err
	}
	state := &storage.FileState{
		Path:         absPath,
		CollectionID: collection.ID,
		ModTime:      info.ModTime(),
		Size:         info.Size(),
	}
	res := &IngestResult{Path: absPath, Collection: collection.Name}

	prev, err := idx.storage.GetFileState(ctx, absPath)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if prev != nil && prev.CollectionID == collection.ID && prev.Unchanged(state) {
		idx.logger.Debug("Skipping unchanged file", zap.String("path", absPath))
		res.Skipped = true
		return res, nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	parsed, err := conllu.ReadDocuments(f, idx.newID)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", absPath, err)
	}
	if parsed.Orphans > 0 {
		idx.logger.Warn("Skipped sentences outside any document",
			zap.String("path", absPath),
			zap.Int("sentences", parsed.Orphans))
	}

	removed, err := idx.storage.ReplaceSource(ctx, state, parsed.Documents)
	if err != nil {
		return nil, fmt.Errorf("store documents: %w", err)
	}

	res.Documents = len(parsed.Documents)
	res.Removed = len(removed)
	res.Orphans = parsed.Orphans
	for _, d := range parsed.Documents {
		res.Sentences += len(d.Sentences)
	}

	if idx.lemmas != nil {
		if err := idx.lemmas.Replace(ctx, removed, lemmaDocuments(parsed.Documents)); err != nil {
			return nil, fmt.Errorf("update lemma index: %w", err)
		}
	}

	idx.logger.Info("Ingested file",
		zap.String("path", absPath),
		zap.String("collection", collection.Name),
		zap.Int("documents", res.Documents),
		zap.Int("sentences", res.Sentences),
		zap.Int("replaced", res.Removed))
	return res, nil
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension is
// in allowedExts (all files when empty). With an empty collection name, each file goes to
// the collection returned by CollectionForPath. Returns the results in walk order and
// the first error encountered.
func (idx *Indexer) IngestDirectory(ctx context.Context, dir, collection string, allowedExts []string) ([]*IngestResult, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var results []*IngestResult
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if len(allowedExts) > 0 && !ExtensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		name := collection
		if name == "" {
			name = CollectionForPath(absDir, path, DefaultCollection)
		}
		res, err := idx.IngestFile(ctx, path, name)
		if err != nil {
			return err
		}
		results = append(results, res)
		return nil
	})
	return results, err
}

// RemoveFile deletes every document loaded from path. Returns the number removed.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	removed, err := idx.storage.RemoveSource(ctx, absPath)
	if err != nil {
		return 0, fmt.Errorf("remove documents: %w", err)
	}
	if idx.lemmas != nil && len(removed) > 0 {
		if err := idx.lemmas.Replace(ctx, removed, nil); err != nil {
			return len(removed), fmt.Errorf("update lemma index: %w", err)
		}
	}
	idx.logger.Info("Removed file", zap.String("path", absPath), zap.Int("documents", len(removed)))
	return len(removed), nil
}

const reindexPageSize = 200

// RemoveCollection deletes a collection with its documents and drops them from the
// lemma dictionary. Returns the number of documents removed.
func (idx *Indexer) RemoveCollection(ctx context.Context, id int64) (int, error) {
	var ids []string
	for offset := 0; ; offset += reindexPageSize {
		docs, err := idx.storage.ListDocuments(ctx, id, offset, reindexPageSize)
		if err != nil {
			return 0, err
		}
		for _, d := range docs {
			ids = append(ids, d.ID)
		}
		if len(docs) < reindexPageSize {
			break
		}
	}
	if err := idx.storage.DeleteCollection(ctx, id); err != nil {
		return 0, err
	}
	if idx.lemmas != nil && len(ids) > 0 {
		if err := idx.lemmas.Replace(ctx, ids, nil); err != nil {
			return len(ids), fmt.Errorf("update lemma index: %w", err)
		}
	}
	idx.logger.Info("Removed collection", zap.Int64("id", id), zap.Int("documents", len(ids)))
	return len(ids), nil
}

// Reindex rebuilds the lemma dictionary from every stored document.
// Returns the number of documents indexed.
func (idx *Indexer) Reindex(ctx context.Context) (int, error) {
	if idx.lemmas == nil {
		return 0, nil
	}
	collections, err := idx.storage.ListCollections(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range collections {
		for offset := 0; ; offset += reindexPageSize {
			docs, err := idx.storage.ListDocuments(ctx, c.ID, offset, reindexPageSize)
			if err != nil {
				return n, err
			}
			batch := make([]*keyword.LemmaDocument, 0, len(docs))
			for _, d := range docs {
				lemmas, err := idx.storage.DocumentLemmas(ctx, d.ID)
				if err != nil {
					return n, err
				}
				batch = append(batch, &keyword.LemmaDocument{ID: d.ID, Title: d.Title, Lemmas: lemmas})
			}
			if err := idx.lemmas.Replace(ctx, nil, batch); err != nil {
				return n, fmt.Errorf("update lemma index: %w", err)
			}
			n += len(docs)
			if len(docs) < reindexPageSize {
				break
			}
		}
	}
	idx.logger.Info("Rebuilt lemma index", zap.Int("documents", n))
	return n, nil
}

// CollectionForPath names the collection of a file below root: the first directory under
// root that contains it, or fallback for files directly in root.
func CollectionForPath(root, path, fallback string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fallback
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return fallback
	}
	return parts[0]
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and leading dots.
func ExtensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

func lemmaDocuments(docs []*models.Document) []*keyword.LemmaDocument {
	out := make([]*keyword.LemmaDocument, len(docs))
	for i, d := range docs {
		lemmas := make([]string, len(d.Sentences))
		for j, s := range d.Sentences {
			lemmas[j] = s.Lemmas
		}
		out[i] = &keyword.LemmaDocument{ID: d.ID, Title: d.Title, Lemmas: lemmas}
	}
	return out
}
