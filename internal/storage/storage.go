// Package storage defines the persistence interface for the corpus, definitions, and query log.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/internal/ranking"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// FileState records the ingested version of a source file.
type FileState struct {
	Path         string
	CollectionID int64
	ModTime      time.Time
	Size         int64
}

// Unchanged reports whether other describes the same file version.
func (f *FileState) Unchanged(other *FileState) bool {
	return f != nil && other != nil && f.Size == other.Size && f.ModTime.Equal(other.ModTime)
}

// Stats holds row counts for status reporting.
type Stats struct {
	Collections int64 `json:"collections"`
	Documents   int64 `json:"documents"`
	Sentences   int64 `json:"sentences"`
	Terms       int64 `json:"terms"`
	Definitions int64 `json:"definitions"`
	Queries     int64 `json:"queries"`
}

// Storage defines corpus, definition, and query log persistence operations.
type Storage interface {
	ranking.Corpus

	// Collection operations
	CreateCollection(ctx context.Context, c *models.Collection) error
	EnsureCollection(ctx context.Context, name string) (*models.Collection, error)
	GetCollection(ctx context.Context, id int64) (*models.Collection, error)
	GetCollectionByName(ctx context.Context, name string) (*models.Collection, error)
	ListCollections(ctx context.Context) ([]*models.Collection, error)
	DeleteCollection(ctx context.Context, id int64) error

	// Document operations
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, collectionID int64, offset, limit int) ([]*models.Document, error)
	DocumentLemmas(ctx context.Context, id string) ([]string, error)
	GetSentence(ctx context.Context, id int64) (*models.Sentence, error)

	// Ingestion
	ReplaceSource(ctx context.Context, state *FileState, docs []*models.Document) (removed []string, err error)
	RemoveSource(ctx context.Context, path string) (removed []string, err error)
	GetFileState(ctx context.Context, path string) (*FileState, error)

	// Terms and definitions
	SaveTerm(ctx context.Context, term string) (*models.Term, error)
	EnsureSource(ctx context.Context, name, homePage string) (*models.Source, error)
	SaveDefinition(ctx context.Context, def *models.Definition) error
	FindDefinitions(ctx context.Context, term, source string) ([]*models.Definition, error)

	// Query log
	RecordQuery(ctx context.Context, query string) error
	GetQuery(ctx context.Context, query string) (*models.QueryLogEntry, error)
	TopQueries(ctx context.Context, limit int) ([]*models.QueryLogEntry, error)

	// Stats
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
