package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hyperjump/parmesan/internal/models"
)

const (
	driverName = "sqlite3_parmesan"
	memoryDSN  = ":memory:"
)

var (
	registerOnce sync.Once
	patterns     = newRegexCache(256)
)

// registerDriver registers a sqlite3 driver whose connections provide the REGEXP operator.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("regexp", regexpMatch, true)
			},
		})
	})
}

// regexpMatch implements "value REGEXP pattern", which SQLite calls as regexp(pattern, value).
func regexpMatch(pattern, value string) (bool, error) {
	re, err := patterns.compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(value), nil
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	registerDriver()

	if dbPath != memoryDSN {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open(driverName, dbPath+"?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == memoryDSN {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		collection_id INTEGER NOT NULL,
		title TEXT NOT NULL DEFAULT 'Untitled',
		url TEXT NOT NULL DEFAULT '',
		authors TEXT NOT NULL DEFAULT '[]',
		pub_date TIMESTAMP,
		source_path TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection_id);
	CREATE INDEX IF NOT EXISTS idx_documents_source_path ON documents(source_path);

	CREATE TABLE IF NOT EXISTS sentences (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		lemmas TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_sentences_document ON sentences(document_id, position);

	CREATE TABLE IF NOT EXISTS tokens (
		sentence_id INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		form TEXT NOT NULL DEFAULT '',
		lemma TEXT NOT NULL DEFAULT '',
		upos TEXT NOT NULL DEFAULT '',
		xpos TEXT NOT NULL DEFAULT '',
		features TEXT NOT NULL DEFAULT '',
		head INTEGER,
		deprel TEXT NOT NULL DEFAULT '',
		misc TEXT NOT NULL DEFAULT '',
		no_space_after INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (sentence_id, idx),
		FOREIGN KEY (sentence_id) REFERENCES sentences(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS ingested_files (
		path TEXT PRIMARY KEY,
		collection_id INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		size INTEGER NOT NULL,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS terms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		term TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		home_page TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS definitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		term_id INTEGER NOT NULL,
		source_id INTEGER NOT NULL,
		source_name TEXT NOT NULL DEFAULT '',
		definition TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		accessed TIMESTAMP NOT NULL,
		FOREIGN KEY (term_id) REFERENCES terms(id) ON DELETE CASCADE,
		FOREIGN KEY (source_id) REFERENCES sources(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_definitions_term_source ON definitions(term_id, source_id);

	CREATE TABLE IF NOT EXISTS queries (
		query TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateCollection inserts a collection and sets its ID.
func (s *SQLiteStorage) CreateCollection(ctx context.Context, c *models.Collection) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO collections (name, description, priority) VALUES (?, ?, ?) RETURNING id`,
		c.Name, c.Description, c.Priority,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("create collection %q: %w", c.Name, err)
	}
	return nil
}

// EnsureCollection returns the collection named name, creating it when missing.
func (s *SQLiteStorage) EnsureCollection(ctx context.Context, name string) (*models.Collection, error) {
	var c models.Collection
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO collections (name) VALUES (?)
		 ON CONFLICT(name) DO UPDATE SET name = excluded.name
		 RETURNING id, name, description, priority`,
		name,
	).Scan(&c.ID, &c.Name, &c.Description, &c.Priority)
	if err != nil {
		return nil, fmt.Errorf("ensure collection %q: %w", name, err)
	}
	return &c, nil
}

// GetCollection returns a collection by ID.
func (s *SQLiteStorage) GetCollection(ctx context.Context, id int64) (*models.Collection, error) {
	var c models.Collection
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, priority FROM collections WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCollectionByName returns a collection by its unique name.
func (s *SQLiteStorage) GetCollectionByName(ctx context.Context, name string) (*models.Collection, error) {
	var c models.Collection
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, priority FROM collections WHERE name = ?`, name,
	).Scan(&c.ID, &c.Name, &c.Description, &c.Priority)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCollections returns all collections, highest priority first.
func (s *SQLiteStorage) ListCollections(ctx context.Context) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, priority FROM collections ORDER BY priority DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Collection
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Priority); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// DeleteCollection removes a collection and, by cascade, its documents.
func (s *SQLiteStorage) DeleteCollection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("collection %d: %w", id, ErrNotFound)
	}
	return nil
}

const documentColumns = `d.id, d.collection_id, d.title, d.url, d.authors, d.pub_date, d.source_path, d.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, extra ...any) (*models.Document, error) {
	var (
		doc         models.Document
		authorsJSON string
		pubDate     sql.NullTime
	)
	dest := append([]any{&doc.ID, &doc.CollectionID, &doc.Title, &doc.URL, &authorsJSON, &pubDate, &doc.SourcePath, &doc.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if authorsJSON != "" {
		if err := json.Unmarshal([]byte(authorsJSON), &doc.Authors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal authors: %w", err)
		}
	}
	if pubDate.Valid {
		t := pubDate.Time
		doc.PubDate = &t
	}
	return &doc, nil
}

// GetDocument returns a document by ID.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents d WHERE d.id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns the documents of a collection in ingestion order.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, collectionID int64, offset, limit int) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents d WHERE d.collection_id = ?
		 ORDER BY d.rowid LIMIT ? OFFSET ?`,
		collectionID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DocumentLemmas returns the lemma strings of a document's sentences in order.
func (s *SQLiteStorage) DocumentLemmas(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lemmas FROM sentences WHERE document_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Stats returns row counts.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM collections),
		(SELECT COUNT(*) FROM documents),
		(SELECT COUNT(*) FROM sentences),
		(SELECT COUNT(*) FROM terms),
		(SELECT COUNT(*) FROM definitions),
		(SELECT COUNT(*) FROM queries)`,
	).Scan(&st.Collections, &st.Documents, &st.Sentences, &st.Terms, &st.Definitions, &st.Queries)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func marshalAuthors(authors []string) (string, error) {
	if len(authors) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(authors)
	if err != nil {
		return "", fmt.Errorf("failed to marshal authors: %w", err)
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
