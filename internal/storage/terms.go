package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/parmesan/internal/models"
)

// SaveTerm returns the stored term, inserting it when missing.
func (s *SQLiteStorage) SaveTerm(ctx context.Context, term string) (*models.Term, error) {
	t := models.Term{Term: term}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO terms (term) VALUES (?)
		 ON CONFLICT(term) DO UPDATE SET term = excluded.term
		 RETURNING id`,
		term,
	).Scan(&t.ID)
	if err != nil {
		return nil, fmt.Errorf("save term %q: %w", term, err)
	}
	return &t, nil
}

// EnsureSource returns the source named name, creating it when missing.
// An existing source keeps its home page unless it was empty.
func (s *SQLiteStorage) EnsureSource(ctx context.Context, name, homePage string) (*models.Source, error) {
	src := models.Source{Name: name}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO sources (name, home_page) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET home_page = CASE WHEN home_page = '' THEN excluded.home_page ELSE home_page END
		 RETURNING id, home_page`,
		name, homePage,
	).Scan(&src.ID, &src.HomePage)
	if err != nil {
		return nil, fmt.Errorf("ensure source %q: %w", name, err)
	}
	return &src, nil
}

// SaveDefinition stores def, creating its term and source as needed.
// Accessed is set to the current time when zero.
func (s *SQLiteStorage) SaveDefinition(ctx context.Context, def *models.Definition) error {
	if def.Term == "" || def.Source == "" {
		return errors.New("definition requires term and source")
	}
	if def.Accessed.IsZero() {
		def.Accessed = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var termID, sourceID int64
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO terms (term) VALUES (?)
		 ON CONFLICT(term) DO UPDATE SET term = excluded.term RETURNING id`, def.Term,
	).Scan(&termID); err != nil {
		return fmt.Errorf("save term %q: %w", def.Term, err)
	}
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO sources (name) VALUES (?)
		 ON CONFLICT(name) DO UPDATE SET name = excluded.name RETURNING id`, def.Source,
	).Scan(&sourceID); err != nil {
		return fmt.Errorf("ensure source %q: %w", def.Source, err)
	}
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO definitions (term_id, source_id, source_name, definition, source_url, accessed)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		termID, sourceID, def.SourceName, def.Definition, def.SourceURL, def.Accessed,
	).Scan(&def.ID); err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	return tx.Commit()
}

// FindDefinitions returns the stored definitions of term from source, oldest first.
// Terms compare case-insensitively.
func (s *SQLiteStorage) FindDefinitions(ctx context.Context, term, source string) ([]*models.Definition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, t.term, d.source_name, d.definition, src.name, d.source_url, d.accessed
		 FROM definitions d
		 JOIN terms t ON t.id = d.term_id
		 JOIN sources src ON src.id = d.source_id
		 WHERE t.term = ? COLLATE NOCASE AND src.name = ?
		 ORDER BY d.id`,
		term, source,
	)
	if err != nil {
		return nil, fmt.Errorf("find definitions: %w", err)
	}
	defer rows.Close()

	var defs []*models.Definition
	for rows.Next() {
		var d models.Definition
		if err := rows.Scan(&d.ID, &d.Term, &d.SourceName, &d.Definition, &d.Source, &d.SourceURL, &d.Accessed); err != nil {
			return nil, err
		}
		defs = append(defs, &d)
	}
	return defs, rows.Err()
}
