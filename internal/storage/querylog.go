package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperjump/parmesan/internal/models"
)

// RecordQuery increments the count for query, creating the entry at 1.
// The upsert is a single statement, so concurrent calls never lose increments.
func (s *SQLiteStorage) RecordQuery(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queries (query, count) VALUES (?, 1)
		 ON CONFLICT(query) DO UPDATE SET count = count + 1`,
		query,
	)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	return nil
}

// GetQuery returns the log entry for query.
func (s *SQLiteStorage) GetQuery(ctx context.Context, query string) (*models.QueryLogEntry, error) {
	var e models.QueryLogEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT query, count FROM queries WHERE query = ?`, query,
	).Scan(&e.Query, &e.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query %q: %w", query, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// TopQueries returns the most frequent queries, ties broken alphabetically.
func (s *SQLiteStorage) TopQueries(ctx context.Context, limit int) ([]*models.QueryLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, count FROM queries ORDER BY count DESC, query LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.QueryLogEntry
	for rows.Next() {
		var e models.QueryLogEntry
		if err := rows.Scan(&e.Query, &e.Count); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
