package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/internal/ranking"
)

// ReplaceSource replaces every document previously ingested from state.Path with docs and
// records state, in one transaction. Returns the IDs of the removed documents.
func (s *SQLiteStorage) ReplaceSource(ctx context.Context, state *FileState, docs []*models.Document) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	removed, err := deleteSourceTx(ctx, tx, state.Path)
	if err != nil {
		return nil, err
	}

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, collection_id, title, url, authors, pub_date, source_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer docStmt.Close()

	sentStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sentences (document_id, position, text, lemmas) VALUES (?, ?, ?, ?) RETURNING id`)
	if err != nil {
		return nil, err
	}
	defer sentStmt.Close()

	tokStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tokens (sentence_id, idx, form, lemma, upos, xpos, features, head, deprel, misc, no_space_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer tokStmt.Close()

	now := time.Now()
	for _, doc := range docs {
		authors, err := marshalAuthors(doc.Authors)
		if err != nil {
			return nil, err
		}
		doc.CollectionID = state.CollectionID
		doc.SourcePath = state.Path
		doc.CreatedAt = now
		if _, err := docStmt.ExecContext(ctx, doc.ID, doc.CollectionID, doc.Title, doc.URL, authors,
			nullTime(doc.PubDate), doc.SourcePath, doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
		for i, sent := range doc.Sentences {
			sent.DocumentID = doc.ID
			sent.Position = i
			if err := sentStmt.QueryRowContext(ctx, doc.ID, i, sent.Text, sent.Lemmas).Scan(&sent.ID); err != nil {
				return nil, fmt.Errorf("insert sentence %d of %s: %w", i, doc.ID, err)
			}
			for _, t := range sent.Tokens {
				var head sql.NullInt64
				if t.Head != nil {
					head = sql.NullInt64{Int64: int64(*t.Head), Valid: true}
				}
				if _, err := tokStmt.ExecContext(ctx, sent.ID, t.Index, t.Form, t.Lemma, t.UPOS, t.XPOS,
					t.Features, head, t.DepRel, t.Misc, t.NoSpaceAfter); err != nil {
					return nil, fmt.Errorf("insert token %d of sentence %d: %w", t.Index, sent.ID, err)
				}
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ingested_files (path, collection_id, mod_time, size) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET collection_id = excluded.collection_id,
		 mod_time = excluded.mod_time, size = excluded.size`,
		state.Path, state.CollectionID, state.ModTime.UnixNano(), state.Size,
	); err != nil {
		return nil, fmt.Errorf("record file state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}

// RemoveSource deletes every document ingested from path and forgets its file state.
func (s *SQLiteStorage) RemoveSource(ctx context.Context, path string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	removed, err := deleteSourceTx(ctx, tx, path)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ingested_files WHERE path = ?`, path); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}

func deleteSourceTx(ctx context.Context, tx *sql.Tx, path string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM documents WHERE source_path = ?`, path)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE source_path = ?`, path); err != nil {
		return nil, fmt.Errorf("delete documents from %s: %w", path, err)
	}
	return ids, nil
}

// GetFileState returns the recorded state of an ingested file.
func (s *SQLiteStorage) GetFileState(ctx context.Context, path string) (*FileState, error) {
	var (
		st    FileState
		nanos int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT path, collection_id, mod_time, size FROM ingested_files WHERE path = ?`, path,
	).Scan(&st.Path, &st.CollectionID, &nanos, &st.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	st.ModTime = time.Unix(0, nanos)
	return &st, nil
}

// MatchDocuments returns the documents of a collection with at least one sentence whose
// lemma string matches pattern, with exact match counts, in ingestion order.
func (s *SQLiteStorage) MatchDocuments(ctx context.Context, collectionID int64, pattern string) ([]*ranking.DocumentMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+`, COUNT(s.id)
		 FROM documents d JOIN sentences s ON s.document_id = d.id
		 WHERE d.collection_id = ? AND s.lemmas REGEXP ?
		 GROUP BY d.id
		 ORDER BY MIN(d.rowid)`,
		collectionID, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("match documents: %w", err)
	}
	defer rows.Close()

	var out []*ranking.DocumentMatch
	for rows.Next() {
		var n int
		doc, err := scanDocument(rows, &n)
		if err != nil {
			return nil, err
		}
		out = append(out, &ranking.DocumentMatch{Document: doc, SentenceMatches: n})
	}
	return out, rows.Err()
}

// MatchingSentences returns up to limit sentences of a document whose lemma string matches
// pattern, in document order, with their tokens.
func (s *SQLiteStorage) MatchingSentences(ctx context.Context, documentID string, pattern string, limit int) ([]*models.Sentence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, position, text, lemmas FROM sentences
		 WHERE document_id = ? AND lemmas REGEXP ?
		 ORDER BY position LIMIT ?`,
		documentID, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("matching sentences: %w", err)
	}
	var sentences []*models.Sentence
	for rows.Next() {
		var sent models.Sentence
		if err := rows.Scan(&sent.ID, &sent.DocumentID, &sent.Position, &sent.Text, &sent.Lemmas); err != nil {
			rows.Close()
			return nil, err
		}
		sentences = append(sentences, &sent)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, sent := range sentences {
		if sent.Tokens, err = s.loadTokens(ctx, sent.ID); err != nil {
			return nil, err
		}
	}
	return sentences, nil
}

// GetSentence returns a sentence with its tokens.
func (s *SQLiteStorage) GetSentence(ctx context.Context, id int64) (*models.Sentence, error) {
	var sent models.Sentence
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, position, text, lemmas FROM sentences WHERE id = ?`, id,
	).Scan(&sent.ID, &sent.DocumentID, &sent.Position, &sent.Text, &sent.Lemmas)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sentence %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if sent.Tokens, err = s.loadTokens(ctx, id); err != nil {
		return nil, err
	}
	return &sent, nil
}

func (s *SQLiteStorage) loadTokens(ctx context.Context, sentenceID int64) ([]models.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, form, lemma, upos, xpos, features, head, deprel, misc, no_space_after
		 FROM tokens WHERE sentence_id = ? ORDER BY idx`, sentenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []models.Token
	for rows.Next() {
		var (
			t    models.Token
			head sql.NullInt64
		)
		if err := rows.Scan(&t.Index, &t.Form, &t.Lemma, &t.UPOS, &t.XPOS, &t.Features, &head,
			&t.DepRel, &t.Misc, &t.NoSpaceAfter); err != nil {
			return nil, err
		}
		if head.Valid {
			h := int(head.Int64)
			t.Head = &h
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
