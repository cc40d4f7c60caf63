// Package models defines core data structures for corpus documents, terms, queries, and search results.
package models

import "time"

// Collection is a named scope grouping documents for search.
type Collection struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Priority orders collections for display; higher comes first.
	Priority int `json:"priority"`
}

// Document is a single corpus document. Documents are not subdivided into sections.
type Document struct {
	ID           string     `json:"id" db:"id"`
	CollectionID int64      `json:"collection_id" db:"collection_id"`
	Title        string     `json:"title" db:"title"`
	URL          string     `json:"url,omitempty" db:"url"`
	Authors      []string   `json:"authors,omitempty" db:"-"`
	PubDate      *time.Time `json:"pub_date,omitempty" db:"pub_date"`
	SourcePath   string     `json:"source_path,omitempty" db:"source_path"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`

	// Sentences is only populated during ingestion.
	Sentences []*Sentence `json:"-" db:"-"`
}

// Sentence is an ordered token sequence owned by a document.
type Sentence struct {
	ID         int64  `json:"id" db:"id"`
	DocumentID string `json:"document_id" db:"document_id"`
	Position   int    `json:"position" db:"position"`
	Text       string `json:"text" db:"text"`
	// Lemmas is the space-joined lemma string used for regex pre-filtering.
	Lemmas string  `json:"lemmas" db:"lemmas"`
	Tokens []Token `json:"tokens,omitempty" db:"-"`
}

// Token is one word of a sentence as produced by an upstream CoNLL-U parse.
type Token struct {
	Index        int    `json:"index"`
	Form         string `json:"form"`
	Lemma        string `json:"lemma"`
	UPOS         string `json:"upos,omitempty"`
	XPOS         string `json:"xpos,omitempty"`
	Features     string `json:"features,omitempty"`
	Head         *int   `json:"head,omitempty"`
	DepRel       string `json:"deprel,omitempty"`
	Misc         string `json:"misc,omitempty"`
	NoSpaceAfter bool   `json:"no_space_after,omitempty"`
}

// JoinLemmas returns the space-joined non-empty lemmas of tokens.
func JoinLemmas(tokens []Token) string {
	n := 0
	for _, t := range tokens {
		if t.Lemma != "" {
			n += len(t.Lemma) + 1
		}
	}
	buf := make([]byte, 0, n)
	for _, t := range tokens {
		if t.Lemma == "" {
			continue
		}
		if len(buf) > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, t.Lemma...)
	}
	return string(buf)
}
