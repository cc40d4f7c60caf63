// Package keyword maintains a dictionary of corpus lemmas for "did you mean" suggestions and completion.
package keyword

import "context"

// LemmaDocument is the indexed view of a corpus document.
type LemmaDocument struct {
	ID     string
	Title  string
	Lemmas []string
}

// LemmaIndex defines lemma dictionary operations.
type LemmaIndex interface {
	TermDictionary
	// Replace removes the given document IDs and indexes docs in one batch.
	Replace(ctx context.Context, remove []string, docs []*LemmaDocument) error
	Delete(ctx context.Context, id string) error
	// Complete returns up to limit lemmas starting with prefix, most frequent first.
	Complete(prefix string, limit int) ([]*Completion, error)
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	Close() error
}

// Completion is a lemma with its document frequency.
type Completion struct {
	Lemma     string `json:"lemma"`
	Frequency int    `json:"frequency"`
}

// TermDictionary provides access to the term dictionary for spell checking.
// This interface allows dependency injection for testing.
type TermDictionary interface {
	// GetAllTerms returns all unique terms in the index.
	GetAllTerms() ([]string, error)
	// GetTermFrequency returns the document frequency for a term.
	GetTermFrequency(term string) (int, error)
	// ContainsTerm checks if a term exists in the index.
	ContainsTerm(term string) (bool, error)
}

// generational is implemented by dictionaries that can report when their terms changed.
type generational interface {
	Generation() uint64
}
