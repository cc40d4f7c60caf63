// Package ranking scores corpus documents by the number of sentences whose lemmas match a query.
package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/parmesan/internal/models"
)

// DocumentMatch is a document with its exact count of matching sentences.
type DocumentMatch struct {
	Document        *models.Document
	SentenceMatches int
}

// Corpus is the query capability the ranker needs from storage.
// Patterns are Go regular expressions matched against sentence lemma strings.
type Corpus interface {
	// MatchDocuments returns the documents of a collection with at least one matching
	// sentence, in ingestion order.
	MatchDocuments(ctx context.Context, collectionID int64, pattern string) ([]*DocumentMatch, error)
	// MatchingSentences returns up to limit matching sentences of a document with tokens, in document order.
	MatchingSentences(ctx context.Context, documentID string, pattern string, limit int) ([]*models.Sentence, error)
}

// HighlightFunc renders a sentence's tokens with the query's matches marked.
type HighlightFunc func(tokens []models.Token, query string) string

// Ranker ranks the documents of a collection against a query.
type Ranker struct {
	corpus    Corpus
	opts      *Options
	template  *Template
	highlight HighlightFunc
}

// NewRanker creates a Ranker. Returns ErrInvalidTemplate if the configured template is malformed.
func NewRanker(corpus Corpus, opts *Options) (*Ranker, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts.ApplyDefaults()
	tmpl, err := NewTemplate(opts.Template)
	if err != nil {
		return nil, err
	}
	return &Ranker{corpus: corpus, opts: opts, template: tmpl}, nil
}

// WithHighlighter sets the function used to render returned sentences.
func (r *Ranker) WithHighlighter(fn HighlightFunc) *Ranker {
	r.highlight = fn
	return r
}

// Template returns the ranker's regex template.
func (r *Ranker) Template() *Template {
	return r.template
}

// Rank scores every matching document of collection and returns the top documents,
// each with its first matching sentences. Count is the number of matching documents.
// Score is the sentence match count plus the title bonus when the title matches.
func (r *Ranker) Rank(ctx context.Context, collection *models.Collection, query string) (*models.CollectionResult, error) {
	pattern := r.template.Pattern(query)
	re, err := r.template.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}

	matches, err := r.corpus.MatchDocuments(ctx, collection.ID, pattern)
	if err != nil {
		return nil, fmt.Errorf("match documents in %q: %w", collection.Name, err)
	}

	ranked := make([]*models.DocumentResult, 0, len(matches))
	for _, m := range matches {
		res := &models.DocumentResult{
			Document:        m.Document,
			SentenceMatches: m.SentenceMatches,
			Score:           m.SentenceMatches,
		}
		if re.MatchString(m.Document.Title) {
			res.TitleMatch = true
			res.Score += r.opts.TitleBonus
		}
		ranked = append(ranked, res)
	}

	// Stable so equal scores keep ingestion order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	result := &models.CollectionResult{
		Collection: collection,
		Count:      len(ranked),
	}
	if len(ranked) > r.opts.ResultsPerCollection {
		ranked = ranked[:r.opts.ResultsPerCollection]
	}
	for _, res := range ranked {
		sentences, err := r.corpus.MatchingSentences(ctx, res.Document.ID, pattern, r.opts.SentencesPerDocument)
		if err != nil {
			return nil, fmt.Errorf("matching sentences for %s: %w", res.Document.ID, err)
		}
		res.Sentences = make([]*models.HighlightedSentence, 0, len(sentences))
		for _, s := range sentences {
			hs := &models.HighlightedSentence{ID: s.ID, Text: s.Text, HTML: s.Text}
			if r.highlight != nil {
				hs.HTML = r.highlight(s.Tokens, query)
			}
			res.Sentences = append(res.Sentences, hs)
		}
	}
	result.Documents = ranked
	return result, nil
}
