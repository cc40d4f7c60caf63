// Package search runs corpus searches: ranking per collection, highlighting, and enrichment.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/parmesan/internal/keyword"
	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/internal/ranking"
	"github.com/hyperjump/parmesan/internal/storage"
)

// NoQueryMessage is the response message for an empty query.
const NoQueryMessage = "No query given"

// Enricher returns definitions for a query term. It never fails.
type Enricher interface {
	Enrich(ctx context.Context, term string) []*models.Definition
}

// Engine runs searches over the corpus.
type Engine struct {
	storage     storage.Storage
	ranker      *ranking.Ranker
	enricher    Enricher
	spell       *keyword.SpellChecker
	suggestions int
	logger      *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEnricher sets the definition source consulted once per search.
func WithEnricher(e Enricher) EngineOption {
	return func(eng *Engine) { eng.enricher = e }
}

// WithSpellChecker enables up to n "did you mean" suggestions for queries that match nothing.
func WithSpellChecker(sc *keyword.SpellChecker, n int) EngineOption {
	return func(eng *Engine) {
		eng.spell = sc
		eng.suggestions = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(eng *Engine) {
		if logger != nil {
			eng.logger = logger
		}
	}
}

// NewEngine creates a search engine. Returned sentences are highlighted with Highlight.
func NewEngine(store storage.Storage, ranker *ranking.Ranker, opts ...EngineOption) *Engine {
	e := &Engine{
		storage: store,
		ranker:  ranker.WithHighlighter(Highlight),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search ranks every collection in scope against the query and enriches the result
// with definitions. An empty query is answered with NoQueryMessage and touches nothing.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := ProcessQuery(query); err != nil {
		if errors.Is(err, models.ErrEmptyQuery) {
			return &models.SearchResponse{
				Message:     NoQueryMessage,
				Results:     []*models.CollectionResult{},
				Definitions: []*models.Definition{},
			}, nil
		}
		return nil, err
	}

	scope, err := resolveScope(ctx, e.storage, query.Collections)
	if err != nil {
		return nil, err
	}

	response := &models.SearchResponse{
		Query:   query.Query,
		Results: make([]*models.CollectionResult, 0, len(scope)),
	}
	for _, c := range scope {
		res, err := e.ranker.Rank(ctx, c, query.Query)
		if err != nil {
			return nil, fmt.Errorf("rank collection %q: %w", c.Name, err)
		}
		response.Results = append(response.Results, res)
		response.TotalCount += res.Count
	}

	if err := e.storage.RecordQuery(ctx, query.Query); err != nil {
		e.logger.Warn("Failed to record query", zap.String("query", query.Query), zap.Error(err))
	}

	response.Definitions = e.Define(ctx, query.Query)

	if response.TotalCount == 0 && e.spell != nil && e.suggestions > 0 {
		response.Suggestions = e.spell.GetTopSuggestions(query.Query, e.suggestions)
	}

	response.QueryTime = time.Since(startTime).Milliseconds()
	e.logger.Debug("Search completed",
		zap.String("query", query.Query),
		zap.Int("collections", len(scope)),
		zap.Int("total", response.TotalCount),
		zap.Int64("ms", response.QueryTime))
	return response, nil
}

// Define returns definitions of term from the configured enricher.
func (e *Engine) Define(ctx context.Context, term string) []*models.Definition {
	if e.enricher == nil {
		return []*models.Definition{}
	}
	defs := e.enricher.Enrich(ctx, term)
	if defs == nil {
		defs = []*models.Definition{}
	}
	return defs
}

// HighlightSentence renders a stored sentence with the matches of query marked.
func (e *Engine) HighlightSentence(ctx context.Context, sentenceID int64, query string) (string, error) {
	s, err := e.storage.GetSentence(ctx, sentenceID)
	if err != nil {
		return "", err
	}
	return Highlight(s.Tokens, query), nil
}

// Ranker returns the engine's ranker.
func (e *Engine) Ranker() *ranking.Ranker {
	return e.ranker
}
