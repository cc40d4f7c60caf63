package enrichment

import (
	"context"

	"github.com/hyperjump/parmesan/internal/models"
)

// DefaultPerSourceLimit caps how many definitions each source contributes.
const DefaultPerSourceLimit = 5

// Enricher gathers definitions for a query from several sources, in order.
type Enricher struct {
	sources        []*CachedSource
	perSourceLimit int
}

// NewEnricher creates an Enricher over sources. A non-positive limit uses DefaultPerSourceLimit.
//
// The Enricher adds no deadline of its own. Each source's HTTP client bounds a single
// attempt, and the source's retry policy bounds how long a rate-limited lookup may wait.
func NewEnricher(perSourceLimit int, sources ...*CachedSource) *Enricher {
	if perSourceLimit <= 0 {
		perSourceLimit = DefaultPerSourceLimit
	}
	return &Enricher{sources: sources, perSourceLimit: perSourceLimit}
}

// Sources returns the names of the configured sources in lookup order.
func (e *Enricher) Sources() []string {
	names := make([]string, len(e.sources))
	for i, s := range e.sources {
		names[i] = s.Name()
	}
	return names
}

// Enrich returns up to the per-source limit of definitions from each source, concatenated
// in source order. It never returns an error; a failing source contributes nothing.
func (e *Enricher) Enrich(ctx context.Context, term string) []*models.Definition {
	out := make([]*models.Definition, 0, len(e.sources)*e.perSourceLimit)
	for _, s := range e.sources {
		defs := s.Lookup(ctx, term)
		if len(defs) > e.perSourceLimit {
			defs = defs[:e.perSourceLimit]
		}
		out = append(out, defs...)
	}
	return out
}
