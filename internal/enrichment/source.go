// Package enrichment fetches term definitions from external sources, caching them in storage.
package enrichment

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/parmesan/internal/models"
)

// ErrRateLimited is returned when a source keeps answering 429 after all retries.
var ErrRateLimited = errors.New("rate limited")

// FetchResult holds what one fetch produced.
type FetchResult struct {
	Definitions []*models.Definition
	// Terms are persisted after every successful fetch, whatever the caching policy.
	Terms []string
}

// Source is an external definition provider.
type Source interface {
	Name() string
	HomePage() string
	Fetch(ctx context.Context, term string) (*FetchResult, error)
}

// DefinitionStore is the persistence the cache needs.
type DefinitionStore interface {
	FindDefinitions(ctx context.Context, term, source string) ([]*models.Definition, error)
	SaveTerm(ctx context.Context, term string) (*models.Term, error)
	SaveDefinition(ctx context.Context, def *models.Definition) error
	EnsureSource(ctx context.Context, name, homePage string) (*models.Source, error)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
