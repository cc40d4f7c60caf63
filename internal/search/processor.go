package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/internal/storage"
)

// ErrUnknownCollection is returned when a query names a collection that does not exist.
var ErrUnknownCollection = errors.New("unknown collection")

// ProcessQuery validates the search query.
func ProcessQuery(query *models.SearchQuery) error {
	return query.Validate()
}

// resolveScope returns the collections to search, in request order. With no IDs it
// returns every collection, highest priority first.
func resolveScope(ctx context.Context, store storage.Storage, ids []int64) ([]*models.Collection, error) {
	if len(ids) == 0 {
		return store.ListCollections(ctx)
	}
	scope := make([]*models.Collection, 0, len(ids))
	for _, id := range ids {
		c, err := store.GetCollection(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrUnknownCollection, id)
		}
		if err != nil {
			return nil, err
		}
		scope = append(scope, c)
	}
	return scope, nil
}
