package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned by Validate when no query text was given.
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchQuery is a search request: query text and the collections to search.
type SearchQuery struct {
	Query string `json:"query"`
	// Collections are collection IDs; empty means the caller's default scope.
	Collections []int64 `json:"collections,omitempty"`
}

// Validate trims the query and drops duplicate collection IDs.
// Returns ErrEmptyQuery when nothing is left of the query text.
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if len(q.Collections) > 1 {
		seen := make(map[int64]struct{}, len(q.Collections))
		unique := q.Collections[:0]
		for _, id := range q.Collections {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
		q.Collections = unique
	}
	return nil
}

// QueryLogEntry counts how often a query string was searched.
type QueryLogEntry struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}
