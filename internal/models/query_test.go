package models

import (
	"errors"
	"testing"
)

func TestSearchQuery_Validate(t *testing.T) {
	tests := []struct {
		name      string
		query     *SearchQuery
		wantErr   error
		wantQuery string
		wantColls int
	}{
		{"empty query", &SearchQuery{Query: ""}, ErrEmptyQuery, "", 0},
		{"whitespace only", &SearchQuery{Query: "  \t "}, ErrEmptyQuery, "", 0},
		{"valid query", &SearchQuery{Query: "category"}, nil, "category", 0},
		{"trims query", &SearchQuery{Query: "  natural transformation "}, nil, "natural transformation", 0},
		{"dedupes collections", &SearchQuery{Query: "x", Collections: []int64{2, 1, 2, 1}}, nil, "x", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.query.Query != tt.wantQuery {
				t.Errorf("query = %q, want %q", tt.query.Query, tt.wantQuery)
			}
			if len(tt.query.Collections) != tt.wantColls {
				t.Errorf("collections = %v, want %d entries", tt.query.Collections, tt.wantColls)
			}
		})
	}
}

func TestJoinLemmas(t *testing.T) {
	tokens := []Token{
		{Index: 1, Form: "The", Lemma: "the"},
		{Index: 2, Form: "cats", Lemma: "cat"},
		{Index: 3, Form: "-", Lemma: ""},
		{Index: 4, Form: "sat", Lemma: "sit"},
	}
	if got := JoinLemmas(tokens); got != "the cat sit" {
		t.Errorf("JoinLemmas() = %q", got)
	}
	if got := JoinLemmas(nil); got != "" {
		t.Errorf("JoinLemmas(nil) = %q", got)
	}
}
