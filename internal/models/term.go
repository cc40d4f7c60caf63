package models

import "time"

// Known definition sources.
const (
	SourceWikidata = "Wikidata"
	SourceNLab     = "nLab"
)

// Term is a normalized string naming a concept.
type Term struct {
	ID   int64  `json:"id"`
	Term string `json:"term"`
}

// Source is an external provider of term definitions.
type Source struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	HomePage string `json:"home_page,omitempty"`
}

// Definition is one source's explanation of a term.
type Definition struct {
	ID   int64  `json:"id,omitempty"`
	Term string `json:"term"`
	// SourceName is the name the source uses for the term.
	SourceName string    `json:"source_name"`
	Definition string    `json:"definition"`
	Source     string    `json:"source"`
	SourceURL  string    `json:"source_url,omitempty"`
	Accessed   time.Time `json:"accessed"`
}
