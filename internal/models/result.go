package models

// HighlightedSentence is a matching sentence rendered with <mark> spans.
type HighlightedSentence struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	HTML string `json:"html"`
}

// DocumentResult is one ranked document within a collection.
type DocumentResult struct {
	Document        *Document              `json:"document"`
	Score           int                    `json:"score"`
	SentenceMatches int                    `json:"sentence_matches"`
	TitleMatch      bool                   `json:"title_match"`
	Sentences       []*HighlightedSentence `json:"sentences"`
}

// CollectionResult holds the top documents of one collection and the full match count.
type CollectionResult struct {
	Collection *Collection       `json:"collection"`
	Documents  []*DocumentResult `json:"documents"`
	Count      int               `json:"count"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query string `json:"query"`
	// Message is set when the request was not searched (e.g. no query given).
	Message     string              `json:"message,omitempty"`
	Results     []*CollectionResult `json:"results"`
	TotalCount  int                 `json:"total_count"`
	Definitions []*Definition       `json:"definitions"`
	// Suggestions contains "Did you mean?" queries built from corpus lemmas.
	// Only populated when the query matched nothing.
	Suggestions []string `json:"suggestions,omitempty"`
	QueryTime   int64    `json:"query_time_ms"`
}
