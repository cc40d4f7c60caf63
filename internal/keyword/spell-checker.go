package keyword

import (
	"sort"
	"strings"
	"sync"
)

// Suggestion represents a spelling suggestion with its score.
type Suggestion struct {
	Term      string  // The suggested term
	Distance  int     // Edit distance from the original term
	Frequency int     // Document frequency (popularity)
	Score     float64 // Combined score for ranking
}

// SpellCheckResult contains the result of spell checking a query.
type SpellCheckResult struct {
	OriginalQuery   string       // The original query
	CorrectedQuery  string       // The suggested corrected query
	Suggestions     []Suggestion // Suggestions for each misspelled term
	HasCorrections  bool         // True if any corrections were made
	MisspelledTerms []string     // Terms that were detected as misspelled

	// alternatives holds, per query term, the candidate replacements (best first).
	alternatives [][]string
}

// SpellChecker suggests corrected queries from the lemma dictionary.
type SpellChecker struct {
	dictionary     TermDictionary
	maxDistance    int
	minFreq        int
	maxSuggestions int
	transpositions bool

	// Cached terms for faster lookup
	termsCache []string
	termSet    map[string]struct{}
	cacheMu    sync.RWMutex
	cacheValid bool
	cacheGen   uint64
}

// SpellCheckerOption is a functional option for configuring SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency sets the minimum document frequency for suggestions.
// Terms with lower frequency are ignored (likely rare or noise).
func WithMinFrequency(f int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// WithMaxSuggestions sets the maximum number of suggestions to return per term.
func WithMaxSuggestions(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// WithTranspositions counts a swap of two adjacent characters as one edit.
func WithTranspositions() SpellCheckerOption {
	return func(s *SpellChecker) {
		s.transpositions = true
	}
}

// NewSpellChecker creates a new SpellChecker with the given dictionary.
func NewSpellChecker(dict TermDictionary, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{
		dictionary:     dict,
		maxDistance:    2,
		minFreq:        1,
		maxSuggestions: 5,
		termSet:        make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RefreshCache updates the internal term cache from the dictionary.
func (s *SpellChecker) RefreshCache() error {
	var gen uint64
	if g, ok := s.dictionary.(generational); ok {
		gen = g.Generation()
	}
	terms, err := s.dictionary.GetAllTerms()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.termsCache = terms
	s.termSet = make(map[string]struct{}, len(terms))
	for _, t := range terms {
		s.termSet[strings.ToLower(t)] = struct{}{}
	}
	s.cacheValid = true
	s.cacheGen = gen

	return nil
}

// ensureCache refreshes the term cache when it was never loaded or the dictionary changed.
func (s *SpellChecker) ensureCache() error {
	s.cacheMu.RLock()
	valid, gen := s.cacheValid, s.cacheGen
	s.cacheMu.RUnlock()

	if g, ok := s.dictionary.(generational); ok && g.Generation() != gen {
		valid = false
	}
	if valid {
		return nil
	}
	return s.RefreshCache()
}

// Check checks a query for spelling errors and returns suggestions.
func (s *SpellChecker) Check(query string) (*SpellCheckResult, error) {
	if err := s.ensureCache(); err != nil {
		return nil, err
	}

	terms := tokenizeQuery(query)
	result := &SpellCheckResult{
		OriginalQuery:   query,
		Suggestions:     make([]Suggestion, 0),
		MisspelledTerms: make([]string, 0),
		alternatives:    make([][]string, 0, len(terms)),
	}

	correctedTerms := make([]string, 0, len(terms))

	for _, term := range terms {
		s.cacheMu.RLock()
		_, exists := s.termSet[strings.ToLower(term)]
		s.cacheMu.RUnlock()

		if exists {
			correctedTerms = append(correctedTerms, term)
			result.alternatives = append(result.alternatives, []string{term})
			continue
		}

		suggestions := s.Suggest(term)
		if len(suggestions) == 0 {
			correctedTerms = append(correctedTerms, term)
			result.alternatives = append(result.alternatives, []string{term})
			continue
		}
		result.HasCorrections = true
		result.MisspelledTerms = append(result.MisspelledTerms, term)
		result.Suggestions = append(result.Suggestions, suggestions...)
		correctedTerms = append(correctedTerms, suggestions[0].Term)
		alts := make([]string, len(suggestions))
		for i, sg := range suggestions {
			alts[i] = sg.Term
		}
		result.alternatives = append(result.alternatives, alts)
	}

	result.CorrectedQuery = strings.Join(correctedTerms, " ")
	return result, nil
}

// Suggest returns spelling suggestions for a single term.
func (s *SpellChecker) Suggest(term string) []Suggestion {
	if err := s.ensureCache(); err != nil {
		return nil
	}

	termLower := strings.ToLower(term)
	suggestions := make([]Suggestion, 0)

	s.cacheMu.RLock()
	terms := s.termsCache
	s.cacheMu.RUnlock()

	for _, dictTerm := range terms {
		dictTermLower := strings.ToLower(dictTerm)
		if dictTermLower == termLower {
			continue
		}

		distance := BoundedDistance(termLower, dictTermLower, s.maxDistance, s.transpositions)
		if distance > s.maxDistance {
			continue
		}
		freq, err := s.dictionary.GetTermFrequency(dictTerm)
		if err != nil || freq < s.minFreq {
			continue
		}

		// Lower distance is better, higher frequency is better.
		score := (1.0 / float64(distance+1)) * float64(freq)

		suggestions = append(suggestions, Suggestion{
			Term:      dictTerm,
			Distance:  distance,
			Frequency: freq,
			Score:     score,
		})
	}

	sort.Slice(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].Term < suggestions[j].Term
	})

	if len(suggestions) > s.maxSuggestions {
		suggestions = suggestions[:s.maxSuggestions]
	}

	return suggestions
}

// GetTopSuggestions returns up to n distinct corrected queries, best first.
// The first is the best correction of every term; the rest swap in one term's next-best alternative.
func (s *SpellChecker) GetTopSuggestions(query string, n int) []string {
	result, err := s.Check(query)
	if err != nil || !result.HasCorrections || n <= 0 {
		return nil
	}

	best := make([]string, len(result.alternatives))
	for i, alts := range result.alternatives {
		best[i] = alts[0]
	}

	suggestions := []string{result.CorrectedQuery}
	seen := map[string]struct{}{result.CorrectedQuery: {}}
	for rank := 1; len(suggestions) < n; rank++ {
		added := false
		for i, alts := range result.alternatives {
			if rank >= len(alts) {
				continue
			}
			added = true
			variant := append([]string(nil), best...)
			variant[i] = alts[rank]
			q := strings.Join(variant, " ")
			if _, ok := seen[q]; ok {
				continue
			}
			seen[q] = struct{}{}
			suggestions = append(suggestions, q)
			if len(suggestions) == n {
				break
			}
		}
		if !added {
			break
		}
	}
	return suggestions
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}
