package ranking

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultTemplate matches the query as a whole-word phrase in the lemma string.
// Word edges are any non-letter, non-digit rune, so lemmas in any script delimit correctly.
const DefaultTemplate = `(?:^|[^\p{L}\p{N}_])%s(?:[^\p{L}\p{N}_]|$)`

const slot = "%s"

// ErrInvalidTemplate is returned when a regex template is malformed.
var ErrInvalidTemplate = errors.New("invalid regex template")

// Template builds case-insensitive lemma-match patterns from a query.
// The query is regex-quoted before substitution, so any query yields a valid pattern.
type Template struct {
	raw string
}

// NewTemplate parses tmpl. It must contain exactly one %s slot and compile once filled.
func NewTemplate(tmpl string) (*Template, error) {
	if n := strings.Count(tmpl, slot); n != 1 {
		return nil, fmt.Errorf("%w: want exactly one %%s slot, found %d", ErrInvalidTemplate, n)
	}
	t := &Template{raw: tmpl}
	if _, err := regexp.Compile(t.Pattern("x")); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return t, nil
}

// MustTemplate is like NewTemplate but panics on error.
func MustTemplate(tmpl string) *Template {
	t, err := NewTemplate(tmpl)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the raw template.
func (t *Template) String() string {
	return t.raw
}

// Pattern returns the case-insensitive regex for query.
func (t *Template) Pattern(query string) string {
	return "(?i)" + strings.Replace(t.raw, slot, regexp.QuoteMeta(query), 1)
}

// Compile compiles the pattern for query.
func (t *Template) Compile(query string) (*regexp.Regexp, error) {
	return regexp.Compile(t.Pattern(query))
}
