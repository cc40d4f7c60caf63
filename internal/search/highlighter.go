package search

import (
	"regexp"
	"strings"

	"github.com/hyperjump/parmesan/internal/models"
)

const (
	markOpen  = "<mark>"
	markClose = "</mark>"
)

// escapedWhitespace matches the literal two-character sequences \n, \s and \r left in
// token forms by upstream tokenizers.
var escapedWhitespace = regexp.MustCompile(`\\[nsr]`)

// Highlight renders a sentence, wrapping each run of tokens whose lemmas equal the
// whitespace-separated query components in a single <mark> span.
// Matching is greedy, leftmost and non-overlapping. Forms are not HTML-escaped.
func Highlight(tokens []models.Token, query string) string {
	components := strings.Fields(query)
	var b strings.Builder

	i := 0
	for i < len(tokens) {
		n := matchAt(tokens, i, components)
		if n == 0 {
			writeToken(&b, tokens[i])
			i++
			continue
		}
		b.WriteString(markOpen)
		for j := i; j < i+n; j++ {
			if j == i+n-1 {
				b.WriteString(cleanForm(tokens[j].Form))
				b.WriteString(markClose)
				if !tokens[j].NoSpaceAfter {
					b.WriteByte(' ')
				}
				continue
			}
			writeToken(&b, tokens[j])
		}
		i += n
	}

	return strings.TrimRight(b.String(), " \t\r\n")
}

// matchAt returns the window length when components match the lemmas starting at
// tokens[i], or 0.
func matchAt(tokens []models.Token, i int, components []string) int {
	if len(components) == 0 || i+len(components) > len(tokens) {
		return 0
	}
	for j, c := range components {
		if tokens[i+j].Lemma != c {
			return 0
		}
	}
	return len(components)
}

func writeToken(b *strings.Builder, t models.Token) {
	b.WriteString(cleanForm(t.Form))
	if !t.NoSpaceAfter {
		b.WriteByte(' ')
	}
}

func cleanForm(form string) string {
	if !strings.Contains(form, `\`) {
		return form
	}
	return escapedWhitespace.ReplaceAllString(form, " ")
}
