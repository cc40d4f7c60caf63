// Package conllu reads CoNLL-U token streams into corpus documents.
package conllu

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hyperjump/parmesan/internal/models"
)

const (
	columns      = 10
	maxFieldLen  = 400
	maxTagLen    = 8
	maxLineBytes = 4 << 20
)

// Sentence is one parsed sentence block with its comment metadata.
type Sentence struct {
	// Line is the 1-based line number where the block starts.
	Line     int
	Metadata map[string]string
	Tokens   []models.Token
}

// Text returns the "text" metadata, or the sentence rebuilt from token forms.
func (s *Sentence) Text() string {
	if t, ok := s.Metadata["text"]; ok && t != "" {
		return t
	}
	var b strings.Builder
	for _, t := range s.Tokens {
		b.WriteString(t.Form)
		if !t.NoSpaceAfter {
			b.WriteByte(' ')
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Reader reads sentence blocks from a CoNLL-U stream.
type Reader struct {
	sc   *bufio.Scanner
	line int
	done bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{sc: sc}
}

// Next returns the next sentence, or io.EOF when the stream is exhausted.
// Multiword token ranges and empty nodes are skipped.
func (r *Reader) Next() (*Sentence, error) {
	if r.done {
		return nil, io.EOF
	}
	var s *Sentence
	for r.sc.Scan() {
		r.line++
		line := strings.TrimRight(r.sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if s != nil {
				return s, nil
			}
			continue
		}
		if s == nil {
			s = &Sentence{Line: r.line, Metadata: make(map[string]string)}
		}
		if strings.HasPrefix(line, "#") {
			key, value := parseComment(line)
			if key != "" {
				s.Metadata[key] = value
			}
			continue
		}
		tok, ok, err := parseToken(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		if ok {
			s.Tokens = append(s.Tokens, tok)
		}
	}
	r.done = true
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line, err)
	}
	if s != nil {
		return s, nil
	}
	return nil, io.EOF
}

// parseComment splits "# key = value". A comment without "=" yields its text as key.
func parseComment(line string) (string, string) {
	body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
	key, value, found := strings.Cut(body, "=")
	if !found {
		return body, ""
	}
	return strings.TrimSpace(key), strings.TrimSpace(value)
}

// parseToken parses one token line. ok is false for multiword ranges and empty nodes.
func parseToken(line string) (models.Token, bool, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != columns {
		return models.Token{}, false, fmt.Errorf("expected %d tab-separated columns, got %d", columns, len(fields))
	}
	if strings.ContainsAny(fields[0], "-.") {
		return models.Token{}, false, nil
	}
	idx, err := strconv.Atoi(fields[0])
	if err != nil || idx < 1 {
		return models.Token{}, false, fmt.Errorf("invalid token id %q", fields[0])
	}

	tok := models.Token{
		Index:    idx,
		Form:     truncate(value(fields[1]), maxFieldLen),
		Lemma:    truncate(value(fields[2]), maxFieldLen),
		UPOS:     truncate(value(fields[3]), maxTagLen),
		XPOS:     truncate(value(fields[4]), maxTagLen),
		Features: truncate(value(fields[5]), maxFieldLen),
		DepRel:   truncate(value(fields[7]), maxFieldLen),
		Misc:     truncate(value(fields[9]), maxFieldLen),
	}
	if h := value(fields[6]); h != "" {
		head, err := strconv.Atoi(h)
		if err != nil {
			return models.Token{}, false, fmt.Errorf("invalid head %q", h)
		}
		tok.Head = &head
	}
	tok.NoSpaceAfter = hasNoSpaceAfter(tok.Misc)
	return tok, true, nil
}

// value maps the CoNLL-U placeholder "_" to the empty string.
func value(field string) string {
	if field == "_" {
		return ""
	}
	return field
}

func hasNoSpaceAfter(misc string) bool {
	if misc == "" {
		return false
	}
	for _, item := range strings.Split(misc, "|") {
		if item == "SpaceAfter=No" {
			return true
		}
	}
	return false
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
