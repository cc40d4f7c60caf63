package conllu

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/parmesan/internal/models"
)

const defaultTitle = "Untitled"

// ErrNoDocuments is returned when a stream contains sentences but no document marker.
var ErrNoDocuments = errors.New("no doc_id metadata found")

// Metadata keys recognized on the sentence that opens a document.
const (
	KeyDocID     = "doc_id"
	KeyNewDocID  = "newdoc id"
	KeyDocTitle  = "doc_title"
	KeyDocURL    = "doc_url"
	KeyDocAuthor = "doc_author"
	KeyDocDate   = "doc_date"
)

// ParseResult holds the documents read from a stream.
type ParseResult struct {
	Documents []*models.Document
	// Orphans counts sentences that appeared before any document marker.
	Orphans int
}

// IDFunc assigns a storage ID to a document given its source doc_id.
type IDFunc func(sourceID string) string

// ReadDocuments reads all documents from r. A sentence carrying doc_id (or "newdoc id")
// starts a new document; its title, URL, authors and date come from the same sentence.
func ReadDocuments(r io.Reader, newID IDFunc) (*ParseResult, error) {
	rd := NewReader(r)
	res := &ParseResult{}
	var current *models.Document

	for {
		s, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if sourceID, ok := documentID(s.Metadata); ok {
			current = newDocument(s.Metadata, newID(sourceID))
			res.Documents = append(res.Documents, current)
		}
		if current == nil {
			res.Orphans++
			continue
		}
		if len(s.Tokens) == 0 {
			continue
		}
		current.Sentences = append(current.Sentences, &models.Sentence{
			Position: len(current.Sentences),
			Text:     s.Text(),
			Lemmas:   models.JoinLemmas(s.Tokens),
			Tokens:   s.Tokens,
		})
	}

	if len(res.Documents) == 0 && res.Orphans > 0 {
		return res, ErrNoDocuments
	}
	return res, nil
}

func documentID(meta map[string]string) (string, bool) {
	if id, ok := meta[KeyDocID]; ok {
		return id, true
	}
	if id, ok := meta[KeyNewDocID]; ok {
		return id, true
	}
	return "", false
}

func newDocument(meta map[string]string, id string) *models.Document {
	doc := &models.Document{
		ID:    id,
		Title: truncate(strings.TrimSpace(meta[KeyDocTitle]), maxFieldLen),
		URL:   meta[KeyDocURL],
	}
	if doc.Title == "" {
		doc.Title = defaultTitle
	}
	for _, a := range strings.Split(meta[KeyDocAuthor], ";") {
		if a = strings.TrimSpace(a); a != "" {
			doc.Authors = append(doc.Authors, a)
		}
	}
	if d := meta[KeyDocDate]; d != "" {
		if t, err := time.Parse(time.DateOnly, d); err == nil {
			doc.PubDate = &t
		}
	}
	return doc
}
