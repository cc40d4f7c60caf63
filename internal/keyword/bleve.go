package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	fieldLemmas   = "lemmas"
	fieldTitle    = "title"
	lemmaAnalyzer = "lemma"
)

// BleveIndex implements LemmaIndex using Bleve.
type BleveIndex struct {
	index      bleve.Index
	generation atomic.Uint64
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	// Lemmas are already normalized upstream: split on word boundaries and lowercase, no stemming or stop words.
	if err := im.AddCustomAnalyzer(lemmaAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("failed to register lemma analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = lemmaAnalyzer
	textFieldMapping.Store = false
	docMapping.AddFieldMappingsAt(fieldLemmas, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldTitle, textFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im, nil
}

// NewBleveIndex creates or opens a Bleve lemma index at path.
// If the path already exists, the existing index is opened and reused.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	im, err := newIndexMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemoryIndex creates an in-memory lemma index.
func NewMemoryIndex() (*BleveIndex, error) {
	im, err := newIndexMapping()
	if err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func lemmaFields(doc *LemmaDocument) map[string]interface{} {
	return map[string]interface{}{
		fieldTitle:  doc.Title,
		fieldLemmas: strings.Join(doc.Lemmas, " "),
	}
}

// Replace removes the documents in remove and indexes docs in a single batch.
func (b *BleveIndex) Replace(ctx context.Context, remove []string, docs []*LemmaDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch := b.index.NewBatch()
	for _, id := range remove {
		batch.Delete(id)
	}
	for _, doc := range docs {
		if err := batch.Index(doc.ID, lemmaFields(doc)); err != nil {
			return fmt.Errorf("failed to index %s: %w", doc.ID, err)
		}
	}
	if batch.Size() == 0 {
		return nil
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	b.generation.Add(1)
	return nil
}

// Delete removes a document from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	if err := b.index.Delete(id); err != nil {
		return err
	}
	b.generation.Add(1)
	return nil
}

// Generation returns a counter that changes whenever the indexed terms may have changed.
func (b *BleveIndex) Generation() uint64 {
	return b.generation.Load()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Complete returns up to limit lemmas that start with prefix, most frequent first.
func (b *BleveIndex) Complete(prefix string, limit int) ([]*Completion, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return nil, nil
	}
	dict, err := b.index.FieldDictPrefix(fieldLemmas, []byte(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to read lemma dictionary: %w", err)
	}
	defer dict.Close()

	var out []*Completion
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}
		if entry.Count == 0 {
			continue
		}
		out = append(out, &Completion{Lemma: entry.Term, Frequency: int(entry.Count)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Lemma < out[j].Lemma
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetAllTerms returns all unique lemma and title terms from the index dictionary.
// Entries left at zero count by deletions are skipped.
func (b *BleveIndex) GetAllTerms() ([]string, error) {
	terms := make([]string, 0)
	seen := make(map[string]struct{})
	for _, field := range []string{fieldLemmas, fieldTitle} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s dictionary: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if entry.Count == 0 {
				continue
			}
			if _, ok := seen[entry.Term]; !ok {
				terms = append(terms, entry.Term)
				seen[entry.Term] = struct{}{}
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}

// GetTermFrequency returns the number of documents whose lemmas contain term.
func (b *BleveIndex) GetTermFrequency(term string) (int, error) {
	term = strings.ToLower(term)
	dict, err := b.index.FieldDictRange(fieldLemmas, []byte(term), []byte(term))
	if err != nil {
		return 0, fmt.Errorf("failed to read lemma dictionary: %w", err)
	}
	defer dict.Close()
	for {
		entry, err := dict.Next()
		if err != nil {
			return 0, err
		}
		if entry == nil {
			return 0, nil
		}
		if entry.Term == term {
			return int(entry.Count), nil
		}
	}
}

// ContainsTerm checks if a term exists in the lemma dictionary.
func (b *BleveIndex) ContainsTerm(term string) (bool, error) {
	freq, err := b.GetTermFrequency(term)
	if err != nil {
		return false, err
	}
	return freq > 0, nil
}
