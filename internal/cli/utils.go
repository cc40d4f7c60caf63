// Package cli provides output helpers for the Parmesan command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named s; anything but "json" is text.
func ParseOutputFormat(s string) OutputFormat {
	if s == string(OutputJSON) {
		return OutputJSON
	}
	return OutputText
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	writeSearchResultsText(w, response)
	return nil
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	if response.Message != "" {
		fmt.Fprintf(w, "%s\n", response.Message)
		return
	}
	fmt.Fprintf(w, "\nFound %d documents for %q in %dms\n", response.TotalCount, response.Query, response.QueryTime)
	if response.TotalCount == 0 && len(response.Suggestions) > 0 {
		fmt.Fprintf(w, "Did you mean: %s?\n", joinQuoted(response.Suggestions))
	}
	for _, c := range response.Results {
		if c.Count == 0 {
			continue
		}
		fmt.Fprintf(w, "\n=== %s (%d documents) ===\n", c.Collection.Name, c.Count)
		for _, d := range c.Documents {
			writeDocumentResult(w, d)
		}
	}
	if len(response.Definitions) > 0 {
		fmt.Fprintln(w, "\n--- Definitions ---")
		WriteDefinitions(w, response.Definitions)
	}
	fmt.Fprintln(w)
}

func writeDocumentResult(w io.Writer, d *models.DocumentResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	title := "*"
	if d.TitleMatch {
		title = "* (title match)"
	}
	fmt.Fprintf(w, "%s %s | Score: %d | Sentences: %d\n", title, d.Document.Title, d.Score, d.SentenceMatches)
	if d.Document.URL != "" {
		fmt.Fprintf(w, "  %s\n", d.Document.URL)
	}
	for _, s := range d.Sentences {
		fmt.Fprintf(w, "  - %s\n", utils.Truncate(utils.MarksToText(s.HTML, "[", "]"), 300))
	}
}

// WriteDefinitions writes one line per definition.
func WriteDefinitions(w io.Writer, defs []*models.Definition) {
	for _, d := range defs {
		text := d.Definition
		if text == "" {
			text = "(no description)"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", d.Source, d.SourceName, utils.Truncate(text, 200))
		if d.SourceURL != "" {
			fmt.Fprintf(w, "    %s\n", d.SourceURL)
		}
	}
}

// WriteCollections writes a collection table.
func WriteCollections(w io.Writer, collections []*models.Collection) {
	if len(collections) == 0 {
		fmt.Fprintln(w, "No collections.")
		return
	}
	fmt.Fprintf(w, "%-6s %-8s %s\n", "ID", "PRIORITY", "NAME")
	for _, c := range collections {
		fmt.Fprintf(w, "%-6d %-8d %s\n", c.ID, c.Priority, c.Name)
	}
}

// WriteQueries writes the query log, most frequent first.
func WriteQueries(w io.Writer, entries []*models.QueryLogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No queries recorded.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%6d  %s\n", e.Count, e.Query)
	}
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

func joinQuoted(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%q", s)
	}
	return out
}
