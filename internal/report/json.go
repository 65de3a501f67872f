package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nao1215/sitecrawl/internal/model"
)

// JSONWriter writes crawl summaries and comparisons as JSON.
//
// Titles and snippets are written without HTML escaping, the same as in the
// results file, so "Q&A" stays readable. With a version set, a report is
// wrapped in a Document; that is the form printed by `crawl -j` and
// `history -j`.
type JSONWriter struct {
	baseWriter

	// indent is the per-level indentation. Empty means compact output.
	indent string

	// version is the sitecrawl version recorded in the Document.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent indents nested values by indent per level.
func WithIndent(indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = indent
	}
}

// WithVersion wraps reports in a Document stamped with version.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter. Without options it writes one
// compact line per value.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Document is a crawl report together with the version that wrote it.
type Document struct {
	// Version is the sitecrawl version.
	Version string `json:"version"`

	// Report is the crawl report, records included.
	Report *model.CrawlReport `json:"report"`
}

// Write outputs the report with its records. A pipeline error is written
// as the report's "error" field.
func (w *JSONWriter) Write(report *model.CrawlReport) (int, error) {
	if report.Error != nil && report.ErrorMessage == "" {
		report.ErrorMessage = report.Error.Error()
	}
	if w.version == "" {
		return w.encode(report)
	}
	return w.encode(Document{Version: w.version, Report: report})
}

// WriteComparison outputs the comparison. It is never wrapped.
func (w *JSONWriter) WriteComparison(c *Comparison) (int, error) {
	return w.encode(c)
}

// encode writes v followed by a newline.
func (w *JSONWriter) encode(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if w.indent != "" {
		enc.SetIndent("", w.indent)
	}
	if err := enc.Encode(v); err != nil {
		return 0, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return w.output.Write(buf.Bytes())
}
