package report

import (
	"io"

	"github.com/nao1215/sitecrawl/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl summaries in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// Write outputs the crawl summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CrawlReport) (int, error)

	// WriteComparison outputs the difference between two stored runs.
	WriteComparison(c *Comparison) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteComparison outputs the comparison to all configured Writers.
func (m *MultiWriter) WriteComparison(c *Comparison) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteComparison(c)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Format selects a summary writer.
type Format int

const (
	// FormatText is the human-readable terminal summary.
	FormatText Format = iota
	// FormatJSON is the machine-readable summary.
	FormatJSON
	// FormatMarkdown is the summary for documentation and sharing.
	FormatMarkdown
)

// NewWriter returns the Writer for format.
// version is embedded in JSON output and ignored by the other formats.
func NewWriter(output io.Writer, format Format, version string, verbose bool) Writer {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithIndent("  "), WithVersion(version))
	case FormatMarkdown:
		return NewMarkdownWriter(output)
	default:
		return NewSimpleWriter(output, WithVerbose(verbose))
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
