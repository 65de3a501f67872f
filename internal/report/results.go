package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/sitecrawl/internal/model"
)

// ResultsWriter writes crawled page records as an indented JSON array.
// This is the results file consumed by downstream indexing tools.
//
// HTML characters are not escaped and non-ASCII text is written verbatim,
// so titles and snippets read the same in the file as on the page.
type ResultsWriter struct {
	baseWriter
}

// NewResultsWriter creates a ResultsWriter that outputs to the given writer.
func NewResultsWriter(output io.Writer) *ResultsWriter {
	return &ResultsWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the records in crawl order. A nil slice is written as [].
func (w *ResultsWriter) Write(records []model.PageRecord) (int, error) {
	if records == nil {
		records = make([]model.PageRecord, 0)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return 0, fmt.Errorf("failed to encode page records: %w", err)
	}
	return w.output.Write(buf.Bytes())
}

// WriteResultsFile writes records to path, creating parent directories
// as needed. An existing file is replaced.
func WriteResultsFile(path string, records []model.PageRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	f, err := os.Create(path) //nolint:gosec // path is chosen by the operator
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}

	if _, err := NewResultsWriter(f).Write(records); err != nil {
		_ = f.Close() //nolint:errcheck // the write error is more useful
		return fmt.Errorf("failed to write results file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close results file: %w", err)
	}
	return nil
}

// ResultsFiles returns one results file path per seed host, in order.
// With a single seed the base path is used as is; with several seeds the
// host is inserted before the extension so the crawls do not overwrite
// each other ("results.json" becomes "results-example.test.json"). A host
// that appears again gets its occurrence number as well
// ("results-example.test-2.json").
func ResultsFiles(base string, hosts []string) []string {
	paths := make([]string, len(hosts))
	if len(hosts) == 1 {
		paths[0] = base
		return paths
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	seen := make(map[string]int, len(hosts))
	for i, host := range hosts {
		// Ports would put a colon in the file name.
		name := strings.ReplaceAll(host, ":", "_")
		if name == "" {
			name = "seed"
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		paths[i] = stem + "-" + name + ext
	}
	return paths
}
