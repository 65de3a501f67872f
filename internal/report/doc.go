// Package report renders crawl results.
//
// This package contains writers for different output formats:
//   - ResultsWriter: the results file, an indented JSON array of page records
//   - SimpleWriter: human-readable text summary for terminal display
//   - JSONWriter: structured JSON summary for tool integration
//   - MarkdownWriter: Markdown summary with a mermaid outcome chart
//
// Summary writers also render a Comparison, the difference between two
// stored runs of the same host (added and removed pages, changed titles
// and content, metric deltas).
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) so that new output formats do not touch
// the crawler.
package report
