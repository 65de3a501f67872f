package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sitecrawl/internal/model"
)

// timeLayout is how timestamps are shown in text and Markdown output.
const timeLayout = "2006-01-02 15:04:05 MST"

// SimpleWriter outputs human-readable text summaries.
// This format is designed for terminal display right after a crawl.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because the summary is often redirected to a file or
// piped to other tools.
type SimpleWriter struct {
	baseWriter

	// verbose adds the first paragraph and link count of every page.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the crawl summary in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "CRAWL SUMMARY")
	w.writeHeader(&sb, report)
	w.writeMetrics(&sb, report.Metrics)
	w.writePages(&sb, report)
	writeRule(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the seed and run state.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	fmt.Fprintf(sb, "Seed:           %s\n", report.Seed)
	if report.ID != 0 {
		fmt.Fprintf(sb, "Run ID:         %d\n", report.ID)
	}
	if !report.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:        %s\n", report.StartedAt.Format(timeLayout))
	}
	fmt.Fprintf(sb, "Status:         %s\n", report.State)
	if report.Error != nil {
		fmt.Fprintf(sb, "Error:          %v\n", report.Error)
	} else if report.ErrorMessage != "" {
		fmt.Fprintf(sb, "Error:          %s\n", report.ErrorMessage)
	}
	if report.ResultsFile != "" {
		fmt.Fprintf(sb, "Results file:   %s\n", report.ResultsFile)
	}
	sb.WriteString("\n")
}

// writeMetrics writes the run counters.
func (w *SimpleWriter) writeMetrics(sb *strings.Builder, m model.Metrics) {
	sb.WriteString("METRICS\n")
	sb.WriteString(strings.Repeat("-", 40))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Pages crawled:    %d\n", m.PagesCrawled)
	fmt.Fprintf(sb, "  Errors:           %d\n", m.Errors)
	fmt.Fprintf(sb, "  Robots denied:    %d\n", m.RobotsDenied)
	fmt.Fprintf(sb, "  Total time:       %.2fs\n", m.TotalTime.Seconds())
	fmt.Fprintf(sb, "  Pages per second: %.2f\n", m.PagesPerSecond)
	sb.WriteString("\n")
}

// writePages lists the crawled pages in crawl order.
func (w *SimpleWriter) writePages(sb *strings.Builder, report *model.CrawlReport) {
	fmt.Fprintf(sb, "PAGES (%d)\n", len(report.Records))
	sb.WriteString(strings.Repeat("-", 40))
	sb.WriteString("\n")

	if len(report.Records) == 0 {
		sb.WriteString("  No pages crawled.\n\n")
		return
	}

	for i, rec := range report.Records {
		title := rec.Title
		if !rec.HasTitle() {
			title = "(no title)"
		}
		fmt.Fprintf(sb, "  %3d. %s\n", i+1, rec.URL)
		fmt.Fprintf(sb, "       %s\n", title)
		if w.verbose {
			if rec.Snippet != "" {
				fmt.Fprintf(sb, "       %s\n", truncateString(rec.Snippet, 100))
			}
			fmt.Fprintf(sb, "       links: %d\n", len(rec.Links))
		}
	}
	sb.WriteString("\n")
}

// WriteComparison outputs the comparison in human-readable format.
func (w *SimpleWriter) WriteComparison(c *Comparison) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "CRAWL COMPARISON")
	fmt.Fprintf(&sb, "Host:     %s\n", c.Host)
	fmt.Fprintf(&sb, "Previous: run #%d at %s (%s)\n", c.Previous.ID, c.Previous.StartedAt.Format(timeLayout), c.Previous.State)
	fmt.Fprintf(&sb, "Current:  run #%d at %s (%s)\n\n", c.Current.ID, c.Current.StartedAt.Format(timeLayout), c.Current.State)

	sb.WriteString("METRICS\n")
	sb.WriteString(strings.Repeat("-", 40))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Pages crawled:  %d -> %d (%s)\n", c.Previous.PagesCrawled, c.Current.PagesCrawled, formatDelta(c.PagesDelta))
	fmt.Fprintf(&sb, "  Errors:         %d -> %d (%s)\n", c.Previous.Errors, c.Current.Errors, formatDelta(c.ErrorsDelta))
	fmt.Fprintf(&sb, "  Robots denied:  %d -> %d (%s)\n\n", c.Previous.RobotsDenied, c.Current.RobotsDenied, formatDelta(c.RobotsDeniedDelta))

	if c.SameContent {
		sb.WriteString("No changes: both runs crawled the same pages with the same content.\n")
		writeRule(&sb)
		return io.WriteString(w.output, sb.String())
	}
	if !c.HasChanges() {
		sb.WriteString("No page changes detected.\n")
		writeRule(&sb)
		return io.WriteString(w.output, sb.String())
	}

	writeURLSection(&sb, "ADDED PAGES", "+", c.AddedURLs)
	writeURLSection(&sb, "REMOVED PAGES", "-", c.RemovedURLs)
	if len(c.TitleChanges) > 0 {
		fmt.Fprintf(&sb, "CHANGED TITLES (%d)\n", len(c.TitleChanges))
		for _, tc := range c.TitleChanges {
			fmt.Fprintf(&sb, "  ~ %s\n", tc.URL)
			fmt.Fprintf(&sb, "      %q -> %q\n", tc.OldTitle, tc.NewTitle)
		}
		sb.WriteString("\n")
	}
	writeURLSection(&sb, "CHANGED CONTENT", "~", c.ContentChanges)
	writeRule(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeURLSection writes a titled URL list, or nothing for an empty list.
func writeURLSection(sb *strings.Builder, title, marker string, urls []string) {
	if len(urls) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s (%d)\n", title, len(urls))
	for _, u := range urls {
		fmt.Fprintf(sb, "  %s %s\n", marker, u)
	}
	sb.WriteString("\n")
}

// writeBanner writes a centered title between two rules.
func writeBanner(sb *strings.Builder, title string) {
	const width = 70
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", width))
	sb.WriteString("\n")
	pad := max((width-len(title))/2, 0)
	sb.WriteString(strings.Repeat(" ", pad))
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", width))
	sb.WriteString("\n\n")
}

// writeRule writes the closing rule.
func writeRule(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
