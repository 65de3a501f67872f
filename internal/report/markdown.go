package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitecrawl/internal/model"
)

// MarkdownWriter outputs crawl summaries in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the crawl summary in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeMetrics(md, report)
	w.writePages(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Crawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed", "`" + report.Seed + "`"},
		{"Host", "`" + report.SeedHost + "`"},
	}
	if report.ID != 0 {
		rows = append(rows, []string{"Run ID", strconv.FormatInt(report.ID, 10)})
	}
	if !report.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", report.StartedAt.Format(timeLayout)})
	}
	rows = append(rows, []string{"Status", w.getStatusText(report)})
	if report.ResultsFile != "" {
		rows = append(rows, []string{"Results File", "`" + report.ResultsFile + "`"})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.CrawlReport) string {
	switch {
	case report.Error != nil:
		return "❌ Error - " + report.Error.Error()
	case report.ErrorMessage != "":
		return "❌ Error - " + report.ErrorMessage
	case report.State == model.StateCancelled:
		return "⚠️ Cancelled (partial results)"
	default:
		return "✅ " + report.State.String()
	}
}

// writeMetrics writes the metrics table, the outcome chart and an alert.
func (w *MarkdownWriter) writeMetrics(md *markdown.Markdown, report *model.CrawlReport) {
	m := report.Metrics

	md.H2("Metrics")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Pages Crawled", strconv.Itoa(m.PagesCrawled)},
			{"Errors", strconv.Itoa(m.Errors)},
			{"Robots Denied", strconv.Itoa(m.RobotsDenied)},
			{"Total Time", fmt.Sprintf("%.2fs", m.TotalTime.Seconds())},
			{"Pages per Second", fmt.Sprintf("%.2f", m.PagesPerSecond)},
		},
	})
	md.PlainText("")

	if m.PagesCrawled+m.Errors+m.RobotsDenied > 0 {
		w.writePieChart(md, m)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of URL outcomes.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, m model.Metrics) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("URL Outcomes"),
		piechart.WithShowData(true),
	)

	if m.PagesCrawled > 0 {
		chart.LabelAndIntValue("Crawled", uint64(m.PagesCrawled))
	}
	if m.Errors > 0 {
		chart.LabelAndIntValue("Errors", uint64(m.Errors))
	}
	if m.RobotsDenied > 0 {
		chart.LabelAndIntValue("Robots Denied", uint64(m.RobotsDenied))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert that explains how the crawl ended.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	m := report.Metrics
	switch {
	case report.State == model.StateCancelled:
		md.Warningf("The crawl was cancelled after %d page(s). Results are partial.", m.PagesCrawled)
	case m.PagesCrawled == 0:
		md.Cautionf("No page could be crawled. %d error(s), %d URL(s) denied by robots.txt.", m.Errors, m.RobotsDenied)
	case m.Errors > 0:
		md.Importantf("%d page(s) could not be fetched and were skipped.", m.Errors)
	case report.State == model.StateBudgetReached:
		md.Note("The page budget was reached before the frontier was exhausted.")
	default:
		md.Tip("Every reachable page within the budget was crawled.")
	}
	md.PlainText("")
}

// writePages writes the crawled pages table.
func (w *MarkdownWriter) writePages(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Pages")
	md.PlainText("")

	if len(report.Records) == 0 {
		md.PlainText("No pages crawled.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Records))
	for i, rec := range report.Records {
		title := rec.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			truncateString(escapeCell(rec.URL), 80),
			truncateString(escapeCell(title), 60),
			strconv.Itoa(len(rec.Links)),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"#", "URL", "Title", "Links"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteComparison outputs the comparison in Markdown format.
func (w *MarkdownWriter) WriteComparison(c *Comparison) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Comparison: " + c.Host)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run ID", strconv.FormatInt(c.Previous.ID, 10), strconv.FormatInt(c.Current.ID, 10), ""},
			{"Started", c.Previous.StartedAt.Format(timeLayout), c.Current.StartedAt.Format(timeLayout), ""},
			{"Status", c.Previous.State.String(), c.Current.State.String(), ""},
			{"Pages Crawled", strconv.Itoa(c.Previous.PagesCrawled), strconv.Itoa(c.Current.PagesCrawled), formatDelta(c.PagesDelta)},
			{"Errors", strconv.Itoa(c.Previous.Errors), strconv.Itoa(c.Current.Errors), formatDelta(c.ErrorsDelta)},
			{"Robots Denied", strconv.Itoa(c.Previous.RobotsDenied), strconv.Itoa(c.Current.RobotsDenied), formatDelta(c.RobotsDeniedDelta)},
		},
	})
	md.PlainText("")

	switch {
	case c.SameContent:
		md.Tip("No changes: both runs crawled the same pages with the same content.")
		md.PlainText("")
	case !c.HasChanges():
		md.Note("No page changes detected.")
		md.PlainText("")
	default:
		w.writeURLList(md, "Added Pages", c.AddedURLs)
		w.writeURLList(md, "Removed Pages", c.RemovedURLs)
		if len(c.TitleChanges) > 0 {
			md.H2("Changed Titles")
			md.PlainText("")
			rows := make([][]string, len(c.TitleChanges))
			for i, tc := range c.TitleChanges {
				rows[i] = []string{escapeCell(tc.URL), escapeCell(tc.OldTitle), escapeCell(tc.NewTitle)}
			}
			md.Table(markdown.TableSet{
				Header: []string{"URL", "Previous Title", "Current Title"},
				Rows:   rows,
			})
			md.PlainText("")
		}
		w.writeURLList(md, "Changed Content", c.ContentChanges)
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeURLList writes a section with a bullet list, or nothing for an empty list.
func (w *MarkdownWriter) writeURLList(md *markdown.Markdown, title string, urls []string) {
	if len(urls) == 0 {
		return
	}
	md.H2(fmt.Sprintf("%s (%d)", title, len(urls)))
	md.PlainText("")
	items := make([]string, len(urls))
	for i, u := range urls {
		items[i] = "`" + u + "`"
	}
	md.BulletList(items...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitecrawl](https://github.com/nao1215/sitecrawl)*")
}

// escapeCell keeps pipes in URLs and titles from breaking table columns.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
