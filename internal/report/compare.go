package report

import (
	"strconv"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

// RunSummary identifies one side of a comparison.
type RunSummary struct {
	// ID is the history database identifier of the run.
	ID int64 `json:"id"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// State is the terminal state of the run.
	State model.CrawlState `json:"state"`

	// PagesCrawled is the number of pages the run fetched.
	PagesCrawled int `json:"pages_crawled"`

	// Errors is the number of transport failures.
	Errors int `json:"errors"`

	// RobotsDenied is the number of URLs skipped by robots policy.
	RobotsDenied int `json:"robots_denied"`

	// PagesPerSecond is the throughput of the run.
	PagesPerSecond float64 `json:"pages_per_second"`

	// Fingerprint summarizes the URLs and content of the run.
	Fingerprint string `json:"fingerprint,omitempty"`
}

// newRunSummary extracts the comparison header of a run.
func newRunSummary(r *model.CrawlReport) RunSummary {
	return RunSummary{
		ID:             r.ID,
		StartedAt:      r.StartedAt,
		State:          r.State,
		PagesCrawled:   r.Metrics.PagesCrawled,
		Errors:         r.Metrics.Errors,
		RobotsDenied:   r.Metrics.RobotsDenied,
		PagesPerSecond: r.Metrics.PagesPerSecond,
		Fingerprint:    r.Fingerprint,
	}
}

// TitleChange is a page whose title differs between two runs.
type TitleChange struct {
	URL      string `json:"url"`
	OldTitle string `json:"old_title"`
	NewTitle string `json:"new_title"`
}

// Comparison is the difference between two crawl runs of the same host.
//
// Design decision: URLs are compared as the exact strings stored in the
// records. The crawler already normalizes fragments away, and any further
// canonicalization here would hide changes the site actually made.
type Comparison struct {
	// Host is the crawled host.
	Host string `json:"host"`

	// Previous is the older run.
	Previous RunSummary `json:"previous"`

	// Current is the newer run.
	Current RunSummary `json:"current"`

	// AddedURLs were crawled in Current but not in Previous, in Current's
	// crawl order.
	AddedURLs []string `json:"added_urls"`

	// RemovedURLs were crawled in Previous but not in Current, in
	// Previous's crawl order.
	RemovedURLs []string `json:"removed_urls"`

	// TitleChanges lists pages crawled in both runs with different titles.
	TitleChanges []TitleChange `json:"title_changes"`

	// ContentChanges lists pages crawled in both runs whose content hash
	// differs. Pages without a stored hash are never reported.
	ContentChanges []string `json:"content_changes"`

	// PagesDelta is Current.PagesCrawled - Previous.PagesCrawled.
	PagesDelta int `json:"pages_delta"`

	// ErrorsDelta is Current.Errors - Previous.Errors.
	ErrorsDelta int `json:"errors_delta"`

	// RobotsDeniedDelta is Current.RobotsDenied - Previous.RobotsDenied.
	RobotsDeniedDelta int `json:"robots_denied_delta"`

	// SameContent is true when both runs carry the same fingerprint.
	SameContent bool `json:"same_content"`
}

// Compare computes the difference from previous to current.
func Compare(previous, current *model.CrawlReport) *Comparison {
	c := &Comparison{
		Host:              current.SeedHost,
		Previous:          newRunSummary(previous),
		Current:           newRunSummary(current),
		AddedURLs:         make([]string, 0),
		RemovedURLs:       make([]string, 0),
		TitleChanges:      make([]TitleChange, 0),
		ContentChanges:    make([]string, 0),
		PagesDelta:        current.Metrics.PagesCrawled - previous.Metrics.PagesCrawled,
		ErrorsDelta:       current.Metrics.Errors - previous.Metrics.Errors,
		RobotsDeniedDelta: current.Metrics.RobotsDenied - previous.Metrics.RobotsDenied,
		SameContent:       previous.Fingerprint != "" && previous.Fingerprint == current.Fingerprint,
	}
	if c.Host == "" {
		c.Host = previous.SeedHost
	}

	prevByURL := make(map[string]model.PageRecord, len(previous.Records))
	for _, rec := range previous.Records {
		prevByURL[rec.URL] = rec
	}
	currByURL := make(map[string]model.PageRecord, len(current.Records))
	for _, rec := range current.Records {
		currByURL[rec.URL] = rec
	}

	for _, rec := range current.Records {
		old, ok := prevByURL[rec.URL]
		if !ok {
			c.AddedURLs = append(c.AddedURLs, rec.URL)
			continue
		}
		if old.Title != rec.Title {
			c.TitleChanges = append(c.TitleChanges, TitleChange{
				URL:      rec.URL,
				OldTitle: old.Title,
				NewTitle: rec.Title,
			})
		}
		if old.ContentHash != "" && rec.ContentHash != "" && old.ContentHash != rec.ContentHash {
			c.ContentChanges = append(c.ContentChanges, rec.URL)
		}
	}
	for _, rec := range previous.Records {
		if _, ok := currByURL[rec.URL]; !ok {
			c.RemovedURLs = append(c.RemovedURLs, rec.URL)
		}
	}

	return c
}

// HasChanges reports whether the runs differ in crawled pages or content.
// Metric deltas alone do not count as changes.
func (c *Comparison) HasChanges() bool {
	return len(c.AddedURLs) > 0 ||
		len(c.RemovedURLs) > 0 ||
		len(c.TitleChanges) > 0 ||
		len(c.ContentChanges) > 0
}

// formatDelta formats a delta value with sign.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	} else if delta < 0 {
		return strconv.Itoa(delta)
	}
	return "0"
}
