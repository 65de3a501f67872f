package model

import (
	"net/url"
	"time"
)

// CrawlState is the state of the crawl loop.
type CrawlState string

const (
	// StateRunning means the loop is still dequeuing URLs.
	StateRunning CrawlState = "running"

	// StateDraining means the frontier ran empty before the page budget
	// was reached. Terminal.
	StateDraining CrawlState = "draining"

	// StateBudgetReached means the number of visited pages reached the
	// page budget. Terminal.
	StateBudgetReached CrawlState = "budget_reached"

	// StateCancelled means the context was cancelled by the operator.
	// Terminal; results gathered so far are kept.
	StateCancelled CrawlState = "cancelled"
)

// IsTerminal reports whether the state ends the crawl.
func (s CrawlState) IsTerminal() bool {
	switch s {
	case StateDraining, StateBudgetReached, StateCancelled:
		return true
	default:
		return false
	}
}

// String returns a human-readable label.
func (s CrawlState) String() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateDraining:
		return "Frontier exhausted"
	case StateBudgetReached:
		return "Page budget reached"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// CrawlReport holds everything one crawl run produced.
// It is filled by the crawl step and then handed to the persistence and
// summary steps.
type CrawlReport struct {
	// ID is the history database identifier. Zero until the run is saved.
	ID int64 `json:"id,omitempty"`

	// Seed is the start URL as given by the operator.
	Seed string `json:"seed"`

	// SeedHost is the host component of the seed; it bounds the crawl scope.
	SeedHost string `json:"seed_host"`

	// StartedAt is when the crawl loop started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the crawl loop reached a terminal state.
	FinishedAt time.Time `json:"finished_at"`

	// State is the terminal state of the loop.
	State CrawlState `json:"state"`

	// Records contains the page records in crawl order.
	Records []PageRecord `json:"records"`

	// Metrics holds the run counters.
	Metrics Metrics `json:"metrics"`

	// Fingerprint summarizes the crawled URLs and their content hashes.
	// Two runs with equal fingerprints found the same pages with the same
	// content. Set when the run is stored in the history database.
	Fingerprint string `json:"fingerprint,omitempty"`

	// ResultsFile is where the records were written, if anywhere.
	ResultsFile string `json:"results_file,omitempty"`

	// Error is the error that stopped the run pipeline, if any.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"`

	// PerformedSteps lists the run pipeline steps that were executed.
	PerformedSteps []string `json:"performed_steps,omitempty"`
}

// NewCrawlReport creates a report for the given seed.
// SeedHost is derived from the seed when it parses; otherwise it stays
// empty and the crawl step reports the seed error.
func NewCrawlReport(seed string) *CrawlReport {
	r := &CrawlReport{
		Seed:    seed,
		State:   StateRunning,
		Records: make([]PageRecord, 0),
	}
	if u, err := url.Parse(seed); err == nil {
		r.SeedHost = u.Host
	}
	return r
}

// URLs returns the record URLs in crawl order.
func (r *CrawlReport) URLs() []string {
	urls := make([]string, len(r.Records))
	for i, rec := range r.Records {
		urls[i] = rec.URL
	}
	return urls
}

// RecordByURL returns the record for the given URL.
func (r *CrawlReport) RecordByURL(pageURL string) (PageRecord, bool) {
	for _, rec := range r.Records {
		if rec.URL == pageURL {
			return rec, true
		}
	}
	return PageRecord{}, false
}

// Duration returns FinishedAt - StartedAt, or 0 if the run has not finished.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
