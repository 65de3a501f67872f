package model

import (
	"encoding/json"
	"time"
)

// Metrics accumulates counters for one crawl run.
//
// PagesCrawled, Errors and RobotsDenied are incremented while the crawl is
// running. TotalTime and PagesPerSecond are derived once by Finalize.
type Metrics struct {
	// PagesCrawled is the number of pages that were fetched and extracted.
	PagesCrawled int `json:"pages_crawled"`

	// Errors is the number of transport failures: timeouts, connection
	// errors, non-200 statuses and unreadable bodies.
	Errors int `json:"errors"`

	// RobotsDenied is the number of URLs skipped because robots.txt
	// disallowed them or could not be retrieved. It is not an error count.
	RobotsDenied int `json:"robots_denied"`

	// TotalTime is the wall clock span from loop start to Finalize.
	// It is encoded in JSON as total_time in seconds.
	TotalTime time.Duration `json:"-"`

	// PagesPerSecond is PagesCrawled divided by TotalTime in seconds.
	// It is 0 for a zero-length run.
	PagesPerSecond float64 `json:"pages_per_second"`

	startedAt time.Time
	finalized bool
}

// metricsFields is Metrics without its JSON methods.
type metricsFields Metrics

// MarshalJSON encodes TotalTime as fractional seconds.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		metricsFields
		TotalTime float64 `json:"total_time"`
	}{metricsFields(m), m.TotalTime.Seconds()})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	v := struct {
		*metricsFields
		TotalTime float64 `json:"total_time"`
	}{metricsFields: (*metricsFields)(m)}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.TotalTime = time.Duration(v.TotalTime * float64(time.Second))
	return nil
}

// NewMetrics returns a Metrics whose clock starts now.
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// Start resets the clock. It is called when the crawl loop begins.
func (m *Metrics) Start(now time.Time) {
	m.startedAt = now
}

// RecordPage counts one fetched page.
func (m *Metrics) RecordPage() {
	m.PagesCrawled++
}

// RecordError counts one transport failure.
func (m *Metrics) RecordError() {
	m.Errors++
}

// RecordRobotsDenied counts one URL skipped by robots policy.
func (m *Metrics) RecordRobotsDenied() {
	m.RobotsDenied++
}

// Finalize computes TotalTime and PagesPerSecond using now as the end of
// the run. Only the first call has an effect.
func (m *Metrics) Finalize(now time.Time) {
	if m.finalized {
		return
	}
	m.finalized = true

	m.TotalTime = now.Sub(m.startedAt)
	if m.TotalTime < 0 {
		m.TotalTime = 0
	}
	m.PagesPerSecond = PagesPerSecond(m.PagesCrawled, m.TotalTime)
}

// Finalized reports whether Finalize has been called.
func (m *Metrics) Finalized() bool {
	return m.finalized
}

// PagesPerSecond returns pages/elapsed in seconds, or 0 when elapsed is not
// positive.
func PagesPerSecond(pages int, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(pages) / seconds
}
