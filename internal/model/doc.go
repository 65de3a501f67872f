// Package model defines the core data structures used throughout sitecrawl.
//
// This package contains the following main types:
//   - PageRecord: The structured result captured for one crawled page
//   - Metrics: Run counters and derived throughput
//   - CrawlReport: Everything one crawl run produced
//   - CrawlState: The crawl loop state machine states
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, report, database and pipeline packages all need
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for the results file and
// database storage.
package model
