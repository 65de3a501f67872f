// Package pipeline runs a crawl and persists what it produced.
//
// A crawl run is a sequence of steps over one CrawlReport: the crawl
// itself, writing the results file and storing the run in the history
// database. Each stage is a Step that receives the current report and can
// modify it.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// because:
// 1. Persistence steps can be added or dropped (--no-db) without touching
// the crawl
// 2. It provides consistent error handling and logging across steps
// 3. Steps that save results still run after the operator interrupts a
// crawl, so partial results are kept
//
// BatchProcessor runs one pipeline per seed with concurrency control using
// errgroup.
package pipeline
