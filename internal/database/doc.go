// Package database provides SQLite-based crawl history for sitecrawl.
//
// Every finished crawl is stored as a run (seed, host, terminal state and
// metrics) together with its page records in crawl order. The history and
// compare commands read runs back per host.
//
// Design decision: We use SQLite (via modernc.org/sqlite) because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for per-host history queries
// 4. WAL mode provides good concurrent read performance
package database
