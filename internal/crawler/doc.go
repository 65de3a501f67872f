// Package crawler provides the crawl frontier and scheduling loop of sitecrawl.
//
// # Architecture
//
// The package is built around the Spider type, which owns no crawl state
// itself. Each call to Spider.Crawl creates a fresh Frontier, RobotsGate,
// Politeness limiter and Metrics, then loops:
//
//  1. Stop if the context is cancelled (StateCancelled)
//  2. Stop if the frontier is empty (StateDraining)
//  3. Stop if the page budget is spent (StateBudgetReached)
//  4. Pop the highest-priority URL and run the Processor on it
//  5. Apply the Outcome: mark visited and push discovered links, or count
//     the failure and abandon the URL
//
// # Components
//
//   - Frontier: priority queue (lower first, FIFO among equals) with a
//     hash-indexed membership check and the visited set
//   - Classify: same-host scope test and the "product" priority hint
//   - RobotsGate: per-host robots.txt cache that fails closed
//   - Politeness: per-host minimum interval between page fetches
//   - Processor: gate, fetch, decode, extract and classify for one URL
//   - Parser: title, first paragraph and links via goquery
//   - LinkFilter: optional ignore/follow path globs
//
// # Politeness
//
// The crawler is designed to be polite:
//   - Respects robots.txt for the "*" group, and denies a host whose
//     robots.txt cannot be retrieved
//   - Waits a fixed interval between page fetches to the host
//   - Processes one URL at a time unless workers are raised explicitly
//   - Identifies itself with a distinct User-Agent
//
// # Usage
//
//	spider := crawler.NewSpider(httpClient, crawler.WithMaxPages(50))
//	report, err := spider.Crawl(ctx, "https://example.com/")
package crawler
