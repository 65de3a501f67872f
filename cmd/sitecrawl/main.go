// Package main provides the entry point for the sitecrawl CLI.
//
// sitecrawl is a polite single-site web crawler. Starting from a seed URL
// it follows links on the seed's host, honors robots.txt, waits between
// requests and stops at a page budget. Page titles, first paragraphs and
// links are written to a JSON results file and every run is kept in a
// local history database.
//
// Usage:
//
//	sitecrawl crawl https://example.com/
//	sitecrawl history example.com
//	sitecrawl compare example.com
//
// See --help for all available options.
package main

// main is the entry point for sitecrawl.
func main() {
	Execute()
}
