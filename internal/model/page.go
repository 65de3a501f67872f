package model

import (
	"time"
)

// PageRecord is the structured result captured for one successfully fetched
// and parsed page. Records are created once, right after extraction, and are
// never modified afterwards.
//
// Design decision: The JSON field names follow the results file format that
// downstream indexing tools already consume (title, url, first_paragraph,
// links, crawl_time), so the file stays a drop-in input for them.
type PageRecord struct {
	// Title is the text of the page's <title> element, trimmed.
	// Empty when the page has no title.
	Title string `json:"title"`

	// URL is the absolute URL the page was fetched from.
	URL string `json:"url"`

	// Snippet is the trimmed text of the first <p> element.
	// Empty when the page has no paragraph.
	Snippet string `json:"first_paragraph"`

	// Links contains the in-scope absolute links found on the page,
	// in document order. Duplicates are kept as they appear.
	Links []string `json:"links"`

	// CrawlTime is when the page was fetched and extracted.
	CrawlTime time.Time `json:"crawl_time"`

	// ContentHash is the xxhash of the decoded body, hex encoded.
	// It is kept in the history database for change detection only and
	// is not part of the results file.
	ContentHash string `json:"-"`
}

// NewPageRecord creates a PageRecord stamped with the current time.
// A nil links slice is replaced with an empty one so the results file
// always carries a JSON array.
func NewPageRecord(pageURL, title, snippet string, links []string) PageRecord {
	if links == nil {
		links = make([]string, 0)
	}
	return PageRecord{
		Title:     title,
		URL:       pageURL,
		Snippet:   snippet,
		Links:     links,
		CrawlTime: time.Now(),
	}
}

// HasTitle reports whether the page had a non-empty title.
func (p PageRecord) HasTitle() bool {
	return p.Title != ""
}
