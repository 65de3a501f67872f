package crawler

import (
	"net/url"
	"strings"
)

// Fetch priorities assigned by Classify. Lower values are served first.
const (
	// PriorityProduct is assigned to URLs whose text contains "product".
	PriorityProduct = 0

	// PriorityDefault is assigned to every other in-scope URL.
	PriorityDefault = 1
)

// productHint is the case-insensitive substring that raises a URL's priority.
const productHint = "product"

// Classification is the result of classifying one discovered link.
type Classification struct {
	// InScope is true when the link's host equals the seed host exactly.
	InScope bool

	// Priority is the frontier priority for the link.
	Priority int
}

// Classify decides whether rawURL belongs to the crawl scope and which
// priority it should be queued at.
//
// A URL is in scope iff its host component equals seedHost. Subdomains are
// different hosts. An unparsable URL is never in scope.
//
// The priority is a discovery-order hint only: product pages are surfaced
// first because they are what the crawl is usually after.
func Classify(rawURL, seedHost string) Classification {
	priority := PriorityDefault
	if strings.Contains(strings.ToLower(rawURL), productHint) {
		priority = PriorityProduct
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return Classification{InScope: false, Priority: priority}
	}
	return Classification{
		InScope:  u.Host != "" && u.Host == seedHost,
		Priority: priority,
	}
}
