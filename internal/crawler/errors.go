package crawler

import "errors"

// Crawl errors.
// Per-URL errors are carried inside an Outcome and never abort the crawl loop.
// Only ErrInvalidStartURL and ErrInvalidMaxPages are returned from Spider.Crawl.
//
// Design decision: We keep these as sentinel errors so that the crawl loop
// and tests can classify an Outcome with errors.Is() without string matching.
var (
	// ErrInvalidStartURL is returned when the seed is not an absolute
	// http or https URL with a host. The crawl does not start.
	ErrInvalidStartURL = errors.New("invalid start URL: must be an absolute http(s) URL")

	// ErrInvalidMaxPages is returned when the page budget is not positive.
	ErrInvalidMaxPages = errors.New("invalid page budget: must be positive")

	// ErrEmptyFrontier is returned by Frontier.Pop when no URL is queued.
	ErrEmptyFrontier = errors.New("frontier is empty")

	// ErrPolicyDenied is the reason of an OutcomePolicyDenied outcome
	// when robots.txt disallows the URL for our agent.
	ErrPolicyDenied = errors.New("disallowed by robots.txt")

	// ErrRobotsUnavailable is the reason of an OutcomePolicyDenied outcome
	// when robots.txt for the host could not be retrieved or parsed.
	// The gate fails closed, so every URL on that host is denied.
	ErrRobotsUnavailable = errors.New("robots.txt unavailable")

	// ErrUnexpectedStatus is returned by the fetch step when the server
	// answered with anything other than 200 OK.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)
