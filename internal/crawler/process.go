package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/nao1215/sitecrawl/internal/model"
)

// OutcomeKind classifies the result of processing one URL.
type OutcomeKind int

const (
	// OutcomeFetched means the page returned 200, was decoded and extracted.
	OutcomeFetched OutcomeKind = iota

	// OutcomePolicyDenied means robots.txt disallowed the URL or could not
	// be retrieved for its host. Not an error.
	OutcomePolicyDenied

	// OutcomeTransportFailure means the fetch timed out, failed to connect,
	// returned a non-200 status, or the body could not be decoded.
	OutcomeTransportFailure

	// OutcomeCancelled means the crawl context was cancelled while the URL
	// was being processed. Not an error.
	OutcomeCancelled
)

// String returns a short label for logs.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeFetched:
		return "fetched"
	case OutcomePolicyDenied:
		return "policy_denied"
	case OutcomeTransportFailure:
		return "transport_failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DiscoveredLink is an in-scope link ready to be pushed to the frontier.
type DiscoveredLink struct {
	URL      string
	Priority int
}

// Outcome is the result of Processor.Process.
// Record and Links are set only for OutcomeFetched; Reason is set for the
// other kinds.
type Outcome struct {
	Kind       OutcomeKind
	URL        string
	StatusCode int
	Record     model.PageRecord
	Links      []DiscoveredLink
	Reason     error
}

// PolicyChecker decides whether a URL may be fetched.
// *RobotsGate implements it.
type PolicyChecker interface {
	Check(ctx context.Context, target *url.URL) error
}

// Processor runs the fetch-extract pipeline for one URL:
// robots gate, politeness wait, fetch, status check, decode, extract, classify.
// It never mutates the frontier; discovered links are returned in the Outcome.
type Processor struct {
	fetcher    Fetcher
	policy     PolicyChecker
	politeness *Politeness
	filter     *LinkFilter
	seedHost   string
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithPoliteness sets the per-host politeness limiter.
func WithPoliteness(p *Politeness) ProcessorOption {
	return func(pr *Processor) {
		pr.politeness = p
	}
}

// WithLinkFilter sets the ignore/follow path filter.
func WithLinkFilter(f *LinkFilter) ProcessorOption {
	return func(pr *Processor) {
		pr.filter = f
	}
}

// NewProcessor creates a Processor scoped to seedHost.
func NewProcessor(fetcher Fetcher, policy PolicyChecker, seedHost string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		fetcher:  fetcher,
		policy:   policy,
		seedHost: seedHost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process fetches and extracts target.
func (p *Processor) Process(ctx context.Context, target *url.URL) Outcome {
	pageURL := target.String()

	if p.policy != nil {
		if err := p.policy.Check(ctx, target); err != nil {
			if ctx.Err() != nil {
				return Outcome{Kind: OutcomeCancelled, URL: pageURL, Reason: ctx.Err()}
			}
			return Outcome{Kind: OutcomePolicyDenied, URL: pageURL, Reason: err}
		}
	}

	if err := p.politeness.Wait(ctx, target.Host); err != nil {
		return Outcome{Kind: OutcomeCancelled, URL: pageURL, Reason: err}
	}

	resp, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Kind: OutcomeCancelled, URL: pageURL, Reason: ctx.Err()}
		}
		return Outcome{Kind: OutcomeTransportFailure, URL: pageURL, Reason: err}
	}

	if resp.StatusCode != http.StatusOK {
		return Outcome{
			Kind:       OutcomeTransportFailure,
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
		}
	}

	body, err := DecodeBody(resp.Body)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, URL: pageURL, StatusCode: resp.StatusCode, Reason: err}
	}

	parsed, err := Extract(body, pageURL)
	if err != nil {
		return Outcome{Kind: OutcomeTransportFailure, URL: pageURL, StatusCode: resp.StatusCode, Reason: err}
	}

	recordLinks := make([]string, 0, len(parsed.Links))
	discovered := make([]DiscoveredLink, 0, len(parsed.Links))
	for _, link := range parsed.Links {
		c := Classify(link, p.seedHost)
		if !c.InScope {
			continue
		}
		recordLinks = append(recordLinks, link)

		if p.filter != nil {
			u, err := url.Parse(link)
			if err != nil || !p.filter.Allow(u) {
				continue
			}
		}
		discovered = append(discovered, DiscoveredLink{URL: link, Priority: c.Priority})
	}

	record := model.NewPageRecord(pageURL, parsed.Title, parsed.Snippet, recordLinks)
	record.ContentHash = ContentHash(body)

	return Outcome{
		Kind:       OutcomeFetched,
		URL:        pageURL,
		StatusCode: resp.StatusCode,
		Record:     record,
		Links:      discovered,
	}
}

// ContentHash returns the hex encoded xxhash64 of the decoded page text.
// Hashing after decoding keeps the hash stable when a site changes only
// its character encoding.
func ContentHash(body string) string {
	return strconv.FormatUint(xxhash.Sum64String(body), 16)
}

// IsPolicyDenial reports whether err is a robots denial of either kind.
func IsPolicyDenial(err error) bool {
	return errors.Is(err, ErrPolicyDenied) || errors.Is(err, ErrRobotsUnavailable)
}
