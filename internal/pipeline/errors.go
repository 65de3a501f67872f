package pipeline

import "errors"

var (
	// ErrPersistenceFailure indicates that crawl results could not be saved.
	// The crawl itself and its metrics are unaffected.
	ErrPersistenceFailure = errors.New("failed to persist crawl results")

	// ErrNoSpider indicates a crawl step without a spider.
	ErrNoSpider = errors.New("crawl step has no spider")
)
