package crawler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Politeness enforces a fixed minimum interval between successive page
// fetches to the same host.
//
// Design decision: We use one token bucket per host (burst 1, refilled every
// delay) instead of sleeping after each URL because:
//  1. The first request to a host is never delayed
//  2. No sleep happens after the last URL, so a finishing crawl exits at once
//  3. Concurrent workers share the same per-host budget without extra locking
//
// A zero delay disables waiting.
type Politeness struct {
	delay time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPoliteness creates a Politeness with the given per-host interval.
func NewPoliteness(delay time.Duration) *Politeness {
	return &Politeness{
		delay:    delay,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (p *Politeness) Wait(ctx context.Context, host string) error {
	if p == nil || p.delay <= 0 || host == "" {
		return nil
	}
	return p.limiter(host).Wait(ctx)
}

// Delay returns the configured interval.
func (p *Politeness) Delay() time.Duration {
	if p == nil {
		return 0
	}
	return p.delay
}

func (p *Politeness) limiter(host string) *rate.Limiter {
	host = strings.ToLower(host)

	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(p.delay), 1)
		p.limiters[host] = l
	}
	return l
}
