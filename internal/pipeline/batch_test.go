package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitecrawl/internal/model"
)

// TestBatchProcessorNew tests the BatchProcessor constructor.
func TestBatchProcessorNew(t *testing.T) {
	t.Parallel()

	factory := func(string) *Pipeline { return New() }

	tests := []struct {
		name string
		opts []BatchOption
		want int
	}{
		{"creates processor with defaults", nil, DefaultConcurrency},
		{"applies WithConcurrency option", []BatchOption{WithConcurrency(2)}, 2},
		{"ignores non-positive concurrency", []BatchOption{WithConcurrency(0)}, DefaultConcurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bp := NewBatchProcessor(factory, tt.opts...)
			if bp.concurrency != tt.want {
				t.Errorf("expected concurrency %d, got %d", tt.want, bp.concurrency)
			}
			if bp.logger == nil {
				t.Error("expected a logger")
			}
		})
	}
}

// TestProcessBatch tests concurrent crawls of several seeds.
func TestProcessBatch(t *testing.T) {
	t.Parallel()

	t.Run("returns one report per seed in seed order", func(t *testing.T) {
		t.Parallel()

		seeds := []string{"https://a.test/", "https://b.test/", "https://c.test/"}
		factory := func(seed string) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "crawl", doFunc: func(_ context.Context, r *model.CrawlReport) error {
				r.State = model.StateDraining
				r.Records = []model.PageRecord{model.NewPageRecord(seed, "", "", nil)}
				return nil
			}})
			return p
		}

		bp := NewBatchProcessor(factory, WithBatchLogger(discardLogger()))
		reports, err := bp.ProcessBatch(t.Context(), seeds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(reports) != len(seeds) {
			t.Fatalf("expected %d reports, got %d", len(seeds), len(reports))
		}
		for i, r := range reports {
			if r.Seed != seeds[i] || r.Records[0].URL != seeds[i] {
				t.Errorf("report %d belongs to %q, expected %q", i, r.Seed, seeds[i])
			}
		}
	})

	t.Run("a failing seed does not stop the others", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		factory := func(seed string) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "crawl", doFunc: func(context.Context, *model.CrawlReport) error {
				if seed == "https://bad.test/" {
					return errBoom
				}
				return nil
			}})
			return p
		}

		bp := NewBatchProcessor(factory, WithBatchLogger(discardLogger()))
		reports, err := bp.ProcessBatch(t.Context(), []string{"https://bad.test/", "https://good.test/"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !errors.Is(reports[0].Error, errBoom) {
			t.Errorf("expected error recorded for bad seed, got %v", reports[0].Error)
		}
		if reports[1].Error != nil {
			t.Errorf("expected good seed to succeed, got %v", reports[1].Error)
		}
	})

	t.Run("respects the concurrency limit", func(t *testing.T) {
		t.Parallel()

		var running, peak atomic.Int32
		factory := func(string) *Pipeline {
			p := New(WithLogger(discardLogger()))
			p.AddStep(&mockStep{name: "crawl", doFunc: func(context.Context, *model.CrawlReport) error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return nil
			}})
			return p
		}

		seeds := []string{"https://1.test/", "https://2.test/", "https://3.test/", "https://4.test/", "https://5.test/"}
		bp := NewBatchProcessor(factory, WithConcurrency(2), WithBatchLogger(discardLogger()))
		if _, err := bp.ProcessBatch(t.Context(), seeds); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := peak.Load(); got > 2 {
			t.Errorf("expected at most 2 concurrent crawls, got %d", got)
		}
	})

	t.Run("seeds not started before cancellation are reported cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		var started atomic.Int32
		factory := func(string) *Pipeline {
			started.Add(1)
			return New(WithLogger(discardLogger()))
		}

		bp := NewBatchProcessor(factory, WithBatchLogger(discardLogger()))
		reports, err := bp.ProcessBatch(ctx, []string{"https://a.test/", "https://b.test/"})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if started.Load() != 0 {
			t.Error("expected no pipeline to be built after cancellation")
		}
		for _, r := range reports {
			if r == nil || r.State != model.StateCancelled {
				t.Errorf("expected cancelled report, got %+v", r)
			}
		}
	})
}
