package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitecrawl/internal/model"
)

// DefaultConcurrency is the number of seeds crawled at the same time when
// no limit is configured.
const DefaultConcurrency = 4

// BatchProcessor crawls several seeds concurrently.
// Each seed gets its own pipeline, spider and crawl state; seeds share
// nothing but the history database.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline because:
// 1. It keeps the Pipeline focused on single-seed execution
// 2. Per-seed settings (site config, results file) come from the factory
// 3. It provides cleaner separation of concerns
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each seed.
	pipelineFactory func(seed string) *Pipeline

	// concurrency is the maximum number of concurrent crawls.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent crawls.
// Values below 1 keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called once per seed so that pipeline
// state doesn't leak between crawls.
func NewBatchProcessor(pipelineFactory func(seed string) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls the seeds concurrently and returns one report per
// seed, in seed order.
//
// Every seed gets a report, even when its pipeline failed or the context
// was cancelled before it started; failures are recorded in the report.
// The returned error is the context error if the batch was interrupted.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]*model.CrawlReport, error) {
	bp.logger.Info("starting batch crawl",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()

	// Each goroutine writes its own index, so no lock is needed.
	results := make([]*model.CrawlReport, len(seeds))

	var g errgroup.Group
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			r := model.NewCrawlReport(seed)
			results[i] = r

			if ctx.Err() != nil {
				r.State = model.StateCancelled
				return nil
			}

			bp.logger.Info("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			if err := bp.pipelineFactory(seed).Execute(ctx, r); err != nil {
				// The error is recorded in the report; other seeds continue.
				bp.logger.Warn("crawl pipeline failed",
					"seed", seed,
					"error", err,
				)
				return nil
			}

			bp.logger.Info("seed completed", "seed", seed)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	bp.logger.Info("batch crawl complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)

	return results, ctx.Err()
}
