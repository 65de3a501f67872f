package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/sitecrawl/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the accumulated
// report from previous steps.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
// 3. Persisting steps can opt into running after cancellation
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation, and the report to modify.
	// Returns an error if the step fails critically; non-critical errors
	// should be recorded in the report and return nil.
	Do(ctx context.Context, report *model.CrawlReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// finalizingStep is implemented by steps that must run even after the
// context is cancelled. Saving the partial results of an interrupted
// crawl is the reason to interrupt rather than kill it.
type finalizingStep interface {
	Step
	RunsOnCancel() bool
}

// runsOnCancel reports whether step runs after cancellation.
func runsOnCancel(step Step) bool {
	fs, ok := step.(finalizingStep)
	return ok && fs.RunsOnCancel()
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
// This follows the functional options pattern for clean API design.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and their errors
// are recorded in the report, but subsequent steps still execute.
//
// Design decision: The default is to stop on error because a failed crawl
// step leaves nothing worth saving. The crawl command turns this on so a
// results file that cannot be written does not also lose the history entry.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// Cancellation is checked before each step. Once the context is done,
// ordinary steps are skipped but finalizing steps still run, so an
// interrupted crawl keeps its partial results. Execute then returns the
// context error.
//
// Returns the first step error if continueOnError is false. With
// continueOnError the last step error is returned after all steps ran.
// Either way the error is also recorded in the report.
func (p *Pipeline) Execute(ctx context.Context, report *model.CrawlReport) error {
	var lastErr error
	skipped := false

	for _, step := range p.steps {
		if ctx.Err() != nil && !runsOnCancel(step) {
			p.logger.Warn("skipping step after cancellation",
				"step", step.Name(),
				"seed", report.Seed,
				"reason", ctx.Err(),
			)
			if !report.State.IsTerminal() {
				report.State = model.StateCancelled
			}
			skipped = true
			continue
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"seed", report.Seed,
		)

		if err := step.Do(ctx, report); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"seed", report.Seed,
				"error", err,
			)

			report.Error = err
			report.ErrorMessage = err.Error()
			lastErr = err

			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"seed", report.Seed,
			)
		}

		report.PerformedSteps = append(report.PerformedSteps, step.Name())
	}

	if lastErr != nil {
		return lastErr
	}
	if skipped {
		return ctx.Err()
	}
	return nil
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
