package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/deepresearch/internal/model"
	"github.com/nao1215/deepresearch/internal/workspace"
)

// ResearchState is the shared state threaded through the pipeline.
// Each step reads what earlier steps produced and adds its own output.
type ResearchState struct {
	// Workspace is the validated working directory for this run.
	Workspace *workspace.Workspace

	// Topic is the research topic read from the topic file.
	Topic string

	// Plan is the research plan produced by the planning step.
	Plan *model.Plan

	// Seeds is the accumulated seed link list from all search queries.
	Seeds []model.Link

	// Iteration is the current snapshot iteration. Planning sets it to 1
	// and every processed search query increments it.
	Iteration int

	// Downloads is the crawl output of the download step.
	Downloads *model.DownloadSet

	// Answer is the final answer text written by the summarize step.
	Answer string

	// Report is the run report built by the report step.
	Report *model.RunReport

	// RunID identifies this run in the archive database, zero when
	// archiving is disabled.
	RunID int64

	// PerformedSteps lists the names of completed steps in order.
	PerformedSteps []string
}

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the state
// accumulated by previous steps.
//
// Design decision: We use an interface rather than function types because:
// 1. It allows steps to carry configuration state
// 2. It provides a Name() method for logging and debugging
// 3. It's more extensible for future features (e.g., priority, dependencies)
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation and the state to modify.
	Do(ctx context.Context, state *ResearchState) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
//
// Design decision: The pipeline is strictly fail-fast. An error in any
// stage invalidates everything downstream of it (a failed search leaves
// nothing to crawl, a failed crawl nothing to index), so continuing
// past a failure could only produce misleading artifacts. Snapshots of
// completed stages survive an abort and remain valid for inspection.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger
}

// Option is a function that configures a Pipeline.
// This follows the functional options pattern for clean API design.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, a default logger is created.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
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
// It respects context cancellation and logs each step's execution.
//
// Design decision: We check context.Done() before each step rather than
// during, because steps should handle their own timeouts. This allows
// graceful cleanup between steps while still respecting cancellation.
func (p *Pipeline) Execute(ctx context.Context, state *ResearchState) error {
	for _, step := range p.steps {
		// Check for cancellation before starting each step
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			return ctx.Err()
		default:
			// Continue with execution
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"iteration", state.Iteration,
		)

		if err := step.Do(ctx, state); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"error", err,
			)
			return err
		}

		p.logger.Debug("step completed", "step", step.Name())
		state.PerformedSteps = append(state.PerformedSteps, step.Name())
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
