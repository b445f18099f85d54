package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/nao1215/deepresearch/internal/database"
	"github.com/nao1215/deepresearch/internal/model"
	"github.com/nao1215/deepresearch/internal/report"
	"github.com/nao1215/deepresearch/internal/search"
	"github.com/nao1215/deepresearch/internal/workspace"
)

// Snapshot stage names. These are part of the on-disk format: a rename
// breaks the cleanup sweep and any tooling reading the working directory.
const (
	planStage    = "plan"
	searchStage  = "search_results"
	resultsStage = "downloaded_content"
)

// SearchSnapshot is the persisted output of one search query.
type SearchSnapshot struct {
	// Query is the search query that produced these results.
	Query string `json:"query"`

	// Results are the seed links parsed from the result page.
	Results []model.Link `json:"results"`
}

// PlanGenerator produces a research plan for a topic.
// *planner.Planner satisfies it.
type PlanGenerator interface {
	Generate(ctx context.Context, topic string) (*model.Plan, error)
}

// Seeder turns a search query into seed links.
// *search.Searcher satisfies it.
type Seeder interface {
	Search(ctx context.Context, query string) ([]model.Link, error)
}

// CrawlRunner runs the crawl engine over seed links.
// *crawler.Engine satisfies it.
type CrawlRunner interface {
	Run(ctx context.Context, seeds []model.Link) (*model.DownloadSet, error)
}

// IndexBuilder builds the content index from downloaded snapshots.
// *indexer.Indexer satisfies it.
type IndexBuilder interface {
	Build(ctx context.Context) error
}

// AnswerWriter writes the final answer for a plan.
// *summarizer.Summarizer satisfies it.
type AnswerWriter interface {
	Summarize(ctx context.Context, plan *model.Plan) (string, error)
}

// Archiver records fetched pages in the archive database.
// *database.ResearchDB satisfies it.
type Archiver interface {
	InsertCrawlRecord(ctx context.Context, record *database.CrawlRecord) (int64, error)
}

// PlanStep generates the research plan and persists it as iteration 1.
type PlanStep struct {
	planner PlanGenerator
	logger  *slog.Logger
}

// NewPlanStep creates the planning step.
func NewPlanStep(planner PlanGenerator, logger *slog.Logger) *PlanStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanStep{planner: planner, logger: logger}
}

// Name returns the step name.
func (s *PlanStep) Name() string {
	return "plan"
}

// Do generates the plan from the topic and writes plan_1.json.
func (s *PlanStep) Do(ctx context.Context, state *ResearchState) error {
	plan, err := s.planner.Generate(ctx, state.Topic)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}

	state.Plan = plan
	state.Iteration = 1
	if err := state.Workspace.SaveSnapshot(workspace.PlanDir, planStage, state.Iteration, plan); err != nil {
		return err
	}

	s.logger.Info("research plan generated",
		"queries", len(plan.SearchQueries), "key_areas", len(plan.KeyAreas))
	return nil
}

// SearchStep runs every planned query and accumulates seed links.
// Each processed query increments the iteration and persists the
// remaining plan and that query's results, so an interrupted run shows
// exactly how far the search got.
type SearchStep struct {
	searcher Seeder
	logger   *slog.Logger
}

// NewSearchStep creates the search step.
func NewSearchStep(searcher Seeder, logger *slog.Logger) *SearchStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchStep{searcher: searcher, logger: logger}
}

// Name returns the step name.
func (s *SearchStep) Name() string {
	return "search"
}

// Do pops queries one at a time until none remain.
// A query with no results is logged and skipped; the crawl can still
// proceed on seeds from the other queries.
func (s *SearchStep) Do(ctx context.Context, state *ResearchState) error {
	if state.Plan == nil {
		return errors.New("search step requires a plan")
	}

	remaining := slices.Clone(state.Plan.SearchQueries)
	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		query := remaining[0]
		remaining = remaining[1:]

		links, err := s.searcher.Search(ctx, query)
		if err != nil {
			if errors.Is(err, search.ErrNoResults) {
				s.logger.Warn("query produced no results", "query", query)
				links = nil
			} else {
				return fmt.Errorf("search for %q failed: %w", query, err)
			}
		}

		state.Seeds = model.DedupeLinks(append(state.Seeds, links...))
		state.Iteration++

		// Persist the shrinking plan and this query's results so the
		// run can be inspected at iteration granularity
		remainingPlan := *state.Plan
		remainingPlan.SearchQueries = remaining
		if err := state.Workspace.SaveSnapshot(workspace.PlanDir, planStage, state.Iteration, &remainingPlan); err != nil {
			return err
		}
		snapshot := SearchSnapshot{Query: query, Results: links}
		if err := state.Workspace.SaveSnapshot(workspace.SearchDir, searchStage, state.Iteration, snapshot); err != nil {
			return err
		}

		s.logger.Info("search query processed",
			"query", query, "results", len(links), "seeds", len(state.Seeds))
	}

	return nil
}

// DownloadStep runs the crawl engine once over all accumulated seeds
// and archives the fetched pages.
type DownloadStep struct {
	engine  CrawlRunner
	archive Archiver
	logger  *slog.Logger
}

// NewDownloadStep creates the download step.
// The archive may be nil when archiving is disabled.
func NewDownloadStep(engine CrawlRunner, archive Archiver, logger *slog.Logger) *DownloadStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadStep{engine: engine, archive: archive, logger: logger}
}

// Name returns the step name.
func (s *DownloadStep) Name() string {
	return "download"
}

// Do crawls the seed list and writes the final-iteration snapshot.
// Archive failures are logged but do not fail the run; the archive is
// a convenience record, not a pipeline artifact.
func (s *DownloadStep) Do(ctx context.Context, state *ResearchState) error {
	set, err := s.engine.Run(ctx, state.Seeds)
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	state.Downloads = set
	if err := state.Workspace.SaveSnapshot(workspace.ResultsDir, resultsStage, state.Iteration, set); err != nil {
		return err
	}

	s.logger.Info("download complete",
		"fetched", len(set.Results)-set.Failed, "failed", set.Failed, "attempted", set.Attempted)

	if s.archive != nil && state.RunID != 0 {
		for i := range set.Results {
			result := &set.Results[i]
			if !result.Success {
				continue
			}
			record := &database.CrawlRecord{
				RunID:       state.RunID,
				URL:         result.URL,
				Title:       result.Title,
				ContentType: result.ContentType,
				Content:     result.Content,
				FromCache:   result.FromCache,
			}
			if _, err := s.archive.InsertCrawlRecord(ctx, record); err != nil {
				s.logger.Warn("failed to archive page", "url", result.URL, "error", err)
			}
		}
	}

	return nil
}

// CleanupStep removes stale snapshots from earlier, longer runs.
type CleanupStep struct {
	logger *slog.Logger
}

// NewCleanupStep creates the cleanup step.
func NewCleanupStep(logger *slog.Logger) *CleanupStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupStep{logger: logger}
}

// Name returns the step name.
func (s *CleanupStep) Name() string {
	return "cleanup"
}

// Do removes snapshots numbered beyond this run's final iteration.
func (s *CleanupStep) Do(_ context.Context, state *ResearchState) error {
	if err := state.Workspace.Cleanup(state.Iteration); err != nil {
		return fmt.Errorf("snapshot cleanup failed: %w", err)
	}
	s.logger.Debug("stale snapshots removed", "last_iteration", state.Iteration)
	return nil
}

// IndexStep builds the content index over the downloaded snapshots.
type IndexStep struct {
	indexer IndexBuilder
}

// NewIndexStep creates the index step.
func NewIndexStep(indexer IndexBuilder) *IndexStep {
	return &IndexStep{indexer: indexer}
}

// Name returns the step name.
func (s *IndexStep) Name() string {
	return "index"
}

// Do builds the index.
func (s *IndexStep) Do(ctx context.Context, _ *ResearchState) error {
	if err := s.indexer.Build(ctx); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}

// SummarizeStep writes the final answer from the index.
type SummarizeStep struct {
	summarizer AnswerWriter
}

// NewSummarizeStep creates the summarize step.
func NewSummarizeStep(summarizer AnswerWriter) *SummarizeStep {
	return &SummarizeStep{summarizer: summarizer}
}

// Name returns the step name.
func (s *SummarizeStep) Name() string {
	return "summarize"
}

// Do produces answer.md and records the answer text on the state.
func (s *SummarizeStep) Do(ctx context.Context, state *ResearchState) error {
	answer, err := s.summarizer.Summarize(ctx, state.Plan)
	if err != nil {
		return fmt.Errorf("summarization failed: %w", err)
	}
	state.Answer = answer
	return nil
}

// ReportStep writes the sources report for the run.
type ReportStep struct {
	// terminal optionally receives a human-readable summary in
	// addition to the sources.md file. Nil disables terminal output.
	terminal io.Writer

	verbose bool
	logger  *slog.Logger
}

// NewReportStep creates the report step.
func NewReportStep(terminal io.Writer, verbose bool, logger *slog.Logger) *ReportStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStep{terminal: terminal, verbose: verbose, logger: logger}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do builds the run report and writes sources.md, plus a terminal
// summary when configured.
func (s *ReportStep) Do(_ context.Context, state *ResearchState) error {
	state.Report = model.NewRunReport(state.Topic, state.Iteration, state.Downloads)

	f, err := createSourcesFile(state.Workspace)
	if err != nil {
		return err
	}

	writers := []report.Writer{report.NewMarkdownWriter(f)}
	if s.terminal != nil {
		writers = append(writers, report.NewSimpleWriter(s.terminal, report.WithVerbose(s.verbose)))
	}

	if _, err := report.NewMultiWriter(writers...).Write(state.Report); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write sources report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close sources report: %w", err)
	}

	s.logger.Info("sources report written", "path", state.Workspace.Path(workspace.SourcesFile))
	return nil
}

// createSourcesFile opens sources.md for writing, truncating any
// previous run's report.
func createSourcesFile(ws *workspace.Workspace) (*os.File, error) {
	path := ws.Path(workspace.SourcesFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // Path is inside the validated workspace
	if err != nil {
		return nil, fmt.Errorf("failed to create sources report: %w", err)
	}
	return f, nil
}
