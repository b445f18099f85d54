package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/deepresearch/internal/browser"
	"github.com/nao1215/deepresearch/internal/cache"
	"github.com/nao1215/deepresearch/internal/config"
	"github.com/nao1215/deepresearch/internal/crawler"
	"github.com/nao1215/deepresearch/internal/database"
	"github.com/nao1215/deepresearch/internal/indexer"
	"github.com/nao1215/deepresearch/internal/llm"
	"github.com/nao1215/deepresearch/internal/log"
	"github.com/nao1215/deepresearch/internal/oracle"
	"github.com/nao1215/deepresearch/internal/pipeline"
	"github.com/nao1215/deepresearch/internal/planner"
	"github.com/nao1215/deepresearch/internal/report"
	"github.com/nao1215/deepresearch/internal/search"
	"github.com/nao1215/deepresearch/internal/summarizer"
	"github.com/nao1215/deepresearch/internal/workspace"
	"github.com/spf13/cobra"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [working-directory]",
		Short: "Run a research pipeline over a working directory",
		Long: `Run executes the full research pipeline for one working directory.

The directory must contain research.md describing the topic. The
pipeline plans search queries, searches the web, crawls the most
relevant pages, indexes the content, and writes:
- answer.md, the researched answer with source citations
- sources.md, a report of every fetched page
- plan/, search/, results/, iteration-numbered snapshots of each stage

A Gemini API key is resolved from the GEMINI_API_KEY environment
variable, then from the api_key_file configured in .deepresearch, then
from the gemini_api_key file in the XDG config directory.

Examples:
  # Research the topic described in ./research.md
  deepresearch run

  # Research a specific directory with a smaller crawl budget
  deepresearch run --budget 100 go-gc-research

  # Slow down fetching for fragile sites
  deepresearch run --delay 3s go-gc-research`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRunCmd,
	}

	// Model flags
	cmd.Flags().StringP("model", "m", config.DefaultModel,
		"Gemini model for planning, ranking, and summarization")
	cmd.Flags().String("embedding-model", config.DefaultEmbeddingModel,
		"Gemini model for content embeddings")

	// Crawl behavior flags
	cmd.Flags().IntP("budget", "b", config.DefaultCrawlBudget,
		"Maximum number of pages fetched per run")
	cmd.Flags().DurationP("delay", "d", config.DefaultFetchDelay,
		"Pause after each network fetch (cache hits skip it)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultPageLoadTimeout,
		"Page load timeout for the browser")
	cmd.Flags().IntP("results", "n", config.DefaultSearchResults,
		"Results taken from each search query")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL,
		"How long cached fetches and LLM responses stay valid")
	cmd.Flags().Bool("no-headless", false,
		"Show the browser window (for debugging page rendering)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .deepresearch in working or home directory)")

	// Archive flags
	cmd.Flags().Bool("no-archive", false,
		"Skip recording the run in the history database")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Print the run report as JSON instead of the terminal summary")

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	// Build config from flags and the optional config file
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up structured logging with secret masking
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runResearch(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the optional
// configuration file. Precedence is defaults < config file < flags, so
// file values are applied first and only explicitly set flags override.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	cfg.WorkDir = "."
	if len(args) > 0 {
		cfg.WorkDir = args[0]
	}

	var err error
	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// If the user explicitly specified a config file path, error if not
	// found. Otherwise a missing file just means defaults.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath, cfg.WorkDir)

	var keyFile string
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
		keyFile = file.APIKeyFile
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	noArchive, err := cmd.Flags().GetBool("no-archive")
	if err != nil {
		return nil, err
	}
	if !noArchive {
		cfg.DBDir = config.XDGDataDir()
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.Verbose = getVerboseFlag(cmd)

	// Resolve the API key up front so a missing key fails before any
	// browser or pipeline work starts
	cfg.APIKey, err = config.ResolveAPIKey(cfg.APIKey, keyFile)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFlagOverrides copies explicitly set flags onto the config.
// Flags left at their defaults do not override config file values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error

	if flags.Changed("model") {
		if cfg.Model, err = flags.GetString("model"); err != nil {
			return err
		}
	}
	if flags.Changed("embedding-model") {
		if cfg.EmbeddingModel, err = flags.GetString("embedding-model"); err != nil {
			return err
		}
	}
	if flags.Changed("budget") {
		if cfg.CrawlBudget, err = flags.GetInt("budget"); err != nil {
			return err
		}
	}
	if flags.Changed("delay") {
		if cfg.FetchDelay, err = flags.GetDuration("delay"); err != nil {
			return err
		}
	}
	if flags.Changed("timeout") {
		if cfg.PageLoadTimeout, err = flags.GetDuration("timeout"); err != nil {
			return err
		}
	}
	if flags.Changed("results") {
		if cfg.SearchResults, err = flags.GetInt("results"); err != nil {
			return err
		}
	}
	if flags.Changed("cache-ttl") {
		if cfg.CacheTTL, err = flags.GetDuration("cache-ttl"); err != nil {
			return err
		}
	}
	if flags.Changed("no-headless") {
		noHeadless, err := flags.GetBool("no-headless")
		if err != nil {
			return err
		}
		cfg.Headless = !noHeadless
	}

	return nil
}

// runResearch wires the components and executes the pipeline.
func runResearch(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ws := workspace.New(cfg.WorkDir)
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("invalid working directory %s: %w", cfg.WorkDir, err)
	}
	topic, err := ws.Topic()
	if err != nil {
		return err
	}

	logger.Info("starting research run",
		"workDir", ws.Root(),
		"model", cfg.Model,
		"budget", cfg.CrawlBudget,
	)

	store := cache.New(ws.Path(workspace.CacheDir), cache.WithTTL(cfg.CacheTTL))

	client, err := llm.NewGenAIClient(ctx, cfg.APIKey, cfg.Model, cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	completer := llm.NewCachingCompleter(client, store,
		llm.WithAttempts(cfg.LLMRetries),
		llm.WithRetryDelay(cfg.LLMRetryDelay),
		llm.WithLogger(logger),
	)

	session, err := browser.New(
		browser.WithHeadless(cfg.Headless),
		browser.WithPageLoadTimeout(cfg.PageLoadTimeout),
		browser.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("failed to close browser", "error", err)
		}
	}()

	searcher := search.New(session, store,
		search.WithMaxResults(cfg.SearchResults),
		search.WithLogger(logger),
	)
	relevance := oracle.New(completer, topic, oracle.WithMaxSelect(cfg.OracleMaxSelect))
	fetcher := crawler.NewPageFetcher(session, store, crawler.WithFetcherLogger(logger))
	engine := crawler.NewEngine(fetcher, relevance,
		crawler.WithBudget(cfg.CrawlBudget),
		crawler.WithFetchDelay(cfg.FetchDelay),
		crawler.WithEngineLogger(logger),
	)
	// The raw client embeds; completions go through the caching wrapper
	idx := indexer.New(ws, client, indexer.WithLogger(logger))
	summ := summarizer.New(ws, completer, idx, summarizer.WithLogger(logger))
	plnr := planner.New(completer, planner.WithLogger(logger))

	state := &pipeline.ResearchState{Workspace: ws, Topic: topic}

	// Open the archive database unless archiving is disabled
	var db *database.ResearchDB
	var archive pipeline.Archiver
	if cfg.DBDir != "" {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open archive database: %w", err)
		}
		defer db.Close()

		state.RunID, err = db.CreateRun(ctx, topic, ws.Root())
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		archive = db
	}

	// JSON output replaces the terminal summary, not sources.md
	var terminal io.Writer
	if !cfg.JSONReport {
		terminal = os.Stdout
	}

	p := pipeline.New(pipeline.WithLogger(logger))
	p.AddSteps(
		pipeline.NewPlanStep(plnr, logger),
		pipeline.NewSearchStep(searcher, logger),
		pipeline.NewDownloadStep(engine, archive, logger),
		pipeline.NewCleanupStep(logger),
		pipeline.NewIndexStep(idx),
		pipeline.NewSummarizeStep(summ),
		pipeline.NewReportStep(terminal, cfg.Verbose, logger),
	)

	startTime := time.Now()
	runErr := p.Execute(ctx, state)
	finishRun(db, state, runErr, logger)

	if runErr != nil {
		return runErr
	}

	if cfg.JSONReport {
		writer := report.NewJSONWriter(os.Stdout, report.WithPrettyPrint())
		if _, err := writer.Write(state.Report); err != nil {
			return fmt.Errorf("failed to write JSON report: %w", err)
		}
		return nil
	}

	elapsed := time.Since(startTime)
	fmt.Printf("\nResearch completed in %s\n", elapsed.Round(time.Second))
	fmt.Printf("Answer: %s\n", ws.Path(workspace.AnswerFile))
	return nil
}

// finishRun records the run outcome in the archive database.
// It uses a fresh context because the run context may already be
// cancelled when the pipeline was interrupted.
func finishRun(db *database.ResearchDB, state *pipeline.ResearchState, runErr error, logger *slog.Logger) {
	if db == nil || state.RunID == 0 {
		return
	}

	status := database.RunStatusCompleted
	if runErr != nil {
		status = database.RunStatusFailed
	}
	var fetched, failed int
	if state.Downloads != nil {
		failed = state.Downloads.Failed
		fetched = len(state.Downloads.Results) - failed
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.FinishRun(ctx, state.RunID, status, fetched, failed); err != nil {
		logger.Warn("failed to record run outcome", "runID", state.RunID, "error", err)
	}
}
