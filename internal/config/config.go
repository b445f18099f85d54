package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values mirror the behavior users expect from a polite research
// crawler: conservative delays, bounded budgets, and a daily cache horizon.
const (
	// DefaultModel is the Gemini model used for planning, ranking, and
	// summarization. Flash-class models are fast and cheap enough for the
	// many small completions a research run issues.
	DefaultModel = "gemini-2.0-flash"

	// DefaultEmbeddingModel is the Gemini model used to embed content
	// chunks for the similarity index.
	DefaultEmbeddingModel = "text-embedding-004"

	// DefaultCacheTTL is how long cached fetches, search results, and LLM
	// responses stay valid. 24 hours keeps repeated runs on the same topic
	// cheap while still picking up fresh content day to day.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultFetchDelay is the pause inserted after each network fetch
	// during crawling. This is a politeness setting; cache hits skip it.
	DefaultFetchDelay = 1 * time.Second

	// DefaultCrawlBudget is the maximum number of pages fetched in one
	// crawl invocation. This prevents runaway expansion on link-dense
	// sites. Users can override this via the --budget CLI flag.
	DefaultCrawlBudget = 500

	// DefaultOracleMaxSelect caps how many candidate links the relevance
	// oracle may pick per expansion round. Ten keeps each round's fetch
	// batch small enough that budget and politeness stay meaningful.
	DefaultOracleMaxSelect = 10

	// DefaultLLMRetries is the number of attempts for each LLM request.
	// Transient API failures are common enough that retrying is worth it,
	// but three attempts bounds how long a broken key or outage stalls a run.
	DefaultLLMRetries = 3

	// DefaultLLMRetryDelay is the fixed pause between LLM retry attempts.
	DefaultLLMRetryDelay = 2 * time.Second

	// DefaultPageLoadTimeout bounds how long the browser waits for a page
	// to render. Research crawls visit many unknown hosts; a slow page
	// should cost one timeout, not stall the whole run.
	DefaultPageLoadTimeout = 10 * time.Second

	// DefaultSearchResults is how many results are taken from each web
	// search query. The top handful of results seed the crawl; deeper
	// results are reached through link expansion instead.
	DefaultSearchResults = 5

	// DefaultTopicFile is the file in the working directory that holds
	// the research topic and requirements.
	DefaultTopicFile = "research.md"

	// AppName is the application name used for XDG directory paths.
	AppName = "deepresearch"
)

// Config holds all configuration options for deepresearch.
// This struct is designed to be populated from CLI flags and the optional
// config file, then passed through the application via dependency injection
// rather than global state.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., CrawlConfig, LLMConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// WorkDir is the research working directory. It must contain the topic
	// file and receives all snapshots, the index, and the final answer.
	WorkDir string

	// Model is the Gemini model name for completions (planning, ranking,
	// summarization).
	Model string

	// EmbeddingModel is the Gemini model name for content embeddings.
	EmbeddingModel string

	// APIKey is the Gemini API key. When empty, the key is read from the
	// GEMINI_API_KEY environment variable or the XDG key file.
	APIKey string

	// CacheTTL is how long cache entries (fetched pages, search results,
	// LLM responses) remain valid. Entries older than this are treated as
	// absent at read time.
	CacheTTL time.Duration

	// FetchDelay is the pause after each network fetch during crawling.
	// Cache hits do not incur this delay.
	FetchDelay time.Duration

	// CrawlBudget is the maximum number of pages fetched per crawl
	// invocation. A value of 0 means use the default.
	CrawlBudget int

	// OracleMaxSelect caps the relevance oracle's selections per round.
	OracleMaxSelect int

	// LLMRetries is the number of attempts per LLM request.
	LLMRetries int

	// LLMRetryDelay is the fixed pause between LLM retry attempts.
	LLMRetryDelay time.Duration

	// PageLoadTimeout bounds how long the browser waits for one page.
	PageLoadTimeout time.Duration

	// SearchResults is how many results to take per search query.
	SearchResults int

	// Verbose enables detailed log output using slog.LevelDebug.
	// When false, only warnings and errors are logged.
	Verbose bool

	// JSONReport prints the run report as JSON instead of the
	// human-readable terminal summary. sources.md is written either way.
	JSONReport bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .deepresearch in the working
	// directory and then in the user's home directory.
	ConfigFilePath string

	// DBDir is the directory path for storing the SQLite archive.
	// When set, run results are archived for the history subcommand.
	// Defaults to the XDG data directory.
	DBDir string

	// Headless controls whether the shared browser runs without a visible
	// window. Disabled only for debugging page rendering issues.
	Headless bool
}

// NewConfig creates a new Config with default values.
// All fields are set to safe, sensible defaults that work for most use cases.
// Users can override specific values after creation.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero (e.g., TTL, budget).
// This also serves as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Model:           DefaultModel,
		EmbeddingModel:  DefaultEmbeddingModel,
		CacheTTL:        DefaultCacheTTL,
		FetchDelay:      DefaultFetchDelay,
		CrawlBudget:     DefaultCrawlBudget,
		OracleMaxSelect: DefaultOracleMaxSelect,
		LLMRetries:      DefaultLLMRetries,
		LLMRetryDelay:   DefaultLLMRetryDelay,
		PageLoadTimeout: DefaultPageLoadTimeout,
		SearchResults:   DefaultSearchResults,
		Headless:        true,
	}
}

// XDGDataDir returns the XDG data directory for deepresearch.
// This follows the XDG Base Directory Specification.
// On Linux: ~/.local/share/deepresearch
// On macOS: ~/Library/Application Support/deepresearch
// On Windows: %LOCALAPPDATA%\deepresearch
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for deepresearch.
// The Gemini API key file (gemini_api_key) lives here when the
// GEMINI_API_KEY environment variable is not set.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns a specific error describing what is invalid.
//
// Design decision: We validate at the config level rather than at each
// point of use to fail fast and provide clear error messages upfront.
// This is called once after CLI parsing, before any pipeline work begins.
//
// We chose to return the first error found rather than collecting all errors
// because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	// We must have a working directory to operate on
	if c.WorkDir == "" {
		return ErrNoWorkDir
	}

	// Model names must not be empty; the LLM client has no fallback
	if c.Model == "" || c.EmbeddingModel == "" {
		return ErrNoModel
	}

	// TTL must be positive; a zero TTL would make every cache read a miss
	// while still paying the write cost
	if c.CacheTTL <= 0 {
		return ErrInvalidCacheTTL
	}

	// FetchDelay must be non-negative
	if c.FetchDelay < 0 {
		return ErrInvalidFetchDelay
	}

	// CrawlBudget must be positive; zero would mean no downloading
	if c.CrawlBudget <= 0 {
		return ErrInvalidBudget
	}

	// OracleMaxSelect must be positive; zero selections would stall expansion
	if c.OracleMaxSelect <= 0 {
		return ErrInvalidOracleSelect
	}

	// LLMRetries must be positive; every request needs at least one attempt
	if c.LLMRetries <= 0 {
		return ErrInvalidRetries
	}

	// PageLoadTimeout must be positive; zero would fail every render
	if c.PageLoadTimeout <= 0 {
		return ErrInvalidPageTimeout
	}

	// SearchResults must be positive; zero would seed nothing
	if c.SearchResults <= 0 {
		return ErrInvalidSearchResults
	}

	return nil
}
