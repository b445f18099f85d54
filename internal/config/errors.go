package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and provide specific
// information about what is wrong with the configuration.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages. Using errors.New() here rather than fmt.Errorf()
// because we don't need to include dynamic values in these messages.
var (
	// ErrNoWorkDir is returned when no research working directory is specified.
	ErrNoWorkDir = errors.New("no working directory specified: provide a directory containing research.md")

	// ErrNoModel is returned when the completion or embedding model name is empty.
	ErrNoModel = errors.New("no model specified: completion and embedding model names are required")

	// ErrInvalidCacheTTL is returned when the cache TTL is not positive.
	// A zero or negative TTL would make every cache entry stale on arrival.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL: must be positive")

	// ErrInvalidFetchDelay is returned when the fetch delay is negative.
	// A negative delay is invalid; use 0 for no delay between fetches.
	ErrInvalidFetchDelay = errors.New("invalid fetch delay: must be non-negative")

	// ErrInvalidBudget is returned when the crawl budget is not positive.
	// A budget of zero would mean no pages are ever downloaded.
	ErrInvalidBudget = errors.New("invalid crawl budget: must be positive")

	// ErrInvalidOracleSelect is returned when the oracle selection cap is
	// not positive. Zero selections per round would stall link expansion.
	ErrInvalidOracleSelect = errors.New("invalid oracle selection limit: must be positive")

	// ErrInvalidRetries is returned when the LLM retry count is not positive.
	// Every request needs at least one attempt.
	ErrInvalidRetries = errors.New("invalid retry count: must be positive")

	// ErrInvalidPageTimeout is returned when the page load timeout is not
	// positive. A zero timeout would fail every page render.
	ErrInvalidPageTimeout = errors.New("invalid page load timeout: must be positive")

	// ErrInvalidSearchResults is returned when the per-query result count
	// is not positive. Zero results per query would seed no crawl.
	ErrInvalidSearchResults = errors.New("invalid search result count: must be positive")
)
