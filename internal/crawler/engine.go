package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/deepresearch/internal/model"
	"github.com/nao1215/deepresearch/internal/oracle"
)

// DefaultBudget is the maximum number of successful fetches per crawl.
const DefaultBudget = 500

// DefaultFetchDelay is the politeness pause after each network fetch.
const DefaultFetchDelay = 1 * time.Second

// Ranker selects the most relevant candidates from a list, returning
// their indices. The relevance oracle implements it; tests use scripted
// rankers.
type Ranker interface {
	Rank(ctx context.Context, candidates []model.Link) ([]int, error)
}

// Engine runs the oracle-guided crawl: seeds go into the frontier, and
// each round the ranker picks which pending links to fetch next until
// the budget runs out, the frontier is exhausted, or the ranker stops
// selecting.
type Engine struct {
	fetcher Fetcher
	ranker  Ranker
	budget  int
	delay   time.Duration
	logger  *slog.Logger

	// sleep pauses for the politeness delay; replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBudget sets the maximum successful fetches per crawl.
// Values below one are ignored.
func WithBudget(n int) EngineOption {
	return func(e *Engine) {
		if n >= 1 {
			e.budget = n
		}
	}
}

// WithFetchDelay sets the pause after each network fetch.
// Negative values are ignored; zero disables the delay.
func WithFetchDelay(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.delay = d
		}
	}
}

// WithEngineLogger sets the logger for crawl progress.
func WithEngineLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine over the given fetcher and ranker.
func NewEngine(fetcher Fetcher, ranker Ranker, opts ...EngineOption) *Engine {
	e := &Engine{
		fetcher: fetcher,
		ranker:  ranker,
		budget:  DefaultBudget,
		delay:   DefaultFetchDelay,
		logger:  slog.Default(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run crawls from the given seeds and returns everything downloaded plus
// the frontier residue.
//
// Loop invariants:
//   - every URL is fetched at most once per run (the processed set)
//   - extracted links are admitted to the frontier exactly once per URL,
//     merging context for repeat sightings of admitted URLs
//   - successful fetches never exceed the budget, even mid-round;
//     failed fetches do not consume it
//   - a politeness delay follows every network fetch; cache hits skip it
//
// Per-link fetch failures are tolerated: each one still produces a
// CrawlResult carrying the error string and the link's provenance. The
// run fails only on context cancellation, a ranker transport failure,
// or exhaustion: at least one fetch attempted and none succeeded.
func (e *Engine) Run(ctx context.Context, seeds []model.Link) (*model.DownloadSet, error) {
	// The frontier's URL index doubles as the seen set: a URL is admitted
	// exactly once, and the processed set marks which entries were fetched.
	frontier := NewFrontier()
	processed := make(map[string]bool)

	for _, seed := range model.DedupeLinks(seeds) {
		frontier.Add(seed)
	}

	set := &model.DownloadSet{}
	succeeded := 0

	for succeeded < e.budget {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates := e.pending(frontier, processed)
		if len(candidates) == 0 {
			e.logger.Debug("frontier exhausted", "fetched", succeeded)
			break
		}

		selected, err := e.ranker.Rank(ctx, candidates)
		if err != nil {
			if errors.Is(err, oracle.ErrMalformedResponse) {
				// A garbled ranking ends expansion but keeps what we have
				e.logger.Warn("ranker response malformed, stopping expansion", "error", err)
				break
			}
			return nil, fmt.Errorf("ranking failed: %w", err)
		}
		if len(selected) == 0 {
			e.logger.Debug("ranker selected nothing, stopping expansion")
			break
		}

		for _, idx := range selected {
			if succeeded >= e.budget {
				e.logger.Debug("budget reached mid-round", "fetched", succeeded)
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			link := candidates[idx]
			// Earlier fetches in this round may have merged fresh context
			// into the frontier entry since the candidates were snapshotted
			if current, ok := frontier.Get(link.URL); ok {
				link = current
			}
			processed[link.URL] = true
			set.Attempted++

			result, extracted, err := e.fetcher.Fetch(ctx, link)
			if err != nil {
				set.Failed++
				set.FailedURLs = append(set.FailedURLs, link.URL)
				set.Results = append(set.Results, model.CrawlResult{
					URL:           link.URL,
					ParentContext: link.ParentContext,
					Snippet:       link.Snippet,
					Error:         err.Error(),
				})
				e.logger.Warn("fetch failed", "url", link.URL, "error", err)
				continue
			}

			succeeded++
			set.Results = append(set.Results, *result)
			for _, found := range extracted {
				frontier.Add(found)
			}
			e.logger.Info("fetched", "url", link.URL,
				"links_found", len(extracted), "from_cache", result.FromCache)

			if !result.FromCache && e.delay > 0 {
				if err := e.sleep(ctx, e.delay); err != nil {
					return nil, err
				}
			}
		}
	}

	if set.Attempted > 0 && succeeded == 0 {
		return nil, &ExhaustionError{Attempted: set.Attempted}
	}

	set.PendingLinks = e.pending(frontier, processed)
	return set, nil
}

// pending returns frontier entries not yet processed, in admission order.
func (e *Engine) pending(frontier *Frontier, processed map[string]bool) []model.Link {
	var out []model.Link
	for _, link := range frontier.Links() {
		if !processed[link.URL] {
			out = append(out, link)
		}
	}
	return out
}

// sleepContext pauses for d unless the context is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
