// Package search turns research queries into seed links by running them
// through DuckDuckGo in the shared browser session and scraping the
// rendered result page. Results are cached by query so repeated runs on
// the same topic do not re-search within the cache TTL.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/deepresearch/internal/browser"
	"github.com/nao1215/deepresearch/internal/cache"
	"github.com/nao1215/deepresearch/internal/model"
)

// DefaultMaxResults is how many results are taken per query.
const DefaultMaxResults = 5

// cacheBucket is the cache store bucket holding search results.
const cacheBucket = "search"

// ErrNoResults is returned when a query produced no usable results.
// An empty result page usually means the search engine served a consent
// or rate-limit interstitial, which the caller should treat as a failure
// rather than "the topic has no sources".
var ErrNoResults = errors.New("search returned no results")

// Searcher runs web searches through the browser session.
type Searcher struct {
	renderer   browser.Renderer
	store      *cache.Store
	maxResults int
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithMaxResults sets how many results are taken per query.
// Values below one are ignored.
func WithMaxResults(n int) Option {
	return func(s *Searcher) {
		if n >= 1 {
			s.maxResults = n
		}
	}
}

// WithLogger sets the logger for search diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Searcher using the given renderer and cache store.
func New(renderer browser.Renderer, store *cache.Store, opts ...Option) *Searcher {
	s := &Searcher{
		renderer:   renderer,
		store:      store,
		maxResults: DefaultMaxResults,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs one query and returns the top results as seed links.
// Each link's ParentContext is the query itself, so the relevance oracle
// later sees how the seed was found.
func (s *Searcher) Search(ctx context.Context, query string) ([]model.Link, error) {
	key := cache.HashKey(query)
	if data, ok := s.store.Get(cacheBucket, key); ok {
		var links []model.Link
		if err := json.Unmarshal(data, &links); err == nil && len(links) > 0 {
			s.logger.Debug("search cache hit", "query", query, "results", len(links))
			return links, nil
		}
	}

	searchURL := "https://duckduckgo.com/?q=" + url.QueryEscape(query)
	_, html, err := s.renderer.RenderPage(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search page render failed: %w", err)
	}

	links, err := ParseResults(html, query, s.maxResults)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(links); err == nil {
		s.store.Put(cacheBucket, key, data)
	}
	s.logger.Debug("search completed", "query", query, "results", len(links))
	return links, nil
}

// ParseResults extracts result links from a rendered DuckDuckGo page.
// Exported so the selector logic is testable against saved HTML without
// a browser.
func ParseResults(html, query string, maxResults int) ([]model.Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	var links []model.Link
	doc.Find(`article[data-testid="result"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Find(`a[data-testid="result-title-a"]`).Attr("href")
		if !ok || href == "" {
			return true
		}
		snippet := strings.TrimSpace(sel.Find(`[data-result="snippet"]`).Text())
		if snippet == "" {
			// Fall back to the result's full text when the snippet
			// container is missing (layout changes, ad variants)
			snippet = strings.TrimSpace(sel.Text())
		}

		links = append(links, model.Link{
			URL:           href,
			ParentContext: query,
			Snippet:       snippet,
		})
		return len(links) < maxResults
	})

	if len(links) == 0 {
		return nil, fmt.Errorf("%w: query %q", ErrNoResults, query)
	}
	return model.DedupeLinks(links), nil
}
