package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/deepresearch/internal/model"
	"github.com/nao1215/deepresearch/internal/oracle"
)

// fakePage describes one fetchable page for the fake fetcher.
type fakePage struct {
	content   string
	links     []model.Link
	fromCache bool
	err       error
}

// fakeFetcher serves scripted pages and records fetch order.
type fakeFetcher struct {
	pages   map[string]fakePage
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, link model.Link) (*model.CrawlResult, []model.Link, error) {
	f.fetched = append(f.fetched, link.URL)
	page, ok := f.pages[link.URL]
	if !ok {
		return nil, nil, fmt.Errorf("no route to %s", link.URL)
	}
	if page.err != nil {
		return nil, nil, page.err
	}
	return &model.CrawlResult{
		URL:           link.URL,
		Content:       page.content,
		ParentContext: link.ParentContext,
		Snippet:       link.Snippet,
		ContentType:   model.ContentTypeHTML,
		FromCache:     page.fromCache,
		Success:       true,
	}, page.links, nil
}

// successCount counts the successful results in a download set.
func successCount(set *model.DownloadSet) int {
	var n int
	for _, r := range set.Results {
		if r.Success {
			n++
		}
	}
	return n
}

// rankerFunc adapts a function to the Ranker interface.
type rankerFunc func(ctx context.Context, candidates []model.Link) ([]int, error)

func (f rankerFunc) Rank(ctx context.Context, candidates []model.Link) ([]int, error) {
	return f(ctx, candidates)
}

// selectAll ranks every candidate in order.
var selectAll = rankerFunc(func(_ context.Context, candidates []model.Link) ([]int, error) {
	indices := make([]int, len(candidates))
	for i := range indices {
		indices[i] = i
	}
	return indices, nil
})

func seed(url string) model.Link {
	return model.Link{URL: url, ParentContext: "test query"}
}

// newTestEngine builds an engine with no politeness delay.
func newTestEngine(f Fetcher, r Ranker, opts ...EngineOption) *Engine {
	opts = append([]EngineOption{WithFetchDelay(0)}, opts...)
	return NewEngine(f, r, opts...)
}

// TestEngineRun tests the core crawl loop.
func TestEngineRun(t *testing.T) {
	t.Parallel()

	t.Run("extracted links are fetched in later rounds", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://a.test": {content: "page a", links: []model.Link{{URL: "https://b.test", Snippet: "to b"}}},
			"https://b.test": {content: "page b"},
		}}
		e := newTestEngine(fetcher, selectAll)

		set, err := e.Run(context.Background(), []model.Link{seed("https://a.test")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(set.Results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(set.Results))
		}
		if fetcher.fetched[0] != "https://a.test" || fetcher.fetched[1] != "https://b.test" {
			t.Errorf("unexpected fetch order %v", fetcher.fetched)
		}
	})

	t.Run("every url fetched at most once despite cycles", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://a.test": {links: []model.Link{{URL: "https://b.test"}, {URL: "https://a.test"}}},
			"https://b.test": {links: []model.Link{{URL: "https://a.test"}}},
		}}
		e := newTestEngine(fetcher, selectAll)

		set, err := e.Run(context.Background(), []model.Link{seed("https://a.test")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(fetcher.fetched) != 2 {
			t.Fatalf("expected exactly 2 fetches, got %v", fetcher.fetched)
		}
		if set.Attempted != 2 {
			t.Errorf("expected 2 attempts, got %d", set.Attempted)
		}
	})

	t.Run("budget bounds successful fetches even mid-round", func(t *testing.T) {
		t.Parallel()

		pages := map[string]fakePage{}
		seeds := make([]model.Link, 5)
		for i := range seeds {
			url := fmt.Sprintf("https://s%d.test", i)
			seeds[i] = seed(url)
			pages[url] = fakePage{content: "x"}
		}
		fetcher := &fakeFetcher{pages: pages}
		e := newTestEngine(fetcher, selectAll, WithBudget(3))

		set, err := e.Run(context.Background(), seeds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(set.Results) != 3 {
			t.Errorf("expected exactly 3 results, got %d", len(set.Results))
		}
		if len(set.PendingLinks) != 2 {
			t.Errorf("expected 2 pending links, got %d", len(set.PendingLinks))
		}
	})

	t.Run("failed fetches do not consume the budget", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://dead.test": {err: errors.New("connection refused")},
			"https://ok.test":   {content: "fine"},
		}}
		e := newTestEngine(fetcher, selectAll, WithBudget(1))

		set, err := e.Run(context.Background(), []model.Link{seed("https://dead.test"), seed("https://ok.test")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := successCount(set); got != 1 {
			t.Errorf("expected the failure to leave budget for a success, got %d successes", got)
		}
		if set.Attempted != 2 {
			t.Errorf("expected 2 attempts, got %d", set.Attempted)
		}
	})

	t.Run("every selected link yields a result, success or failure", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://ok.test":   {content: "fine"},
			"https://dead.test": {err: errors.New("connection refused")},
		}}
		e := newTestEngine(fetcher, selectAll)

		seeds := []model.Link{
			seed("https://ok.test"),
			{URL: "https://dead.test", ParentContext: "test query", Snippet: "dead link"},
		}
		set, err := e.Run(context.Background(), seeds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(set.Results) != 2 {
			t.Fatalf("expected one result per selected link, got %d for 2 selected", len(set.Results))
		}

		var failure *model.CrawlResult
		for i := range set.Results {
			if !set.Results[i].Success {
				failure = &set.Results[i]
			}
		}
		if failure == nil {
			t.Fatal("expected a failure record in the results")
		}
		if failure.URL != "https://dead.test" {
			t.Errorf("expected failure record for the dead link, got %q", failure.URL)
		}
		if failure.Error != "connection refused" {
			t.Errorf("expected the fetch error to be recorded, got %q", failure.Error)
		}
		if failure.ParentContext != "test query" || failure.Snippet != "dead link" {
			t.Errorf("expected provenance on the failure record, got %+v", failure)
		}

		if set.Failed != 1 {
			t.Errorf("expected 1 failure, got %d", set.Failed)
		}
		if len(set.FailedURLs) != 1 || set.FailedURLs[0] != "https://dead.test" {
			t.Errorf("unexpected failed URLs %v", set.FailedURLs)
		}
	})

	t.Run("all failures yield ExhaustionError", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://a.test": {err: errors.New("down")},
			"https://b.test": {err: errors.New("down")},
		}}
		e := newTestEngine(fetcher, selectAll)

		_, err := e.Run(context.Background(), []model.Link{seed("https://a.test"), seed("https://b.test")})
		var exhausted *ExhaustionError
		if !errors.As(err, &exhausted) {
			t.Fatalf("expected ExhaustionError, got %v", err)
		}
		if exhausted.Attempted != 2 {
			t.Errorf("expected 2 attempts recorded, got %d", exhausted.Attempted)
		}
	})

	t.Run("no seeds means no attempts and no error", func(t *testing.T) {
		t.Parallel()

		rankerCalled := false
		ranker := rankerFunc(func(_ context.Context, c []model.Link) ([]int, error) {
			rankerCalled = true
			return selectAll.Rank(context.Background(), c)
		})
		e := newTestEngine(&fakeFetcher{}, ranker)

		set, err := e.Run(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if set.Attempted != 0 || len(set.Results) != 0 {
			t.Errorf("expected empty outcome, got %+v", set)
		}
		if rankerCalled {
			t.Error("ranker must not be called with an empty frontier")
		}
	})

	t.Run("selected links carry context merged earlier in the round", func(t *testing.T) {
		t.Parallel()

		// a's page mentions b, which is already a seed: the sighting
		// merges into b's frontier entry before b is fetched
		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://a.test": {content: "x", links: []model.Link{
				{URL: "https://b.test", Snippet: "mentioned in a"},
			}},
			"https://b.test": {content: "y"},
		}}
		e := newTestEngine(fetcher, selectAll)

		set, err := e.Run(context.Background(), []model.Link{seed("https://a.test"), seed("https://b.test")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var b *model.CrawlResult
		for i := range set.Results {
			if set.Results[i].URL == "https://b.test" {
				b = &set.Results[i]
			}
		}
		if b == nil {
			t.Fatal("expected a result for the second seed")
		}
		if !strings.Contains(b.Snippet, "mentioned in a") {
			t.Errorf("expected the merged sighting on b's result, got %q", b.Snippet)
		}
	})

	t.Run("duplicate seeds merge before crawling", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://a.test": {content: "x"},
		}}
		e := newTestEngine(fetcher, selectAll)

		seeds := []model.Link{
			{URL: "https://a.test", ParentContext: "query one"},
			{URL: "https://a.test", ParentContext: "query two"},
		}
		set, err := e.Run(context.Background(), seeds)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if set.Attempted != 1 {
			t.Errorf("expected 1 attempt for duplicate seeds, got %d", set.Attempted)
		}
	})
}

// TestEngineRanker tests the ranker error taxonomy and selection handling.
func TestEngineRanker(t *testing.T) {
	t.Parallel()

	t.Run("malformed ranking ends expansion but keeps results", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://a.test": {content: "x", links: []model.Link{{URL: "https://b.test"}}},
			"https://b.test": {content: "y"},
		}}
		round := 0
		ranker := rankerFunc(func(_ context.Context, c []model.Link) ([]int, error) {
			round++
			if round > 1 {
				return nil, oracle.ErrMalformedResponse
			}
			return []int{0}, nil
		})
		e := newTestEngine(fetcher, ranker)

		set, err := e.Run(context.Background(), []model.Link{seed("https://a.test")})
		if err != nil {
			t.Fatalf("malformed ranking must not fail the run: %v", err)
		}
		if len(set.Results) != 1 {
			t.Errorf("expected results from before the malformed round, got %d", len(set.Results))
		}
	})

	t.Run("ranker transport failure fails the run", func(t *testing.T) {
		t.Parallel()

		transport := errors.New("api unreachable")
		ranker := rankerFunc(func(_ context.Context, _ []model.Link) ([]int, error) {
			return nil, transport
		})
		e := newTestEngine(&fakeFetcher{}, ranker)

		_, err := e.Run(context.Background(), []model.Link{seed("https://a.test")})
		if !errors.Is(err, transport) {
			t.Errorf("expected wrapped transport error, got %v", err)
		}
	})

	t.Run("empty selection stops expansion cleanly", func(t *testing.T) {
		t.Parallel()

		ranker := rankerFunc(func(_ context.Context, _ []model.Link) ([]int, error) {
			return nil, nil
		})
		e := newTestEngine(&fakeFetcher{}, ranker)

		set, err := e.Run(context.Background(), []model.Link{seed("https://a.test")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if set.Attempted != 0 {
			t.Errorf("expected no attempts, got %d", set.Attempted)
		}
		if len(set.PendingLinks) != 1 {
			t.Errorf("expected the unselected seed to remain pending, got %v", set.PendingLinks)
		}
	})
}

// TestEngineDelay tests the politeness delay behavior.
func TestEngineDelay(t *testing.T) {
	t.Parallel()

	t.Run("network fetches are followed by a delay", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://a.test": {content: "x"},
			"https://b.test": {content: "y"},
		}}
		e := NewEngine(fetcher, selectAll, WithFetchDelay(time.Second))

		var sleeps int
		e.sleep = func(_ context.Context, d time.Duration) error {
			if d != time.Second {
				t.Errorf("expected 1s delay, got %v", d)
			}
			sleeps++
			return nil
		}

		if _, err := e.Run(context.Background(), []model.Link{seed("https://a.test"), seed("https://b.test")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sleeps != 2 {
			t.Errorf("expected 2 delays, got %d", sleeps)
		}
	})

	t.Run("cache hits skip the delay", func(t *testing.T) {
		t.Parallel()

		fetcher := &fakeFetcher{pages: map[string]fakePage{
			"https://a.test": {content: "x", fromCache: true},
		}}
		e := NewEngine(fetcher, selectAll, WithFetchDelay(time.Second))

		var sleeps int
		e.sleep = func(context.Context, time.Duration) error {
			sleeps++
			return nil
		}

		if _, err := e.Run(context.Background(), []model.Link{seed("https://a.test")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sleeps != 0 {
			t.Errorf("expected no delay for cache hit, got %d", sleeps)
		}
	})

	t.Run("cancelled context aborts the crawl", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		e := newTestEngine(&fakeFetcher{}, selectAll)
		_, err := e.Run(ctx, []model.Link{seed("https://a.test")})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

// TestEngineContextChaining tests that provenance flows into extracted links.
func TestEngineContextChaining(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]fakePage{
		"https://a.test": {content: "x", links: []model.Link{
			{URL: "https://b.test", ParentContext: "test query | a snippet", Snippet: "link text"},
		}},
	}}
	// Select only the first candidate each round so b stays pending
	ranker := rankerFunc(func(_ context.Context, c []model.Link) ([]int, error) {
		if c[0].URL != "https://a.test" {
			return nil, nil
		}
		return []int{0}, nil
	})
	e := newTestEngine(fetcher, ranker)

	set, err := e.Run(context.Background(), []model.Link{seed("https://a.test")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.PendingLinks) != 1 {
		t.Fatalf("expected 1 pending link, got %d", len(set.PendingLinks))
	}
	if set.PendingLinks[0].ParentContext != "test query | a snippet" {
		t.Errorf("expected chained context to survive, got %q", set.PendingLinks[0].ParentContext)
	}
}
