package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nao1215/deepresearch/internal/cache"
)

// resultHTML builds a minimal DuckDuckGo-shaped result page.
func resultHTML(results ...[2]string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, r := range results {
		fmt.Fprintf(&b,
			`<article data-testid="result">
				<a data-testid="result-title-a" href=%q>title</a>
				<div data-result="snippet">%s</div>
			</article>`, r[0], r[1])
	}
	b.WriteString("</body></html>")
	return b.String()
}

// fakeRenderer serves a fixed HTML page and records render calls.
type fakeRenderer struct {
	html  string
	err   error
	calls int
}

func (f *fakeRenderer) RenderPage(_ context.Context, _ string) (string, string, error) {
	f.calls++
	return "results", f.html, f.err
}

// TestParseResults tests DuckDuckGo result extraction.
func TestParseResults(t *testing.T) {
	t.Parallel()

	t.Run("extracts url and snippet per result", func(t *testing.T) {
		t.Parallel()

		html := resultHTML(
			[2]string{"https://a.test/doc", "first snippet"},
			[2]string{"https://b.test/guide", "second snippet"},
		)
		links, err := ParseResults(html, "go generics", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(links) != 2 {
			t.Fatalf("expected 2 links, got %d", len(links))
		}
		if links[0].URL != "https://a.test/doc" {
			t.Errorf("unexpected first URL %q", links[0].URL)
		}
		if links[0].Snippet != "first snippet" {
			t.Errorf("unexpected snippet %q", links[0].Snippet)
		}
		if links[0].ParentContext != "go generics" {
			t.Errorf("expected query as parent context, got %q", links[0].ParentContext)
		}
	})

	t.Run("respects max results", func(t *testing.T) {
		t.Parallel()

		html := resultHTML(
			[2]string{"https://a.test", "a"},
			[2]string{"https://b.test", "b"},
			[2]string{"https://c.test", "c"},
		)
		links, err := ParseResults(html, "query", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(links) != 2 {
			t.Errorf("expected 2 links, got %d", len(links))
		}
	})

	t.Run("skips results without href", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
			<article data-testid="result"><span>no link here</span></article>
			<article data-testid="result">
				<a data-testid="result-title-a" href="https://a.test">t</a>
				<div data-result="snippet">text</div>
			</article>
		</body></html>`
		links, err := ParseResults(html, "query", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(links) != 1 {
			t.Fatalf("expected 1 link, got %d", len(links))
		}
	})

	t.Run("duplicate urls are merged", func(t *testing.T) {
		t.Parallel()

		html := resultHTML(
			[2]string{"https://a.test", "first sighting"},
			[2]string{"https://a.test", "second sighting"},
		)
		links, err := ParseResults(html, "query", 5)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(links) != 1 {
			t.Fatalf("expected 1 link after dedupe, got %d", len(links))
		}
		if !strings.Contains(links[0].Snippet, "second sighting") {
			t.Errorf("expected merged snippet, got %q", links[0].Snippet)
		}
	})

	t.Run("empty page returns ErrNoResults", func(t *testing.T) {
		t.Parallel()

		_, err := ParseResults("<html><body>consent wall</body></html>", "query", 5)
		if !errors.Is(err, ErrNoResults) {
			t.Errorf("expected ErrNoResults, got %v", err)
		}
	})
}

// TestSearcherSearch tests the search flow with a fake renderer.
func TestSearcherSearch(t *testing.T) {
	t.Parallel()

	t.Run("renders and parses", func(t *testing.T) {
		t.Parallel()

		fake := &fakeRenderer{html: resultHTML([2]string{"https://a.test", "snippet"})}
		s := New(fake, cache.New(t.TempDir()))

		links, err := s.Search(context.Background(), "test query")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(links) != 1 {
			t.Fatalf("expected 1 link, got %d", len(links))
		}
	})

	t.Run("second search for same query hits cache", func(t *testing.T) {
		t.Parallel()

		fake := &fakeRenderer{html: resultHTML([2]string{"https://a.test", "snippet"})}
		s := New(fake, cache.New(t.TempDir()))

		if _, err := s.Search(context.Background(), "test query"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		links, err := s.Search(context.Background(), "test query")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(links) != 1 {
			t.Fatalf("expected 1 link, got %d", len(links))
		}
		if fake.calls != 1 {
			t.Errorf("expected cache to absorb second search, got %d renders", fake.calls)
		}
	})

	t.Run("render failure is surfaced", func(t *testing.T) {
		t.Parallel()

		renderErr := errors.New("browser crashed")
		fake := &fakeRenderer{err: renderErr}
		s := New(fake, cache.New(t.TempDir()))

		_, err := s.Search(context.Background(), "query")
		if !errors.Is(err, renderErr) {
			t.Errorf("expected wrapped render error, got %v", err)
		}
	})

	t.Run("max results option applies", func(t *testing.T) {
		t.Parallel()

		fake := &fakeRenderer{html: resultHTML(
			[2]string{"https://a.test", "a"},
			[2]string{"https://b.test", "b"},
			[2]string{"https://c.test", "c"},
		)}
		s := New(fake, cache.New(t.TempDir()), WithMaxResults(1))

		links, err := s.Search(context.Background(), "query")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(links) != 1 {
			t.Errorf("expected 1 link, got %d", len(links))
		}
	})
}
