package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/deepresearch/internal/cache"
	"github.com/nao1215/deepresearch/internal/model"
)

// renderFake serves fixed HTML for every URL and counts renders.
type renderFake struct {
	title string
	html  string
	err   error
	calls int
}

func (r *renderFake) RenderPage(_ context.Context, _ string) (string, string, error) {
	r.calls++
	return r.title, r.html, r.err
}

// textPDF is a PDFExtractor returning fixed text.
type textPDF struct {
	text string
}

func (p textPDF) ExtractText(_ context.Context, _ string) (string, error) {
	return p.text, nil
}

const articleHTML = `<html><head><title>Test Article</title></head><body>
<article>
<h1>Test Article</h1>
<p>This is a long enough paragraph of article body text that readability
should keep it as the main content of the page when reducing the document.</p>
<p>More about <a href="https://next.test/chapter">the next chapter</a> here,
with enough surrounding prose to look like a real document paragraph.</p>
</article>
</body></html>`

// TestPageFetcherHTML tests the browser-rendered HTML path.
func TestPageFetcherHTML(t *testing.T) {
	t.Parallel()

	t.Run("returns readable content and extracted links", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(articleHTML))
		}))
		t.Cleanup(server.Close)

		renderer := &renderFake{title: "Test Article", html: articleHTML}
		f := NewPageFetcher(renderer, cache.New(t.TempDir()), WithHTTPClient(server.Client()))

		result, links, err := f.Fetch(context.Background(), model.Link{
			URL:           server.URL,
			ParentContext: "seed query",
			Snippet:       "article link",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ContentType != model.ContentTypeHTML {
			t.Errorf("expected html content type, got %q", result.ContentType)
		}
		if result.Title == "" {
			t.Error("expected a title")
		}
		if !strings.Contains(result.Content, "article body text") {
			t.Errorf("expected readable content, got %q", result.Content)
		}
		if result.FromCache {
			t.Error("first fetch must not be marked from cache")
		}
		if !result.Success {
			t.Error("expected the result to be marked successful")
		}
		if result.ParentContext != "seed query" || result.Snippet != "article link" {
			t.Errorf("expected link provenance on the result, got %+v", result)
		}

		var found bool
		for _, link := range links {
			if link.URL == "https://next.test/chapter" {
				found = true
			}
		}
		if !found {
			t.Errorf("expected extracted link to next chapter, got %v", links)
		}
		if len(result.ExtractedURLs) != len(links) {
			t.Errorf("expected the result to record %d extracted urls, got %v", len(links), result.ExtractedURLs)
		}
	})

	t.Run("render failure is surfaced", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html></html>"))
		}))
		t.Cleanup(server.Close)

		renderErr := errors.New("tab crashed")
		f := NewPageFetcher(&renderFake{err: renderErr}, cache.New(t.TempDir()), WithHTTPClient(server.Client()))

		_, _, err := f.Fetch(context.Background(), model.Link{URL: server.URL})
		if !errors.Is(err, renderErr) {
			t.Errorf("expected wrapped render error, got %v", err)
		}
	})
}

// TestPageFetcherPDF tests PDF sniffing and delegation.
func TestPageFetcherPDF(t *testing.T) {
	t.Parallel()

	newPDFServer := func(t *testing.T) *httptest.Server {
		t.Helper()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("%PDF-1.7 binary pdf body"))
		}))
		t.Cleanup(server.Close)
		return server
	}

	t.Run("pdf routed to extractor, not browser", func(t *testing.T) {
		t.Parallel()

		server := newPDFServer(t)
		renderer := &renderFake{html: "<html></html>"}
		f := NewPageFetcher(renderer, cache.New(t.TempDir()),
			WithHTTPClient(server.Client()),
			WithPDFExtractor(textPDF{text: "pdf text mentioning https://ref.test/spec for details"}),
		)

		result, links, err := f.Fetch(context.Background(), model.Link{URL: server.URL + "/paper.pdf"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ContentType != model.ContentTypePDF {
			t.Errorf("expected pdf content type, got %q", result.ContentType)
		}
		if result.Title != "paper.pdf" {
			t.Errorf("expected filename title, got %q", result.Title)
		}
		if renderer.calls != 0 {
			t.Error("PDF must not be rendered in the browser")
		}
		if len(links) != 1 || links[0].URL != "https://ref.test/spec" {
			t.Errorf("expected link extracted from PDF text, got %v", links)
		}
	})

	t.Run("pdf without extractor fails with ErrPDFUnsupported", func(t *testing.T) {
		t.Parallel()

		server := newPDFServer(t)
		f := NewPageFetcher(&renderFake{}, cache.New(t.TempDir()), WithHTTPClient(server.Client()))

		_, _, err := f.Fetch(context.Background(), model.Link{URL: server.URL + "/paper.pdf"})
		if !errors.Is(err, ErrPDFUnsupported) {
			t.Errorf("expected ErrPDFUnsupported, got %v", err)
		}
	})

	t.Run("unreachable probe falls back to browser", func(t *testing.T) {
		t.Parallel()

		renderer := &renderFake{title: "t", html: articleHTML}
		f := NewPageFetcher(renderer, cache.New(t.TempDir()))

		// Nothing listens on this address; the sniff fails and the
		// browser path takes over
		result, _, err := f.Fetch(context.Background(), model.Link{URL: "http://127.0.0.1:1/page"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if renderer.calls != 1 {
			t.Errorf("expected browser fallback, got %d renders", renderer.calls)
		}
		if result.ContentType != model.ContentTypeHTML {
			t.Errorf("expected html content type, got %q", result.ContentType)
		}
	})
}

// TestPageFetcherCache tests cache write-through and hits.
func TestPageFetcherCache(t *testing.T) {
	t.Parallel()

	t.Run("second fetch is served from cache", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(articleHTML))
		}))
		t.Cleanup(server.Close)

		renderer := &renderFake{title: "Test Article", html: articleHTML}
		f := NewPageFetcher(renderer, cache.New(t.TempDir()), WithHTTPClient(server.Client()))
		link := model.Link{URL: server.URL}

		first, firstLinks, err := f.Fetch(context.Background(), link)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, secondLinks, err := f.Fetch(context.Background(), link)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if renderer.calls != 1 {
			t.Errorf("expected cache to absorb second fetch, got %d renders", renderer.calls)
		}
		if !second.FromCache {
			t.Error("expected second result to be marked from cache")
		}
		if second.Content != first.Content {
			t.Error("cached content must match the original fetch")
		}
		if len(secondLinks) != len(firstLinks) {
			t.Errorf("cached links must match: %d vs %d", len(secondLinks), len(firstLinks))
		}
	})

	t.Run("cache hit carries the current link's provenance", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(articleHTML))
		}))
		t.Cleanup(server.Close)

		renderer := &renderFake{title: "Test Article", html: articleHTML}
		f := NewPageFetcher(renderer, cache.New(t.TempDir()), WithHTTPClient(server.Client()))

		if _, _, err := f.Fetch(context.Background(), model.Link{URL: server.URL, ParentContext: "first query"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		second, _, err := f.Fetch(context.Background(), model.Link{
			URL:           server.URL,
			ParentContext: "second query",
			Snippet:       "seen again",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.ParentContext != "second query" || second.Snippet != "seen again" {
			t.Errorf("expected the cache hit to carry this crawl's provenance, got %+v", second)
		}
	})

	t.Run("failed fetches are not cached", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html></html>"))
		}))
		t.Cleanup(server.Close)

		renderer := &renderFake{err: errors.New("tab crashed")}
		f := NewPageFetcher(renderer, cache.New(t.TempDir()), WithHTTPClient(server.Client()))
		link := model.Link{URL: server.URL}

		if _, _, err := f.Fetch(context.Background(), link); err == nil {
			t.Fatal("expected first fetch to fail")
		}

		renderer.err = nil
		renderer.html = articleHTML
		result, _, err := f.Fetch(context.Background(), link)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.FromCache {
			t.Error("failure must not have been cached")
		}
	})
}
