package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/nao1215/deepresearch/internal/browser"
	"github.com/nao1215/deepresearch/internal/cache"
	"github.com/nao1215/deepresearch/internal/model"
)

// contentBucket is the cache store bucket holding fetched content.
const contentBucket = "content"

// pdfMagic is the byte signature identifying PDF documents.
const pdfMagic = "%PDF-"

// ErrPDFUnsupported is returned when a PDF is encountered and no PDF
// extractor has been configured.
var ErrPDFUnsupported = errors.New("PDF extraction is not configured")

// Fetcher obtains the content of one crawl candidate and the links it
// leads to. The engine depends on this interface; tests substitute fakes.
type Fetcher interface {
	// Fetch returns the extracted content of the link's page and the
	// outgoing links discovered in it.
	Fetch(ctx context.Context, link model.Link) (*model.CrawlResult, []model.Link, error)
}

// PDFExtractor extracts plain text from a PDF document at a URL.
// PDF parsing is delegated to an external collaborator; the default
// implementation reports ErrPDFUnsupported.
type PDFExtractor interface {
	ExtractText(ctx context.Context, url string) (string, error)
}

// unsupportedPDF is the default PDFExtractor.
type unsupportedPDF struct{}

func (unsupportedPDF) ExtractText(_ context.Context, url string) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrPDFUnsupported, url)
}

// cachedFetch is the cache payload: the result plus its extracted links,
// so a cache hit re-feeds the frontier exactly like a network fetch.
type cachedFetch struct {
	Result model.CrawlResult `json:"result"`
	Links  []model.Link      `json:"links"`
}

// PageFetcher fetches pages through the shared browser session.
// A direct HTTP probe sniffs the content's leading bytes first so PDF
// documents are routed to the PDF extractor instead of the browser.
// Successful fetches are written through to the cache store.
type PageFetcher struct {
	renderer browser.Renderer
	store    *cache.Store
	client   *http.Client
	pdf      PDFExtractor
	logger   *slog.Logger
	now      func() time.Time
}

// FetcherOption configures a PageFetcher.
type FetcherOption func(*PageFetcher)

// WithHTTPClient sets the HTTP client used for content-type sniffing.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *PageFetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithPDFExtractor sets the PDF text extractor.
func WithPDFExtractor(pdf PDFExtractor) FetcherOption {
	return func(f *PageFetcher) {
		if pdf != nil {
			f.pdf = pdf
		}
	}
}

// WithFetcherLogger sets the logger for fetch diagnostics.
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *PageFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewPageFetcher creates a PageFetcher over the given renderer and cache.
func NewPageFetcher(renderer browser.Renderer, store *cache.Store, opts ...FetcherOption) *PageFetcher {
	f := &PageFetcher{
		renderer: renderer,
		store:    store,
		client:   &http.Client{Timeout: 15 * time.Second},
		pdf:      unsupportedPDF{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the page content for link, from cache when fresh.
// Cache hits are marked FromCache so the engine can skip the politeness
// delay for them.
func (f *PageFetcher) Fetch(ctx context.Context, link model.Link) (*model.CrawlResult, []model.Link, error) {
	key := cache.URLKey(link.URL)
	if data, ok := f.store.Get(contentBucket, key); ok {
		var cached cachedFetch
		if err := json.Unmarshal(data, &cached); err == nil {
			cached.Result.FromCache = true
			// Provenance belongs to this crawl's link, not the one that
			// populated the cache.
			cached.Result.ParentContext = link.ParentContext
			cached.Result.Snippet = link.Snippet
			age, _ := f.store.Age(contentBucket, key)
			f.logger.Debug("content cache hit", "url", link.URL, "age", age)
			return &cached.Result, cached.Links, nil
		}
	}

	result, extracted, err := f.fetchNetwork(ctx, link)
	if err != nil {
		return nil, nil, err
	}

	if data, err := json.Marshal(cachedFetch{Result: *result, Links: extracted}); err == nil {
		f.store.Put(contentBucket, key, data)
	}
	return result, extracted, nil
}

// fetchNetwork fetches the link from the network, routing by sniffed type.
func (f *PageFetcher) fetchNetwork(ctx context.Context, link model.Link) (*model.CrawlResult, []model.Link, error) {
	if f.sniffPDF(ctx, link.URL) {
		return f.fetchPDF(ctx, link)
	}
	return f.fetchHTML(ctx, link)
}

// fetchHTML renders the page in the browser and reduces it to readable
// title and text.
func (f *PageFetcher) fetchHTML(ctx context.Context, link model.Link) (*model.CrawlResult, []model.Link, error) {
	pageTitle, html, err := f.renderer.RenderPage(ctx, link.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render %s: %w", link.URL, err)
	}

	title, text := reduceHTML(link.URL, html)
	if title == "" {
		title = pageTitle
	}

	extracted := ExtractFromHTML(link.URL, html, link)
	result := &model.CrawlResult{
		URL:           link.URL,
		Title:         title,
		Content:       text,
		ParentContext: link.ParentContext,
		Snippet:       link.Snippet,
		ExtractedURLs: linkURLs(extracted),
		ContentType:   model.ContentTypeHTML,
		FetchedAt:     f.now(),
		Success:       true,
	}
	return result, extracted, nil
}

// fetchPDF extracts PDF text through the configured extractor.
func (f *PageFetcher) fetchPDF(ctx context.Context, link model.Link) (*model.CrawlResult, []model.Link, error) {
	text, err := f.pdf.ExtractText(ctx, link.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract PDF %s: %w", link.URL, err)
	}

	extracted := ExtractFromText(text, link)
	result := &model.CrawlResult{
		URL:           link.URL,
		Title:         pdfTitle(link.URL),
		Content:       text,
		ParentContext: link.ParentContext,
		Snippet:       link.Snippet,
		ExtractedURLs: linkURLs(extracted),
		ContentType:   model.ContentTypePDF,
		FetchedAt:     f.now(),
		Success:       true,
	}
	return result, extracted, nil
}

// linkURLs flattens extracted links to their URLs for the result record.
func linkURLs(links []model.Link) []string {
	if len(links) == 0 {
		return nil
	}
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	return urls
}

// sniffPDF probes the URL directly and checks the leading bytes for the
// PDF signature. Any probe failure means "treat it as HTML": the browser
// path is the robust one and will surface real fetch errors itself.
func (f *PageFetcher) sniffPDF(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(resp.Body, head); err != nil {
		return false
	}
	return string(head) == pdfMagic
}

// reduceHTML extracts the readable title and text from rendered HTML.
// When readability fails (non-article pages, heavy app shells) the raw
// HTML is still useful for link extraction, so reduction failure is not
// a fetch failure; the content just stays empty.
func reduceHTML(pageURL, html string) (title, text string) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", ""
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return "", ""
	}
	return article.Title, strings.TrimSpace(article.TextContent)
}

// pdfTitle derives a display title from the PDF's URL path.
func pdfTitle(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return rawURL
	}
	return base
}
