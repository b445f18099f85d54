package model

import "time"

// Content types recorded in CrawlResult.ContentType.
const (
	// ContentTypeHTML marks content extracted from a rendered HTML page.
	ContentTypeHTML = "html"

	// ContentTypePDF marks content extracted from a PDF document.
	ContentTypePDF = "pdf"
)

// CrawlResult is the outcome of processing one selected Link during a
// crawl. Every selected Link yields exactly one CrawlResult: successful
// fetches carry the extracted content, failed fetches carry the error
// string and keep their provenance so snapshots record what was tried.
type CrawlResult struct {
	// URL is the fetched page's URL.
	URL string `json:"url"`

	// Title is the extracted document title, empty when none was found.
	Title string `json:"title,omitempty"`

	// Content is the extracted readable text of the page.
	Content string `json:"text,omitempty"`

	// ParentContext is the provenance chain of the Link that led here.
	ParentContext string `json:"parent_context,omitempty"`

	// Snippet is the surrounding text the Link was discovered with.
	Snippet string `json:"snippet,omitempty"`

	// ExtractedURLs are the outgoing URLs discovered in the content.
	ExtractedURLs []string `json:"extracted_urls,omitempty"`

	// ContentType is ContentTypeHTML or ContentTypePDF.
	ContentType string `json:"content_type,omitempty"`

	// FetchedAt is when the content was obtained. For cache hits this is
	// the time of the original fetch, not the cache read.
	FetchedAt time.Time `json:"fetched_at"`

	// FromCache is true when the content came from the cache store
	// rather than the network.
	FromCache bool `json:"from_cache"`

	// Success reports whether the fetch and extraction succeeded.
	Success bool `json:"success"`

	// Error is the fetch error string, empty on success.
	Error string `json:"error,omitempty"`
}

// DownloadSet is the full outcome of one crawl invocation: the content
// that was fetched plus the frontier residue (links that were discovered
// and admitted but never selected for fetching before the crawl ended).
// It is the payload of the downloaded_content snapshot.
type DownloadSet struct {
	// Results holds one entry per selected link, success or failure.
	Results []CrawlResult `json:"results"`

	// PendingLinks are admitted frontier entries that were never fetched,
	// kept for inspection and potential future resumption.
	PendingLinks []Link `json:"extracted_links"`

	// Attempted is the number of links selected for fetching, including
	// failures and cache hits.
	Attempted int `json:"attempted"`

	// Failed is the number of selected links whose fetch or extraction
	// failed.
	Failed int `json:"failed"`

	// FailedURLs lists the URLs that failed, for the run report.
	FailedURLs []string `json:"failed_urls,omitempty"`
}
