// Package crawler implements the oracle-guided download engine: link
// extraction with provenance snippets, content fetching through the
// shared browser, the frontier of pending candidates, and the crawl
// loop that expands it under a page budget.
//
// # Architecture
//
// Unlike a breadth-first spider, expansion here is selective. Each round
// the relevance oracle ranks the pending frontier and only the links it
// picks are fetched; everything else stays pending. Extracted links are
// admitted to the frontier exactly once per URL, carrying the chained
// context of the pages that led to them.
//
// # Components
//
//   - ExtractFromHTML / ExtractFromText: link extraction with snippets
//   - Fetcher / PageFetcher: content fetching (browser render for HTML,
//     sniffed and delegated for PDF) with cache write-through
//   - Frontier: the ordered arena of pending candidates
//   - Engine: the budgeted, oracle-ranked crawl loop
//
// # Politeness
//
// The crawl is single-threaded and a configurable delay follows every
// network fetch. Cache hits skip the delay.
package crawler
