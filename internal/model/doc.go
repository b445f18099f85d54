// Package model defines the core data structures used throughout deepresearch.
//
// This package contains the following main types:
//   - Link: A discovered URL with the context it was found in
//   - Plan: The generated research plan with queries and key areas
//   - CrawlResult and DownloadSet: Fetched page content and crawl totals
//   - RunReport: Per-run fetch outcomes for the sources report
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. Multiple packages (crawler, pipeline, report) need to use these
// types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for snapshot files and
// database storage.
package model
