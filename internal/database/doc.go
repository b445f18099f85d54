// Package database provides SQLite-based storage for research runs.
//
// This package implements the ResearchDB, which stores:
//   - Run records: one row per pipeline execution with topic and counters
//   - Crawl records: the pages fetched during each run
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
//  1. No external dependencies - the database is a single file
//  2. CGO-free implementation allows easy cross-compilation
//  3. Sufficient performance for our use case
//  4. WAL mode provides good concurrent read performance
//
// The archive is distinct from the on-disk fetch cache: the cache exists
// to make re-runs cheap and expires after its TTL, while the archive is a
// permanent record of what each run consulted.
package database
