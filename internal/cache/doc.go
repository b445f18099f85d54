// Package cache provides a file-backed cache store with TTL expiry,
// shared by page fetching, web search, and the LLM client. Entries live
// under a per-concern bucket directory and expire by file modification
// time, evaluated lazily at read time.
package cache
