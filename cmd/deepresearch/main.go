// Package main provides the entry point for the deepresearch CLI.
//
// deepresearch is a research automation tool. Given a topic description
// in a working directory, it plans search queries, crawls the web for
// relevant content, indexes what it finds, and writes a cited answer.
//
// Usage:
//
//	deepresearch init my-research
//	deepresearch run my-research
//
// See --help for all available options.
package main

// main is the entry point for deepresearch.
func main() {
	Execute()
}
