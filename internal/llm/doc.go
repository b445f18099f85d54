// Package llm provides the language model clients used across the
// pipeline: a Completer for text generation (planning, relevance
// ranking, summarization) and an Embedder for the similarity index,
// both backed by the Gemini API. A caching wrapper adds retry with a
// fixed delay and prompt-keyed response caching.
package llm
