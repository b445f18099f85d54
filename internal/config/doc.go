// Package config provides configuration structures and utilities for
// deepresearch. It defines the options controlling crawling budgets,
// caching, LLM access, and search behavior, plus the YAML override file
// and XDG directory helpers.
package config
