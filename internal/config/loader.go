package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the default configuration file name.
const DefaultConfigFile = ".deepresearch"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File represents the YAML configuration file format.
// All fields are optional; zero values mean "keep the current setting".
//
// Example .deepresearch:
//
//	model: gemini-2.0-flash
//	embedding_model: text-embedding-004
//	budget: 200
//	cache_ttl: 12h
//	fetch_delay: 2s
type File struct {
	// Model overrides the completion model name.
	Model string `yaml:"model"`

	// EmbeddingModel overrides the embedding model name.
	EmbeddingModel string `yaml:"embedding_model"`

	// APIKeyFile is a path to a file containing the Gemini API key.
	// Takes effect only when GEMINI_API_KEY is not set.
	APIKeyFile string `yaml:"api_key_file"`

	// Budget overrides the crawl budget.
	Budget int `yaml:"budget"`

	// CacheTTL overrides the cache TTL (Go duration syntax, e.g. "12h").
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// FetchDelay overrides the inter-fetch delay (e.g. "500ms").
	FetchDelay time.Duration `yaml:"fetch_delay"`

	// SearchResults overrides the per-query search result count.
	SearchResults int `yaml:"search_results"`
}

// LoadConfigFile loads configuration overrides from a YAML file.
// If the file does not exist, it returns ErrConfigNotFound.
// Callers should handle this error appropriately based on whether
// the config file path was explicitly specified by the user.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .deepresearch in the research working directory
// 3. Look for .deepresearch in the user's home directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath, workDir string) string {
	// If explicit path is provided, use it
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	// Check the working directory
	if workDir != "" {
		dirConfig := filepath.Join(workDir, DefaultConfigFile)
		if _, err := os.Stat(dirConfig); err == nil {
			return dirConfig
		}
	}

	// Check home directory
	home, err := os.UserHomeDir()
	if err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	return ""
}

// Apply copies the file's non-zero overrides onto the config.
// CLI flags are expected to be applied after this, so the precedence is
// defaults < config file < flags.
func (f *File) Apply(c *Config) {
	if f.Model != "" {
		c.Model = f.Model
	}
	if f.EmbeddingModel != "" {
		c.EmbeddingModel = f.EmbeddingModel
	}
	if f.Budget > 0 {
		c.CrawlBudget = f.Budget
	}
	if f.CacheTTL > 0 {
		c.CacheTTL = f.CacheTTL
	}
	if f.FetchDelay > 0 {
		c.FetchDelay = f.FetchDelay
	}
	if f.SearchResults > 0 {
		c.SearchResults = f.SearchResults
	}
}
