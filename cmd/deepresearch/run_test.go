package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/deepresearch/internal/config"
	"github.com/spf13/cobra"
)

// parseRunFlags creates a run command with the given flags parsed.
func parseRunFlags(t *testing.T, args []string) *cobra.Command {
	t.Helper()
	cmd := NewRunCmd()
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return cmd
}

// TestNewRunCmd tests the run command creation.
func TestNewRunCmd(t *testing.T) {
	t.Parallel()

	cmd := NewRunCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "run [working-directory]" {
			t.Errorf("expected use 'run [working-directory]', got %q", cmd.Use)
		}
	})

	t.Run("has expected flags", func(t *testing.T) {
		t.Parallel()
		for _, name := range []string{
			"model", "embedding-model", "budget", "delay", "timeout",
			"results", "cache-ttl", "no-headless", "config", "no-archive", "json",
		} {
			if cmd.Flags().Lookup(name) == nil {
				t.Errorf("expected flag %q", name)
			}
		}
	})

	t.Run("flag defaults match config defaults", func(t *testing.T) {
		t.Parallel()
		if got := cmd.Flags().Lookup("budget").DefValue; got != "500" {
			t.Errorf("expected budget default '500', got %q", got)
		}
		if got := cmd.Flags().Lookup("model").DefValue; got != config.DefaultModel {
			t.Errorf("expected model default %q, got %q", config.DefaultModel, got)
		}
	})
}

// TestBuildConfig tests config assembly from flags and config files.
func TestBuildConfig(t *testing.T) {
	t.Run("uses defaults when no flags are set", func(t *testing.T) {
		t.Setenv(config.APIKeyEnv, "test-key")

		cmd := parseRunFlags(t, nil)
		cfg, err := buildConfig(cmd, []string{t.TempDir()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Model != config.DefaultModel {
			t.Errorf("expected default model, got %q", cfg.Model)
		}
		if cfg.CrawlBudget != config.DefaultCrawlBudget {
			t.Errorf("expected default budget, got %d", cfg.CrawlBudget)
		}
		if !cfg.Headless {
			t.Error("expected headless by default")
		}
		if cfg.APIKey != "test-key" {
			t.Errorf("expected API key from environment, got %q", cfg.APIKey)
		}
		if cfg.DBDir == "" {
			t.Error("expected archive database directory to be set")
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		t.Setenv(config.APIKeyEnv, "test-key")

		cmd := parseRunFlags(t, []string{
			"--budget", "100", "--no-headless", "--model", "gemini-2.5-pro", "--delay", "3s",
		})
		cfg, err := buildConfig(cmd, []string{t.TempDir()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.CrawlBudget != 100 {
			t.Errorf("expected budget 100, got %d", cfg.CrawlBudget)
		}
		if cfg.Headless {
			t.Error("expected headless disabled")
		}
		if cfg.Model != "gemini-2.5-pro" {
			t.Errorf("expected overridden model, got %q", cfg.Model)
		}
		if cfg.FetchDelay != 3*time.Second {
			t.Errorf("expected 3s delay, got %s", cfg.FetchDelay)
		}
	})

	t.Run("config file applies below flags", func(t *testing.T) {
		t.Setenv(config.APIKeyEnv, "test-key")

		workDir := t.TempDir()
		content := "budget: 42\nmodel: from-file\n"
		if err := os.WriteFile(filepath.Join(workDir, config.DefaultConfigFile), []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		cmd := parseRunFlags(t, []string{"--model", "from-flag"})
		cfg, err := buildConfig(cmd, []string{workDir})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.CrawlBudget != 42 {
			t.Errorf("expected budget 42 from config file, got %d", cfg.CrawlBudget)
		}
		if cfg.Model != "from-flag" {
			t.Errorf("expected flag to win over config file, got %q", cfg.Model)
		}
	})

	t.Run("explicit missing config file errors", func(t *testing.T) {
		t.Setenv(config.APIKeyEnv, "test-key")

		cmd := parseRunFlags(t, []string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
		if _, err := buildConfig(cmd, []string{t.TempDir()}); err == nil {
			t.Fatal("expected error for missing config file")
		} else if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected 'not found' error, got %v", err)
		}
	})

	t.Run("no-archive disables the database", func(t *testing.T) {
		t.Setenv(config.APIKeyEnv, "test-key")

		cmd := parseRunFlags(t, []string{"--no-archive"})
		cfg, err := buildConfig(cmd, []string{t.TempDir()})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.DBDir != "" {
			t.Errorf("expected empty database directory, got %q", cfg.DBDir)
		}
	})

	t.Run("missing API key errors", func(t *testing.T) {
		t.Setenv(config.APIKeyEnv, "")

		cmd := parseRunFlags(t, nil)
		if _, err := buildConfig(cmd, []string{t.TempDir()}); !errors.Is(err, config.ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})
}
