package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for deepresearch.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deepresearch",
		Short: "Automated web research with LLM-guided crawling",
		Long: `deepresearch turns a topic description into a researched, cited answer.

It reads the research topic from research.md in a working directory,
generates a search plan, runs web searches, crawls the most relevant
pages under a budget, indexes the content, and writes answer.md plus a
sources report. Every stage persists an iteration-numbered snapshot so
an interrupted run leaves inspectable artifacts.

A Gemini API key is required (GEMINI_API_KEY environment variable or a
key file, see "deepresearch run --help").`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
