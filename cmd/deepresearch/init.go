package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nao1215/deepresearch/internal/config"
	"github.com/nao1215/deepresearch/internal/workspace"
	"github.com/spf13/cobra"
)

//go:embed templates/research.md templates/deepresearch.yaml
var initTemplates embed.FS

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a research working directory",
		Long: `Initialize creates a research working directory.

The directory receives:
- research.md, a topic template to fill in before running
- .deepresearch, a commented configuration file

Examples:
  # Initialize the current directory
  deepresearch init

  # Create and initialize a new directory
  deepresearch init go-gc-research

  # Overwrite existing files
  deepresearch init -f go-gc-research`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInitCmd,
	}

	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing research.md and configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	files := map[string]string{
		"templates/research.md":       filepath.Join(dir, workspace.TopicFile),
		"templates/deepresearch.yaml": filepath.Join(dir, config.DefaultConfigFile),
	}
	for template, target := range files {
		if !force {
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("file already exists: %s (use -f to overwrite)", target)
			}
		}

		content, err := initTemplates.ReadFile(template)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		if err := os.WriteFile(target, content, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized research directory: %s\n", dir)
	fmt.Fprintln(cmd.OutOrStdout(), "\nNext steps:")
	fmt.Fprintf(cmd.OutOrStdout(), "  1. Edit %s with your research topic\n", filepath.Join(dir, workspace.TopicFile))
	fmt.Fprintln(cmd.OutOrStdout(), "  2. Set GEMINI_API_KEY (or configure api_key_file)")
	fmt.Fprintf(cmd.OutOrStdout(), "  3. Run: deepresearch run %s\n", dir)

	return nil
}
