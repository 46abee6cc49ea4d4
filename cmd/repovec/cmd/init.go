package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repovec/repovec/configs"
	"github.com/repovec/repovec/internal/config"
	"github.com/repovec/repovec/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Initialize repovec for a project",
		Long: `Initialize repovec for a project.

This command:
1. Writes a .repovec.yaml configuration template to the project root
2. Creates the .repovec data directory
3. Adds .repovec/ to .gitignore (the config file stays tracked)

Run 'repovec index' afterwards to build the index.`,
		Example: `  # Initialize in the current project
  repovec init

  # Overwrite an existing configuration
  repovec init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Prefer the enclosing project root; fall back to the given path for
	// repositories that have neither .git nor an existing config yet.
	root, err := config.FindProjectRoot(absPath)
	if err != nil {
		root = absPath
	}

	cfgPath := filepath.Join(root, config.ProjectConfigName)
	if _, err := os.Stat(cfgPath); err == nil && !force {
		out.Warningf("%s already exists (use --force to overwrite)", config.ProjectConfigName)
	} else {
		if err := os.WriteFile(cfgPath, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		out.Successf("Wrote %s", cfgPath)
	}

	dataDir := config.DataDir(root)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	out.Successf("Created %s", dataDir)

	if err := ensureGitignore(root); err != nil {
		out.Warningf("could not update .gitignore: %v", err)
	} else {
		out.Status("•", ".repovec/ ignored in .gitignore")
	}

	projectType := config.DetectProjectType(root)
	if projectType.IsKnown() {
		out.Statusf("•", "Detected project type: %s", projectType)
	}

	out.Newline()
	out.Status("→", "Next: run 'repovec index' to build the index")

	return nil
}

// ensureGitignore appends the data dir pattern to .gitignore, creating
// the file if the project has none.
func ensureGitignore(root string) error {
	const pattern = ".repovec/"

	gitignore := filepath.Join(root, ".gitignore")
	data, err := os.ReadFile(gitignore)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == pattern {
			return nil
		}
	}

	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += pattern + "\n"

	return os.WriteFile(gitignore, []byte(content), 0o644)
}
