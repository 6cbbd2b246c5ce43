package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lintfix/lintfix/internal/config"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "0.2.0"

var rootCmd = &cobra.Command{
	Use:   "lintfix",
	Short: "AI-assisted lint remediation for git repositories",
	Long: `lintfix finds lint issues in tracked files, asks an AI backend to fix
them, validates every fix against your test suite, and commits only the
fixes that pass. Anything that fails validation is reverted, leaving the
working tree exactly as it was.

Running lintfix with no subcommand starts a remediation run.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runAgent(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().String("repo", "", "Git repository to operate on (default from config)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose progress traces")

	rootCmd.Flags().IntP("max-workers", "w", 0, "Worker pool size (default from config)")
	rootCmd.Flags().StringP("file", "f", "", "Restrict the run to a single file")
	rootCmd.Flags().Bool("dry-run", false, "Lint and group only: no fixes, no commits")
	rootCmd.Flags().BoolP("yes", "y", false, "Skip the configuration review pause")
}

// loadConfig reads the config file, applies environment overrides, then
// the shared --repo and --debug flags on top. Exits on validation
// failure. Run-only flags are applied by runAgent before it revalidates.
func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if repo, _ := cmd.Flags().GetString("repo"); repo != "" {
		cfg.RepoPath = repo
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// venvRoot resolves the virtualenv the linter, test, and fixer
// subprocesses should activate.
func venvRoot(cfg *config.Config) string {
	if cfg.VenvPath != "" {
		return cfg.VenvPath
	}
	if cfg.VenvDir != "" {
		return filepath.Join(cfg.RepoPath, cfg.VenvDir)
	}
	return ""
}
