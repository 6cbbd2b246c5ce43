package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/storage"
)

// minGitVersion is the oldest git that supports every plumbing command
// the pipeline uses.
const minGitVersion = "v2.20.0"

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check lintfix installation and environment health",
	Long: `Run health checks to diagnose common lintfix configuration and
environment issues.

This command checks for:
- A usable git binary and repository
- The configured linters and formatters
- The AI fixer backend (aider binary or Anthropic API key)
- The test command used to validate fixes
- The suggestion store

Exit codes:
  0 - All checks passed (warnings allowed)
  1 - One or more checks failed
  2 - Critical failures that prevent lintfix from running`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runDoctor(cmd)
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Printf("Running lintfix health checks...\n\n")

	var failures []string
	var warnings []string
	var criticalFailures []string

	// Check 1: Configuration
	fmt.Printf("%s Configuration\n", cyan("→"))
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		failures = append(failures, fmt.Sprintf("Configuration unusable: %v", err))
		fmt.Printf("  %s Cannot load configuration, checking defaults instead\n", red("✗"))
		if verbose {
			fmt.Printf("    Error: %v\n", err)
		}
		cfg = config.DefaultConfig()
	} else {
		fmt.Printf("  %s Configuration loaded\n", green("✓"))
	}
	if repo, _ := cmd.Flags().GetString("repo"); repo != "" {
		cfg.RepoPath = repo
	}
	if err := cfg.Validate(); err != nil {
		failures = append(failures, fmt.Sprintf("Configuration invalid: %v", err))
		fmt.Printf("  %s Configuration invalid: %v\n", red("✗"), err)
	}

	// Check 2: Git binary
	fmt.Printf("%s Git binary\n", cyan("→"))
	if _, err := exec.LookPath("git"); err != nil {
		criticalFailures = append(criticalFailures, "git not found in PATH")
		fmt.Printf("  %s git not found in PATH\n", red("✗"))
	} else {
		out, err := exec.Command("git", "version").Output()
		v := parseGitVersion(string(out))
		switch {
		case err != nil || v == "":
			warnings = append(warnings, "Cannot determine git version")
			fmt.Printf("  %s Cannot determine git version\n", yellow("⚠"))
		case semver.Compare(v, minGitVersion) < 0:
			failures = append(failures, fmt.Sprintf("git %s is older than required %s", strings.TrimPrefix(v, "v"), strings.TrimPrefix(minGitVersion, "v")))
			fmt.Printf("  %s git %s is too old (need %s or newer)\n", red("✗"), strings.TrimPrefix(v, "v"), strings.TrimPrefix(minGitVersion, "v"))
		default:
			fmt.Printf("  %s git %s\n", green("✓"), strings.TrimPrefix(v, "v"))
		}
	}

	// Check 3: Repository
	fmt.Printf("%s Repository\n", cyan("→"))
	if info, err := os.Stat(cfg.RepoPath); err != nil || !info.IsDir() {
		criticalFailures = append(criticalFailures, fmt.Sprintf("Repository path %s is not a directory", cfg.RepoPath))
		fmt.Printf("  %s Repository path does not exist: %s\n", red("✗"), cfg.RepoPath)
	} else {
		probe := exec.Command("git", "rev-parse", "--is-inside-work-tree")
		probe.Dir = cfg.RepoPath
		if out, err := probe.Output(); err != nil || strings.TrimSpace(string(out)) != "true" {
			criticalFailures = append(criticalFailures, fmt.Sprintf("%s is not a git work tree", cfg.RepoPath))
			fmt.Printf("  %s Not a git work tree: %s\n", red("✗"), cfg.RepoPath)
		} else {
			fmt.Printf("  %s Git repository: %s\n", green("✓"), cfg.RepoPath)

			status := exec.Command("git", "status", "--porcelain")
			status.Dir = cfg.RepoPath
			if out, err := status.Output(); err == nil {
				if len(out) > 0 {
					lines := strings.Split(strings.TrimSpace(string(out)), "\n")
					warnings = append(warnings, "Working tree has uncommitted changes; runs refuse to start on a dirty tree")
					fmt.Printf("  %s Uncommitted changes detected (%d files)\n", yellow("⚠"), len(lines))
					if verbose {
						for i, line := range lines {
							if i >= 5 {
								fmt.Printf("    ... and %d more\n", len(lines)-5)
								break
							}
							fmt.Printf("    %s\n", line)
						}
					}
				} else {
					fmt.Printf("  %s Working tree clean\n", green("✓"))
				}
			}
		}
	}

	// Check 4: Linters
	fmt.Printf("%s Linters\n", cyan("→"))
	for _, name := range cfg.LinterSet() {
		if _, err := exec.LookPath(name); err != nil {
			failures = append(failures, fmt.Sprintf("Linter %s not found in PATH", name))
			fmt.Printf("  %s %s not found in PATH\n", red("✗"), name)
			continue
		}
		fmt.Printf("  %s %s %s\n", green("✓"), name, toolVersion(name))
	}
	if hasLinter(cfg, config.LinterPylint) {
		if !pylintConfigured(cfg.RepoPath) {
			warnings = append(warnings, "No pylint configuration found; pylint will use its built-in defaults")
			fmt.Printf("  %s No pylint configuration in %s\n", yellow("⚠"), cfg.RepoPath)
		}
	}

	// Check 5: Formatters
	fmt.Printf("%s Formatters\n", cyan("→"))
	formatterChecked := false
	if cfg.AutopepFix {
		formatterChecked = true
		checkTool("autopep8", &warnings)
	}
	if cfg.EnableBlack {
		formatterChecked = true
		checkTool("black", &warnings)
	}
	if !formatterChecked {
		fmt.Printf("  %s No formatter pre-pass configured\n", green("✓"))
	}

	// Check 6: AI fixer backend
	fmt.Printf("%s AI fixer backend\n", cyan("→"))
	switch cfg.Fixer {
	case config.FixerAnthropic:
		if key := os.Getenv("ANTHROPIC_API_KEY"); key == "" {
			failures = append(failures, "ANTHROPIC_API_KEY not set (required by the anthropic fixer)")
			fmt.Printf("  %s ANTHROPIC_API_KEY not set\n", red("✗"))
		} else {
			fmt.Printf("  %s anthropic backend, API key is set\n", green("✓"))
			if verbose && len(key) > 14 {
				fmt.Printf("    Key: %s...%s\n", key[:10], key[len(key)-4:])
			}
		}
	default:
		if _, err := exec.LookPath(cfg.AiderPath); err != nil {
			failures = append(failures, fmt.Sprintf("aider not found at %q", cfg.AiderPath))
			fmt.Printf("  %s %s not found in PATH\n", red("✗"), cfg.AiderPath)
		} else {
			fmt.Printf("  %s aider backend: %s %s\n", green("✓"), cfg.AiderPath, toolVersion(cfg.AiderPath))
		}
	}

	// Check 7: Test command
	fmt.Printf("%s Test command\n", cyan("→"))
	if len(cfg.TestCommand) == 0 {
		warnings = append(warnings, "No test command configured; only dry runs will work")
		fmt.Printf("  %s No test command configured\n", yellow("⚠"))
	} else if _, err := exec.LookPath(cfg.TestCommand[0]); err != nil {
		failures = append(failures, fmt.Sprintf("Test command %q not found in PATH", cfg.TestCommand[0]))
		fmt.Printf("  %s %s not found in PATH\n", red("✗"), cfg.TestCommand[0])
	} else {
		fmt.Printf("  %s %s\n", green("✓"), strings.Join(cfg.TestCommand, " "))
	}

	// Check 8: Virtualenv
	if root := venvRoot(cfg); root != "" {
		fmt.Printf("%s Virtualenv\n", cyan("→"))
		python := filepath.Join(root, "bin", "python")
		if _, err := os.Stat(python); err != nil {
			warnings = append(warnings, fmt.Sprintf("Configured virtualenv has no python at %s", python))
			fmt.Printf("  %s No python in configured virtualenv: %s\n", yellow("⚠"), root)
		} else {
			fmt.Printf("  %s Virtualenv: %s\n", green("✓"), root)
		}
	}

	// Check 9: Suggestion store
	fmt.Printf("%s Suggestion store\n", cyan("→"))
	ctx := context.Background()
	if store, err := storage.New(ctx, cfg); err != nil {
		warnings = append(warnings, fmt.Sprintf("Suggestion store unreachable: %v", err))
		fmt.Printf("  %s Store unreachable (runs continue without persistence)\n", yellow("⚠"))
		if verbose {
			fmt.Printf("    Error: %v\n", err)
		}
	} else {
		fmt.Printf("  %s Store reachable: %s\n", green("✓"), cfg.DatabasePath())
		if verbose {
			if list, err := store.List(ctx, ""); err == nil {
				fmt.Printf("    Stored suggestions: %d\n", len(list))
			}
		}
		store.Close()
	}

	// Summary
	fmt.Printf("\n%s\n", strings.Repeat("─", 60))

	totalIssues := len(criticalFailures) + len(failures) + len(warnings)
	if totalIssues == 0 {
		fmt.Printf("%s All checks passed! lintfix is ready to run.\n", green("✓"))
		os.Exit(0)
	}

	if len(criticalFailures) > 0 {
		fmt.Printf("\n%s Critical failures (%d):\n", red("✗"), len(criticalFailures))
		for _, failure := range criticalFailures {
			fmt.Printf("  • %s\n", failure)
		}
	}
	if len(failures) > 0 {
		fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
		for _, failure := range failures {
			fmt.Printf("  • %s\n", failure)
		}
	}
	if len(warnings) > 0 {
		fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
		for _, warning := range warnings {
			fmt.Printf("  • %s\n", warning)
		}
	}

	if len(criticalFailures) > 0 {
		fmt.Printf("\n%s lintfix cannot run until critical issues are resolved.\n", red("✗"))
		os.Exit(2)
	}
	if len(failures) > 0 {
		fmt.Printf("\n%s lintfix may not work correctly. Please address the failures above.\n", yellow("⚠"))
		os.Exit(1)
	}
	fmt.Printf("\n%s lintfix should work, but some warnings were detected.\n", green("✓"))
	os.Exit(0)
}

// parseGitVersion extracts "v2.39.2" from "git version 2.39.2" output.
// Vendor suffixes like "2.39.2.windows.1" are trimmed to three components.
func parseGitVersion(out string) string {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) < 3 {
		return ""
	}
	parts := strings.Split(fields[2], ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	v := "v" + strings.Join(parts, ".")
	if !semver.IsValid(v) {
		return ""
	}
	return v
}

// toolVersion probes a tool's --version output for display. Failures
// just leave the version blank.
func toolVersion(name string) string {
	out, err := exec.Command(name, "--version").Output()
	if err != nil {
		return ""
	}
	line := strings.TrimSpace(out2line(string(out)))
	gray := color.New(color.FgHiBlack).SprintFunc()
	if line == "" {
		return ""
	}
	return gray("(" + truncate(line, 40) + ")")
}

func out2line(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func checkTool(name string, warnings *[]string) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	if _, err := exec.LookPath(name); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("Formatter %s not found in PATH; its pre-pass will fail", name))
		fmt.Printf("  %s %s not found in PATH\n", yellow("⚠"), name)
		return
	}
	fmt.Printf("  %s %s %s\n", green("✓"), name, toolVersion(name))
}

func hasLinter(cfg *config.Config, name string) bool {
	for _, l := range cfg.LinterSet() {
		if l == name {
			return true
		}
	}
	return false
}

// pylintConfigured reports whether the repository carries any of the
// files pylint reads configuration from.
func pylintConfigured(repo string) bool {
	for _, name := range []string{".pylintrc", "pylintrc", "pyproject.toml", "setup.cfg"} {
		if _, err := os.Stat(filepath.Join(repo, name)); err == nil {
			return true
		}
	}
	return false
}
