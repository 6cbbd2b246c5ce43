package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lintfix/lintfix/internal/agent"
	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/fixer"
	"github.com/lintfix/lintfix/internal/git"
	"github.com/lintfix/lintfix/internal/issues"
	"github.com/lintfix/lintfix/internal/linter"
	"github.com/lintfix/lintfix/internal/processor"
	"github.com/lintfix/lintfix/internal/resources"
	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/storage"
)

// reviewPause is how long the config summary stays on screen before the
// run starts. Skipped with --yes.
const reviewPause = 10 * time.Second

func runAgent(cmd *cobra.Command) {
	cfg := loadConfig(cmd)
	if cmd.Flags().Changed("max-workers") {
		cfg.MaxWorkers, _ = cmd.Flags().GetInt("max-workers")
	}
	if cmd.Flags().Changed("file") {
		cfg.TargetFile, _ = cmd.Flags().GetString("file")
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	yes, _ := cmd.Flags().GetBool("yes")

	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	fmt.Printf("\n%s\n", cyan("=== lintfix configuration ==="))
	fmt.Print(cfg.Summary())
	if cfg.DryRun {
		fmt.Printf("%s dry run: issues will be reported but nothing will be fixed\n", yellow("⚠"))
	}
	warnMissingPylintrc(cfg, yellow)

	// Signals cancel the run context; in-flight tasks unwind through their
	// revert path before the agent returns.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintf(os.Stderr, "\ncanceling run, reverting in-flight fixes...\n")
		cancel()
	}()

	if !yes {
		fmt.Printf("\nStarting in %v (Ctrl+C to abort, --yes to skip this pause)\n", reviewPause)
		select {
		case <-time.After(reviewPause):
		case <-ctx.Done():
			fmt.Println("aborted")
			os.Exit(130)
		}
	}

	gitMgr, err := git.New(ctx, cfg.RepoPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	governor, err := resources.New(cfg.Budget())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	executor := runner.NewRunner(&runner.Config{
		WorkingDir:        cfg.RepoPath,
		DefaultTimeout:    cfg.CommandTimeout,
		DangerousPatterns: cfg.DangerousPatterns,
		Temps:             governor,
	})
	env := runner.VirtualenvEnv(venvRoot(cfg))

	store, err := storage.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: suggestion store unavailable, continuing without persistence: %v\n", err)
		store = nil
	} else {
		defer func() {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close store: %v\n", err)
			}
		}()
	}

	scanner, err := linter.New(&linter.Config{
		Executor:      executor,
		Linters:       cfg.LinterSet(),
		RepoPath:      cfg.RepoPath,
		MaxLineLength: cfg.MaxLineLength,
		Timeout:       cfg.CommandTimeout,
		Env:           env,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var client *anthropic.Client
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c := anthropic.NewClient(option.WithAPIKey(key))
		client = &c
	}
	if !cfg.DryRun && cfg.Fixer == config.FixerAnthropic && client == nil {
		fmt.Fprintln(os.Stderr, "Error: ANTHROPIC_API_KEY is not set")
		os.Exit(1)
	}

	var fix fixer.Fixer
	if !cfg.DryRun {
		fix, err = fixer.New(&fixer.Config{
			Backend:        cfg.Fixer,
			Executor:       executor,
			Client:         client,
			Tokens:         governor,
			Store:          store,
			RepoPath:       cfg.RepoPath,
			AiderPath:      cfg.AiderPath,
			AiderModel:     cfg.AiderModel,
			AiderWeakModel: cfg.AiderWeakModel,
			AnthropicModel: cfg.AnthropicModel,
			Env:            env,
			Timeout:        cfg.CommandTimeout,
			Patterns:       cfg.DangerousPatterns,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	var messenger processor.CommitMessenger
	if client != nil {
		messenger = git.NewMessageGenerator(client, cfg.AnthropicModel)
	}

	// One run ID labels everything this invocation touches: the processor's
	// events, the agent's lifecycle events, and the saved suggestions.
	runID := uuid.New().String()

	sink := agent.NewStoreSink(store)
	proc, err := processor.New(&processor.Config{
		RunID:         runID,
		Git:           gitMgr,
		Linter:        scanner,
		Grouper:       issues.New(nil),
		Fixer:         fix,
		Executor:      executor,
		Messages:      messenger,
		Events:        sink,
		Store:         store,
		Memory:        governor,
		RepoPath:      cfg.RepoPath,
		Linters:       cfg.LinterSet(),
		TestCommand:   cfg.TestCommand,
		Timeout:       cfg.CommandTimeout,
		MaxRetries:    cfg.MaxRetries,
		DryRun:        cfg.DryRun,
		AutopepFix:    cfg.AutopepFix,
		EnableBlack:   cfg.EnableBlack,
		MaxLineLength: cfg.MaxLineLength,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ag, err := agent.New(&agent.Config{
		Config:    cfg,
		RunID:     runID,
		Version:   version,
		Git:       gitMgr,
		Processor: proc,
		Governor:  governor,
		Store:     store,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n%s Run %s started\n\n", green("✓"), ag.RunID())

	summary, err := ag.Run(ctx)
	if summary != nil {
		printSummary(summary, ag.RunID())
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Printf("\n%s run canceled\n", yellow("⚠"))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
	if !summary.Success {
		os.Exit(1)
	}
}

func printSummary(s *agent.Summary, runID string) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Printf("\n%s\n", cyan("=== run summary ==="))
	fmt.Printf("  Files processed: %d\n", s.Total())
	fmt.Printf("  Committed:       %s\n", green(s.Committed))
	fmt.Printf("  Reverted:        %s\n", yellow(s.Reverted))
	fmt.Printf("  Failed:          %s\n", red(s.Failed))
	fmt.Printf("  Skipped:         %s\n", gray(s.Skipped))
	fmt.Printf("  Issues found:    %d\n", s.IssuesFound)
	fmt.Printf("  Issues fixed:    %d\n", s.IssuesFixed)
	fmt.Printf("  Duration:        %v\n", s.Duration.Round(time.Millisecond))
	fmt.Printf("  Run ID:          %s\n", gray(runID))
}

// warnMissingPylintrc flags a repo with no pylint configuration: pylint's
// built-in defaults are far stricter than most projects want, which
// inflates the issue count and burns fix attempts on style noise.
func warnMissingPylintrc(cfg *config.Config, yellow func(...interface{}) string) {
	if !hasLinter(cfg, config.LinterPylint) || pylintConfigured(cfg.RepoPath) {
		return
	}
	fmt.Printf("%s no pylint configuration found; pylint will run with its built-in defaults\n", yellow("⚠"))
}
