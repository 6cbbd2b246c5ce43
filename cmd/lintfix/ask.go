package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/fixer"
	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/storage"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the AI backend a question about code",
	Long: `Ask puts a question about a piece of code to the configured AI backend
without editing anything. The code comes from --file or --code, and the
exchange lands in the suggestion store for later review with
'lintfix suggestions'.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAsk(cmd, args)
	},
}

func init() {
	askCmd.Flags().StringP("file", "f", "", "File containing the code to ask about")
	askCmd.Flags().String("code", "", "Code snippet to ask about")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)
	question := strings.Join(args, " ")

	file, _ := cmd.Flags().GetString("file")
	snippet, _ := cmd.Flags().GetString("code")

	var code string
	switch {
	case snippet != "":
		code = snippet
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		code = string(data)
	default:
		fmt.Fprintln(os.Stderr, "Error: provide the code to ask about with --file or --code")
		os.Exit(1)
	}

	ctx := context.Background()

	var client *anthropic.Client
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c := anthropic.NewClient(option.WithAPIKey(key))
		client = &c
	}
	if cfg.Fixer == config.FixerAnthropic && client == nil {
		fmt.Fprintln(os.Stderr, "Error: ANTHROPIC_API_KEY is not set")
		os.Exit(1)
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: suggestion store unavailable, exchange will not be saved: %v\n", err)
		store = nil
	} else {
		defer store.Close()
	}

	executor := runner.NewRunner(&runner.Config{
		WorkingDir:        cfg.RepoPath,
		DefaultTimeout:    cfg.CommandTimeout,
		DangerousPatterns: cfg.DangerousPatterns,
	})

	asker, err := fixer.NewInterrogator(&fixer.Config{
		Backend:           cfg.Fixer,
		Executor:          executor,
		Client:            client,
		Store:             store,
		RepoPath:          cfg.RepoPath,
		AiderPath:         cfg.AiderPath,
		AiderModel:        cfg.AiderModel,
		AiderWeakModel:    cfg.AiderWeakModel,
		AnthropicModel:    cfg.AnthropicModel,
		Env:               runner.VirtualenvEnv(venvRoot(cfg)),
		Timeout:           cfg.CommandTimeout,
		Patterns:          cfg.DangerousPatterns,
		MaxCodeLength:     cfg.MaxCodeLength,
		MaxQuestionLength: cfg.MaxQuestionLength,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	answer, err := asker.Ask(ctx, code, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(answer)
}
