package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lintfix/lintfix/internal/storage"
	"github.com/lintfix/lintfix/internal/types"
)

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Browse stored AI suggestions",
	Long: `Suggestions lists the AI exchanges saved by runs and by 'lintfix ask'.
With no subcommand it behaves like 'suggestions list'.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSuggestionsList(cmd)
	},
}

var suggestionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored suggestions, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSuggestionsList(cmd)
	},
}

var suggestionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one suggestion in full",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx := context.Background()
		store := mustOpenStore(ctx, cfg)
		defer store.Close()

		id := parseSuggestionID(args[0])
		s, err := store.Fetch(ctx, id)
		if err != nil {
			exitSuggestionErr(id, err)
		}
		printSuggestion(s)
	},
}

var suggestionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored suggestion",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx := context.Background()
		store := mustOpenStore(ctx, cfg)
		defer store.Close()

		id := parseSuggestionID(args[0])
		if err := store.Delete(ctx, id); err != nil {
			exitSuggestionErr(id, err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Deleted suggestion #%d\n", green("✓"), id)
	},
}

var suggestionsBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse suggestions interactively",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		ctx := context.Background()
		store := mustOpenStore(ctx, cfg)
		defer store.Close()

		b := newBrowser(ctx, store)
		if err := b.run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	suggestionsCmd.PersistentFlags().String("file", "", "Only show suggestions for this file")
	suggestionsCmd.AddCommand(suggestionsListCmd)
	suggestionsCmd.AddCommand(suggestionsShowCmd)
	suggestionsCmd.AddCommand(suggestionsDeleteCmd)
	suggestionsCmd.AddCommand(suggestionsBrowseCmd)
	rootCmd.AddCommand(suggestionsCmd)
}

func runSuggestionsList(cmd *cobra.Command) {
	cfg := loadConfig(cmd)
	file, _ := cmd.Flags().GetString("file")

	ctx := context.Background()
	store := mustOpenStore(ctx, cfg)
	defer store.Close()

	list, err := store.List(ctx, file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printSuggestionList(list)
}

func printSuggestionList(list []*types.Suggestion) {
	if len(list) == 0 {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Println(gray("No suggestions stored."))
		return
	}
	for _, s := range list {
		printSuggestionLine(s)
	}
}

func printSuggestionLine(s *types.Suggestion) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Printf("%s  %s  %s  %s\n",
		cyan(fmt.Sprintf("#%d", s.ID)),
		s.CreatedAt.Local().Format("2006-01-02 15:04"),
		s.File,
		gray(s.Model))
	fmt.Printf("     %s\n", firstLine(s.Question, 100))
}

func printSuggestion(s *types.Suggestion) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("%s  %s\n", cyan(fmt.Sprintf("Suggestion #%d", s.ID)), gray(s.CreatedAt.Local().Format(time.RFC1123)))
	fmt.Printf("File:  %s\n", s.File)
	fmt.Printf("Model: %s\n", s.Model)
	fmt.Printf("\n%s\n%s\n", cyan("Question"), s.Question)
	fmt.Printf("\n%s\n%s\n", cyan("Response"), renderResponse(s.Response))
}

// renderResponse unwraps the stored payload. Fix exchanges carry a
// {"diff": ...} document and ask exchanges a {"response": ...} one;
// anything else prints as stored.
func renderResponse(raw string) string {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err == nil && len(m) == 1 {
		if d, ok := m["diff"]; ok {
			return d
		}
		if r, ok := m["response"]; ok {
			return r
		}
	}
	return raw
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}

func parseSuggestionID(arg string) int64 {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid suggestion id %q\n", arg)
		os.Exit(1)
	}
	return id
}

// suggestionErr turns the store's not-found sentinel into a message with
// the id the user asked for.
func suggestionErr(id int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("suggestion #%d not found", id)
	}
	return err
}

func exitSuggestionErr(id int64, err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", suggestionErr(id, err))
	os.Exit(1)
}
