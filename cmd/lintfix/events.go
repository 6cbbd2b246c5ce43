package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lintfix/lintfix/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent run events",
	Long: `Events shows the activity feed recorded by remediation runs: run and
task lifecycle, pipeline steps, and resource governor actions. Events
print oldest first so the feed reads top to bottom like a log.

Filter to one run with --run; the run id is printed when a run starts
and again in its summary.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runEvents(cmd)
	},
}

func init() {
	eventsCmd.Flags().StringP("run", "r", "", "Only show events for this run id")
	eventsCmd.Flags().IntP("limit", "n", 50, "Number of events to show")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command) {
	cfg := loadConfig(cmd)
	runID, _ := cmd.Flags().GetString("run")
	limit, _ := cmd.Flags().GetInt("limit")

	ctx := context.Background()
	store := mustOpenStore(ctx, cfg)
	defer store.Close()

	list, err := store.ListEvents(ctx, runID, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(list) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Println(yellow("No events recorded. Run lintfix to generate some."))
		return
	}

	// The unfiltered feed arrives newest first; flip it so the terminal
	// shows the most recent event at the bottom. Run-scoped feeds are
	// already chronological.
	if runID == "" {
		for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
			list[i], list[j] = list[j], list[i]
		}
	}

	for _, e := range list {
		displayEvent(e)
	}
}

// displayEvent prints one event in a two-line format: the event itself,
// then its structured data compacted to a single gray line.
func displayEvent(e *events.Event) {
	glyph := severityGlyph(e.Severity)
	sev := severityColor(e.Severity)
	magenta := color.New(color.FgMagenta).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()

	label := e.File
	if label == "" {
		label = shortRunID(e.RunID)
	}

	fmt.Printf("%s [%s] %s %s: %s\n",
		glyph,
		e.CreatedAt.Local().Format("15:04:05"),
		green(label),
		magenta(string(e.Type)),
		sev.Sprint(truncate(e.Message, 80)),
	)

	if meta := eventMetadata(e.Data); meta != "" {
		gray := color.New(color.FgHiBlack)
		fmt.Printf("  %s\n", gray.Sprint(meta))
	}
}

func severityGlyph(s events.EventSeverity) string {
	switch s {
	case events.SeverityWarning:
		return "⚠"
	case events.SeverityError:
		return "✗"
	default:
		return "•"
	}
}

func severityColor(s events.EventSeverity) *color.Color {
	switch s {
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

// eventMetadata compacts an event's data payload into "k=v | k=v" form,
// keys sorted for a stable feed. Durations render human-readable.
func eventMetadata(data map[string]interface{}) string {
	if len(data) == 0 {
		return ""
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		v := formatDataValue(k, data[k])
		if v == "" {
			continue
		}
		fields = append(fields, k+"="+v)
	}
	return truncate(strings.Join(fields, " | "), 100)
}

func formatDataValue(key string, v interface{}) string {
	switch val := v.(type) {
	case string:
		return truncate(val, 40)
	case bool:
		return strconv.FormatBool(val)
	case int:
		if strings.HasSuffix(key, "_ms") {
			return formatDurationMs(int64(val))
		}
		return strconv.Itoa(val)
	case int64:
		if strings.HasSuffix(key, "_ms") {
			return formatDurationMs(val)
		}
		return strconv.FormatInt(val, 10)
	case float64:
		// JSON round-trips numbers as float64.
		if strings.HasSuffix(key, "_ms") {
			return formatDurationMs(int64(val))
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return truncate(fmt.Sprint(val), 40)
	}
}

func formatDurationMs(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60000:
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	default:
		return fmt.Sprintf("%.1fm", float64(ms)/60000)
	}
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return "..."
	}
	return s[:max-3] + "..."
}
