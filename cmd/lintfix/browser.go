package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/lintfix/lintfix/internal/storage"
)

// browser is the interactive shell behind `lintfix suggestions browse`.
type browser struct {
	store    storage.Store
	ctx      context.Context
	commands map[string]browserHandler
}

type browserHandler func(args []string) error

func newBrowser(ctx context.Context, store storage.Store) *browser {
	b := &browser{
		store:    store,
		ctx:      ctx,
		commands: make(map[string]browserHandler),
	}
	b.commands["list"] = b.cmdList
	b.commands["ls"] = b.cmdList
	b.commands["show"] = b.cmdShow
	b.commands["delete"] = b.cmdDelete
	b.commands["help"] = b.cmdHelp
	b.commands["?"] = b.cmdHelp
	b.commands["exit"] = b.cmdExit
	b.commands["quit"] = b.cmdExit
	return b
}

func (b *browser) run() error {
	cyan := color.New(color.FgCyan).SprintFunc()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("suggestions> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	b.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := b.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %v\n", red("Error:"), err)
		}
	}
}

func (b *browser) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := parts[0]
	args := parts[1:]

	handler, ok := b.commands[command]
	if !ok {
		// A bare number is shorthand for show.
		if _, err := strconv.ParseInt(strings.TrimPrefix(command, "#"), 10, 64); err == nil {
			return b.cmdShow(parts)
		}
		return fmt.Errorf("unknown command %q, try 'help'", command)
	}
	return handler(args)
}

func (b *browser) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n", cyan("lintfix suggestion browser"))
	fmt.Println("Type 'help' for available commands, 'exit' to quit")
	fmt.Println()
}

func (b *browser) cmdList(args []string) error {
	file := ""
	if len(args) > 0 {
		file = args[0]
	}
	list, err := b.store.List(b.ctx, file)
	if err != nil {
		return err
	}
	printSuggestionList(list)
	return nil
}

func (b *browser) cmdShow(args []string) error {
	id, err := browserID(args)
	if err != nil {
		return err
	}
	s, err := b.store.Fetch(b.ctx, id)
	if err != nil {
		return suggestionErr(id, err)
	}
	printSuggestion(s)
	return nil
}

func (b *browser) cmdDelete(args []string) error {
	id, err := browserID(args)
	if err != nil {
		return err
	}
	if err := b.store.Delete(b.ctx, id); err != nil {
		return suggestionErr(id, err)
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Deleted suggestion #%d\n", green("✓"), id)
	return nil
}

func (b *browser) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Printf("\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"list [file]", "List suggestions, optionally for one file"},
		{"show <id>", "Show one suggestion in full"},
		{"delete <id>", "Delete a suggestion"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the browser"},
	}
	for _, c := range commands {
		fmt.Printf("  %-14s %s\n", c.name, c.desc)
	}
	fmt.Println()
	return nil
}

func (b *browser) cmdExit(args []string) error {
	fmt.Println("Goodbye!")
	return io.EOF
}

func browserID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one suggestion id")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid suggestion id %q", args[0])
	}
	return id, nil
}
