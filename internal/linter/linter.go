// Package linter runs the configured lint backends on single files and
// normalizes their findings into issues the rest of the pipeline consumes.
//
// Backends are deliberately forgiving: a crashing or missing linter is
// logged and skipped so one broken tool never aborts a scan, and output
// lines the parser does not understand are dropped with a warning.
package linter

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

// Config holds the settings for a Runner.
type Config struct {
	// Executor runs the linter processes
	Executor runner.Executor

	// Linters are the backend names to run, in order
	// (default: [pylint])
	Linters []string

	// RepoPath is the working directory linters run in (default: ".")
	RepoPath string

	// MaxLineLength is passed to backends that accept it (default: 100)
	MaxLineLength int

	// Timeout bounds each linter invocation; zero uses the executor default
	Timeout time.Duration

	// Env is appended to the environment of every linter process,
	// e.g. virtualenv activation overrides
	Env []string
}

// Runner executes lint backends and merges their findings.
type Runner struct {
	exec     runner.Executor
	backends []backend
	repoPath string
	timeout  time.Duration
	env      []string

	dropped atomic.Int64
}

// New creates a Runner for the configured backend set.
func New(cfg *Config) (*Runner, error) {
	if cfg == nil || cfg.Executor == nil {
		return nil, types.NewValidationError("executor", "is required")
	}

	names := cfg.Linters
	if len(names) == 0 {
		names = []string{config.LinterPylint}
	}
	maxLine := cfg.MaxLineLength
	if maxLine <= 0 {
		maxLine = 100
	}
	repoPath := cfg.RepoPath
	if repoPath == "" {
		repoPath = "."
	}

	backends := make([]backend, 0, len(names))
	for _, name := range names {
		b, err := backendFor(name, maxLine)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}

	return &Runner{
		exec:     cfg.Executor,
		backends: backends,
		repoPath: repoPath,
		timeout:  cfg.Timeout,
		env:      cfg.Env,
	}, nil
}

// Run lints one file with every configured backend and returns the merged
// findings ordered by position. A backend that cannot run or exits with a
// fatal status is skipped with a warning; remaining backends still
// contribute (partial results). The error return is reserved for
// cancellation.
func (r *Runner) Run(ctx context.Context, file string) ([]types.Issue, error) {
	var issues []types.Issue
	for _, b := range r.backends {
		found, err := r.runBackend(ctx, b, file)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "warning: linter %s skipped for %s: %v\n", b.name(), file, err)
			continue
		}
		issues = append(issues, found...)
	}
	sortIssues(issues)
	return issues, nil
}

// DroppedLines reports how many output lines were discarded as unparsable
// across all Run calls so far.
func (r *Runner) DroppedLines() int64 {
	return r.dropped.Load()
}

func (r *Runner) runBackend(ctx context.Context, b backend, file string) ([]types.Issue, error) {
	res, err := r.exec.Run(ctx, runner.Command{
		Argv:    b.argv(file),
		Dir:     r.repoPath,
		Timeout: r.timeout,
		Env:     r.env,
	})
	if err != nil {
		return nil, err
	}
	if !b.ok(res.ExitCode) {
		return nil, fmt.Errorf("%s exited %d: %s", b.name(), res.ExitCode, stderrSummary(res.Stderr))
	}

	issues, dropped := b.parse(file, res.Stdout)
	if dropped > 0 {
		r.dropped.Add(int64(dropped))
		fmt.Fprintf(os.Stderr, "warning: %s: dropped %d unparsable output line(s) for %s\n", b.name(), dropped, file)
	}
	return issues, nil
}

// sortIssues orders findings by line, column, then code so merged
// multi-backend output is deterministic.
func sortIssues(issues []types.Issue) {
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Line != issues[j].Line {
			return issues[i].Line < issues[j].Line
		}
		if issues[i].Column != issues[j].Column {
			return issues[i].Column < issues[j].Column
		}
		return issues[i].Code < issues[j].Code
	})
}

func stderrSummary(stderr string) string {
	for _, line := range strings.Split(stderr, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			return s
		}
	}
	return "(no stderr)"
}
