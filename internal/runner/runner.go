// Package runner spawns and supervises the external commands the fix
// pipeline depends on: linters, formatters, test commands, and the aider
// subprocess.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/types"
)

// TempPrefix marks temp files created by the runner; the stale-file sweep
// only ever touches names carrying it.
const TempPrefix = "lintfix-"

const (
	backoffMultiplier = 2.0
	memSampleInterval = 200 * time.Millisecond
	waitDelay         = 5 * time.Second
)

// Command describes one subprocess invocation.
type Command struct {
	Argv    []string      // Program and arguments; Argv[0] is resolved via PATH
	Dir     string        // Working directory; empty uses the runner's default
	Timeout time.Duration // Wall-clock bound; zero uses the runner's default
	Env     []string      // Appended to the parent environment; later entries win for duplicate keys

	// MemoryCeilingMB kills the process tree when its resident set exceeds
	// this many megabytes. Zero disables the ceiling. Enforcement is best
	// effort and unavailable on platforms without resident-set sampling.
	MemoryCeilingMB int64
}

// Result captures a completed command.
type Result struct {
	ExitCode     int
	Stdout       string
	Stderr       string
	Duration     time.Duration
	PeakMemoryMB int64 // Largest resident set observed, best effort
}

// ResponderFunc inspects the pending output line when an interactive child
// stalls waiting for input. Returning ok=true writes reply plus a newline
// to the child's stdin.
type ResponderFunc func(line string) (reply string, ok bool)

// TempRegistry receives the paths of temporary files created during command
// execution so they can be cleaned up at run end.
// This allows for pluggable cleanup (e.g. the resource manager, or a test fake)
type TempRegistry interface {
	RegisterTemp(path string)
}

// Executor is an interface for running external commands.
// This allows pipeline stages to be tested with scripted fakes.
type Executor interface {
	// Run executes a command to completion, retrying transient failures.
	Run(ctx context.Context, cmd Command) (*Result, error)
	// RunInteractive executes a command while answering its prompts through
	// the responder. Never retried.
	RunInteractive(ctx context.Context, cmd Command, respond ResponderFunc) (*Result, error)
	// TempFile writes content to a fresh registered temp file.
	TempFile(pattern string, content []byte) (string, error)
}

// Config holds command runner configuration
type Config struct {
	WorkingDir        string              // Directory commands execute in (default: ".")
	DefaultTimeout    time.Duration       // Per-command timeout (default: 5m)
	MaxRetries        int                 // Transient-failure retries per command; negative disables (default: 2)
	InitialBackoff    time.Duration       // First retry delay (default: 1s)
	MaxBackoff        time.Duration       // Backoff cap (default: 30s)
	PromptStall       time.Duration       // Quiet period before an interactive line is treated as a prompt (default: 500ms)
	DangerousPatterns map[string][]string // Per-language deny list (default: config.DefaultDangerousPatterns)
	Temps             TempRegistry        // Optional: receives temp file paths for cleanup
}

// Runner executes external commands with deny-list screening, timeouts,
// memory ceilings, and transient-failure retry.
type Runner struct {
	workingDir     string
	defaultTimeout time.Duration
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	promptStall    time.Duration
	patterns       map[string][]string
	temps          TempRegistry
}

var _ Executor = (*Runner)(nil)

// NewRunner creates a command runner
func NewRunner(cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	r := &Runner{
		workingDir:     cfg.WorkingDir,
		defaultTimeout: cfg.DefaultTimeout,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		promptStall:    cfg.PromptStall,
		patterns:       cfg.DangerousPatterns,
		temps:          cfg.Temps,
	}
	if r.workingDir == "" {
		r.workingDir = "."
	}
	if r.defaultTimeout <= 0 {
		r.defaultTimeout = 5 * time.Minute
	}
	switch {
	case r.maxRetries < 0:
		r.maxRetries = 0
	case r.maxRetries == 0:
		r.maxRetries = 2
	}
	if r.initialBackoff <= 0 {
		r.initialBackoff = 1 * time.Second
	}
	if r.maxBackoff <= 0 {
		r.maxBackoff = 30 * time.Second
	}
	if r.promptStall <= 0 {
		r.promptStall = 500 * time.Millisecond
	}
	if r.patterns == nil {
		r.patterns = config.DefaultDangerousPatterns()
	}
	return r
}

// Run executes a command to completion. The argv is screened against the
// deny list before anything is spawned; transient failures are retried with
// exponential backoff; a nonzero exit is reported in the Result, not as an
// error.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if len(cmd.Argv) == 0 {
		return nil, types.NewValidationError("argv", "command is empty")
	}
	if err := ScreenArgv(r.patterns, cmd.Argv); err != nil {
		return nil, err
	}

	var lastErr error
	backoff := r.initialBackoff

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		res, err := r.runOnce(ctx, cmd)
		if err == nil {
			if !transientOutput(res) {
				return res, nil
			}
			// Nonzero exit whose stderr carries a transient marker (rate
			// limit, dropped connection). Retry; after the final attempt
			// the result is returned as-is for the caller to judge.
			if attempt == r.maxRetries {
				return res, nil
			}
			lastErr = fmt.Errorf("exit %d: %s", res.ExitCode, firstLine(res.Stderr))
		} else {
			if !isTransientError(err) {
				return nil, err
			}
			lastErr = err
			if attempt == r.maxRetries {
				break
			}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		fmt.Fprintf(os.Stderr, "warning: %s failed (attempt %d/%d), retrying in %v: %v\n",
			cmd.Argv[0], attempt+1, r.maxRetries+1, backoff, lastErr)

		select {
		case <-time.After(backoff):
			backoff = time.Duration(float64(backoff) * backoffMultiplier)
			if backoff > r.maxBackoff {
				backoff = r.maxBackoff
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", cmd.Argv[0], r.maxRetries+1, lastErr)
}

// runOnce executes a single attempt.
func (r *Runner) runOnce(ctx context.Context, cmd Command) (*Result, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	if c.Dir == "" {
		c.Dir = r.workingDir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	setProcessGroup(c)
	c.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, &types.CommandExecutionError{
			Command:  strings.Join(cmd.Argv, " "),
			ExitCode: -1,
			Err:      err,
		}
	}

	watch := &memWatch{limitMB: cmd.MemoryCeilingMB}
	stop := make(chan struct{})
	go watch.watch(c, stop)

	waitErr := c.Wait()
	close(stop)
	elapsed := time.Since(start)

	peak, breached := watch.snapshot()
	if ru := peakMemoryMB(c.ProcessState); ru > peak {
		peak = ru
	}

	res := &Result{
		Stdout:       stdout.String(),
		Stderr:       stderr.String(),
		Duration:     elapsed,
		PeakMemoryMB: peak,
	}

	// A ceiling breach kills the process group, so it must be classified
	// before the exit status is inspected.
	if breached {
		return nil, &types.ResourceLimitError{
			Resource: "memory",
			Limit:    fmt.Sprintf("%dMB", cmd.MemoryCeilingMB),
			Message:  fmt.Sprintf("command %q exceeded its memory ceiling (peak %dMB)", cmd.Argv[0], peak),
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &types.CommandExecutionError{
			Command:  strings.Join(cmd.Argv, " "),
			ExitCode: -1,
			Stderr:   res.Stderr,
			TimedOut: true,
			Err:      context.DeadlineExceeded,
		}
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, &types.CommandExecutionError{
			Command:  strings.Join(cmd.Argv, " "),
			ExitCode: -1,
			Stderr:   res.Stderr,
			Err:      waitErr,
		}
	}
	return res, nil
}

// RunInteractive executes a command whose output is watched for prompts.
// When the child goes quiet mid-line the pending line is handed to the
// responder, and an answered prompt is written back on stdin. Interactive
// commands are never retried.
func (r *Runner) RunInteractive(ctx context.Context, cmd Command, respond ResponderFunc) (*Result, error) {
	if len(cmd.Argv) == 0 {
		return nil, types.NewValidationError("argv", "command is empty")
	}
	if err := ScreenArgv(r.patterns, cmd.Argv); err != nil {
		return nil, err
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(runCtx, cmd.Argv[0], cmd.Argv[1:]...)
	c.Dir = cmd.Dir
	if c.Dir == "" {
		c.Dir = r.workingDir
	}
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	setProcessGroup(c)
	c.WaitDelay = waitDelay

	stdin, err := c.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	c.Stderr = &stderr

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, &types.CommandExecutionError{
			Command:  strings.Join(cmd.Argv, " "),
			ExitCode: -1,
			Err:      err,
		}
	}

	watch := &memWatch{limitMB: cmd.MemoryCeilingMB}
	stop := make(chan struct{})
	go watch.watch(c, stop)

	chunks := make(chan []byte, 16)
	go func() {
		defer close(chunks)
		buf := make([]byte, 4096)
		for {
			n, readErr := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if readErr != nil {
				return
			}
		}
	}()

	var out strings.Builder
	var line []byte
scan:
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				break scan
			}
			out.Write(chunk)
			for _, b := range chunk {
				if b == '\n' {
					line = line[:0]
				} else {
					line = append(line, b)
				}
			}
		case <-time.After(r.promptStall):
			// Output stalled mid-line: the child is waiting on input.
			if respond == nil || len(line) == 0 {
				continue
			}
			pending := strings.TrimSpace(string(line))
			reply, ok := respond(pending)
			if !ok {
				continue
			}
			if _, werr := io.WriteString(stdin, reply+"\n"); werr != nil {
				break scan
			}
			line = line[:0]
		}
	}

	stdin.Close()
	waitErr := c.Wait()
	close(stop)
	elapsed := time.Since(start)

	peak, breached := watch.snapshot()
	if ru := peakMemoryMB(c.ProcessState); ru > peak {
		peak = ru
	}

	res := &Result{
		Stdout:       out.String(),
		Stderr:       stderr.String(),
		Duration:     elapsed,
		PeakMemoryMB: peak,
	}

	if breached {
		return nil, &types.ResourceLimitError{
			Resource: "memory",
			Limit:    fmt.Sprintf("%dMB", cmd.MemoryCeilingMB),
			Message:  fmt.Sprintf("command %q exceeded its memory ceiling (peak %dMB)", cmd.Argv[0], peak),
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &types.CommandExecutionError{
			Command:  strings.Join(cmd.Argv, " "),
			ExitCode: -1,
			Stderr:   res.Stderr,
			TimedOut: true,
			Err:      context.DeadlineExceeded,
		}
	}
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, &types.CommandExecutionError{
			Command:  strings.Join(cmd.Argv, " "),
			ExitCode: -1,
			Stderr:   res.Stderr,
			Err:      waitErr,
		}
	}
	return res, nil
}

// TempFile writes content to a fresh temp file and registers it for
// cleanup. The name always carries the lintfix- prefix so the stale-file
// sweep can find leftovers from crashed runs.
func (r *Runner) TempFile(pattern string, content []byte) (string, error) {
	if !strings.HasPrefix(pattern, TempPrefix) {
		pattern = TempPrefix + pattern
	}
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if r.temps != nil {
		r.temps.RegisterTemp(name)
	}
	return name, nil
}

// ScreenArgv rejects a command line containing any configured dangerous
// pattern. Every configured category is applied, the match is a
// case-insensitive substring test, and the check runs before any process
// is spawned.
func ScreenArgv(patterns map[string][]string, argv []string) error {
	joined := strings.ToLower(strings.Join(argv, " "))
	for _, list := range patterns {
		for _, pattern := range list {
			p := strings.ToLower(pattern)
			if p == "" || !strings.Contains(joined, p) {
				continue
			}
			matched := strings.Join(argv, " ")
			for _, arg := range argv {
				if strings.Contains(strings.ToLower(arg), p) {
					matched = arg
					break
				}
			}
			return &types.DangerousPatternError{Pattern: pattern, Argument: matched}
		}
	}
	return nil
}

// ScreenText applies the named pattern categories to free-form text such
// as generated code. No categories means all of them.
func ScreenText(patterns map[string][]string, text string, categories ...string) error {
	lower := strings.ToLower(text)
	for lang, list := range patterns {
		if len(categories) > 0 && !slices.Contains(categories, lang) {
			continue
		}
		for _, pattern := range list {
			p := strings.ToLower(pattern)
			if p == "" || !strings.Contains(lower, p) {
				continue
			}
			return &types.DangerousPatternError{Pattern: pattern, Argument: firstLine(text)}
		}
	}
	return nil
}

// VirtualenvEnv returns env overrides that activate the virtualenv at
// venvPath: its script directory is prepended to PATH and VIRTUAL_ENV is
// set. Returns nil when venvPath is empty.
func VirtualenvEnv(venvPath string) []string {
	if venvPath == "" {
		return nil
	}
	binDir := filepath.Join(venvPath, "bin")
	if runtime.GOOS == "windows" {
		binDir = filepath.Join(venvPath, "Scripts")
	}
	path := binDir
	if cur := os.Getenv("PATH"); cur != "" {
		path = binDir + string(os.PathListSeparator) + cur
	}
	return []string{"PATH=" + path, "VIRTUAL_ENV=" + venvPath}
}

// memWatch samples a running child's resident set and kills the process
// group when it crosses the configured ceiling.
type memWatch struct {
	limitMB int64

	mu       sync.Mutex
	peakMB   int64
	breached bool
}

func (w *memWatch) watch(c *exec.Cmd, stop <-chan struct{}) {
	ticker := time.NewTicker(memSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			rss := readRSSMB(c.Process.Pid)
			if rss <= 0 {
				continue
			}
			w.mu.Lock()
			if rss > w.peakMB {
				w.peakMB = rss
			}
			breach := w.limitMB > 0 && rss > w.limitMB
			if breach {
				w.breached = true
			}
			w.mu.Unlock()
			if breach {
				killProcessGroup(c)
				return
			}
		}
	}
}

func (w *memWatch) snapshot() (peakMB int64, breached bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.peakMB, w.breached
}

// isTransientError reports whether a failure is worth retrying.
// Deny-list rejections, resource-limit breaches, and cancellation are
// final; timeouts and spawn-level resource hiccups are not.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var dangerous *types.DangerousPatternError
	if errors.As(err, &dangerous) {
		return false
	}
	var limit *types.ResourceLimitError
	if errors.As(err, &limit) {
		return false
	}
	var cmdErr *types.CommandExecutionError
	if errors.As(err, &cmdErr) && cmdErr.TimedOut {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, exec.ErrNotFound) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "resource temporarily unavailable") ||
		strings.Contains(errStr, "cannot allocate memory") ||
		strings.Contains(errStr, "too many open files") ||
		strings.Contains(errStr, "text file busy") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") {
		return true
	}
	return false
}

// transientOutput reports whether a failed command's stderr carries a
// transient marker such as a rate limit or a dropped connection.
func transientOutput(res *Result) bool {
	if res == nil || res.ExitCode == 0 {
		return false
	}
	errStr := strings.ToLower(res.Stderr)
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "temporarily unavailable") ||
		strings.Contains(errStr, "service unavailable")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
