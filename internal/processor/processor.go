// Package processor drives one file through the remediation lifecycle:
// lint, group, checkpoint, fix, validate, then commit or revert. The
// lifecycle is an explicit state machine; a pure transition function
// validates every edge and side effects live in per-state steps, so the
// pipeline can be exercised end to end with fakes.
package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lintfix/lintfix/internal/events"
	"github.com/lintfix/lintfix/internal/fixer"
	"github.com/lintfix/lintfix/internal/git"
	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

// IssueScanner produces normalized lint findings for one file.
// *linter.Runner satisfies it.
type IssueScanner interface {
	Run(ctx context.Context, file string) ([]types.Issue, error)
}

// IssueGrouper clusters findings into prioritized fix units.
// *issues.Processor satisfies it.
type IssueGrouper interface {
	Group(ctx context.Context, file string, content []byte, issues []types.Issue) ([]types.IssueGroup, error)
}

// CommitMessenger writes a commit message for a validated fix.
// *git.MessageGenerator satisfies it.
type CommitMessenger interface {
	GenerateCommitMessage(ctx context.Context, req git.CommitMessageRequest) (*git.CommitMessageResponse, error)
}

// EventSink receives pipeline events. The agent persists them; tests
// capture them in memory.
type EventSink interface {
	Record(ctx context.Context, e *events.Event)
}

// SuggestionStore persists AI exchanges for later review.
type SuggestionStore interface {
	Save(ctx context.Context, s *types.Suggestion) (int64, error)
}

// MemoryReporter receives observed subprocess memory usage.
// *resources.Manager satisfies it.
type MemoryReporter interface {
	ReportMemory(taskID string, peakMB int64)
	ClearMemory(taskID string)
}

// Config wires a FileProcessor's collaborators and policy.
type Config struct {
	// RunID tags emitted events with the owning run
	RunID string

	Git      git.Operations
	Linter   IssueScanner
	Grouper  IssueGrouper
	Fixer    fixer.Fixer
	Executor runner.Executor

	// Messages generates AI commit messages; nil uses the deterministic
	// fallback
	Messages CommitMessenger

	// Events, Store, and Memory are optional observers
	Events EventSink
	Store  SuggestionStore
	Memory MemoryReporter

	// RepoPath is the working tree root files are resolved against
	// Default: "."
	RepoPath string

	// Linters labels lint events with the backends that ran
	Linters []string

	// TestCommand validates each fix, run from RepoPath
	TestCommand []string

	// Timeout bounds test and formatter subprocesses; zero uses the
	// executor default
	Timeout time.Duration

	// MaxRetries is the total fix attempt budget per file. Values below
	// one still allow the initial attempt.
	MaxRetries int

	// DryRun stops after grouping: no formatters, no fixes, no commits
	DryRun bool

	// AutopepFix and EnableBlack control the formatter pre-pass
	AutopepFix  bool
	EnableBlack bool

	// MaxLineLength is passed to formatters
	// Default: 100
	MaxLineLength int
}

// FileProcessor drives single files through the remediation lifecycle.
// All per-task state lives in the run, so one processor serves every
// worker concurrently.
type FileProcessor struct {
	cfg Config
}

// New validates cfg and builds a FileProcessor. The fixer, executor, and
// test command may be omitted only for dry runs, which stop after
// grouping.
func New(cfg *Config) (*FileProcessor, error) {
	if cfg == nil {
		return nil, types.NewValidationError("config", "is required")
	}
	out := *cfg
	if out.RepoPath == "" {
		out.RepoPath = "."
	}
	if out.MaxLineLength <= 0 {
		out.MaxLineLength = 100
	}
	switch {
	case out.Git == nil:
		return nil, types.NewValidationError("git", "is required")
	case out.Linter == nil:
		return nil, types.NewValidationError("linter", "is required")
	case out.Grouper == nil:
		return nil, types.NewValidationError("grouper", "is required")
	}
	if !out.DryRun {
		switch {
		case out.Fixer == nil:
			return nil, types.NewValidationError("fixer", "is required")
		case out.Executor == nil:
			return nil, types.NewValidationError("executor", "is required")
		case len(out.TestCommand) == 0:
			return nil, types.NewValidationError("test_command", "is required")
		}
	}
	return &FileProcessor{cfg: out}, nil
}

// run carries one task's mutable pipeline state across steps.
type run struct {
	task   *types.FileTask
	issues []types.Issue
	groups []types.IssueGroup
	cp     *types.Checkpoint
	group  *types.IssueGroup // target of the current attempt
	weak   bool              // final-attempt weak model fallback
	diff   string            // working-tree diff after the fix applied
	commit string            // created commit hash
	fixed  int
	err    error // last failure, reported on Failed
	cancel error // cancellation cause, reported on Skipped/Reverted
	fatal  bool  // arrived in Reverted on the non-retryable path
}

// Process drives task to a terminal state and returns its result.
// Exactly one result is produced per task; failures are folded into it
// rather than returned, so a worker always has an outcome to report.
func (p *FileProcessor) Process(ctx context.Context, task *types.FileTask) *types.ProcessingResult {
	start := time.Now()
	if p.cfg.Memory != nil {
		defer p.cfg.Memory.ClearMemory(task.ID)
	}

	st := &run{task: task}
	if err := task.Validate(); err != nil {
		st.err = fmt.Errorf("invalid task: %w", err)
		task.State = types.StateFailed
	} else if task.State != types.StatePending {
		st.err = fmt.Errorf("task %s dispatched in state %s, want %s", task.ID, task.State, types.StatePending)
		task.State = types.StateFailed
	}

	for {
		if !task.State.IsTerminal() {
			if err := ctx.Err(); err != nil {
				p.unwind(ctx, st, err)
				continue
			}
		}
		ev := p.step(ctx, st)
		if ev == eventNone {
			break
		}
		p.advance(ctx, st, ev)
	}

	return p.result(st, start)
}

// step runs the side effects for the task's current state and reports
// the resulting edge. Terminal states produce no event, except Reverted
// on the non-retryable path, which still has to land in Failed.
func (p *FileProcessor) step(ctx context.Context, st *run) event {
	switch st.task.State {
	case types.StatePending:
		return p.stepPending(ctx, st)
	case types.StateLinting:
		return p.stepLinting(ctx, st)
	case types.StateGrouping:
		return p.stepGrouping(ctx, st)
	case types.StateCheckpointed:
		return p.stepCheckpointed(ctx, st)
	case types.StateFixing:
		return p.stepFixing(ctx, st)
	case types.StateValidating:
		return p.stepValidating(ctx, st)
	case types.StateReverted:
		if st.fatal {
			return eventFailed
		}
		return eventNone
	default:
		return eventNone
	}
}

// advance applies one validated edge and records the state change.
func (p *FileProcessor) advance(ctx context.Context, st *run, ev event) {
	next, err := transition(st.task.State, ev)
	if err != nil {
		// an invalid edge is a bug in a step; fail the task instead of
		// spinning
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", st.task.File, err)
		if st.err == nil {
			st.err = err
		}
		st.fatal = false
		next = types.StateFailed
	}
	from := st.task.State
	st.task.State = next

	e, eerr := events.NewStateChangeEvent(p.cfg.RunID, st.task.ID, st.task.File, events.StateChangeData{
		From:    string(from),
		To:      string(next),
		Attempt: st.task.Attempts,
	})
	p.emit(ctx, e, eerr)
}

// unwind handles cancellation observed at a transition boundary. Tasks
// that have not touched the tree end Skipped; tasks past the checkpoint
// revert first and end Reverted.
func (p *FileProcessor) unwind(ctx context.Context, st *run, cause error) {
	st.cancel = cause
	switch st.task.State {
	case types.StateCheckpointed, types.StateFixing, types.StateValidating:
		p.revert(ctx, st, "run canceled")
	}
	p.advance(ctx, st, eventCanceled)
}

// revert restores the checkpointed content. Once the surrounding context
// is canceled the git call runs under a fresh context so cleanup still
// completes.
func (p *FileProcessor) revert(ctx context.Context, st *run, reason string) {
	if st.cp == nil {
		return
	}
	rctx := ctx
	if ctx.Err() != nil {
		rctx = context.Background()
	}
	if err := p.cfg.Git.Revert(rctx, st.cp); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to revert %s: %v\n", st.task.File, err)
	}
	p.emit(rctx, events.NewTaskEvent(events.EventTypeFixReverted, p.cfg.RunID, st.task.ID, st.task.File,
		events.SeverityWarning, fmt.Sprintf("reverted %s: %s", st.task.File, reason),
		map[string]interface{}{"reason": reason, "attempt": st.task.Attempts}), nil)
}

// result builds the task's single terminal outcome.
func (p *FileProcessor) result(st *run, start time.Time) *types.ProcessingResult {
	res := &types.ProcessingResult{
		File:        st.task.File,
		FinalState:  st.task.State,
		IssuesFound: len(st.issues),
		IssuesFixed: st.fixed,
		Attempts:    st.task.Attempts,
		Duration:    time.Since(start),
	}
	switch {
	case st.task.State == types.StateFailed && st.err != nil:
		res.Error = st.err.Error()
	case st.cancel != nil:
		res.Error = st.cancel.Error()
	}
	if res.Error != "" {
		st.task.LastError = res.Error
	}
	return res
}

// emit records an event through the sink. Constructor failures degrade
// to a warning; losing an event must not lose the fix.
func (p *FileProcessor) emit(ctx context.Context, e *events.Event, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to build event: %v\n", err)
		return
	}
	if p.cfg.Events == nil {
		return
	}
	p.cfg.Events.Record(ctx, e)
}

// attemptBudget is the total number of fix attempts a task may spend.
func (p *FileProcessor) attemptBudget() int {
	if p.cfg.MaxRetries < 1 {
		return 1
	}
	return p.cfg.MaxRetries
}

func (p *FileProcessor) abs(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.cfg.RepoPath, file)
}
