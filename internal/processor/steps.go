package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lintfix/lintfix/internal/events"
	"github.com/lintfix/lintfix/internal/fixer"
	"github.com/lintfix/lintfix/internal/git"
	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

func (p *FileProcessor) stepPending(ctx context.Context, st *run) event {
	if !p.cfg.DryRun {
		p.runFormatters(ctx, st)
	}
	return eventDispatched
}

func (p *FileProcessor) stepLinting(ctx context.Context, st *run) event {
	issues, err := p.cfg.Linter.Run(ctx, st.task.File)
	if err != nil {
		if ctx.Err() != nil {
			st.cancel = ctx.Err()
			return eventCanceled
		}
		st.err = fmt.Errorf("lint failed: %w", err)
		return eventFatal
	}
	st.issues = issues

	data := events.LintData{Linters: p.cfg.Linters, IssueCount: len(issues)}
	if dl, ok := p.cfg.Linter.(interface{ DroppedLines() int64 }); ok {
		data.DroppedLines = int(dl.DroppedLines())
	}
	e, eerr := events.NewLintEvent(p.cfg.RunID, st.task.ID, st.task.File, data)
	p.emit(ctx, e, eerr)

	if len(issues) == 0 {
		return eventNoIssues
	}
	return eventIssuesFound
}

func (p *FileProcessor) stepGrouping(ctx context.Context, st *run) event {
	content, err := os.ReadFile(p.abs(st.task.File))
	if err != nil {
		st.err = fmt.Errorf("read for grouping: %w", err)
		return eventFatal
	}
	groups, err := p.cfg.Grouper.Group(ctx, st.task.File, content, st.issues)
	if err != nil {
		if ctx.Err() != nil {
			st.cancel = ctx.Err()
			return eventCanceled
		}
		st.err = fmt.Errorf("grouping failed: %w", err)
		return eventFatal
	}
	st.groups = groups

	top := 0.0
	if len(groups) > 0 {
		top = groups[0].Priority
	}
	p.emit(ctx, events.NewTaskEvent(events.EventTypeIssuesGrouped, p.cfg.RunID, st.task.ID, st.task.File,
		events.SeverityInfo, fmt.Sprintf("grouped %d issues into %d units", len(st.issues), len(groups)),
		map[string]interface{}{"groups": len(groups), "top_priority": top}), nil)

	switch {
	case len(groups) == 0:
		return eventNoGroups
	case p.cfg.DryRun:
		return eventDryRun
	}
	return eventGrouped
}

// stepCheckpointed captures the rollback snapshot on first entry and
// selects the group for the attempt about to start. Re-entries after a
// revert reuse the snapshot: the tree is already back at its content.
func (p *FileProcessor) stepCheckpointed(ctx context.Context, st *run) event {
	if st.cp == nil {
		cp, err := p.cfg.Git.Checkpoint(ctx, st.task.File)
		if err != nil {
			if ctx.Err() != nil {
				st.cancel = ctx.Err()
				return eventCanceled
			}
			st.err = fmt.Errorf("checkpoint failed: %w", err)
			st.fatal = true
			return eventFatal
		}
		st.cp = cp
		p.emit(ctx, events.NewTaskEvent(events.EventTypeCheckpointCreated, p.cfg.RunID, st.task.ID, st.task.File,
			events.SeverityInfo, fmt.Sprintf("checkpointed %s", st.task.File),
			map[string]interface{}{"hash": cp.Hash}), nil)
	}

	st.task.Attempts++
	idx := st.task.Attempts - 1
	st.weak = st.task.Attempts >= p.attemptBudget()
	if idx >= len(st.groups) {
		// groups spent before the budget: retry the top group under the
		// weak model so the attempt differs from the one that failed
		idx = 0
		st.weak = true
	}
	st.group = &st.groups[idx]
	return eventFixStarted
}

func (p *FileProcessor) stepFixing(ctx context.Context, st *run) event {
	content, err := os.ReadFile(p.abs(st.task.File))
	if err != nil {
		st.err = fmt.Errorf("read for fixing: %w", err)
		st.fatal = true
		p.revert(ctx, st, "unreadable file")
		return eventFatal
	}

	prop, err := p.cfg.Fixer.Propose(ctx, &fixer.Request{
		File:      st.task.File,
		Content:   content,
		Group:     *st.group,
		WeakModel: st.weak,
	})
	if err != nil {
		return p.fixFailure(ctx, st, err)
	}

	if err := os.WriteFile(p.abs(st.task.File), prop.Content, st.cp.Mode); err != nil {
		st.err = fmt.Errorf("write fix: %w", err)
		st.fatal = true
		p.revert(ctx, st, "write failed")
		return eventFatal
	}

	diff, err := p.cfg.Git.Diff(ctx, st.task.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to diff %s: %v\n", st.task.File, err)
	}
	st.diff = diff

	p.saveSuggestion(ctx, st, prop)
	p.emit(ctx, events.NewTaskEvent(events.EventTypeFixApplied, p.cfg.RunID, st.task.ID, st.task.File,
		events.SeverityInfo, fmt.Sprintf("applied fix to %s (attempt %d)", st.task.File, st.task.Attempts),
		map[string]interface{}{
			"model":   prop.Model,
			"attempt": st.task.Attempts,
			"scope":   string(st.group.Scope.Kind),
		}), nil)
	return eventFixApplied
}

// stepValidating runs the test command against the applied fix and, if
// it passes, publishes the commit. Black rides along with the fix commit
// here rather than committing on its own: an extra commit between fix
// and validation would break the revert path.
func (p *FileProcessor) stepValidating(ctx context.Context, st *run) event {
	if p.cfg.EnableBlack {
		p.runBlack(ctx, st, false)
	}

	res, err := p.cfg.Executor.Run(ctx, runner.Command{
		Argv:    p.cfg.TestCommand,
		Dir:     p.cfg.RepoPath,
		Timeout: p.cfg.Timeout,
	})
	if err != nil {
		return p.fixFailure(ctx, st, fmt.Errorf("test command: %w", err))
	}
	if p.cfg.Memory != nil && res.PeakMemoryMB > 0 {
		p.cfg.Memory.ReportMemory(st.task.ID, res.PeakMemoryMB)
	}

	passed := res.ExitCode == 0
	sev := events.SeverityInfo
	msg := fmt.Sprintf("validation passed for %s", st.task.File)
	if !passed {
		sev = events.SeverityWarning
		msg = fmt.Sprintf("validation failed for %s (exit %d)", st.task.File, res.ExitCode)
	}
	p.emit(ctx, events.NewTaskEvent(events.EventTypeValidationRun, p.cfg.RunID, st.task.ID, st.task.File,
		sev, msg, map[string]interface{}{
			"exit_code":   res.ExitCode,
			"passed":      passed,
			"duration_ms": res.Duration.Milliseconds(),
		}), nil)

	if !passed {
		return p.retryOrFail(ctx, st,
			fmt.Errorf("tests failed (exit %d): %s", res.ExitCode, failureSummary(res)))
	}
	return p.commitFix(ctx, st)
}

// commitFix commits the validated content. The content hash pins the
// commit to exactly what was validated; a mismatch means another writer
// touched the file and the task must not publish.
func (p *FileProcessor) commitFix(ctx context.Context, st *run) event {
	content, err := os.ReadFile(p.abs(st.task.File))
	if err != nil {
		st.err = fmt.Errorf("read for commit: %w", err)
		st.fatal = true
		p.revert(ctx, st, "unreadable file")
		return eventFatal
	}

	msg := p.commitMessage(ctx, st)
	hash, err := p.cfg.Git.Commit(ctx, st.task.File, msg, git.HashContent(content))
	switch {
	case errors.Is(err, git.ErrNoChanges):
		// the fix reproduced HEAD exactly; burn the attempt
		return p.retryOrFail(ctx, st,
			fmt.Errorf("fix attempt %d left %s unchanged", st.task.Attempts, st.task.File))
	case err != nil:
		return p.fixFailure(ctx, st, fmt.Errorf("commit: %w", err))
	}
	st.commit = hash

	e, eerr := events.NewCommitEvent(p.cfg.RunID, st.task.ID, st.task.File, events.CommitData{Hash: hash, Message: msg})
	p.emit(ctx, e, eerr)

	st.fixed = p.countFixed(ctx, st)
	st.err = nil
	return eventCommitted
}

// fixFailure classifies an attempt error into the retry, fatal, or
// canceled edge. Dangerous patterns, git races, and governor denials
// never retry; everything else burns an attempt like a failed
// validation.
func (p *FileProcessor) fixFailure(ctx context.Context, st *run, err error) event {
	if ctx.Err() != nil {
		st.cancel = ctx.Err()
		p.revert(ctx, st, "run canceled")
		return eventCanceled
	}
	var dpe *types.DangerousPatternError
	var gse *types.GitStateError
	var rle *types.ResourceLimitError
	if errors.As(err, &dpe) || errors.As(err, &gse) || errors.As(err, &rle) {
		st.err = err
		st.fatal = true
		p.revert(ctx, st, err.Error())
		return eventFatal
	}
	return p.retryOrFail(ctx, st, fmt.Errorf("fix attempt %d: %w", st.task.Attempts, err))
}

// retryOrFail reverts the working tree and either loops the task back
// for another attempt or ends it once the budget is spent.
func (p *FileProcessor) retryOrFail(ctx context.Context, st *run, cause error) event {
	st.err = cause
	st.task.LastError = cause.Error()
	p.revert(ctx, st, cause.Error())
	if st.task.Attempts < p.attemptBudget() {
		return eventRetry
	}
	return eventExhausted
}

// commitMessage asks the generator for a message and falls back to the
// deterministic form when unavailable.
func (p *FileProcessor) commitMessage(ctx context.Context, st *run) string {
	if p.cfg.Messages == nil {
		return git.FallbackMessage(st.task.File, len(st.group.Issues))
	}
	resp, err := p.cfg.Messages.GenerateCommitMessage(ctx, git.CommitMessageRequest{
		File:   st.task.File,
		Issues: st.group.Issues,
		Diff:   st.diff,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: commit message generation failed for %s: %v\n", st.task.File, err)
		return git.FallbackMessage(st.task.File, len(st.group.Issues))
	}
	return resp.Message()
}

// countFixed re-lints the committed file to measure what the fix
// resolved. Best effort: a failing re-lint falls back to the size of
// the targeted group.
func (p *FileProcessor) countFixed(ctx context.Context, st *run) int {
	remaining, err := p.cfg.Linter.Run(ctx, st.task.File)
	var n int
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: post-commit lint failed for %s: %v\n", st.task.File, err)
		n = len(st.group.Issues)
	} else {
		n = len(st.issues) - len(remaining)
	}
	if n < 0 {
		n = 0
	}
	if n > len(st.issues) {
		n = len(st.issues)
	}
	return n
}

// saveSuggestion records the fix exchange. Storage failures degrade to
// a warning; losing a record must not lose the fix.
func (p *FileProcessor) saveSuggestion(ctx context.Context, st *run, prop *fixer.Proposal) {
	if p.cfg.Store == nil {
		return
	}
	diff := prop.Diff
	if diff == "" {
		diff = st.diff
	}
	raw, err := json.Marshal(map[string]string{"diff": diff})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to encode suggestion: %v\n", err)
		return
	}
	s := &types.Suggestion{
		File:     st.task.File,
		Question: prop.Prompt,
		Response: string(raw),
		Model:    prop.Model,
	}
	if _, err := p.cfg.Store.Save(ctx, s); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save suggestion: %v\n", err)
	}
}

// failureSummary extracts a one-line reason from test output. pytest
// puts its verdict on the last line; stderr wins when present.
func failureSummary(res *runner.Result) string {
	if s := firstLine(res.Stderr); s != "" {
		return s
	}
	if s := lastLine(res.Stdout); s != "" {
		return s
	}
	return "no output"
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if t := strings.TrimSpace(lines[i]); t != "" {
			return t
		}
	}
	return ""
}
