package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lintfix/lintfix/internal/events"
	"github.com/lintfix/lintfix/internal/fixer"
	"github.com/lintfix/lintfix/internal/git"
	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

// fakeGit backs checkpoint and revert with plain files under dir and
// records every commit request.
type fakeGit struct {
	dir       string
	commits   []fakeCommit
	commitErr error
	reverts   int
	diff      string
}

type fakeCommit struct {
	file     string
	message  string
	wantHash string
}

func (g *fakeGit) Baseline(ctx context.Context) (string, error)    { return "base0000", nil }
func (g *fakeGit) IsClean(ctx context.Context) (bool, error)       { return true, nil }
func (g *fakeGit) Status(ctx context.Context) (*git.Status, error) { return &git.Status{}, nil }

func (g *fakeGit) Checkpoint(ctx context.Context, file string) (*types.Checkpoint, error) {
	content, err := os.ReadFile(filepath.Join(g.dir, file))
	if err != nil {
		return nil, err
	}
	return &types.Checkpoint{
		File:       file,
		Content:    append([]byte(nil), content...),
		Hash:       git.HashContent(content),
		Mode:       0o644,
		CapturedAt: time.Now(),
	}, nil
}

func (g *fakeGit) Commit(ctx context.Context, file, message, wantHash string) (string, error) {
	if g.commitErr != nil {
		return "", g.commitErr
	}
	g.commits = append(g.commits, fakeCommit{file: file, message: message, wantHash: wantHash})
	return fmt.Sprintf("c%07d", len(g.commits)), nil
}

func (g *fakeGit) Revert(ctx context.Context, cp *types.Checkpoint) error {
	g.reverts++
	return os.WriteFile(filepath.Join(g.dir, cp.File), cp.Content, cp.Mode)
}

func (g *fakeGit) ListTrackedFiles(ctx context.Context) ([]string, error) { return nil, nil }
func (g *fakeGit) Diff(ctx context.Context, file string) (string, error)  { return g.diff, nil }

// fakeFixer replays scripted proposals in order; the last entry repeats
// once the script runs out.
type proposeCall struct {
	prop *fixer.Proposal
	err  error
}

type fakeFixer struct {
	script []proposeCall
	reqs   []*fixer.Request
	hook   func()
}

func (f *fakeFixer) Propose(ctx context.Context, req *fixer.Request) (*fixer.Proposal, error) {
	i := len(f.reqs)
	f.reqs = append(f.reqs, req)
	if f.hook != nil {
		f.hook()
	}
	if len(f.script) == 0 {
		return nil, errors.New("fakeFixer: nothing scripted")
	}
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.script[i].prop, f.script[i].err
}

// fakeScanner returns scripted issue sets per call; the re-lint after a
// commit consumes the next entry.
type fakeScanner struct {
	sets  [][]types.Issue
	err   error
	calls int
}

func (s *fakeScanner) Run(ctx context.Context, file string) ([]types.Issue, error) {
	i := s.calls
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if i < len(s.sets) {
		return s.sets[i], nil
	}
	return nil, nil
}

type fakeGrouper struct {
	groups []types.IssueGroup
	err    error
}

func (g *fakeGrouper) Group(ctx context.Context, file string, content []byte, issues []types.Issue) ([]types.IssueGroup, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.groups, nil
}

// fakeRunner serves the test command and formatters with canned results
// keyed on the program name.
type fakeRunner struct {
	results map[string]*runner.Result
	errs    map[string]error
	calls   []runner.Command
}

func (f *fakeRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	f.calls = append(f.calls, cmd)
	if err, ok := f.errs[cmd.Argv[0]]; ok {
		return nil, err
	}
	if res, ok := f.results[cmd.Argv[0]]; ok {
		return res, nil
	}
	return &runner.Result{}, nil
}

func (f *fakeRunner) RunInteractive(ctx context.Context, cmd runner.Command, respond runner.ResponderFunc) (*runner.Result, error) {
	return f.Run(ctx, cmd)
}

func (f *fakeRunner) TempFile(pattern string, content []byte) (string, error) {
	return "", errors.New("fakeRunner has no temp files")
}

type fakeSink struct {
	events []*events.Event
}

func (s *fakeSink) Record(ctx context.Context, e *events.Event) {
	s.events = append(s.events, e)
}

// states returns the To side of every recorded state change, in order.
func (s *fakeSink) states() []string {
	var out []string
	for _, e := range s.events {
		if e.Type != events.EventTypeTaskStateChanged {
			continue
		}
		data, err := e.GetStateChangeData()
		if err != nil {
			continue
		}
		out = append(out, data.To)
	}
	return out
}

type fakeStore struct {
	saved []*types.Suggestion
	err   error
}

func (s *fakeStore) Save(ctx context.Context, sg *types.Suggestion) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.saved = append(s.saved, sg)
	return int64(len(s.saved)), nil
}

type fakeMemory struct {
	reports map[string]int64
	cleared []string
}

func (m *fakeMemory) ReportMemory(taskID string, peakMB int64) { m.reports[taskID] = peakMB }
func (m *fakeMemory) ClearMemory(taskID string)                { m.cleared = append(m.cleared, taskID) }

// harness wires a processor around a real temp file and fakes for every
// seam.
type harness struct {
	repo    string
	git     *fakeGit
	scanner *fakeScanner
	grouper *fakeGrouper
	fix     *fakeFixer
	exec    *fakeRunner
	sink    *fakeSink
	store   *fakeStore
	mem     *fakeMemory
	cfg     *Config
}

func newHarness(t *testing.T, content string) *harness {
	t.Helper()
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "app.py"), []byte(content), 0o644))
	h := &harness{
		repo:    repo,
		git:     &fakeGit{dir: repo, diff: "-old\n+new\n"},
		scanner: &fakeScanner{},
		grouper: &fakeGrouper{},
		fix:     &fakeFixer{},
		exec:    &fakeRunner{results: map[string]*runner.Result{}, errs: map[string]error{}},
		sink:    &fakeSink{},
		store:   &fakeStore{},
		mem:     &fakeMemory{reports: map[string]int64{}},
	}
	h.cfg = &Config{
		RunID:       "run-1",
		Git:         h.git,
		Linter:      h.scanner,
		Grouper:     h.grouper,
		Fixer:       h.fix,
		Executor:    h.exec,
		Events:      h.sink,
		Store:       h.store,
		Memory:      h.mem,
		RepoPath:    repo,
		Linters:     []string{"pylint"},
		TestCommand: []string{"pytest", "-x", "-q"},
		MaxRetries:  3,
	}
	return h
}

func (h *harness) processor(t *testing.T) *FileProcessor {
	t.Helper()
	p, err := New(h.cfg)
	require.NoError(t, err)
	return p
}

func (h *harness) fileContent(t *testing.T) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(h.repo, "app.py"))
	require.NoError(t, err)
	return string(content)
}

func newTask(file string) *types.FileTask {
	return &types.FileTask{
		ID:        "task-1",
		File:      file,
		State:     types.StatePending,
		CreatedAt: time.Now(),
	}
}

func lintFindings(file string, n int) []types.Issue {
	issues := make([]types.Issue, n)
	for i := range issues {
		issues[i] = types.Issue{
			File:     file,
			Line:     i + 1,
			Code:     "C0116",
			Message:  "Missing function or method docstring",
			Severity: types.SeverityConvention,
			Linter:   "pylint",
		}
	}
	return issues
}

func oneGroup(file string, issues []types.Issue) []types.IssueGroup {
	return []types.IssueGroup{{
		File:     file,
		Scope:    types.Scope{Kind: types.ScopeFunction, Name: "main", StartLine: 1, EndLine: 5},
		Issues:   issues,
		Priority: 10,
	}}
}

func TestProcessCommitsValidatedFix(t *testing.T) {
	orig := "def main():\n    return 1\n"
	fixed := "def main():\n    \"\"\"Run the program.\"\"\"\n    return 1\n"
	h := newHarness(t, orig)

	issues := lintFindings("app.py", 2)
	h.scanner.sets = [][]types.Issue{issues, nil} // lint, then post-commit re-lint
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{{prop: &fixer.Proposal{
		Content: []byte(fixed),
		Prompt:  "Refactor function main",
		Model:   "claude-sonnet",
	}}}
	h.exec.results["pytest"] = &runner.Result{ExitCode: 0, PeakMemoryMB: 64, Duration: 2 * time.Second}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateCommitted, res.FinalState)
	assert.Equal(t, 2, res.IssuesFound)
	assert.Equal(t, 2, res.IssuesFixed)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Error)
	assert.NoError(t, res.Validate())

	assert.Equal(t, fixed, h.fileContent(t))

	require.Len(t, h.git.commits, 1)
	commit := h.git.commits[0]
	assert.Equal(t, "app.py", commit.file)
	assert.Equal(t, git.FallbackMessage("app.py", 2), commit.message)
	assert.Equal(t, git.HashContent([]byte(fixed)), commit.wantHash)

	assert.Equal(t,
		[]string{"linting", "grouping", "checkpointed", "fixing", "validating", "committed"},
		h.sink.states())

	// the fixer saw the on-disk content under the primary model
	require.Len(t, h.fix.reqs, 1)
	assert.Equal(t, orig, string(h.fix.reqs[0].Content))
	assert.False(t, h.fix.reqs[0].WeakModel)

	// the exchange was recorded with the working-tree diff
	require.Len(t, h.store.saved, 1)
	assert.Equal(t, "app.py", h.store.saved[0].File)
	assert.Equal(t, "Refactor function main", h.store.saved[0].Question)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(h.store.saved[0].Response), &payload))
	assert.Equal(t, "-old\n+new\n", payload["diff"])

	assert.Equal(t, int64(64), h.mem.reports["task-1"])
	assert.Equal(t, []string{"task-1"}, h.mem.cleared)
}

func TestProcessSkipsCleanFile(t *testing.T) {
	h := newHarness(t, "x = 1\n")

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateSkipped, res.FinalState)
	assert.Zero(t, res.IssuesFound)
	assert.Zero(t, res.Attempts)
	assert.Empty(t, res.Error)
	assert.Empty(t, h.fix.reqs)
	assert.Empty(t, h.git.commits)
	assert.Equal(t, []string{"linting", "skipped"}, h.sink.states())
}

func TestProcessRetriesUntilBudgetExhausted(t *testing.T) {
	orig := "def main():\n    return 1\n"
	h := newHarness(t, orig)
	h.cfg.MaxRetries = 2

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues}
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{{prop: &fixer.Proposal{
		Content: []byte("def main():\n    return 2\n"),
		Prompt:  "Refactor function main",
		Model:   "claude-sonnet",
	}}}
	h.exec.results["pytest"] = &runner.Result{ExitCode: 1, Stdout: "1 failed, 3 passed\n"}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateFailed, res.FinalState)
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, res.Error, "tests failed")
	assert.Contains(t, res.Error, "1 failed, 3 passed")
	assert.Equal(t, res.Error, task.LastError)

	// every attempt was rolled back and the file round-tripped
	assert.Equal(t, 2, h.git.reverts)
	assert.Equal(t, orig, h.fileContent(t))
	assert.Empty(t, h.git.commits)

	// the final attempt fell back to the weak model
	require.Len(t, h.fix.reqs, 2)
	assert.False(t, h.fix.reqs[0].WeakModel)
	assert.True(t, h.fix.reqs[1].WeakModel)

	assert.Equal(t,
		[]string{"linting", "grouping", "checkpointed", "fixing", "validating",
			"checkpointed", "fixing", "validating", "failed"},
		h.sink.states())
}

func TestProcessDangerousPatternBypassesRetries(t *testing.T) {
	orig := "def main():\n    return 1\n"
	h := newHarness(t, orig)

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues}
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{{err: &types.DangerousPatternError{
		Pattern:  "os.system",
		Argument: "os.system('rm -rf /')",
	}}}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateFailed, res.FinalState)
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Error, "dangerous pattern")
	require.Len(t, h.fix.reqs, 1, "a dangerous response must not be retried")
	assert.Equal(t, 1, h.git.reverts)
	assert.Equal(t, orig, h.fileContent(t))
	assert.Equal(t,
		[]string{"linting", "grouping", "checkpointed", "fixing", "reverted", "failed"},
		h.sink.states())
}

func TestProcessMalformedResponseRetriesThenCommits(t *testing.T) {
	orig := "def main():\n    return 1\n"
	fixed := "def main():\n    \"\"\"Run.\"\"\"\n    return 1\n"
	h := newHarness(t, orig)

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues, nil}
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{
		{err: &types.AIResponseError{Model: "claude-sonnet", Reason: "reply contains no diff block"}},
		{prop: &fixer.Proposal{Content: []byte(fixed), Prompt: "Refactor function main", Model: "claude-sonnet"}},
	}
	h.exec.results["pytest"] = &runner.Result{ExitCode: 0}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateCommitted, res.FinalState)
	assert.Equal(t, 2, res.Attempts)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, h.git.reverts)
	require.Len(t, h.git.commits, 1)
	assert.Equal(t, fixed, h.fileContent(t))
}

func TestProcessCommitLostRaceFailsTask(t *testing.T) {
	h := newHarness(t, "def main():\n    return 1\n")
	h.git.commitErr = &types.GitStateError{Op: "commit", File: "app.py", Reason: "file changed since validation"}

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues}
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{{prop: &fixer.Proposal{
		Content: []byte("def main():\n    return 2\n"),
		Prompt:  "Refactor function main",
		Model:   "claude-sonnet",
	}}}
	h.exec.results["pytest"] = &runner.Result{ExitCode: 0}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateFailed, res.FinalState)
	assert.Equal(t, 1, res.Attempts, "a lost race must not be retried")
	assert.Contains(t, res.Error, "git commit failed")
	assert.Equal(t, 1, h.git.reverts)
	assert.Empty(t, h.git.commits)
}

func TestProcessUnchangedFixBurnsAttempt(t *testing.T) {
	h := newHarness(t, "def main():\n    return 1\n")
	h.cfg.MaxRetries = 2
	h.git.commitErr = git.ErrNoChanges

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues}
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{{prop: &fixer.Proposal{
		Content: []byte("def main():\n    return 1\n"),
		Prompt:  "Refactor function main",
		Model:   "claude-sonnet",
	}}}
	h.exec.results["pytest"] = &runner.Result{ExitCode: 0}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateFailed, res.FinalState)
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, res.Error, "unchanged")
}

func TestProcessDryRunStopsAfterGrouping(t *testing.T) {
	orig := "def main():\n    return 1\n"
	h := newHarness(t, orig)
	h.cfg.DryRun = true
	h.cfg.Fixer = nil
	h.cfg.Executor = nil
	h.cfg.TestCommand = nil
	h.cfg.AutopepFix = true // must not run without an executor

	issues := lintFindings("app.py", 2)
	h.scanner.sets = [][]types.Issue{issues}
	h.grouper.groups = oneGroup("app.py", issues)

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateSkipped, res.FinalState)
	assert.Equal(t, 2, res.IssuesFound)
	assert.Zero(t, res.Attempts)
	assert.Empty(t, h.git.commits)
	assert.Equal(t, orig, h.fileContent(t))
	assert.Equal(t, []string{"linting", "grouping", "skipped"}, h.sink.states())
}

func TestProcessCanceledBeforeStartSkips(t *testing.T) {
	h := newHarness(t, "x = 1\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := newTask("app.py")
	res := h.processor(t).Process(ctx, task)

	require.Equal(t, types.StateSkipped, res.FinalState)
	assert.Equal(t, context.Canceled.Error(), res.Error)
	assert.Zero(t, h.scanner.calls, "nothing runs after cancellation")
	assert.Empty(t, h.exec.calls)
}

func TestProcessCanceledMidFixReverts(t *testing.T) {
	orig := "def main():\n    return 1\n"
	h := newHarness(t, orig)

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues}
	h.grouper.groups = oneGroup("app.py", issues)

	ctx, cancel := context.WithCancel(context.Background())
	h.fix.hook = cancel
	h.fix.script = []proposeCall{{err: context.Canceled}}

	task := newTask("app.py")
	res := h.processor(t).Process(ctx, task)

	require.Equal(t, types.StateReverted, res.FinalState)
	assert.Equal(t, context.Canceled.Error(), res.Error)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, h.git.reverts)
	assert.Equal(t, orig, h.fileContent(t))
	assert.Empty(t, h.git.commits)
}

func TestProcessRunsFormatterPrePass(t *testing.T) {
	h := newHarness(t, "x = 1\n")
	h.cfg.AutopepFix = true
	h.cfg.EnableBlack = true

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateSkipped, res.FinalState) // no issues after formatting

	require.Len(t, h.exec.calls, 2)
	autopep := h.exec.calls[0]
	assert.Equal(t, []string{"autopep8", "--max-line-length=100", "--in-place",
		"--aggressive", "--aggressive", "app.py"}, autopep.Argv)
	assert.Equal(t, h.repo, autopep.Dir)
	black := h.exec.calls[1]
	assert.Equal(t, []string{"black", "--line-length", "100", "app.py"}, black.Argv)

	require.Len(t, h.git.commits, 2)
	assert.Equal(t, "formatting: ran autopep8 on app.py", h.git.commits[0].message)
	assert.Equal(t, "formatting: ran black on app.py", h.git.commits[1].message)
}

func TestProcessBlackRidesAlongWithFixCommit(t *testing.T) {
	fixed := "def main():\n    \"\"\"Run.\"\"\"\n    return 1\n"
	h := newHarness(t, "def main():\n    return 1\n")
	h.cfg.EnableBlack = true

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues, nil}
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{{prop: &fixer.Proposal{
		Content: []byte(fixed),
		Prompt:  "Refactor function main",
		Model:   "claude-sonnet",
	}}}
	h.exec.results["pytest"] = &runner.Result{ExitCode: 0}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateCommitted, res.FinalState)

	// pre-pass black commits on its own; the post-fix run must not
	var messages []string
	for _, c := range h.git.commits {
		messages = append(messages, c.message)
	}
	require.Len(t, messages, 2)
	assert.Equal(t, "formatting: ran black on app.py", messages[0])
	assert.Equal(t, git.FallbackMessage("app.py", 1), messages[1])

	// black ran twice: before linting and again before validation
	var blackRuns int
	for _, c := range h.exec.calls {
		if c.Argv[0] == "black" {
			blackRuns++
		}
	}
	assert.Equal(t, 2, blackRuns)
}

func TestProcessUsesCommitMessenger(t *testing.T) {
	fixed := "def main():\n    \"\"\"Run.\"\"\"\n    return 1\n"
	h := newHarness(t, "def main():\n    return 1\n")
	messenger := &fakeMessenger{resp: &git.CommitMessageResponse{
		Subject: "fix: add docstring to main",
		Body:    "pylint C0116 flagged the missing docstring.",
	}}
	h.cfg.Messages = messenger

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues, nil}
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{{prop: &fixer.Proposal{
		Content: []byte(fixed),
		Prompt:  "Refactor function main",
		Model:   "claude-sonnet",
	}}}
	h.exec.results["pytest"] = &runner.Result{ExitCode: 0}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateCommitted, res.FinalState)
	require.Len(t, h.git.commits, 1)
	assert.Equal(t, "fix: add docstring to main\n\npylint C0116 flagged the missing docstring.",
		h.git.commits[0].message)
	require.Len(t, messenger.reqs, 1)
	assert.Equal(t, "app.py", messenger.reqs[0].File)
	assert.Equal(t, "-old\n+new\n", messenger.reqs[0].Diff)
}

func TestProcessMessengerFailureFallsBack(t *testing.T) {
	fixed := "def main():\n    \"\"\"Run.\"\"\"\n    return 1\n"
	h := newHarness(t, "def main():\n    return 1\n")
	h.cfg.Messages = &fakeMessenger{err: errors.New("api unavailable")}

	issues := lintFindings("app.py", 1)
	h.scanner.sets = [][]types.Issue{issues, nil}
	h.grouper.groups = oneGroup("app.py", issues)
	h.fix.script = []proposeCall{{prop: &fixer.Proposal{
		Content: []byte(fixed),
		Prompt:  "Refactor function main",
		Model:   "claude-sonnet",
	}}}
	h.exec.results["pytest"] = &runner.Result{ExitCode: 0}

	task := newTask("app.py")
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateCommitted, res.FinalState)
	require.Len(t, h.git.commits, 1)
	assert.Equal(t, git.FallbackMessage("app.py", 1), h.git.commits[0].message)
}

type fakeMessenger struct {
	resp *git.CommitMessageResponse
	err  error
	reqs []git.CommitMessageRequest
}

func (m *fakeMessenger) GenerateCommitMessage(ctx context.Context, req git.CommitMessageRequest) (*git.CommitMessageResponse, error) {
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestNewRequiresCoreSeams(t *testing.T) {
	h := newHarness(t, "x = 1\n")

	h.cfg.Git = nil
	_, err := New(h.cfg)
	var verr *types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "git", verr.Field)

	h = newHarness(t, "x = 1\n")
	h.cfg.Fixer = nil
	_, err = New(h.cfg)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "fixer", verr.Field)

	// dry runs need no fixer at all
	h.cfg.DryRun = true
	_, err = New(h.cfg)
	require.NoError(t, err)
}

func TestProcessRejectsNonPendingTask(t *testing.T) {
	h := newHarness(t, "x = 1\n")

	task := newTask("app.py")
	task.State = types.StateCommitted
	res := h.processor(t).Process(context.Background(), task)

	require.Equal(t, types.StateFailed, res.FinalState)
	assert.Contains(t, res.Error, "dispatched in state")
	assert.Zero(t, h.scanner.calls)
}
