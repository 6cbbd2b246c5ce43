package fixer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

func docstringGroup(file string) types.IssueGroup {
	return types.IssueGroup{
		File:  file,
		Scope: types.Scope{Kind: types.ScopeFunction, Name: "main", StartLine: 3, EndLine: 6},
		Issues: []types.Issue{
			{File: file, Line: 3, Code: "C0116", Message: "Missing function docstring", Severity: types.SeverityConvention, Linter: "pylint"},
		},
	}
}

func TestAiderProposeRunsAider(t *testing.T) {
	repo := t.TempDir()
	fixed := []byte("\"\"\"App.\"\"\"\n\n\ndef main():\n    \"\"\"Run.\"\"\"\n    return 0\n")
	require.NoError(t, os.WriteFile(filepath.Join(repo, "app.py"), fixed, 0o644))

	exec := &fakeExecutor{res: &runner.Result{ExitCode: 0, Stdout: "Applied edit to app.py"}}
	cfg := aiderConfig(exec)
	cfg.RepoPath = repo
	f, err := New(cfg)
	require.NoError(t, err)

	prop, err := f.Propose(context.Background(), &Request{
		File:    "app.py",
		Content: []byte("def main():\n    return 0\n"),
		Group:   docstringGroup("app.py"),
	})
	require.NoError(t, err)

	require.Len(t, exec.cmds, 1)
	cmd := exec.cmds[0]
	assert.Equal(t, repo, cmd.Dir)

	argv := cmd.Argv
	assert.Equal(t, "aider", argv[0])
	assert.Contains(t, argv, "--cache-prompts")
	assert.Contains(t, argv, "--no-auto-commits")
	assert.Equal(t, "app.py", argv[len(argv)-1])
	assert.Equal(t, "openrouter/anthropic/claude-3.5-sonnet:beta", argvValue(argv, "--model"))
	assert.Equal(t, "openrouter/anthropic/claude-3-haiku-20240307", argvValue(argv, "--weak-model"))

	msg := argvValue(argv, "--message")
	assert.True(t, strings.HasPrefix(msg, "Thinking like the worlds greatest programmer, resolve these pylint warnings: "))
	assert.Contains(t, msg, "Refactor function main to address: line 3: C0116 Missing function docstring")

	assert.Equal(t, fixed, prop.Content)
	assert.Empty(t, prop.Diff)
	assert.Equal(t, "openrouter/anthropic/claude-3.5-sonnet:beta", prop.Model)
}

func TestAiderProposeWeakModel(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "app.py"), []byte("x = 1\n"), 0o644))

	exec := &fakeExecutor{res: &runner.Result{ExitCode: 0}}
	cfg := aiderConfig(exec)
	cfg.RepoPath = repo
	f, err := New(cfg)
	require.NoError(t, err)

	prop, err := f.Propose(context.Background(), &Request{
		File:      "app.py",
		Content:   []byte("x = 1\n"),
		Group:     docstringGroup("app.py"),
		WeakModel: true,
	})
	require.NoError(t, err)

	argv := exec.cmds[0].Argv
	assert.Equal(t, "openrouter/anthropic/claude-3-haiku-20240307", argvValue(argv, "--model"))
	assert.Equal(t, "openrouter/anthropic/claude-3-haiku-20240307", prop.Model)
}

func TestAiderProposeNonzeroExit(t *testing.T) {
	exec := &fakeExecutor{res: &runner.Result{ExitCode: 2, Stderr: "model refused\n"}}
	cfg := aiderConfig(exec)
	cfg.RepoPath = t.TempDir()
	f, err := New(cfg)
	require.NoError(t, err)

	_, err = f.Propose(context.Background(), &Request{
		File:    "app.py",
		Content: []byte("x = 1\n"),
		Group:   docstringGroup("app.py"),
	})
	require.Error(t, err)

	var aiErr *types.AIResponseError
	require.ErrorAs(t, err, &aiErr)
	assert.Contains(t, aiErr.Reason, "aider exited 2")
	assert.Contains(t, aiErr.Reason, "model refused")
}

func TestAiderProposeConsumesToken(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "app.py"), []byte("x = 1\n"), 0o644))

	exec := &fakeExecutor{res: &runner.Result{ExitCode: 0}}
	tokens := &fakeTokens{}
	cfg := aiderConfig(exec)
	cfg.RepoPath = repo
	cfg.Tokens = tokens
	f, err := New(cfg)
	require.NoError(t, err)

	_, err = f.Propose(context.Background(), &Request{
		File:    "app.py",
		Content: []byte("x = 1\n"),
		Group:   docstringGroup("app.py"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, tokens.calls)
}

func TestAiderProposeTokenDenied(t *testing.T) {
	exec := &fakeExecutor{}
	tokens := &fakeTokens{err: errors.New("rate limiter shut down")}
	cfg := aiderConfig(exec)
	cfg.Tokens = tokens
	f, err := New(cfg)
	require.NoError(t, err)

	_, err = f.Propose(context.Background(), &Request{
		File:    "app.py",
		Content: []byte("x = 1\n"),
		Group:   docstringGroup("app.py"),
	})
	require.Error(t, err)
	assert.Empty(t, exec.cmds)
}

func TestAiderProposeValidatesRequest(t *testing.T) {
	f, err := New(aiderConfig(&fakeExecutor{}))
	require.NoError(t, err)

	_, err = f.Propose(context.Background(), nil)
	require.Error(t, err)

	_, err = f.Propose(context.Background(), &Request{File: "app.py"})
	require.Error(t, err)

	var valErr *types.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "group", valErr.Field)
}

func TestAnswerFixPrompts(t *testing.T) {
	tests := []struct {
		line  string
		reply string
		ok    bool
	}{
		{"Attempt to fix lint errors? (Y)es/(N)o [Yes]:", "Yes", true},
		{"Allow creation of new file? (Y)es/(N)o [Yes]:", "Yes", true},
		{"Add app.py to the chat? (Y)es/(N)o/(D)on't ask again [Yes]:", "Yes", true},
		{"Allow edits to file that has not been added to the chat? (Y)es/(N)o [Yes]:", "Yes", true},
		{"Attempt to fix test failures? (Y)es/(N)o [Yes]:", "No", true},
		{"Open documentation url for more info? (Y)es/(N)o [Yes]:", "No", true},
		{"Scanning repo:  33%|███", "", false},
	}

	for _, tt := range tests {
		reply, ok := AnswerFixPrompts(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.reply, reply, tt.line)
	}
}
