package fixer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

// aiderPreamble fronts every fix request sent to aider.
const aiderPreamble = "Thinking like the worlds greatest programmer, resolve these pylint warnings: "

// aiderFixer drives the aider CLI, which edits the working tree in
// place. The pipeline owns commits, so aider runs with auto-commits off
// and the processor decides what to do with the edited file.
type aiderFixer struct {
	cfg *Config
}

func (f *aiderFixer) Propose(ctx context.Context, req *Request) (*Proposal, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	model := f.cfg.AiderModel
	if req.WeakModel {
		model = f.cfg.AiderWeakModel
	}
	prompt := BuildPrompt(req.Group)

	if err := f.cfg.acquireToken(ctx); err != nil {
		return nil, err
	}

	argv := []string{
		f.cfg.AiderPath,
		"--message", aiderPreamble + prompt,
		"--model", model,
		"--weak-model", f.cfg.AiderWeakModel,
		"--cache-prompts",
		"--no-auto-commits",
		req.File,
	}
	res, err := f.cfg.Executor.RunInteractive(ctx, runner.Command{
		Argv:    argv,
		Dir:     f.cfg.RepoPath,
		Timeout: f.cfg.Timeout,
		Env:     f.cfg.Env,
	}, AnswerFixPrompts)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, &types.AIResponseError{
			Model:  model,
			Reason: fmt.Sprintf("aider exited %d: %s", res.ExitCode, summary(res.Stderr)),
		}
	}

	// Aider edits in place; the proposal reports what it left behind.
	path := req.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.cfg.RepoPath, path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s after aider run: %w", req.File, err)
	}

	return &Proposal{Content: content, Prompt: prompt, Model: model}, nil
}

// AnswerFixPrompts answers aider's confirmation prompts during a fix
// run: fix attempts, file additions, and edits are approved, everything
// else is refused.
func AnswerFixPrompts(line string) (string, bool) {
	if !strings.Contains(line, "?") {
		return "", false
	}
	switch {
	case strings.Contains(line, "Attempt to fix lint errors?"):
		return "Yes", true
	case strings.Contains(line, "Allow creation of new file?"):
		return "Yes", true
	case strings.Contains(line, "to the chat?") && strings.Contains(line, "Add"):
		return "Yes", true
	case strings.Contains(line, "Allow edits to file that has not been added to the chat?"):
		return "Yes", true
	default:
		return "No", true
	}
}
