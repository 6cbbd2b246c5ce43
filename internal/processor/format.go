package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/lintfix/lintfix/internal/events"
	"github.com/lintfix/lintfix/internal/git"
	"github.com/lintfix/lintfix/internal/runner"
)

// runFormatters applies the configured formatter pre-pass before
// linting. Formatter commits land separately from fix commits so a
// later revert never drops pure formatting. Everything here degrades to
// a warning: a formatter that fails must not block remediation.
func (p *FileProcessor) runFormatters(ctx context.Context, st *run) {
	if p.cfg.AutopepFix {
		p.runAutopep8(ctx, st)
	}
	if p.cfg.EnableBlack {
		p.runBlack(ctx, st, true)
	}
}

func (p *FileProcessor) runAutopep8(ctx context.Context, st *run) {
	res, err := p.cfg.Executor.Run(ctx, runner.Command{
		Argv: []string{
			"autopep8",
			fmt.Sprintf("--max-line-length=%d", p.cfg.MaxLineLength),
			"--in-place", "--aggressive", "--aggressive",
			st.task.File,
		},
		Dir:     p.cfg.RepoPath,
		Timeout: p.cfg.Timeout,
	})
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "warning: autopep8 failed on %s: %v\n", st.task.File, err)
		return
	case res.ExitCode != 0:
		fmt.Fprintf(os.Stderr, "warning: autopep8 exited %d on %s\n", res.ExitCode, st.task.File)
		return
	}
	p.commitFormatting(ctx, st, fmt.Sprintf("formatting: ran autopep8 on %s", filepath.Base(st.task.File)))
}

// runBlack formats the file with black. During the pre-pass the result
// is committed on its own; after a fix it rides along with the fix
// commit instead.
func (p *FileProcessor) runBlack(ctx context.Context, st *run, commit bool) {
	res, err := p.cfg.Executor.Run(ctx, runner.Command{
		Argv: []string{
			"black", "--line-length", strconv.Itoa(p.cfg.MaxLineLength),
			st.task.File,
		},
		Dir:     p.cfg.RepoPath,
		Timeout: p.cfg.Timeout,
	})
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "warning: black failed on %s: %v\n", st.task.File, err)
		return
	case res.ExitCode != 0:
		fmt.Fprintf(os.Stderr, "warning: black exited %d on %s\n", res.ExitCode, st.task.File)
		return
	}
	if commit {
		p.commitFormatting(ctx, st, fmt.Sprintf("formatting: ran black on %s", filepath.Base(st.task.File)))
	}
}

// commitFormatting commits a formatter's output. A no-op format is not
// an error; any other failure leaves the change to ride along with the
// fix commit.
func (p *FileProcessor) commitFormatting(ctx context.Context, st *run, message string) {
	content, err := os.ReadFile(p.abs(st.task.File))
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to read %s: %v\n", st.task.File, err)
		return
	}
	hash, err := p.cfg.Git.Commit(ctx, st.task.File, message, git.HashContent(content))
	switch {
	case errors.Is(err, git.ErrNoChanges):
		return
	case err != nil:
		fmt.Fprintf(os.Stderr, "warning: failed to commit formatting for %s: %v\n", st.task.File, err)
		return
	}
	e, eerr := events.NewCommitEvent(p.cfg.RunID, st.task.ID, st.task.File, events.CommitData{Hash: hash, Message: message})
	p.emit(ctx, e, eerr)
}
