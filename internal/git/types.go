package git

import (
	"context"

	"github.com/lintfix/lintfix/internal/types"
)

// Operations is the subset of git behavior the fix pipeline depends on.
// This interface is designed to be implementation-agnostic,
// allowing for testing with mock implementations.
type Operations interface {
	// Baseline returns the commit the run started from.
	Baseline(ctx context.Context) (string, error)

	// IsClean reports whether the working tree has no uncommitted changes.
	IsClean(ctx context.Context) (bool, error)

	// Status returns detailed working-tree status information.
	Status(ctx context.Context) (*Status, error)

	// Checkpoint captures a file's exact content so it can be restored.
	Checkpoint(ctx context.Context, file string) (*types.Checkpoint, error)

	// Commit stages only the named file and commits it.
	// Returns the new HEAD hash if successful.
	Commit(ctx context.Context, file, message, wantHash string) (string, error)

	// Revert rewrites the checkpointed file with its captured content.
	Revert(ctx context.Context, cp *types.Checkpoint) error

	// ListTrackedFiles returns every path under version control.
	ListTrackedFiles(ctx context.Context) ([]string, error)

	// Diff returns the unified diff of the file against HEAD.
	Diff(ctx context.Context, file string) (string, error)
}

// Status represents the git status of a repository.
type Status struct {
	// Modified files (staged or unstaged)
	Modified []string

	// Untracked files
	Untracked []string

	// Deleted files
	Deleted []string

	// Added files (staged)
	Added []string

	// Renamed files
	Renamed []string

	// HasChanges is true if any changes exist
	HasChanges bool
}

// CommitMessageRequest contains information for generating a commit message.
type CommitMessageRequest struct {
	// File is the repo-relative path that was fixed
	File string

	// Issues are the lint findings the fix addressed
	Issues []types.Issue

	// Diff is the git diff output (optional, can be large)
	Diff string
}

// CommitMessageResponse contains the AI-generated commit message.
type CommitMessageResponse struct {
	// Subject is the commit subject line (50 chars or less)
	Subject string `json:"subject"`

	// Body is the detailed commit message body
	Body string `json:"body"`

	// Reasoning explains why this message was chosen
	Reasoning string `json:"reasoning"`
}

// Message renders the full commit message.
func (r *CommitMessageResponse) Message() string {
	if r.Body == "" {
		return r.Subject
	}
	return r.Subject + "\n\n" + r.Body
}
