package git

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lintfix/lintfix/internal/types"
)

// ErrNoChanges is returned by Commit when the file matches HEAD and there
// is nothing to record.
var ErrNoChanges = errors.New("no changes to commit")

// Manager implements Operations using the git CLI, bound to one repository.
type Manager struct {
	// gitPath is the path to the git executable
	gitPath  string
	repoPath string

	// mu serializes index mutations: git takes a repo-wide index.lock for
	// add/commit, so concurrent workers must not interleave them.
	mu sync.Mutex
}

var _ Operations = (*Manager)(nil)

// New creates a Manager for the repository at repoPath.
// It verifies that git is available and that repoPath is inside a work tree.
func New(ctx context.Context, repoPath string) (*Manager, error) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		return nil, fmt.Errorf("git not found in PATH: %w", err)
	}

	// Verify git works
	cmd := exec.CommandContext(ctx, gitPath, "version")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed: %w", err)
	}

	abs, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo path %s: %w", repoPath, err)
	}

	m := &Manager{gitPath: gitPath, repoPath: abs}
	out, err := m.run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(out) != "true" {
		return nil, &types.GitStateError{
			Op:     "verify",
			Reason: fmt.Sprintf("%s is not inside a git work tree", abs),
		}
	}
	return m, nil
}

// RepoPath returns the absolute repository path the manager is bound to.
func (m *Manager) RepoPath() string {
	return m.repoPath
}

// Baseline returns the commit the run started from.
func (m *Manager) Baseline(ctx context.Context) (string, error) {
	out, err := m.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// IsClean reports whether the working tree has no uncommitted changes.
func (m *Manager) IsClean(ctx context.Context) (bool, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return false, err
	}
	return !status.HasChanges, nil
}

// Status returns the git status of the repository.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	// Use git status --porcelain for machine-readable output
	out, err := m.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	status := &Status{
		Modified:   []string{},
		Untracked:  []string{},
		Deleted:    []string{},
		Added:      []string{},
		Renamed:    []string{},
		HasChanges: false,
	}

	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 3 {
			continue
		}

		statusCode := line[0:2]
		filePath := line[3:]

		// Parse status codes: XY where X=index, Y=working tree
		// Reference: https://git-scm.com/docs/git-status#_short_format
		switch {
		case strings.HasPrefix(statusCode, "??"):
			status.Untracked = append(status.Untracked, filePath)
		case strings.HasPrefix(statusCode, "A "), strings.HasPrefix(statusCode, "AM"):
			status.Added = append(status.Added, filePath)
		case strings.HasPrefix(statusCode, "M "), strings.HasPrefix(statusCode, " M"), strings.HasPrefix(statusCode, "MM"):
			status.Modified = append(status.Modified, filePath)
		case strings.HasPrefix(statusCode, "D "), strings.HasPrefix(statusCode, " D"):
			status.Deleted = append(status.Deleted, filePath)
		case strings.HasPrefix(statusCode, "R "):
			status.Renamed = append(status.Renamed, filePath)
		default:
			// Other changes (copied, updated but unmerged, etc.)
			status.Modified = append(status.Modified, filePath)
		}

		status.HasChanges = true
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git status: %w", err)
	}

	return status, nil
}

// Checkpoint captures the file's exact content, content hash, and mode.
// It is a content capture, not a branch switch, so checkpoints on disjoint
// files never block each other.
func (m *Manager) Checkpoint(ctx context.Context, file string) (*types.Checkpoint, error) {
	full := filepath.Join(m.repoPath, file)
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", file, err)
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return &types.Checkpoint{
		File:       file,
		Content:    content,
		Hash:       HashContent(content),
		Mode:       info.Mode(),
		CapturedAt: time.Now(),
	}, nil
}

// Commit stages only the named file and commits it, returning the new HEAD.
// wantHash is the content hash the caller produced when it applied the fix;
// a mismatch against the on-disk state means another writer got there first
// and nothing is committed. ErrNoChanges is returned when the file matches
// HEAD.
func (m *Manager) Commit(ctx context.Context, file, message, wantHash string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message is required")
	}

	content, err := os.ReadFile(filepath.Join(m.repoPath, file))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	if wantHash != "" && HashContent(content) != wantHash {
		return "", &types.GitStateError{
			Op:     "commit",
			File:   file,
			Reason: "file changed on disk after the fix was applied",
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.run(ctx, "add", "--", file); err != nil {
		return "", err
	}
	staged, err := m.stagedChanges(ctx, file)
	if err != nil {
		return "", err
	}
	if !staged {
		return "", ErrNoChanges
	}
	if _, err := m.run(ctx, "commit", "-m", message, "--", file); err != nil {
		return "", err
	}
	return m.Baseline(ctx)
}

// Revert rewrites the checkpointed file with its captured content. Calling
// it again, or on a file that never changed, is a no-op write.
func (m *Manager) Revert(ctx context.Context, cp *types.Checkpoint) error {
	if cp == nil {
		return fmt.Errorf("checkpoint is required")
	}
	mode := cp.Mode.Perm()
	if mode == 0 {
		mode = 0o644
	}
	full := filepath.Join(m.repoPath, cp.File)
	if err := os.WriteFile(full, cp.Content, mode); err != nil {
		return fmt.Errorf("failed to restore %s: %w", cp.File, err)
	}
	return nil
}

// ListTrackedFiles returns every path under version control.
func (m *Manager) ListTrackedFiles(ctx context.Context) ([]string, error) {
	out, err := m.run(ctx, "ls-files")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// Diff returns the unified diff of the file's working state against HEAD.
// This can be used to provide context to the AI for commit message generation.
func (m *Manager) Diff(ctx context.Context, file string) (string, error) {
	return m.run(ctx, "diff", "--", file)
}

// run executes a git subcommand with -C repoPath and returns its stdout.
func (m *Manager) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, m.gitPath, append([]string{"-C", m.repoPath}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("git %s failed in %s: %w: %s",
				args[0], m.repoPath, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s failed in %s: %w", args[0], m.repoPath, err)
	}
	return string(output), nil
}

// stagedChanges reports whether the file has staged modifications.
func (m *Manager) stagedChanges(ctx context.Context, file string) (bool, error) {
	cmd := exec.CommandContext(ctx, m.gitPath, "-C", m.repoPath, "diff", "--cached", "--quiet", "--", file)
	err := cmd.Run()
	if err == nil {
		return false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, nil
	}
	return false, fmt.Errorf("git diff --cached failed in %s: %w", m.repoPath, err)
}

// HashContent returns the hex SHA-256 of content. Checkpoints and the
// commit lost-race check use the same scheme.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
