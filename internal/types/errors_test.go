package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorTaxonomyAs(t *testing.T) {
	// Every taxonomy error must survive %w wrapping and come back out
	// through errors.As at a component boundary.
	wrapped := fmt.Errorf("processing src/main.py: %w", &DangerousPatternError{
		Pattern:  "rm -rf",
		Argument: "rm -rf /",
	})

	var dpe *DangerousPatternError
	if !errors.As(wrapped, &dpe) {
		t.Fatal("errors.As failed to unwrap DangerousPatternError")
	}
	if dpe.Pattern != "rm -rf" {
		t.Errorf("expected pattern %q, got %q", "rm -rf", dpe.Pattern)
	}
}

func TestCommandExecutionErrorUnwrap(t *testing.T) {
	inner := errors.New("signal: killed")
	cmdErr := &CommandExecutionError{
		Command:  "pylint src/main.py",
		ExitCode: -1,
		TimedOut: true,
		Err:      inner,
	}

	if !errors.Is(cmdErr, inner) {
		t.Error("CommandExecutionError should unwrap to its cause")
	}
	if !strings.Contains(cmdErr.Error(), "timed out") {
		t.Errorf("timeout error should say so, got: %v", cmdErr)
	}

	cmdErr.TimedOut = false
	cmdErr.ExitCode = 2
	cmdErr.Stderr = "fatal: not a git repository"
	if !strings.Contains(cmdErr.Error(), "code 2") {
		t.Errorf("exit error should carry the code, got: %v", cmdErr)
	}
}

func TestValidationErrorMessages(t *testing.T) {
	withField := NewValidationError("max_workers", "must be at least 1 (got %d)", 0)
	if !strings.Contains(withField.Error(), "max_workers") {
		t.Errorf("expected field name in message, got: %v", withField)
	}

	bare := &ValidationError{Message: "config file unreadable"}
	if !strings.Contains(bare.Error(), "config file unreadable") {
		t.Errorf("unexpected message: %v", bare)
	}
}

func TestGitStateErrorMessages(t *testing.T) {
	dirty := &GitStateError{Op: "precheck", Reason: "working tree has uncommitted changes"}
	if !strings.Contains(dirty.Error(), "precheck") {
		t.Errorf("expected op in message, got: %v", dirty)
	}

	race := &GitStateError{Op: "commit", File: "src/main.py", Reason: "file changed since checkpoint"}
	if !strings.Contains(race.Error(), "src/main.py") {
		t.Errorf("expected file in message, got: %v", race)
	}
}

func TestAIResponseErrorMessages(t *testing.T) {
	e := &AIResponseError{Model: "claude-sonnet-4-5", Reason: "patch targets a different file"}
	if !strings.Contains(e.Error(), "claude-sonnet-4-5") || !strings.Contains(e.Error(), "different file") {
		t.Errorf("unexpected message: %v", e)
	}
}
