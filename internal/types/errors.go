package types

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a storage record that does not exist. Callers test
// with errors.Is.
var ErrNotFound = errors.New("record not found")

// ValidationError reports bad configuration or inputs. Fatal to the run:
// nothing is dispatched after one surfaces.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError creates a ValidationError for a named field
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// GitStateError reports a working-tree precondition failure. A dirty tree at
// startup is fatal to the run; a lost race on commit is fatal to the single
// task that hit it.
type GitStateError struct {
	Op     string
	File   string
	Reason string
}

func (e *GitStateError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("git %s failed for %s: %s", e.Op, e.File, e.Reason)
	}
	return fmt.Sprintf("git %s failed: %s", e.Op, e.Reason)
}

// ResourceLimitError reports denied or paused admission. It is a governor
// decision, not an execution failure.
type ResourceLimitError struct {
	Resource string
	Limit    string
	Message  string
}

func (e *ResourceLimitError) Error() string {
	if e.Limit != "" {
		return fmt.Sprintf("resource limit on %s (limit %s): %s", e.Resource, e.Limit, e.Message)
	}
	return fmt.Sprintf("resource limit on %s: %s", e.Resource, e.Message)
}

// CommandExecutionError reports a subprocess that exited nonzero or timed
// out. Retried only when the failure classifies as transient.
type CommandExecutionError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *CommandExecutionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("command %q timed out", e.Command)
	}
	return fmt.Sprintf("command %q exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
}

func (e *CommandExecutionError) Unwrap() error {
	return e.Err
}

// DangerousPatternError reports an argv element that matched the deny list.
// Raised before any process is spawned and never retried.
type DangerousPatternError struct {
	Pattern  string
	Argument string
}

func (e *DangerousPatternError) Error() string {
	return fmt.Sprintf("dangerous pattern %q matched in argument %q", e.Pattern, e.Argument)
}

// AIResponseError reports a malformed or unsafe response from the fixer.
// Treated like a validation failure: the file is reverted and the attempt
// counts against the task's retry budget.
type AIResponseError struct {
	Model  string
	Reason string
}

func (e *AIResponseError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("bad AI response from %s: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("bad AI response: %s", e.Reason)
}
