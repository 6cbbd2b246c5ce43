package events

import (
	"time"
)

// EventType represents the type of event recorded during a remediation run.
type EventType string

const (
	// Run lifecycle events
	// EventTypeRunStarted indicates a remediation run began
	EventTypeRunStarted EventType = "run_started"
	// EventTypeRunCompleted indicates a remediation run finished with a summary
	EventTypeRunCompleted EventType = "run_completed"
	// EventTypeRunCanceled indicates a run stopped early on a cancellation signal
	EventTypeRunCanceled EventType = "run_canceled"

	// Task lifecycle events
	// EventTypeTaskDispatched indicates a worker picked up a file task
	EventTypeTaskDispatched EventType = "task_dispatched"
	// EventTypeTaskStateChanged indicates a file task moved between states
	EventTypeTaskStateChanged EventType = "task_state_changed"
	// EventTypeTaskCompleted indicates a file task reached a terminal state
	EventTypeTaskCompleted EventType = "task_completed"

	// Pipeline step events
	// EventTypeLintCompleted indicates linting finished for a file
	EventTypeLintCompleted EventType = "lint_completed"
	// EventTypeIssuesGrouped indicates issue grouping finished for a file
	EventTypeIssuesGrouped EventType = "issues_grouped"
	// EventTypeCheckpointCreated indicates a pre-modification snapshot was captured
	EventTypeCheckpointCreated EventType = "checkpoint_created"
	// EventTypeFixApplied indicates the fixer modified a file
	EventTypeFixApplied EventType = "fix_applied"
	// EventTypeFixReverted indicates a file was restored to its checkpoint
	EventTypeFixReverted EventType = "fix_reverted"
	// EventTypeValidationRun indicates the test command ran against a fix
	EventTypeValidationRun EventType = "validation_run"
	// EventTypeCommitCreated indicates a validated fix was committed
	EventTypeCommitCreated EventType = "commit_created"

	// Resource governor events
	// EventTypeMemoryPaused indicates admission paused on the memory ceiling
	EventTypeMemoryPaused EventType = "memory_paused"
	// EventTypeCleanupCompleted indicates temp-file cleanup ran
	EventTypeCleanupCompleted EventType = "cleanup_completed"

	// EventTypeError indicates an error occurred
	EventTypeError EventType = "error"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	// SeverityInfo indicates informational events
	SeverityInfo EventSeverity = "info"
	// SeverityWarning indicates potentially problematic events
	SeverityWarning EventSeverity = "warning"
	// SeverityError indicates error events
	SeverityError EventSeverity = "error"
)

// Event is one recorded occurrence in a remediation run. Events are
// persisted through the suggestion store and browsed with `lintfix events`.
type Event struct {
	// ID is the unique identifier for this event
	ID string `json:"id"`
	// Type is the type of event
	Type EventType `json:"type"`
	// RunID identifies the run this event belongs to
	RunID string `json:"run_id"`
	// TaskID identifies the file task, when the event is task-scoped
	TaskID string `json:"task_id,omitempty"`
	// File is the file being processed, when the event is file-scoped
	File string `json:"file,omitempty"`
	// Severity is the severity level of this event
	Severity EventSeverity `json:"severity"`
	// Message is a human-readable description of the event
	Message string `json:"message"`
	// Data contains structured, type-specific data (must be JSON-serializable)
	Data map[string]interface{} `json:"data,omitempty"`
	// CreatedAt is when the event occurred
	CreatedAt time.Time `json:"created_at"`
}

// StateChangeData is the structured payload of task_state_changed events.
type StateChangeData struct {
	// From is the state the task left
	From string `json:"from"`
	// To is the state the task entered
	To string `json:"to"`
	// Attempt is the task's attempt counter at the transition
	Attempt int `json:"attempt"`
}

// LintData is the structured payload of lint_completed events.
type LintData struct {
	// Linters are the backends that ran
	Linters []string `json:"linters"`
	// IssueCount is the number of normalized issues produced
	IssueCount int `json:"issue_count"`
	// DroppedLines counts unparsable output lines that were skipped
	DroppedLines int `json:"dropped_lines,omitempty"`
}

// CommitData is the structured payload of commit_created events.
type CommitData struct {
	// Hash is the created commit
	Hash string `json:"hash"`
	// Message is the commit message used
	Message string `json:"message"`
}
