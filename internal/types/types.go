package types

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"time"
)

// Issue is a single linter-reported defect at a file/line. Immutable once
// produced by a LinterRunner backend.
type Issue struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column,omitempty"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Linter   string   `json:"linter"`
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if i.File == "" {
		return fmt.Errorf("file is required")
	}
	if i.Line < 0 {
		return fmt.Errorf("line cannot be negative (got %d)", i.Line)
	}
	if !i.Severity.IsValid() {
		return fmt.Errorf("invalid severity: %s", i.Severity)
	}
	return nil
}

// Severity classifies how serious a linter finding is
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeverityRefactor   Severity = "refactor"
	SeverityConvention Severity = "convention"
	SeverityInfo       Severity = "info"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityError, SeverityWarning, SeverityRefactor, SeverityConvention, SeverityInfo:
		return true
	}
	return false
}

// Likelihood maps a severity onto the 1-5 risk scale used for group
// prioritization. Higher means the finding is more likely to bite.
func (s Severity) Likelihood() float64 {
	switch s {
	case SeverityError:
		return 5
	case SeverityWarning:
		return 4
	case SeverityRefactor:
		return 3
	case SeverityConvention:
		return 2
	default:
		return 1
	}
}

// ScopeKind identifies the syntactic container an issue falls in
type ScopeKind string

const (
	ScopeModule   ScopeKind = "module"
	ScopeClass    ScopeKind = "class"
	ScopeFunction ScopeKind = "function"
)

// IsValid checks if the scope kind value is valid
func (k ScopeKind) IsValid() bool {
	switch k {
	case ScopeModule, ScopeClass, ScopeFunction:
		return true
	}
	return false
}

// Scope is a named line range in a source file (function, class, or the
// whole module). Lines are 1-indexed and inclusive.
type Scope struct {
	Kind      ScopeKind `json:"kind"`
	Name      string    `json:"name"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
}

// Contains reports whether line falls inside the scope's range
func (s Scope) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

// Span returns the number of lines the scope covers
func (s Scope) Span() int {
	return s.EndLine - s.StartLine + 1
}

// IssueGroup clusters issues by enclosing code scope with a computed
// remediation priority. Built fresh per processing attempt, never persisted.
type IssueGroup struct {
	File     string  `json:"file"`
	Scope    Scope   `json:"scope"`
	Issues   []Issue `json:"issues"`
	Priority float64 `json:"priority"`
}

// State is the lifecycle state of a FileTask
type State string

const (
	StatePending      State = "pending"
	StateLinting      State = "linting"
	StateGrouping     State = "grouping"
	StateCheckpointed State = "checkpointed"
	StateFixing       State = "fixing"
	StateValidating   State = "validating"
	StateCommitted    State = "committed"
	StateReverted     State = "reverted"
	StateFailed       State = "failed"
	StateSkipped      State = "skipped"
)

// IsValid checks if the state value is valid
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateLinting, StateGrouping, StateCheckpointed,
		StateFixing, StateValidating, StateCommitted, StateReverted,
		StateFailed, StateSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether the state ends a task's lifecycle
func (s State) IsTerminal() bool {
	switch s {
	case StateCommitted, StateReverted, StateFailed, StateSkipped:
		return true
	}
	return false
}

// FileTask is the unit of work representing one file's remediation attempt.
// Created by the Agent at discovery, owned by exactly one worker, destroyed
// when a terminal state is reached and the result is recorded.
type FileTask struct {
	ID        string    `json:"id"`
	File      string    `json:"file"`
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the task has valid field values
func (t *FileTask) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.File == "" {
		return fmt.Errorf("file is required")
	}
	if !t.State.IsValid() {
		return fmt.Errorf("invalid state: %s", t.State)
	}
	if t.Attempts < 0 {
		return fmt.Errorf("attempts cannot be negative (got %d)", t.Attempts)
	}
	return nil
}

// Checkpoint is a saved pre-modification snapshot of a file enabling exact
// revert. Owned by the GitManager for the duration of one FileTask and
// discarded after commit or revert.
type Checkpoint struct {
	File       string      `json:"file"`
	Content    []byte      `json:"-"`
	Hash       string      `json:"hash"`
	Mode       fs.FileMode `json:"mode"`
	CapturedAt time.Time   `json:"captured_at"`
}

// ProcessingResult records one file's terminal outcome. Exactly one is
// produced per task, at the terminal transition.
type ProcessingResult struct {
	File        string        `json:"file"`
	FinalState  State         `json:"final_state"`
	IssuesFound int           `json:"issues_found"`
	IssuesFixed int           `json:"issues_fixed"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// Validate checks if the result has valid field values
func (r *ProcessingResult) Validate() error {
	if r.File == "" {
		return fmt.Errorf("file is required")
	}
	if !r.FinalState.IsTerminal() {
		return fmt.Errorf("final state must be terminal (got %s)", r.FinalState)
	}
	if r.IssuesFixed > r.IssuesFound {
		return fmt.Errorf("issues_fixed (%d) cannot exceed issues_found (%d)", r.IssuesFixed, r.IssuesFound)
	}
	return nil
}

// Suggestion is one stored AI exchange: the question put to the model and
// the response it gave, tied to the file it concerned.
type Suggestion struct {
	ID       int64  `json:"id"`
	File     string `json:"file"`
	Question string `json:"question"`
	// Response is a JSON document; plain-text answers are wrapped by the
	// caller before saving.
	Response  string    `json:"response"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks if the suggestion has valid field values
func (s *Suggestion) Validate() error {
	if s.File == "" {
		return NewValidationError("file", "is required")
	}
	if s.Question == "" {
		return NewValidationError("question", "is required")
	}
	if s.Model == "" {
		return NewValidationError("model", "is required")
	}
	if !json.Valid([]byte(s.Response)) {
		return NewValidationError("response", "must be a valid JSON document")
	}
	return nil
}

// ResourceBudget holds the configured ceilings the ResourceManager enforces.
// Live counters stay inside the manager; this is the immutable half.
type ResourceBudget struct {
	MaxWorkers         int `json:"max_workers"`
	MaxMemoryMB        int `json:"max_memory_mb"`
	APIRateLimit       int `json:"api_rate_limit"` // calls per minute
	CleanupThresholdMB int `json:"cleanup_threshold_mb"`
}

// Validate checks if the budget has valid field values
func (b *ResourceBudget) Validate() error {
	if b.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1 (got %d)", b.MaxWorkers)
	}
	if b.MaxMemoryMB < 1 {
		return fmt.Errorf("max_memory_mb must be positive (got %d)", b.MaxMemoryMB)
	}
	if b.APIRateLimit < 1 {
		return fmt.Errorf("api_rate_limit must be at least 1 (got %d)", b.APIRateLimit)
	}
	if b.CleanupThresholdMB < 0 {
		return fmt.Errorf("cleanup_threshold_mb cannot be negative (got %d)", b.CleanupThresholdMB)
	}
	return nil
}
