package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New creates an event with untyped data. Use the typed constructors when a
// payload struct exists for the event type.
func New(eventType EventType, runID string, severity EventSeverity, message string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		RunID:     runID,
		Severity:  severity,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// NewTaskEvent creates a task-scoped event
func NewTaskEvent(eventType EventType, runID, taskID, file string, severity EventSeverity, message string, data map[string]interface{}) *Event {
	e := New(eventType, runID, severity, message, data)
	e.TaskID = taskID
	e.File = file
	return e
}

// NewStateChangeEvent creates a task_state_changed event with typed data
func NewStateChangeEvent(runID, taskID, file string, data StateChangeData) (*Event, error) {
	e := NewTaskEvent(EventTypeTaskStateChanged, runID, taskID, file, SeverityInfo,
		fmt.Sprintf("%s: %s -> %s", file, data.From, data.To), nil)
	m, err := structToMap(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert StateChangeData: %w", err)
	}
	e.Data = m
	return e, nil
}

// NewLintEvent creates a lint_completed event with typed data
func NewLintEvent(runID, taskID, file string, data LintData) (*Event, error) {
	e := NewTaskEvent(EventTypeLintCompleted, runID, taskID, file, SeverityInfo,
		fmt.Sprintf("found %d issues in %s", data.IssueCount, file), nil)
	m, err := structToMap(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert LintData: %w", err)
	}
	e.Data = m
	return e, nil
}

// NewCommitEvent creates a commit_created event with typed data
func NewCommitEvent(runID, taskID, file string, data CommitData) (*Event, error) {
	e := NewTaskEvent(EventTypeCommitCreated, runID, taskID, file, SeverityInfo,
		fmt.Sprintf("committed %s (%s)", file, shortHash(data.Hash)), nil)
	m, err := structToMap(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert CommitData: %w", err)
	}
	e.Data = m
	return e, nil
}

// GetStateChangeData retrieves StateChangeData from the Data field
func (e *Event) GetStateChangeData() (*StateChangeData, error) {
	var data StateChangeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse StateChangeData: %w", err)
	}
	return &data, nil
}

// GetLintData retrieves LintData from the Data field
func (e *Event) GetLintData() (*LintData, error) {
	var data LintData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse LintData: %w", err)
	}
	return &data, nil
}

// GetCommitData retrieves CommitData from the Data field
func (e *Event) GetCommitData() (*CommitData, error) {
	var data CommitData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CommitData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to a map via JSON round-trip
func structToMap(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// mapToStruct converts a map back into a typed struct via JSON round-trip
func mapToStruct(m map[string]interface{}, dest interface{}) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
