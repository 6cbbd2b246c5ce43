package types

import (
	"strings"
	"testing"
	"time"
)

func TestIssueValidate(t *testing.T) {
	tests := []struct {
		name    string
		issue   Issue
		wantErr string
	}{
		{
			name: "valid issue",
			issue: Issue{
				File:     "pkg/service.py",
				Line:     42,
				Code:     "W0702",
				Message:  "No exception type(s) specified",
				Severity: SeverityWarning,
				Linter:   "pylint",
			},
		},
		{
			name:    "missing file",
			issue:   Issue{Line: 1, Severity: SeverityError},
			wantErr: "file is required",
		},
		{
			name:    "negative line",
			issue:   Issue{File: "a.py", Line: -3, Severity: SeverityError},
			wantErr: "line cannot be negative",
		},
		{
			name:    "bogus severity",
			issue:   Issue{File: "a.py", Line: 1, Severity: Severity("catastrophic")},
			wantErr: "invalid severity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.issue.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected validation to pass, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation to fail, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error to contain %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestSeverityLikelihoodOrdering(t *testing.T) {
	// Likelihood must decrease monotonically from error down to info so the
	// priority product preserves the risk ordering.
	ordered := []Severity{SeverityError, SeverityWarning, SeverityRefactor, SeverityConvention, SeverityInfo}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Likelihood() >= ordered[i-1].Likelihood() {
			t.Errorf("likelihood of %s (%v) should be below %s (%v)",
				ordered[i], ordered[i].Likelihood(), ordered[i-1], ordered[i-1].Likelihood())
		}
	}
}

func TestStateIsTerminal(t *testing.T) {
	terminal := []State{StateCommitted, StateReverted, StateFailed, StateSkipped}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []State{StatePending, StateLinting, StateGrouping, StateCheckpointed, StateFixing, StateValidating}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.IsValid() {
			t.Errorf("%s should be valid", s)
		}
	}

	if State("exploded").IsValid() {
		t.Error("unknown state should not be valid")
	}
}

func TestScopeContains(t *testing.T) {
	s := Scope{Kind: ScopeFunction, Name: "handler", StartLine: 10, EndLine: 25}

	if !s.Contains(10) || !s.Contains(25) || !s.Contains(17) {
		t.Error("scope should contain its boundary and interior lines")
	}
	if s.Contains(9) || s.Contains(26) {
		t.Error("scope should not contain lines outside its range")
	}
	if s.Span() != 16 {
		t.Errorf("expected span 16, got %d", s.Span())
	}
}

func TestFileTaskValidate(t *testing.T) {
	task := FileTask{
		ID:        "b2f7c1ae",
		File:      "src/main.py",
		State:     StatePending,
		CreatedAt: time.Now(),
	}
	if err := task.Validate(); err != nil {
		t.Errorf("expected valid task, got: %v", err)
	}

	task.State = State("meditating")
	if err := task.Validate(); err == nil {
		t.Error("expected invalid state to fail validation")
	}

	task.State = StatePending
	task.Attempts = -1
	if err := task.Validate(); err == nil {
		t.Error("expected negative attempts to fail validation")
	}
}

func TestProcessingResultValidate(t *testing.T) {
	r := ProcessingResult{
		File:        "src/main.py",
		FinalState:  StateCommitted,
		IssuesFound: 3,
		IssuesFixed: 3,
		Attempts:    1,
	}
	if err := r.Validate(); err != nil {
		t.Errorf("expected valid result, got: %v", err)
	}

	r.FinalState = StateFixing
	if err := r.Validate(); err == nil {
		t.Error("non-terminal final state should fail validation")
	}

	r.FinalState = StateFailed
	r.IssuesFixed = 5
	if err := r.Validate(); err == nil {
		t.Error("fixed > found should fail validation")
	}
}

func TestResourceBudgetValidate(t *testing.T) {
	tests := []struct {
		name    string
		budget  ResourceBudget
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			budget: ResourceBudget{MaxWorkers: 1, MaxMemoryMB: 512, APIRateLimit: 60, CleanupThresholdMB: 400},
		},
		{
			name:    "zero workers",
			budget:  ResourceBudget{MaxWorkers: 0, MaxMemoryMB: 512, APIRateLimit: 60},
			wantErr: true,
		},
		{
			name:    "zero rate limit",
			budget:  ResourceBudget{MaxWorkers: 1, MaxMemoryMB: 512, APIRateLimit: 0},
			wantErr: true,
		},
		{
			name:    "negative cleanup threshold",
			budget:  ResourceBudget{MaxWorkers: 1, MaxMemoryMB: 512, APIRateLimit: 60, CleanupThresholdMB: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.budget.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation to fail")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected validation to pass, got: %v", err)
			}
		})
	}
}
