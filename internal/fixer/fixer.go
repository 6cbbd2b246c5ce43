// Package fixer turns grouped lint findings into concrete code changes,
// either by driving the aider CLI against the working tree or by asking
// the Anthropic API for a unified diff that is applied in memory.
//
// The package also houses the Interrogator, the read-only ask mode that
// answers questions about a code snippet and records the exchange in the
// suggestion store.
package fixer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

// Request carries one remediation attempt against a single file.
type Request struct {
	// File is the path being fixed, relative to the repository root
	File string

	// Content is the working-tree content at dispatch time
	Content []byte

	// Group is the batch of issues this attempt should address
	Group types.IssueGroup

	// WeakModel switches the aider backend to its fallback model;
	// set for the final attempt on a file
	WeakModel bool
}

// Proposal is a fixer's answer: the proposed file content plus how it
// was produced.
type Proposal struct {
	// Content is the full proposed file content
	Content []byte

	// Diff is the unified diff the model produced. Empty for aider,
	// which edits the working tree in place.
	Diff string

	// Prompt is the instruction the backend was driven with
	Prompt string

	// Model that produced the proposal
	Model string
}

// Fixer proposes a remediation for one issue group.
type Fixer interface {
	Propose(ctx context.Context, req *Request) (*Proposal, error)
}

// TokenSource gates model invocations. Satisfied by resources.Manager.
type TokenSource interface {
	AcquireToken(ctx context.Context) error
}

// SuggestionStore persists ask-mode exchanges. Satisfied by
// storage.Store.
type SuggestionStore interface {
	Save(ctx context.Context, s *types.Suggestion) (int64, error)
}

// Config holds the settings shared by the fix backends and the
// Interrogator.
type Config struct {
	// Backend selects the implementation (default: config.FixerAider)
	Backend string

	// Executor runs the aider subprocess; required for the aider
	// backend
	Executor runner.Executor

	// Client is the Anthropic API client; required for the anthropic
	// backend
	Client *anthropic.Client

	// Tokens, when set, is consulted before every model invocation
	Tokens TokenSource

	// Store, when set, receives ask-mode exchanges
	Store SuggestionStore

	// RepoPath is the repository the fixes land in (default: ".")
	RepoPath string

	// AiderPath is the aider executable (default: "aider")
	AiderPath string

	// AiderModel and AiderWeakModel are the primary and fallback
	// models passed to aider
	AiderModel     string
	AiderWeakModel string

	// AnthropicModel is the model used by the anthropic backend and
	// by ask mode when it answers through the API
	AnthropicModel string

	// Env is appended to the aider process environment, e.g.
	// virtualenv activation overrides
	Env []string

	// Timeout bounds each backend invocation; zero uses the executor
	// default
	Timeout time.Duration

	// Patterns is the deny list applied to generated code
	// (default: config.DefaultDangerousPatterns)
	Patterns map[string][]string

	// MaxCodeLength and MaxQuestionLength bound ask-mode inputs
	// (defaults: 50000 / 1000)
	MaxCodeLength     int
	MaxQuestionLength int
}

// withDefaults fills zero fields and validates what the selected backend
// needs. It returns a copy so callers can reuse one Config for both the
// fixer and the Interrogator.
func (c *Config) withDefaults() (*Config, error) {
	if c == nil {
		return nil, types.NewValidationError("config", "is required")
	}
	out := *c
	if out.Backend == "" {
		out.Backend = config.FixerAider
	}
	if out.RepoPath == "" {
		out.RepoPath = "."
	}
	if out.AiderPath == "" {
		out.AiderPath = "aider"
	}
	if out.Patterns == nil {
		out.Patterns = config.DefaultDangerousPatterns()
	}
	if out.MaxCodeLength <= 0 {
		out.MaxCodeLength = 50000
	}
	if out.MaxQuestionLength <= 0 {
		out.MaxQuestionLength = 1000
	}

	switch out.Backend {
	case config.FixerAider:
		if out.Executor == nil {
			return nil, types.NewValidationError("executor", "is required for the aider fixer")
		}
		if out.AiderModel == "" || out.AiderWeakModel == "" {
			return nil, types.NewValidationError("aider_model", "primary and weak models are required")
		}
	case config.FixerAnthropic:
		if out.Client == nil {
			return nil, types.NewValidationError("client", "is required for the anthropic fixer")
		}
		if out.AnthropicModel == "" {
			return nil, types.NewValidationError("anthropic_model", "is required for the anthropic fixer")
		}
	default:
		return nil, types.NewValidationError("fixer", "unsupported fixer %q (want aider or anthropic)", out.Backend)
	}
	return &out, nil
}

// New returns the fixer named by cfg.Backend.
func New(cfg *Config) (Fixer, error) {
	c, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if c.Backend == config.FixerAnthropic {
		return &anthropicFixer{cfg: c, retryAttempts: 3}, nil
	}
	return &aiderFixer{cfg: c}, nil
}

// BuildPrompt phrases an issue group as a fix instruction. Function and
// class groups name the scope, category groups name the category, and
// module spill groups just list the findings.
func BuildPrompt(group types.IssueGroup) string {
	list := issueList(group.Issues)
	switch {
	case group.Scope.Kind == types.ScopeFunction && group.Scope.Name != "":
		return "Refactor function " + group.Scope.Name + " to address: " + list
	case group.Scope.Kind == types.ScopeClass && group.Scope.Name != "":
		return "Refactor class " + group.Scope.Name + " to address: " + list
	case group.Scope.Name != "":
		return "Refactor to address " + group.Scope.Name + " issues: " + list
	default:
		return "Address the following issues:\n" + list
	}
}

func issueList(issues []types.Issue) string {
	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		lines = append(lines, fmt.Sprintf("line %d: %s %s", issue.Line, issue.Code, issue.Message))
	}
	return strings.Join(lines, "\n")
}

func validateRequest(req *Request) error {
	if req == nil {
		return types.NewValidationError("request", "is required")
	}
	if req.File == "" {
		return types.NewValidationError("file", "is required")
	}
	if len(req.Group.Issues) == 0 {
		return types.NewValidationError("group", "has no issues")
	}
	return nil
}

func (c *Config) acquireToken(ctx context.Context) error {
	if c.Tokens == nil {
		return nil
	}
	return c.Tokens.AcquireToken(ctx)
}

// retryCall runs fn up to attempts times, stopping early on success or a
// canceled context.
func retryCall(ctx context.Context, attempts int, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}

func summary(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return "(no output)"
}
