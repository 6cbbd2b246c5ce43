// Package issues clusters linter findings into remediation groups.
//
// Small finding sets go out as a single group; mid-sized sets are grouped
// by enclosing code scope (tree-sitter boundaries); large sets are bucketed
// by rule category first so one prompt never has to reason about unrelated
// concerns. Every group is capped by a sliding window so prompts stay
// bounded.
package issues

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/lintfix/lintfix/internal/types"
)

const (
	// defaultWindowSize caps the issues carried by one group
	defaultWindowSize = 5

	// directThreshold is the largest finding set sent as a single group
	directThreshold = 5

	// categoryThreshold is the finding count above which grouping switches
	// from scope containment to rule-category buckets
	categoryThreshold = 10
)

// Rule-category buckets for large finding sets, in emission order.
var categoryOrder = []string{"complexity", "style", "error_handling", "other"}

// Config holds the settings for a Processor.
type Config struct {
	// WindowSize caps issues per group (default: 5)
	WindowSize int
}

// Processor groups issues and assigns remediation priority.
type Processor struct {
	windowSize int
}

// New creates a Processor. A nil config uses defaults.
func New(cfg *Config) *Processor {
	size := defaultWindowSize
	if cfg != nil && cfg.WindowSize > 0 {
		size = cfg.WindowSize
	}
	return &Processor{windowSize: size}
}

// Group clusters the file's issues into ordered remediation groups, highest
// priority first. The strategy depends on volume: up to 5 issues form one
// direct group, 6-10 are grouped by smallest enclosing scope, and more than
// 10 are bucketed by rule category (surfaced as module-kind scopes named
// after the category). Scope parsing failures degrade to module-level
// grouping; they never block remediation.
func (p *Processor) Group(ctx context.Context, file string, content []byte, issues []types.Issue) ([]types.IssueGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, nil
	}

	// Callers keep their slice; grouping reorders its own copy.
	issues = append([]types.Issue(nil), issues...)

	var groups []types.IssueGroup
	switch {
	case len(issues) > categoryThreshold:
		groups = p.categoryGroups(file, content, issues)
	case len(issues) > directThreshold:
		scopes, err := extractScopes(ctx, content)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			fmt.Fprintf(os.Stderr, "warning: scope parse failed for %s, grouping at module level: %v\n", file, err)
			scopes = nil
		}
		groups = p.scopeGroups(file, content, scopes, issues)
	default:
		groups = []types.IssueGroup{newGroup(file, moduleScope(content), issues)}
	}

	groups = p.windowed(groups)
	sortGroups(groups)
	return groups, nil
}

// categoryGroups buckets issues into the fixed rule categories. Each bucket
// becomes one module-kind group named after the category.
func (p *Processor) categoryGroups(file string, content []byte, issues []types.Issue) []types.IssueGroup {
	buckets := make(map[string][]types.Issue, len(categoryOrder))
	for _, issue := range issues {
		cat := categoryFor(issue)
		buckets[cat] = append(buckets[cat], issue)
	}

	mod := moduleScope(content)
	groups := make([]types.IssueGroup, 0, len(categoryOrder))
	for _, cat := range categoryOrder {
		batch, ok := buckets[cat]
		if !ok {
			continue
		}
		scope := mod
		scope.Name = cat
		groups = append(groups, newGroup(file, scope, batch))
	}
	return groups
}

// scopeGroups assigns each issue to its smallest enclosing scope; issues
// outside every parsed scope fall into the module group.
func (p *Processor) scopeGroups(file string, content []byte, scopes []types.Scope, issues []types.Issue) []types.IssueGroup {
	byScope := make(map[int][]types.Issue)
	for _, issue := range issues {
		idx := smallestEnclosing(scopes, issue.Line)
		byScope[idx] = append(byScope[idx], issue)
	}

	var groups []types.IssueGroup
	for idx := range scopes {
		if batch, ok := byScope[idx]; ok {
			groups = append(groups, newGroup(file, scopes[idx], batch))
		}
	}
	if batch, ok := byScope[-1]; ok {
		groups = append(groups, newGroup(file, moduleScope(content), batch))
	}
	return groups
}

// smallestEnclosing returns the index of the tightest scope containing the
// line, or -1 when no scope does.
func smallestEnclosing(scopes []types.Scope, line int) int {
	best := -1
	for i, s := range scopes {
		if !s.Contains(line) {
			continue
		}
		if best == -1 || s.Span() < scopes[best].Span() {
			best = i
		}
	}
	return best
}

// windowed splits oversized groups into consecutive windows sharing the
// same scope, recomputing priority per window.
func (p *Processor) windowed(groups []types.IssueGroup) []types.IssueGroup {
	out := make([]types.IssueGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.Issues) <= p.windowSize {
			out = append(out, g)
			continue
		}
		for start := 0; start < len(g.Issues); start += p.windowSize {
			end := min(start+p.windowSize, len(g.Issues))
			win := g
			win.Issues = g.Issues[start:end]
			win.Priority = groupPriority(g.Scope, win.Issues)
			out = append(out, win)
		}
	}
	return out
}

func newGroup(file string, scope types.Scope, issues []types.Issue) types.IssueGroup {
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Line != issues[j].Line {
			return issues[i].Line < issues[j].Line
		}
		if issues[i].Column != issues[j].Column {
			return issues[i].Column < issues[j].Column
		}
		return issues[i].Code < issues[j].Code
	})
	return types.IssueGroup{
		File:     file,
		Scope:    scope,
		Issues:   issues,
		Priority: groupPriority(scope, issues),
	}
}

// groupPriority is the best likelihood x impact product across the group's
// issues.
func groupPriority(scope types.Scope, issues []types.Issue) float64 {
	best := 0.0
	for _, issue := range issues {
		if p := issue.Severity.Likelihood() * issueImpact(scope, issue); p > best {
			best = p
		}
	}
	return best
}

// issueImpact scores blast radius: wider scopes and public names rank
// higher, and error-handling rules get a boost over style nits.
func issueImpact(scope types.Scope, issue types.Issue) float64 {
	var impact float64
	switch scope.Kind {
	case types.ScopeModule:
		impact = 5
	case types.ScopeClass:
		impact = 4
	default:
		impact = 3
	}
	if strings.HasPrefix(scope.Name, "_") {
		impact--
	}
	if categoryFor(issue) == "error_handling" {
		impact += 2
	}
	return impact
}

// categoryFor assigns an issue to a rule-category bucket by matching the
// code and message text.
func categoryFor(issue types.Issue) string {
	text := issue.Code + " " + issue.Message
	switch {
	case containsAny(text, "too-many", "too complex", "R09", "R10"):
		return "complexity"
	case containsAny(text, "missing-", "unused-", "pointless-"):
		return "style"
	case containsAny(text, "exception", "return"):
		return "error_handling"
	default:
		return "other"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// sortGroups orders by priority descending, then first issue line, then
// scope name.
func sortGroups(groups []types.IssueGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Priority != groups[j].Priority {
			return groups[i].Priority > groups[j].Priority
		}
		li, lj := firstLine(groups[i]), firstLine(groups[j])
		if li != lj {
			return li < lj
		}
		return groups[i].Scope.Name < groups[j].Scope.Name
	})
}

func firstLine(g types.IssueGroup) int {
	if len(g.Issues) == 0 {
		return g.Scope.StartLine
	}
	return g.Issues[0].Line
}

func moduleScope(content []byte) types.Scope {
	return types.Scope{
		Kind:      types.ScopeModule,
		StartLine: 1,
		EndLine:   lineCount(content),
	}
}

func lineCount(content []byte) int {
	if len(content) == 0 {
		return 1
	}
	n := bytes.Count(content, []byte("\n"))
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
