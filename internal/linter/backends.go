package linter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/types"
)

// backend adapts one linter tool: how to invoke it, which exit codes still
// carry usable output, and how to normalize what it prints.
type backend interface {
	name() string
	argv(file string) []string
	// ok reports whether the exit code means the output is usable.
	// Linters signal "issues found" through nonzero exits.
	ok(exitCode int) bool
	// parse normalizes stdout into issues and reports how many lines it
	// could not understand.
	parse(file, stdout string) ([]types.Issue, int)
}

func backendFor(name string, maxLineLength int) (backend, error) {
	switch name {
	case config.LinterPylint:
		return &pylintBackend{maxLineLength: maxLineLength}, nil
	case config.LinterFlake8:
		return &flake8Backend{maxLineLength: maxLineLength}, nil
	case config.LinterRuff:
		return &ruffBackend{}, nil
	default:
		return nil, types.NewValidationError("linter", "unsupported linter %q (want pylint, flake8, or ruff)", name)
	}
}

// pylintBackend runs pylint with JSON output.
type pylintBackend struct {
	maxLineLength int
}

func (b *pylintBackend) name() string { return config.LinterPylint }

func (b *pylintBackend) argv(file string) []string {
	return []string{
		"pylint",
		"--output-format=json",
		fmt.Sprintf("--max-line-length=%d", b.maxLineLength),
		file,
	}
}

// pylint exits with message-category bit flags (1=fatal .. 16=convention);
// 32 and up mean usage errors, everything below is a completed scan.
func (b *pylintBackend) ok(exitCode int) bool { return exitCode < 32 }

type pylintMessage struct {
	Type      string `json:"type"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	MessageID string `json:"message-id"`
	Symbol    string `json:"symbol"`
	Message   string `json:"message"`
}

func (b *pylintBackend) parse(file, stdout string) ([]types.Issue, int) {
	if strings.TrimSpace(stdout) == "" {
		return nil, 0
	}

	var messages []pylintMessage
	if err := json.Unmarshal([]byte(stdout), &messages); err != nil {
		// The whole document is garbage; count it as one dropped line.
		return nil, 1
	}

	issues := make([]types.Issue, 0, len(messages))
	for _, m := range messages {
		msg := m.Message
		if m.Symbol != "" {
			msg = fmt.Sprintf("%s (%s)", m.Message, m.Symbol)
		}
		issues = append(issues, types.Issue{
			File:     file,
			Line:     m.Line,
			Column:   m.Column,
			Code:     m.MessageID,
			Message:  msg,
			Severity: pylintSeverity(m.Type),
			Linter:   config.LinterPylint,
		})
	}
	return issues, 0
}

func pylintSeverity(t string) types.Severity {
	switch t {
	case "fatal", "error":
		return types.SeverityError
	case "warning":
		return types.SeverityWarning
	case "refactor":
		return types.SeverityRefactor
	case "convention":
		return types.SeverityConvention
	default:
		return types.SeverityInfo
	}
}

// flake8Backend parses flake8's default "file:line:col: CODE message" text.
type flake8Backend struct {
	maxLineLength int
}

func (b *flake8Backend) name() string { return config.LinterFlake8 }

func (b *flake8Backend) argv(file string) []string {
	return []string{
		"flake8",
		"--max-line-length", strconv.Itoa(b.maxLineLength),
		file,
	}
}

// flake8 exits 1 when it found issues.
func (b *flake8Backend) ok(exitCode int) bool { return exitCode == 0 || exitCode == 1 }

func (b *flake8Backend) parse(file, stdout string) ([]types.Issue, int) {
	return parseTextOutput(config.LinterFlake8, file, stdout, nil)
}

// ruffBackend parses `ruff check` text output, which is flake8-shaped plus
// summary trailers and fixable markers.
type ruffBackend struct{}

func (b *ruffBackend) name() string { return config.LinterRuff }

func (b *ruffBackend) argv(file string) []string {
	return []string{"ruff", "check", file}
}

// ruff exits 1 when it found issues.
func (b *ruffBackend) ok(exitCode int) bool { return exitCode == 0 || exitCode == 1 }

func (b *ruffBackend) parse(file, stdout string) ([]types.Issue, int) {
	return parseTextOutput(config.LinterRuff, file, stdout, ruffTrailer)
}

// ruffTrailer recognizes the non-finding lines ruff appends after its
// results.
func ruffTrailer(line string) bool {
	return line == "All checks passed!" ||
		strings.HasPrefix(line, "Found ") ||
		strings.HasPrefix(line, "[*] ")
}

// issueLineRe matches "path:line:col: CODE message".
var issueLineRe = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s+([A-Z][A-Z0-9]*\d+)\s+(.+)$`)

// parseTextOutput normalizes line-oriented linter output. Lines the trailer
// filter accepts are expected non-findings and skipped silently; anything
// else that does not match the issue shape counts as dropped.
func parseTextOutput(linter, file, stdout string, trailer func(string) bool) ([]types.Issue, int) {
	var issues []types.Issue
	dropped := 0

	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if trailer != nil && trailer(line) {
			continue
		}

		m := issueLineRe.FindStringSubmatch(line)
		if m == nil {
			dropped++
			continue
		}
		lineNo, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		issues = append(issues, types.Issue{
			// The path as we were asked to lint it, not as the tool
			// echoed it back.
			File:     file,
			Line:     lineNo,
			Column:   col,
			Code:     m[4],
			Message:  strings.TrimPrefix(m[5], "[*] "),
			Severity: severityForCode(m[4]),
			Linter:   linter,
		})
	}
	return issues, dropped
}

// severityForCode maps pycodestyle/pyflakes-family rule prefixes onto the
// shared severity scale.
func severityForCode(code string) types.Severity {
	switch {
	case strings.HasPrefix(code, "E9"):
		// E9xx are syntax/runtime errors, not style.
		return types.SeverityError
	case strings.HasPrefix(code, "F"), strings.HasPrefix(code, "W"):
		return types.SeverityWarning
	case strings.HasPrefix(code, "C"), strings.HasPrefix(code, "R"):
		return types.SeverityRefactor
	default:
		return types.SeverityConvention
	}
}
