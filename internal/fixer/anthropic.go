package fixer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

// anthropicFixer requests a unified diff from the Messages API and
// applies it in memory. The working tree is never touched; the caller
// decides what to do with the proposal.
type anthropicFixer struct {
	cfg           *Config
	retryAttempts int
}

func (f *anthropicFixer) Propose(ctx context.Context, req *Request) (*Proposal, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	prompt := f.buildPrompt(req)

	if err := f.cfg.acquireToken(ctx); err != nil {
		return nil, err
	}

	var response *anthropic.Message
	err := retryCall(ctx, f.retryAttempts, "fix generation", func(attemptCtx context.Context) error {
		resp, apiErr := f.cfg.Client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(f.cfg.AnthropicModel),
			MaxTokens: 4096,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate fix: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	rawDiff := extractDiff(text)
	if rawDiff == "" {
		return nil, &types.AIResponseError{
			Model:  f.cfg.AnthropicModel,
			Reason: "reply contains no diff block",
		}
	}
	fd, err := diff.ParseFileDiff([]byte(rawDiff))
	if err != nil {
		return nil, &types.AIResponseError{
			Model:  f.cfg.AnthropicModel,
			Reason: fmt.Sprintf("unparseable diff: %v", err),
		}
	}
	if target := diffTarget(fd); !targetMatches(target, req.File) {
		return nil, &types.AIResponseError{
			Model:  f.cfg.AnthropicModel,
			Reason: fmt.Sprintf("diff targets %q, expected %s", target, req.File),
		}
	}
	if err := runner.ScreenText(f.cfg.Patterns, addedLines(fd), "python"); err != nil {
		return nil, &types.AIResponseError{
			Model:  f.cfg.AnthropicModel,
			Reason: fmt.Sprintf("diff adds dangerous code: %v", err),
		}
	}
	content, err := applyFileDiff(req.Content, fd)
	if err != nil {
		return nil, &types.AIResponseError{
			Model:  f.cfg.AnthropicModel,
			Reason: fmt.Sprintf("diff does not apply: %v", err),
		}
	}

	return &Proposal{
		Content: content,
		Diff:    rawDiff,
		Prompt:  prompt,
		Model:   f.cfg.AnthropicModel,
	}, nil
}

// buildPrompt constructs the prompt for diff generation.
func (f *anthropicFixer) buildPrompt(req *Request) string {
	var prompt strings.Builder

	prompt.WriteString("You are an automated lint fixer working on one Python file.\n\n")

	fmt.Fprintf(&prompt, "## File: %s\n\n", req.File)
	prompt.WriteString("```python\n")
	prompt.Write(req.Content)
	if len(req.Content) > 0 && req.Content[len(req.Content)-1] != '\n' {
		prompt.WriteString("\n")
	}
	prompt.WriteString("```\n\n")

	prompt.WriteString("## Task\n\n")
	prompt.WriteString(BuildPrompt(req.Group))
	prompt.WriteString("\n\n")

	prompt.WriteString("## Instructions\n\n")
	fmt.Fprintf(&prompt, "Respond with a single unified diff against %s, inside one fenced block:\n\n", req.File)
	prompt.WriteString("```diff\n")
	fmt.Fprintf(&prompt, "--- a/%s\n", req.File)
	fmt.Fprintf(&prompt, "+++ b/%s\n", req.File)
	prompt.WriteString("@@ ... @@\n")
	prompt.WriteString("```\n\n")

	prompt.WriteString("Guidelines:\n")
	prompt.WriteString("- Change only what the listed issues require\n")
	prompt.WriteString("- Copy hunk context lines exactly as they appear in the file\n")
	prompt.WriteString("- Do not add commentary outside the fenced block\n")

	return prompt.String()
}

// extractDiff pulls a unified diff out of a model reply that may wrap it
// in a markdown fence or prose.
func extractDiff(s string) string {
	if i := strings.Index(s, "```diff"); i >= 0 {
		rest := s[i+len("```diff"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			if d := strings.TrimSpace(rest[:j]); d != "" {
				return d + "\n"
			}
			return ""
		}
	}
	if i := strings.Index(s, "--- "); i >= 0 {
		return strings.TrimSpace(s[i:]) + "\n"
	}
	return ""
}

// diffTarget names the file a diff edits, with git's a/ b/ prefixes
// stripped.
func diffTarget(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return name
}

func targetMatches(target, file string) bool {
	file = filepath.ToSlash(file)
	return target == file || target == filepath.Base(file)
}

// addedLines collects the text a diff introduces, for deny-list
// screening.
func addedLines(fd *diff.FileDiff) string {
	var b strings.Builder
	for _, hunk := range fd.Hunks {
		for _, line := range strings.Split(string(hunk.Body), "\n") {
			if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
				b.WriteString(line[1:])
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// applyFileDiff applies fd's hunks to original. Context and deletion
// lines must match the original text exactly; a mismatch means the model
// diffed against content it invented.
func applyFileDiff(original []byte, fd *diff.FileDiff) ([]byte, error) {
	origLines := strings.Split(string(original), "\n")
	var out []string
	idx := 0

	for _, hunk := range fd.Hunks {
		start := int(hunk.OrigStartLine) - 1
		if hunk.OrigLines == 0 {
			// A pure insertion names the line it follows.
			start = int(hunk.OrigStartLine)
		}
		if start < 0 {
			start = 0
		}
		if start < idx || start > len(origLines) {
			return nil, fmt.Errorf("hunk at line %d overlaps the previous hunk or passes end of file", hunk.OrigStartLine)
		}
		out = append(out, origLines[idx:start]...)
		idx = start

		body := strings.TrimSuffix(string(hunk.Body), "\n")
		for _, line := range strings.Split(body, "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				out = append(out, line[1:])
			case strings.HasPrefix(line, "-"):
				if idx >= len(origLines) || origLines[idx] != line[1:] {
					return nil, fmt.Errorf("hunk removes %q at line %d, file has %q", line[1:], idx+1, lineAt(origLines, idx))
				}
				idx++
			case strings.HasPrefix(line, `\`):
				// "\ No newline at end of file"
			default:
				// Context line. The leading space may have been
				// trimmed from blank lines.
				want := strings.TrimPrefix(line, " ")
				if idx >= len(origLines) || origLines[idx] != want {
					return nil, fmt.Errorf("hunk expects %q at line %d, file has %q", want, idx+1, lineAt(origLines, idx))
				}
				out = append(out, origLines[idx])
				idx++
			}
		}
	}

	out = append(out, origLines[idx:]...)
	return []byte(strings.Join(out, "\n")), nil
}

func lineAt(lines []string, idx int) string {
	if idx < 0 || idx >= len(lines) {
		return "<end of file>"
	}
	return lines[idx]
}
