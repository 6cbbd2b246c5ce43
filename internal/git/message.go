package git

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/lintfix/lintfix/internal/types"
)

// MessageGenerator generates commit messages for applied fixes using AI.
type MessageGenerator struct {
	client        *anthropic.Client
	model         string
	retryAttempts int
}

// NewMessageGenerator creates a new MessageGenerator.
func NewMessageGenerator(client *anthropic.Client, model string) *MessageGenerator {
	return &MessageGenerator{
		client:        client,
		model:         model,
		retryAttempts: 3,
	}
}

// FallbackMessage is the deterministic commit message used when generation
// is unavailable or fails.
func FallbackMessage(file string, issueCount int) string {
	return fmt.Sprintf("fix: resolve %d lint issue(s) in %s", issueCount, filepath.Base(file))
}

// GenerateCommitMessage generates a commit message describing the fix.
func (m *MessageGenerator) GenerateCommitMessage(ctx context.Context, req CommitMessageRequest) (*CommitMessageResponse, error) {
	prompt := m.buildPrompt(req)

	var response *anthropic.Message
	err := m.retry(ctx, func(attemptCtx context.Context) error {
		resp, apiErr := m.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(m.model),
			MaxTokens: 1024,
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
		return nil, fmt.Errorf("failed to generate commit message: %w", err)
	}

	// Extract text from response
	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	var msg CommitMessageResponse
	if err := json.Unmarshal([]byte(extractJSON(responseText)), &msg); err != nil {
		return nil, &types.AIResponseError{
			Model:  m.model,
			Reason: fmt.Sprintf("unparseable commit message response: %v", err),
		}
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return nil, &types.AIResponseError{
			Model:  m.model,
			Reason: "commit message response has no subject",
		}
	}
	return &msg, nil
}

// buildPrompt constructs the prompt for commit message generation.
func (m *MessageGenerator) buildPrompt(req CommitMessageRequest) string {
	var prompt strings.Builder

	prompt.WriteString("You are a commit message generator for an automated lint-fixing pipeline.\n\n")
	prompt.WriteString("Generate a clear, concise commit message following conventional commits format.\n\n")

	prompt.WriteString("## Fixed File\n\n")
	prompt.WriteString(fmt.Sprintf("- %s\n\n", req.File))

	prompt.WriteString("## Lint Issues Addressed\n\n")
	if len(req.Issues) > 0 {
		for _, issue := range req.Issues {
			prompt.WriteString(fmt.Sprintf("- line %d: %s %s\n", issue.Line, issue.Code, issue.Message))
		}
	} else {
		prompt.WriteString("(no issues listed)\n")
	}
	prompt.WriteString("\n")

	if req.Diff != "" {
		prompt.WriteString("## Diff\n\n")
		prompt.WriteString("```diff\n")
		// Truncate diff if too large (keep first 10000 chars)
		diff := req.Diff
		if len(diff) > 10000 {
			diff = diff[:10000] + "\n... (truncated)"
		}
		prompt.WriteString(diff)
		prompt.WriteString("\n```\n\n")
	}

	prompt.WriteString("## Instructions\n\n")
	prompt.WriteString("Generate a commit message with:\n")
	prompt.WriteString("1. **Subject**: One-line summary (50 chars max), format: `fix(scope): description`\n")
	prompt.WriteString("2. **Body**: What was fixed and how (wrap at 72 chars)\n")
	prompt.WriteString("3. **Reasoning**: Brief explanation of your message choice\n\n")

	prompt.WriteString("Guidelines:\n")
	prompt.WriteString("- Use imperative mood: 'remove bare except' not 'removed bare except'\n")
	prompt.WriteString("- Name the lint rules fixed when it helps a reviewer\n")
	prompt.WriteString("- Keep subject concise, put details in body\n\n")

	prompt.WriteString("Respond with JSON:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"subject\": \"fix(module): concise description\",\n")
	prompt.WriteString("  \"body\": \"Detailed explanation of changes.\",\n")
	prompt.WriteString("  \"reasoning\": \"Why I chose this message\"\n")
	prompt.WriteString("}\n")
	prompt.WriteString("```\n")

	return prompt.String()
}

// retry runs fn up to retryAttempts times, stopping early on success or a
// canceled context.
func (m *MessageGenerator) retry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= m.retryAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("commit message generation canceled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("commit message generation failed after %d attempts: %w", m.retryAttempts, lastErr)
}

// extractJSON pulls a JSON object out of a model reply that may wrap it in
// markdown fences or prose.
func extractJSON(s string) string {
	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}
