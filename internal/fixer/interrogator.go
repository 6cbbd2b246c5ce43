package fixer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/lintfix/lintfix/internal/config"
	"github.com/lintfix/lintfix/internal/runner"
	"github.com/lintfix/lintfix/internal/types"
)

// Ask-mode exchanges are recorded under this marker name; the code being
// questioned never touches the repository.
const askRecordFile = "in_memory_code"

// Interrogator answers questions about a code snippet without editing
// anything. Exchanges are saved to the suggestion store when one is
// configured.
type Interrogator struct {
	cfg           *Config
	retryAttempts int
}

// NewInterrogator creates an Interrogator for the configured backend.
func NewInterrogator(cfg *Config) (*Interrogator, error) {
	c, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Interrogator{cfg: c, retryAttempts: 3}, nil
}

// Ask puts a question about code to the model and returns its answer.
func (q *Interrogator) Ask(ctx context.Context, code, question string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", types.NewValidationError("code", "is required")
	}
	if strings.TrimSpace(question) == "" {
		return "", types.NewValidationError("question", "is required")
	}
	if len(code) > q.cfg.MaxCodeLength {
		return "", types.NewValidationError("code", "exceeds maximum length of %d characters", q.cfg.MaxCodeLength)
	}
	if len(question) > q.cfg.MaxQuestionLength {
		return "", types.NewValidationError("question", "exceeds maximum length of %d characters", q.cfg.MaxQuestionLength)
	}

	if err := q.cfg.acquireToken(ctx); err != nil {
		return "", err
	}

	var (
		answer string
		err    error
	)
	if q.cfg.Backend == config.FixerAnthropic {
		answer, err = q.askAnthropic(ctx, code, question)
	} else {
		answer, err = q.askAider(ctx, code, question)
	}
	if err != nil {
		return "", err
	}

	q.record(ctx, question, answer)
	return answer, nil
}

// askAider stages the code in a temp file and runs aider in ask mode
// against it. Every confirmation prompt is refused; ask mode must never
// edit a file.
func (q *Interrogator) askAider(ctx context.Context, code, question string) (string, error) {
	path, err := q.cfg.Executor.TempFile("ask-*.py", []byte(code))
	if err != nil {
		return "", fmt.Errorf("failed to stage code for aider: %w", err)
	}
	defer os.Remove(path)

	argv := []string{
		q.cfg.AiderPath,
		"--chat-mode", "ask",
		"--message", question,
		"--model", q.cfg.AiderModel,
		"--weak-model", q.cfg.AiderWeakModel,
		"--cache-prompts",
		"--no-git",
		path,
	}
	// Aider wraps output to the terminal width; pin it so answers come
	// back the same everywhere.
	env := append(append([]string{}, q.cfg.Env...), "COLUMNS=100")

	res, err := q.cfg.Executor.RunInteractive(ctx, runner.Command{
		Argv:    argv,
		Dir:     q.cfg.RepoPath,
		Timeout: q.cfg.Timeout,
		Env:     env,
	}, AnswerAskPrompts)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &types.AIResponseError{
			Model:  q.cfg.AiderModel,
			Reason: fmt.Sprintf("aider exited %d in ask mode: %s", res.ExitCode, summary(res.Stderr)),
		}
	}

	answer := strings.TrimSpace(res.Stdout)
	if answer == "" {
		return "", &types.AIResponseError{
			Model:  q.cfg.AiderModel,
			Reason: "empty reply in ask mode",
		}
	}
	return answer, nil
}

// AnswerAskPrompts refuses every prompt aider raises in ask mode.
func AnswerAskPrompts(line string) (string, bool) {
	if strings.Contains(line, "?") {
		return "No", true
	}
	return "", false
}

func (q *Interrogator) askAnthropic(ctx context.Context, code, question string) (string, error) {
	prompt := buildAskPrompt(code, question)

	var response *anthropic.Message
	err := retryCall(ctx, q.retryAttempts, "question", func(attemptCtx context.Context) error {
		resp, apiErr := q.cfg.Client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(q.cfg.AnthropicModel),
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
		return "", fmt.Errorf("failed to answer question: %w", err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		return "", &types.AIResponseError{
			Model:  q.cfg.AnthropicModel,
			Reason: "empty reply to question",
		}
	}
	return answer, nil
}

func buildAskPrompt(code, question string) string {
	var prompt strings.Builder

	prompt.WriteString("Answer a question about the following Python code.\n\n")
	prompt.WriteString("```python\n")
	prompt.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		prompt.WriteString("\n")
	}
	prompt.WriteString("```\n\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\n")

	prompt.WriteString("Answer directly and concisely. Do not propose edits.\n")

	return prompt.String()
}

// record persists the exchange. Storage trouble never fails an answer
// the user already has.
func (q *Interrogator) record(ctx context.Context, question, answer string) {
	if q.cfg.Store == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{"response": answer})
	if err != nil {
		return
	}
	model := q.cfg.AiderModel
	if q.cfg.Backend == config.FixerAnthropic {
		model = q.cfg.AnthropicModel
	}

	suggestion := &types.Suggestion{
		File:     askRecordFile,
		Question: question,
		Response: string(payload),
		Model:    model,
	}
	if _, err := q.cfg.Store.Save(ctx, suggestion); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save suggestion: %v\n", err)
	}
}
