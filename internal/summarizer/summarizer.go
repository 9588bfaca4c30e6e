// Package summarizer condenses conversation history with the model.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskpilot/taskpilot/internal/llm"
	"github.com/taskpilot/taskpilot/internal/memory"
)

const compactionPrompt = `Summarize the conversation below for use as condensed context in a task management assistant. Preserve:
- tasks that were created, completed, updated, or deleted (with their titles)
- decisions and preferences the user expressed
- anything the user asked to be remembered

Be concise. Write plain prose, no headers.

Conversation:
%s`

// LLMSummarizer uses the model to generate summaries.
type LLMSummarizer struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// New creates a summarizer backed by the given model client.
func New(client llm.Client, model string, logger *slog.Logger) *LLMSummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMSummarizer{
		client: client,
		model:  model,
		logger: logger.With("component", "summarizer"),
	}
}

// Summarize generates a prose summary of the messages.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []memory.Message) (string, error) {
	var sb strings.Builder
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		role := m.Role
		if len(role) > 0 {
			role = strings.ToUpper(role[:1]) + role[1:]
		}
		fmt.Fprintf(&sb, "%s: %s\n\n", role, m.Content)
	}

	resp, err := s.client.Chat(ctx, s.model, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(compactionPrompt, sb.String())},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("summarize chat: %w", err)
	}

	s.logger.Debug("summary generated",
		"messages", len(messages),
		"summary_len", len(resp.Message.Content),
	)
	return resp.Message.Content, nil
}
