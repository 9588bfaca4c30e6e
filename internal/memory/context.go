package memory

import "github.com/taskpilot/taskpilot/internal/llm"

// BuildContext projects stored history into the model context for a
// new turn: the system prompt first, then the last 'limit' live
// messages as bare role/content pairs. Tool plumbing (tool_calls,
// tool_call_id) is deliberately dropped; a finished turn's tool
// round-trips are noise to the next turn, only their conversational
// outcome matters. Compaction summaries ride along as system messages.
func BuildContext(systemPrompt string, history []Message, limit int) []llm.Message {
	eligible := make([]Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "user", "assistant", "system":
			if m.Role == "assistant" && m.Content == "" {
				continue // tool-call-only assistant message, no text to carry
			}
			eligible = append(eligible, m)
		}
	}

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[len(eligible)-limit:]
	}

	ctx := make([]llm.Message, 0, len(eligible)+1)
	ctx = append(ctx, llm.Message{Role: "system", Content: systemPrompt})
	for _, m := range eligible {
		ctx = append(ctx, llm.Message{Role: m.Role, Content: m.Content})
	}
	return ctx
}
