// Package agent runs the tool dispatch loop for chat turns.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/llm"
	"github.com/taskpilot/taskpilot/internal/memory"
	"github.com/taskpilot/taskpilot/internal/tools"
)

// FallbackResponse is returned when the model never produces a final
// text answer within the iteration budget.
const FallbackResponse = "I've processed your request"

// ToolCallOutcome records one tool invocation from a chat turn for the
// API response. Exactly one of Result and Error is set.
type ToolCallOutcome struct {
	Name      string          `json:"name"`
	Arguments map[string]any  `json:"arguments"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Turn is the outcome of one chat turn.
type Turn struct {
	Response  string
	ToolCalls []ToolCallOutcome
}

// Loop drives a chat turn: build context, call the model, execute any
// requested tools, feed results back, repeat until the model answers
// in text or the iteration budget runs out.
type Loop struct {
	client   llm.Client
	model    string
	registry *tools.Registry
	store    *memory.Store

	maxIterations   int
	contextMessages int

	logger *slog.Logger
}

// NewLoop creates the dispatch loop.
func NewLoop(client llm.Client, model string, registry *tools.Registry, store *memory.Store, maxIterations, contextMessages int, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &Loop{
		client:          client,
		model:           model,
		registry:        registry,
		store:           store,
		maxIterations:   maxIterations,
		contextMessages: contextMessages,
		logger:          logger.With("component", "agent"),
	}
}

// Respond processes one user message in a conversation and returns the
// turn's outcome. The user message and every intermediate step
// (assistant tool calls, tool results, final answer) are persisted.
//
// History is loaded before the inbound message is persisted, so the
// message appears in the context exactly once.
func (l *Loop) Respond(ctx context.Context, ownerID, conversationID, userMessage string) (*Turn, error) {
	history, err := l.store.LiveMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if _, err := l.store.AddMessage(conversationID, memory.Message{
		Role:    "user",
		Content: userMessage,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	msgs := memory.BuildContext(SystemPrompt, history, l.contextMessages)
	msgs = append(msgs, llm.Message{Role: "user", Content: userMessage})

	toolDefs := l.registry.List()
	outcomes := []ToolCallOutcome{}

	// The model sometimes narrates alongside its tool calls. Keep the
	// latest narration so an exhausted iteration budget can still answer
	// with the model's own words.
	lastText := ""

	for i := 0; i < l.maxIterations; i++ {
		resp, err := l.client.Chat(ctx, l.model, msgs, toolDefs)
		if err != nil {
			return nil, fmt.Errorf("chat iteration %d: %w", i+1, err)
		}

		if len(resp.Message.ToolCalls) == 0 {
			answer := resp.Message.Content
			if _, err := l.store.AddMessage(conversationID, memory.Message{
				Role:    "assistant",
				Content: answer,
			}); err != nil {
				return nil, fmt.Errorf("persist assistant message: %w", err)
			}
			return &Turn{Response: answer, ToolCalls: outcomes}, nil
		}

		l.logger.Debug("model requested tools",
			"iteration", i+1,
			"tool_calls", len(resp.Message.ToolCalls),
		)
		if resp.Message.Content != "" {
			lastText = resp.Message.Content
		}

		assistantMsg := llm.Message{
			Role:      "assistant",
			Content:   resp.Message.Content,
			ToolCalls: resp.Message.ToolCalls,
		}
		msgs = append(msgs, assistantMsg)
		l.persistAssistantToolCalls(conversationID, assistantMsg)

		// Execute in model order; each result goes straight back into
		// the context so later calls in the same round see a consistent
		// transcript.
		for _, tc := range resp.Message.ToolCalls {
			result, outcome := l.executeToolCall(ctx, ownerID, conversationID, tc)
			outcomes = append(outcomes, outcome)
			toolMsg := llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			}
			msgs = append(msgs, toolMsg)
			if _, err := l.store.AddMessage(conversationID, memory.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			}); err != nil {
				l.logger.Warn("persist tool result failed", "error", err)
			}
		}
	}

	l.logger.Warn("iteration budget exhausted",
		"conversation_id", conversationID,
		"max_iterations", l.maxIterations,
	)
	answer := lastText
	if answer == "" {
		answer = FallbackResponse
	}
	if _, err := l.store.AddMessage(conversationID, memory.Message{
		Role:    "assistant",
		Content: answer,
	}); err != nil {
		return nil, fmt.Errorf("persist fallback message: %w", err)
	}
	return &Turn{Response: answer, ToolCalls: outcomes}, nil
}

// executeToolCall runs one tool invocation, records it in the audit
// trail, and folds any failure into an error-shaped tool result so the
// model can recover instead of the turn aborting. Returns the JSON tool
// result to feed back to the model and the outcome for the API caller.
func (l *Loop) executeToolCall(ctx context.Context, ownerID, conversationID string, tc llm.ToolCall) (string, ToolCallOutcome) {
	callID := tc.ID
	if callID == "" {
		callID = uuid.New().String()
	}

	args := tc.Function.Arguments
	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte("{}")
	}

	if err := l.store.RecordToolCall(conversationID, callID, tc.Function.Name, string(argsJSON)); err != nil {
		l.logger.Warn("record tool call failed", "error", err)
	}

	l.logger.Info("executing tool",
		"tool", tc.Function.Name,
		"conversation_id", conversationID,
	)

	outcome := ToolCallOutcome{Name: tc.Function.Name, Arguments: args}

	result, err := l.registry.Execute(ctx, ownerID, tc.Function.Name, args)
	if err != nil {
		l.logger.Warn("tool execution failed",
			"tool", tc.Function.Name,
			"error", err,
		)
		outcome.Error = err.Error()
		result = errorResult(err)
		if recErr := l.store.CompleteToolCall(callID, "", err.Error()); recErr != nil {
			l.logger.Warn("complete tool call failed", "error", recErr)
		}
		return result, outcome
	}

	outcome.Result = json.RawMessage(result)
	if recErr := l.store.CompleteToolCall(callID, result, ""); recErr != nil {
		l.logger.Warn("complete tool call failed", "error", recErr)
	}
	return result, outcome
}

// persistAssistantToolCalls stores an assistant message that carries
// tool invocations, with the calls serialized for the history.
func (l *Loop) persistAssistantToolCalls(conversationID string, msg llm.Message) {
	encoded, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		l.logger.Warn("marshal tool calls failed", "error", err)
		encoded = []byte("[]")
	}
	if _, err := l.store.AddMessage(conversationID, memory.Message{
		Role:      "assistant",
		Content:   msg.Content,
		ToolCalls: string(encoded),
	}); err != nil {
		l.logger.Warn("persist assistant tool calls failed", "error", err)
	}
}

// errorResult shapes a tool failure as a JSON result.
func errorResult(err error) string {
	encoded, jsonErr := json.Marshal(map[string]string{"error": err.Error()})
	if jsonErr != nil {
		return `{"error": "tool execution failed"}`
	}
	return string(encoded)
}
