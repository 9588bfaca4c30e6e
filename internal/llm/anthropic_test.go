package llm

import (
	"testing"
)

func TestConvertToAnthropicExtractsSystem(t *testing.T) {
	msgs, system := convertToAnthropic([]Message{
		{Role: "system", Content: "be helpful"},
		{Role: "system", Content: "[Conversation Summary] earlier stuff"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})

	if system != "be helpful\n\n[Conversation Summary] earlier stuff" {
		t.Errorf("system = %q", system)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want system messages extracted", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %s %s", msgs[0].Role, msgs[1].Role)
	}
}

func TestConvertToAnthropicToolRoundTrip(t *testing.T) {
	msgs, _ := convertToAnthropic([]Message{
		{
			Role:    "assistant",
			Content: "Let me add that.",
			ToolCalls: []ToolCall{{
				ID: "call_1",
				Function: FunctionCall{
					Name:      "add_task",
					Arguments: map[string]any{"title": "x"},
				},
			}},
		},
		{Role: "tool", Content: `{"success":true}`, ToolCallID: "call_1"},
	})

	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}

	blocks, ok := msgs[0].Content.([]anthropicContent)
	if !ok {
		t.Fatalf("assistant content should be blocks, got %T", msgs[0].Content)
	}
	if len(blocks) != 2 || blocks[0].Type != "text" || blocks[1].Type != "tool_use" {
		t.Fatalf("blocks = %+v", blocks)
	}
	if blocks[1].ID != "call_1" || blocks[1].Name != "add_task" {
		t.Errorf("tool_use = %+v", blocks[1])
	}

	// Tool result travels as a user message with a tool_result block.
	if msgs[1].Role != "user" {
		t.Errorf("tool result role = %s", msgs[1].Role)
	}
	resultBlocks, _ := msgs[1].Content.([]anthropicContent)
	if len(resultBlocks) != 1 || resultBlocks[0].Type != "tool_result" || resultBlocks[0].ToolUseID != "call_1" {
		t.Errorf("tool_result = %+v", resultBlocks)
	}
}

func TestConvertToAnthropicSynthesizesToolUseID(t *testing.T) {
	msgs, _ := convertToAnthropic([]Message{
		{
			Role: "assistant",
			ToolCalls: []ToolCall{{
				Function: FunctionCall{Name: "list_tasks", Arguments: map[string]any{}},
			}},
		},
	})

	blocks, _ := msgs[0].Content.([]anthropicContent)
	if blocks[0].ID != "toolu_list_tasks_0" {
		t.Errorf("synthesized id = %q", blocks[0].ID)
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	tools := []map[string]any{{
		"type": "function",
		"function": map[string]any{
			"name":        "add_task",
			"description": "Create a task.",
			"parameters":  map[string]any{"type": "object"},
		},
	}}

	converted := convertToolsToAnthropic(tools)
	if len(converted) != 1 {
		t.Fatalf("got %d tools", len(converted))
	}
	if converted[0].Name != "add_task" || converted[0].Description != "Create a task." {
		t.Errorf("tool = %+v", converted[0])
	}
	if converted[0].InputSchema == nil {
		t.Error("parameters should map to input_schema")
	}

	if convertToolsToAnthropic(nil) != nil {
		t.Error("no tools should convert to nil")
	}
}

func TestConvertFromAnthropic(t *testing.T) {
	resp := &anthropicResponse{
		Model: "claude-sonnet-4-20250514",
		Role:  "assistant",
		Content: []anthropicContent{
			{Type: "text", Text: "Sure, "},
			{Type: "text", Text: "adding that now."},
			{Type: "tool_use", ID: "toolu_1", Name: "add_task", Input: map[string]any{"title": "x"}},
		},
		Usage: anthropicUsage{InputTokens: 10, OutputTokens: 5},
	}

	result := convertFromAnthropic(resp)
	if result.Message.Content != "Sure, adding that now." {
		t.Errorf("content = %q", result.Message.Content)
	}
	if len(result.Message.ToolCalls) != 1 || result.Message.ToolCalls[0].Function.Name != "add_task" {
		t.Errorf("tool calls = %+v", result.Message.ToolCalls)
	}
	if !result.Done || result.InputTokens != 10 || result.OutputTokens != 5 {
		t.Errorf("result = %+v", result)
	}
}
