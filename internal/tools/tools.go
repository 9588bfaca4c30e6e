// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/taskpilot/taskpilot/internal/task"
)

// Handler executes a tool on behalf of ownerID. The owner is always
// taken from the authenticated request, never from model-supplied
// arguments. The returned map is serialized as the tool result.
type Handler func(ctx context.Context, ownerID string, args map[string]any) (map[string]any, error)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     Handler        `json:"-"`
}

// UnknownToolError is returned when a tool call targets a tool that is
// not present in the registry. The dispatch loop folds it into a tool
// result so the model can recover, rather than aborting the turn.
type UnknownToolError struct {
	ToolName string
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q not found", e.ToolName)
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	tasks  *task.Store
	logger *slog.Logger
}

// NewRegistry creates a tool registry backed by the task store.
func NewRegistry(tasks *task.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		tasks:  tasks,
		logger: logger.With("component", "tools"),
	}
	r.registerBuiltins()
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name, or nil if absent.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tool definitions in the wire format the model
// providers expect, sorted by name for stable prompts.
func (r *Registry) List() []map[string]any {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name for ownerID and returns the JSON-encoded
// result. Domain errors (validation, authorization, not found) come
// back as errors for the caller to fold into a tool result.
func (r *Registry) Execute(ctx context.Context, ownerID, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &UnknownToolError{ToolName: name}
	}

	result, err := tool.Handler(ctx, ownerID, args)
	if err != nil {
		return "", err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(encoded), nil
}
