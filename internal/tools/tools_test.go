package tools

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taskpilot/taskpilot/internal/storage"
	"github.com/taskpilot/taskpilot/internal/task"
)

func newTestRegistry(t *testing.T) (*Registry, *task.Store) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tasks, err := task.NewStore(db, nil)
	if err != nil {
		t.Fatalf("new task store: %v", err)
	}
	return NewRegistry(tasks, nil), tasks
}

func execute(t *testing.T, r *Registry, ownerID, name string, args map[string]any) map[string]any {
	t.Helper()
	raw, err := r.Execute(context.Background(), ownerID, name, args)
	if err != nil {
		t.Fatalf("Execute(%s): %v", name, err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		t.Fatalf("tool result is not valid JSON: %v", err)
	}
	return result
}

func TestListWireFormat(t *testing.T) {
	r, _ := newTestRegistry(t)

	defs := r.List()
	if len(defs) != 6 {
		t.Fatalf("List() returned %d tools, want 6", len(defs))
	}

	wantOrder := []string{"add_task", "complete_task", "delete_task", "find_task_by_name", "list_tasks", "update_task"}
	for i, def := range defs {
		if def["type"] != "function" {
			t.Errorf("defs[%d][type] = %v, want function", i, def["type"])
		}
		fn, ok := def["function"].(map[string]any)
		if !ok {
			t.Fatalf("defs[%d] has no function object", i)
		}
		if fn["name"] != wantOrder[i] {
			t.Errorf("defs[%d] name = %v, want %s", i, fn["name"], wantOrder[i])
		}
		if fn["description"] == "" {
			t.Errorf("%s has no description", wantOrder[i])
		}
		if _, ok := fn["parameters"].(map[string]any); !ok {
			t.Errorf("%s has no parameters schema", wantOrder[i])
		}
	}
}

func TestAddTask(t *testing.T) {
	r, _ := newTestRegistry(t)

	result := execute(t, r, "u1", "add_task", map[string]any{
		"title":       "Buy groceries",
		"description": "milk, eggs",
	})

	if result["message"] != "I've added 'Buy groceries' to your task list" {
		t.Errorf("message = %q", result["message"])
	}
	if result["success"] != true {
		t.Error("success should be true")
	}
	if result["task_id"] == "" {
		t.Error("result should carry the task ID")
	}
	if result["completed"] != false {
		t.Error("new task should be pending")
	}
}

func TestAddTaskEmptyTitle(t *testing.T) {
	r, _ := newTestRegistry(t)

	var verr *task.ValidationError
	_, err := r.Execute(context.Background(), "u1", "add_task", map[string]any{"title": "  "})
	if !errors.As(err, &verr) {
		t.Fatalf("got %v, want ValidationError", err)
	}
}

func TestListTasksMessages(t *testing.T) {
	r, tasks := newTestRegistry(t)

	t.Run("empty list messages", func(t *testing.T) {
		tests := []struct {
			status string
			want   string
		}{
			{"pending", "You have no pending tasks! 🎉"},
			{"completed", "You have no completed tasks yet."},
			{"all", "You don't have any tasks yet. Want to create one?"},
		}
		for _, tt := range tests {
			result := execute(t, r, "u1", "list_tasks", map[string]any{"status": tt.status})
			if result["message"] != tt.want {
				t.Errorf("status %s: message = %q, want %q", tt.status, result["message"], tt.want)
			}
		}
	})

	a, _ := tasks.Create("u1", "one", "")
	tasks.Create("u1", "two", "")
	tasks.ToggleComplete("u1", a.ID)

	t.Run("counts and message", func(t *testing.T) {
		result := execute(t, r, "u1", "list_tasks", map[string]any{})
		if result["message"] != "You have 2 total task(s)" {
			t.Errorf("message = %q", result["message"])
		}
		if result["total"] != float64(2) || result["pending"] != float64(1) || result["completed"] != float64(1) {
			t.Errorf("counts = total %v pending %v completed %v", result["total"], result["pending"], result["completed"])
		}
		if result["filtered_status"] != "all" {
			t.Errorf("filtered_status = %v", result["filtered_status"])
		}
	})

	t.Run("pending filter", func(t *testing.T) {
		result := execute(t, r, "u1", "list_tasks", map[string]any{"status": "pending"})
		list, _ := result["tasks"].([]any)
		if len(list) != 1 {
			t.Fatalf("got %d tasks, want 1", len(list))
		}
		if result["message"] != "You have 1 pending task(s)" {
			t.Errorf("message = %q", result["message"])
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		var verr *task.ValidationError
		_, err := r.Execute(context.Background(), "u1", "list_tasks", map[string]any{"status": "done"})
		if !errors.As(err, &verr) {
			t.Errorf("got %v, want ValidationError", err)
		}
	})
}

func TestFindTaskByName(t *testing.T) {
	r, tasks := newTestRegistry(t)
	tasks.Create("u1", "Buy milk", "")
	tasks.Create("u1", "Buy bread", "")

	result := execute(t, r, "u1", "find_task_by_name", map[string]any{"name": "milk"})
	if result["message"] != "Found task: 'Buy milk'" {
		t.Errorf("message = %q", result["message"])
	}

	var ambErr *task.AmbiguousMatchError
	_, err := r.Execute(context.Background(), "u1", "find_task_by_name", map[string]any{"name": "buy"})
	if !errors.As(err, &ambErr) {
		t.Fatalf("got %v, want AmbiguousMatchError", err)
	}
	if !strings.Contains(ambErr.Error(), "Please be more specific.") {
		t.Errorf("ambiguous error should ask for specificity, got %q", ambErr.Error())
	}

	var nfErr *task.NotFoundError
	_, err = r.Execute(context.Background(), "u1", "find_task_by_name", map[string]any{"name": "laundry"})
	if !errors.As(err, &nfErr) {
		t.Errorf("got %v, want NotFoundError", err)
	}
}

func TestCompleteTaskToggleMessages(t *testing.T) {
	r, tasks := newTestRegistry(t)
	created, _ := tasks.Create("u1", "Walk the dog", "")

	result := execute(t, r, "u1", "complete_task", map[string]any{"task_id": created.ID})
	if result["message"] != "I've marked 'Walk the dog' as complete! ✓" {
		t.Errorf("complete message = %q", result["message"])
	}

	result = execute(t, r, "u1", "complete_task", map[string]any{"task_id": created.ID})
	if result["message"] != "I've marked 'Walk the dog' as pending again." {
		t.Errorf("uncomplete message = %q", result["message"])
	}
}

func TestCompleteTaskCrossOwner(t *testing.T) {
	r, tasks := newTestRegistry(t)
	created, _ := tasks.Create("u1", "private", "")

	var authErr *task.AuthorizationError
	_, err := r.Execute(context.Background(), "u2", "complete_task", map[string]any{"task_id": created.ID})
	if !errors.As(err, &authErr) {
		t.Fatalf("got %v, want AuthorizationError", err)
	}
}

func TestUpdateTaskMessage(t *testing.T) {
	r, tasks := newTestRegistry(t)
	created, _ := tasks.Create("u1", "old", "old desc")

	t.Run("both fields", func(t *testing.T) {
		result := execute(t, r, "u1", "update_task", map[string]any{
			"task_id":     created.ID,
			"title":       "new title",
			"description": "new desc",
		})
		if result["message"] != "I've updated the task title to 'new title' and description to 'new desc'" {
			t.Errorf("message = %q", result["message"])
		}
	})

	t.Run("long description display", func(t *testing.T) {
		long := strings.Repeat("x", 80)
		result := execute(t, r, "u1", "update_task", map[string]any{
			"task_id":     created.ID,
			"description": long,
		})
		want := "I've updated the task description to '" + strings.Repeat("x", 50) + "...'"
		if result["message"] != want {
			t.Errorf("message = %q, want %q", result["message"], want)
		}
	})

	t.Run("multibyte description display", func(t *testing.T) {
		result := execute(t, r, "u1", "update_task", map[string]any{
			"task_id":     created.ID,
			"description": strings.Repeat("日", 80),
		})
		want := "I've updated the task description to '" + strings.Repeat("日", 50) + "...'"
		if result["message"] != want {
			t.Errorf("message = %q, want %q", result["message"], want)
		}
	})

	t.Run("cleared description", func(t *testing.T) {
		result := execute(t, r, "u1", "update_task", map[string]any{
			"task_id":     created.ID,
			"description": "",
		})
		if result["message"] != "I've updated the task description to '(empty)'" {
			t.Errorf("message = %q", result["message"])
		}
	})
}

func TestDeleteTask(t *testing.T) {
	r, tasks := newTestRegistry(t)
	created, _ := tasks.Create("u1", "temp", "")

	result := execute(t, r, "u1", "delete_task", map[string]any{"task_id": created.ID})
	if result["message"] != "I've removed 'temp' from your task list" {
		t.Errorf("message = %q", result["message"])
	}

	var authErr *task.AuthorizationError
	if _, err := tasks.Get("u1", created.ID); !errors.As(err, &authErr) {
		t.Errorf("task should be gone, got %v", err)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r, _ := newTestRegistry(t)

	var unknownErr *UnknownToolError
	_, err := r.Execute(context.Background(), "u1", "launch_rocket", nil)
	if !errors.As(err, &unknownErr) {
		t.Fatalf("got %v, want UnknownToolError", err)
	}
	if unknownErr.ToolName != "launch_rocket" {
		t.Errorf("ToolName = %q", unknownErr.ToolName)
	}
}
