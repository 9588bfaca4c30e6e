package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/taskpilot/taskpilot/internal/task"
)

func (r *Registry) registerBuiltins() {
	r.Register(&Tool{
		Name:        "add_task",
		Description: "Create a new task with the given title and optional description.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title": map[string]any{
					"type":        "string",
					"description": "Task title (required, 1-200 characters)",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Optional task description (max 1000 characters)",
				},
			},
			"required": []string{"title"},
		},
		Handler: r.handleAddTask,
	})

	r.Register(&Tool{
		Name:        "list_tasks",
		Description: "Retrieve the user's tasks with optional filtering by status.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{
					"type":        "string",
					"description": "Filter by status: 'all', 'pending', or 'completed' (default 'all')",
				},
			},
		},
		Handler: r.handleListTasks,
	})

	r.Register(&Tool{
		Name:        "find_task_by_name",
		Description: "Find a task by its title (exact or partial match). Use this to resolve a task name mentioned by the user to a task ID before completing, updating, or deleting it.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "Task title or partial title to search for",
				},
			},
			"required": []string{"name"},
		},
		Handler: r.handleFindTaskByName,
	})

	r.Register(&Tool{
		Name:        "complete_task",
		Description: "Toggle a task's completion status (mark complete or back to pending).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "ID of the task to toggle",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleCompleteTask,
	})

	r.Register(&Tool{
		Name:        "update_task",
		Description: "Update a task's title and/or description.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "ID of the task to update",
				},
				"title": map[string]any{
					"type":        "string",
					"description": "New task title (optional, max 200 characters)",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "New task description (optional, max 1000 characters)",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleUpdateTask,
	})

	r.Register(&Tool{
		Name:        "delete_task",
		Description: "Permanently delete a task.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "ID of the task to delete",
				},
			},
			"required": []string{"task_id"},
		},
		Handler: r.handleDeleteTask,
	})
}

// Tool handlers

func (r *Registry) handleAddTask(ctx context.Context, ownerID string, args map[string]any) (map[string]any, error) {
	title, _ := args["title"].(string)
	description, _ := args["description"].(string)

	t, err := r.tasks.Create(ownerID, title, description)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"task_id":     t.ID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
		"created_at":  t.CreatedAt.Format(time.RFC3339),
		"message":     fmt.Sprintf("I've added '%s' to your task list", t.Title),
		"success":     true,
	}, nil
}

func (r *Registry) handleListTasks(ctx context.Context, ownerID string, args map[string]any) (map[string]any, error) {
	statusArg, _ := args["status"].(string)
	status, err := task.ParseStatus(statusArg)
	if err != nil {
		return nil, err
	}

	tasks, err := r.tasks.List(ownerID, status)
	if err != nil {
		return nil, err
	}
	counts, err := r.tasks.CountByStatus(ownerID)
	if err != nil {
		return nil, err
	}

	taskList := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		taskList = append(taskList, map[string]any{
			"id":          t.ID,
			"title":       t.Title,
			"description": t.Description,
			"completed":   t.Completed,
			"created_at":  t.CreatedAt.Format(time.RFC3339),
		})
	}

	var message string
	if len(taskList) == 0 {
		switch status {
		case task.StatusPending:
			message = "You have no pending tasks! 🎉"
		case task.StatusCompleted:
			message = "You have no completed tasks yet."
		default:
			message = "You don't have any tasks yet. Want to create one?"
		}
	} else {
		label := string(status)
		if status == task.StatusAll {
			label = "total"
		}
		message = fmt.Sprintf("You have %d %s task(s)", len(taskList), label)
	}

	return map[string]any{
		"tasks":           taskList,
		"total":           counts.Total,
		"pending":         counts.Pending,
		"completed":       counts.Completed,
		"filtered_status": string(status),
		"message":         message,
		"success":         true,
	}, nil
}

func (r *Registry) handleFindTaskByName(ctx context.Context, ownerID string, args map[string]any) (map[string]any, error) {
	name, _ := args["name"].(string)

	t, err := r.tasks.FindByName(ownerID, name)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"task_id":     t.ID,
		"title":       t.Title,
		"description": t.Description,
		"completed":   t.Completed,
		"message":     fmt.Sprintf("Found task: '%s'", t.Title),
		"success":     true,
	}, nil
}

func (r *Registry) handleCompleteTask(ctx context.Context, ownerID string, args map[string]any) (map[string]any, error) {
	taskID, _ := args["task_id"].(string)

	t, err := r.tasks.ToggleComplete(ownerID, taskID)
	if err != nil {
		return nil, err
	}

	var message string
	if t.Completed {
		message = fmt.Sprintf("I've marked '%s' as complete! ✓", t.Title)
	} else {
		message = fmt.Sprintf("I've marked '%s' as pending again.", t.Title)
	}

	return map[string]any{
		"task_id":    t.ID,
		"title":      t.Title,
		"completed":  t.Completed,
		"updated_at": t.UpdatedAt.Format(time.RFC3339),
		"message":    message,
		"success":    true,
	}, nil
}

func (r *Registry) handleUpdateTask(ctx context.Context, ownerID string, args map[string]any) (map[string]any, error) {
	taskID, _ := args["task_id"].(string)

	var title, description *string
	if v, ok := args["title"].(string); ok {
		title = &v
	}
	if v, ok := args["description"].(string); ok {
		description = &v
	}

	t, err := r.tasks.Update(ownerID, taskID, title, description)
	if err != nil {
		return nil, err
	}

	var updates []string
	if title != nil {
		updates = append(updates, fmt.Sprintf("title to '%s'", t.Title))
	}
	if description != nil {
		display := t.Description
		if r := []rune(display); len(r) > 50 {
			display = string(r[:50]) + "..."
		}
		if display == "" {
			display = "(empty)"
		}
		updates = append(updates, fmt.Sprintf("description to '%s'", display))
	}

	message := "I've updated the task"
	for i, u := range updates {
		if i == 0 {
			message += " " + u
		} else {
			message += " and " + u
		}
	}

	return map[string]any{
		"task_id":     t.ID,
		"title":       t.Title,
		"description": t.Description,
		"updated_at":  t.UpdatedAt.Format(time.RFC3339),
		"message":     message,
		"success":     true,
	}, nil
}

func (r *Registry) handleDeleteTask(ctx context.Context, ownerID string, args map[string]any) (map[string]any, error) {
	taskID, _ := args["task_id"].(string)

	t, err := r.tasks.Delete(ownerID, taskID)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"task_id": t.ID,
		"title":   t.Title,
		"message": fmt.Sprintf("I've removed '%s' from your task list", t.Title),
		"success": true,
	}, nil
}
