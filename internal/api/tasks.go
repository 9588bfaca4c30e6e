package api

import (
	"encoding/json"
	"net/http"

	"github.com/taskpilot/taskpilot/internal/auth"
	"github.com/taskpilot/taskpilot/internal/task"
)

// TaskCreateRequest creates a new task.
type TaskCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// TaskUpdateRequest modifies a task. Omitted fields are unchanged.
type TaskUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	status, err := task.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		s.taskError(w, err)
		return
	}

	tasks, err := s.tasks.List(ownerID, status)
	if err != nil {
		s.taskError(w, err)
		return
	}
	counts, err := s.tasks.CountByStatus(ownerID)
	if err != nil {
		s.taskError(w, err)
		return
	}

	if tasks == nil {
		tasks = []*task.Task{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"tasks":     tasks,
		"total":     counts.Total,
		"pending":   counts.Pending,
		"completed": counts.Completed,
	}, s.logger)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	var req TaskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := s.tasks.Create(ownerID, req.Title, req.Description)
	if err != nil {
		s.taskError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, t, s.logger)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	t, err := s.tasks.Get(ownerID, r.PathValue("id"))
	if err != nil {
		s.taskError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, t, s.logger)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	var req TaskUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := s.tasks.Update(ownerID, r.PathValue("id"), req.Title, req.Description)
	if err != nil {
		s.taskError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, t, s.logger)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	if _, err := s.tasks.Delete(ownerID, r.PathValue("id")); err != nil {
		s.taskError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTaskComplete(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	t, err := s.tasks.ToggleComplete(ownerID, r.PathValue("id"))
	if err != nil {
		s.taskError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, t, s.logger)
}
