package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/taskpilot/taskpilot/internal/auth"
	"github.com/taskpilot/taskpilot/internal/memory"
)

// conversationError maps conversation lookup failures. Unlike tasks,
// a conversation owned by someone else answers 403 rather than 404.
func (s *Server) conversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memory.ErrConversationNotFound):
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, memory.ErrConversationForbidden):
		s.errorResponse(w, http.StatusForbidden, "not authorized to access this conversation")
	default:
		s.logger.Error("conversation operation failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	convs, err := s.memory.ListConversations(ownerID)
	if err != nil {
		s.conversationError(w, err)
		return
	}

	if convs == nil {
		convs = []*memory.Conversation{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	}, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	conv, err := s.memory.GetConversation(ownerID, r.PathValue("id"))
	if err != nil {
		s.conversationError(w, err)
		return
	}

	messages, err := s.memory.Messages(conv.ID)
	if err != nil {
		s.conversationError(w, err)
		return
	}
	if messages == nil {
		messages = []memory.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"conversation": conv,
		"messages":     messages,
	}, s.logger)
}

// handleConversationArchive hides a conversation from listings. The
// history stays retrievable by ID, so this is not a delete.
func (s *Server) handleConversationArchive(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	if err := s.memory.ArchiveConversation(ownerID, r.PathValue("id")); err != nil {
		s.conversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConversationTools(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	conv, err := s.memory.GetConversation(ownerID, r.PathValue("id"))
	if err != nil {
		s.conversationError(w, err)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	calls, err := s.memory.ToolCalls(conv.ID, limit)
	if err != nil {
		s.conversationError(w, err)
		return
	}
	if calls == nil {
		calls = []memory.ToolCallRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"tool_calls": calls,
		"count":      len(calls),
	}, s.logger)
}
