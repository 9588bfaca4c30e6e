package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/taskpilot/taskpilot/internal/agent"
	"github.com/taskpilot/taskpilot/internal/auth"
	"github.com/taskpilot/taskpilot/internal/memory"
)

// Chat message content limits.
const (
	minChatLen = 1
	maxChatLen = 5000
)

// degradedResponse stands in for the assistant when the model call
// itself fails. The turn still answers 200 with status "error" so the
// client keeps its conversation state.
const degradedResponse = "I encountered an issue processing your request. Please try again."

// ChatRequest is one user message, optionally continuing an existing
// conversation.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse carries the assistant's reply, the tool invocations the
// turn made, and the conversation it belongs to (freshly created when
// the request had no ID).
type ChatResponse struct {
	Response       string                  `json:"response"`
	ConversationID string                  `json:"conversation_id"`
	ToolCalls      []agent.ToolCallOutcome `json:"tool_calls"`
	Status         string                  `json:"status"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.UserID(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := strings.TrimSpace(req.Message)
	if len(message) < minChatLen {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if len(message) > maxChatLen {
		s.errorResponse(w, http.StatusBadRequest, "message exceeds 5000 characters")
		return
	}

	convID := req.ConversationID
	if convID == "" {
		conv, err := s.memory.CreateConversation(ownerID, message)
		if err != nil {
			s.logger.Error("create conversation failed", "error", err)
			s.errorResponse(w, http.StatusInternalServerError, "internal error")
			return
		}
		convID = conv.ID
	} else {
		if _, err := s.memory.GetConversation(ownerID, convID); err != nil {
			s.conversationError(w, err)
			return
		}
	}

	resp := ChatResponse{ConversationID: convID, Status: "success"}

	turn, err := s.loop.Respond(r.Context(), ownerID, convID, message)
	if err != nil {
		// A failed model call degrades the turn rather than erroring
		// it: the user keeps their conversation and can retry.
		s.logger.Error("agent loop failed", "error", err, "conversation_id", convID)
		resp.Response = degradedResponse
		resp.ToolCalls = []agent.ToolCallOutcome{}
		resp.Status = "error"
		if _, err := s.memory.AddMessage(convID, memory.Message{
			Role:    "assistant",
			Content: degradedResponse,
		}); err != nil {
			s.logger.Warn("persist degraded response failed", "error", err)
		}
	} else {
		resp.Response = turn.Response
		resp.ToolCalls = turn.ToolCalls
	}

	// Compaction runs after the turn so a failure can never cost the
	// user their answer.
	if s.compactor != nil && s.compactor.NeedsCompaction(convID) {
		if err := s.compactor.Compact(r.Context(), convID); err != nil {
			s.logger.Warn("compaction failed", "error", err, "conversation_id", convID)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}
