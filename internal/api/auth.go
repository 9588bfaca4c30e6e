package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/taskpilot/taskpilot/internal/auth"
)

// SignupRequest registers a new account.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SigninRequest authenticates an existing account.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest trades a refresh token for a fresh pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		s.errorResponse(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if req.Password == "" {
		s.errorResponse(w, http.StatusBadRequest, "password is required")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.errorResponse(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := s.users.Create(req.Email, strings.TrimSpace(req.Name), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			s.errorResponse(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("signup failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, pair, s.logger)
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.Authenticate(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.errorResponse(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Error("signin failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	pair, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, pair, s.logger)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := s.tokens.Verify(req.RefreshToken)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	pair, err := s.tokens.Issue(userID)
	if err != nil {
		s.logger.Error("token issue failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, pair, s.logger)
}
