package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ryandam9/gemma-chatd/internal/prompt"
	"github.com/ryandam9/gemma-chatd/internal/session"
)

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// chatResponse mirrors the original API: the reply, the session id to
// carry into the next request, and the exact prompt used (debug view).
type chatResponse struct {
	Response   string `json:"response"`
	SessionID  string `json:"session_id"`
	Timestamp  string `json:"timestamp"`
	LastPrompt string `json:"last_prompt,omitempty"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type historyResponse struct {
	Messages  []historyMessage `json:"messages"`
	SessionID string           `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.requestCount.Add(1)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Message == "" {
		s.respondError(w, http.StatusBadRequest, fmt.Errorf("message must not be empty"))
		return
	}

	ex, err := s.svc.SendMessage(r.Context(), req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, err)
			return
		}
		// The only other failure mode on this path is the backend.
		s.respondError(w, http.StatusBadGateway, err)
		return
	}

	s.respondJSON(w, http.StatusOK, chatResponse{
		Response:   ex.Response,
		SessionID:  ex.SessionID,
		Timestamp:  time.Now().Format(time.RFC3339),
		LastPrompt: ex.Prompt,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	turns, err := s.svc.History(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, fmt.Errorf("session not found"))
			return
		}
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	messages := make([]historyMessage, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, historyMessage{
			Role:    wireRole(t.Role),
			Content: t.Text,
		})
	}

	s.respondJSON(w, http.StatusOK, historyResponse{
		Messages:  messages,
		SessionID: id,
	})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.svc.Clear(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, fmt.Errorf("session not found"))
			return
		}
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message":    "Session cleared successfully",
		"session_id": id,
	})
}

func (s *Server) handleSessionCount(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.svc.Stats()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"timestamp":       time.Now().Format(time.RFC3339),
		"uptime":          time.Since(s.started).String(),
		"active_sessions": stats.ActiveSessions,
		"request_count":   s.requestCount.Load(),
	})
}

// wireRole maps internal roles to the API's role names; the model
// speaks as "assistant" on the wire.
func wireRole(r prompt.Role) string {
	if r == prompt.RoleModel {
		return "assistant"
	}
	return string(r)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError sends an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.respondJSON(w, status, map[string]string{
		"detail": err.Error(),
	})
}
