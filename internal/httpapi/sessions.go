package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/chat"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/session"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/store"
)

type personaResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type submitTurnRequest struct {
	PersonaID string `json:"persona_id"`
	Message   string `json:"message"`
}

func (s *Server) handleListPersonas(w http.ResponseWriter, _ *http.Request) {
	personas := s.chat.Personas()
	out := make([]personaResponse, 0, len(personas))
	for _, p := range personas {
		out = append(out, personaResponse{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	respondJSON(w, http.StatusOK, map[string]any{"personas": out})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess, err := s.chat.CreateSession(r.Context(), userFrom(r.Context()), req)
	if err != nil {
		s.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.chat.ListSessions(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.respondChatError(w, err)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.chat.GetSession(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	var req session.RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	sess, err := s.chat.RenameSession(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		s.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteSession(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.respondChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := s.chat.ListTurns(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.respondChatError(w, err)
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	var req submitTurnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := userFrom(r.Context())
	result, err := s.submitTurn(r.Context(), userID, chi.URLParam(r, "id"), req.PersonaID, req.Message)
	if err != nil && !errors.Is(err, chat.ErrPersistenceDegraded) {
		s.respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// submitTurn fills in the session's persona when the caller names none.
func (s *Server) submitTurn(ctx context.Context, userID, sessionID, personaID, message string) (chat.TurnResult, error) {
	if strings.TrimSpace(personaID) == "" {
		fallback, err := s.chat.SessionPersona(ctx, userID, sessionID)
		if err != nil {
			return chat.TurnResult{}, err
		}
		personaID = fallback
	}
	return s.chat.SubmitTurn(ctx, chat.TurnRequest{
		UserID:      userID,
		SessionID:   sessionID,
		PersonaName: personaID,
		Message:     message,
	})
}
