package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/auth"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/store"
)

const anonymousUser = "anonymous"

type userKey struct{}

func userFrom(ctx context.Context) string {
	if id, ok := ctx.Value(userKey{}).(string); ok && id != "" {
		return id
	}
	return anonymousUser
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type tokenResponse struct {
	Username    string    `json:"username"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		respondError(w, http.StatusNotImplemented, "auth_disabled", "accounts are not enabled")
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user, err := s.auth.Register(r.Context(), req.Username, req.Password, req.Email)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, store.ErrUserExists):
		respondError(w, http.StatusConflict, "user_exists", "username already registered")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("register failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	s.respondToken(w, http.StatusCreated, user.Username)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		respondError(w, http.StatusNotImplemented, "auth_disabled", "accounts are not enabled")
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	user, err := s.auth.Authenticate(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "incorrect username or password")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("login failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	s.respondToken(w, http.StatusOK, user.Username)
}

func (s *Server) respondToken(w http.ResponseWriter, status int, username string) {
	token, expires, err := s.auth.IssueToken(username)
	if err != nil {
		s.log.Error().Err(err).Msg("issue token failed")
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}
	respondJSON(w, status, tokenResponse{
		Username:    username,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expires,
	})
}

// identify resolves the caller. A bearer token always wins when present and
// is mandatory when AuthRequired is set; otherwise X-User-ID names the caller.
// Browsers cannot set headers on websocket upgrades, so access_token is also
// read from the query string.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw != "" && s.auth != nil {
			username, err := s.auth.VerifyToken(raw)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "invalid_token", "could not validate credentials")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, username)))
			return
		}
		if s.cfg.AuthRequired {
			w.Header().Set("WWW-Authenticate", "Bearer")
			respondError(w, http.StatusUnauthorized, "unauthenticated", "bearer token required")
			return
		}

		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			userID = anonymousUser
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}
