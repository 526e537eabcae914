package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/auth"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/chat"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/config"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/observability"
)

type Server struct {
	cfg      config.Config
	chat     *chat.Orchestrator
	auth     *auth.Service
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// New builds the API server. authSvc may be nil when AuthRequired is off, in
// which case the auth routes answer 501 and callers are named by X-User-ID.
func New(cfg config.Config, orchestrator *chat.Orchestrator, authSvc *auth.Service, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		chat:    orchestrator,
		auth:    authSvc,
		metrics: metrics,
		log:     logger.With().Str("component", "httpapi").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only drive a chat from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Delete("/v1/perf/latency", s.handleResetPerfLatency)

	r.Post("/v1/auth/register", s.handleRegister)
	r.Post("/v1/auth/login", s.handleLogin)
	r.Get("/v1/personas", s.handleListPersonas)

	r.Group(func(r chi.Router) {
		r.Use(s.identify)

		r.Post("/v1/sessions", s.handleCreateSession)
		r.Get("/v1/sessions", s.handleListSessions)
		r.Get("/v1/sessions/{id}", s.handleGetSession)
		r.Patch("/v1/sessions/{id}", s.handleRenameSession)
		r.Delete("/v1/sessions/{id}", s.handleDeleteSession)
		r.Get("/v1/sessions/{id}/turns", s.handleListTurns)
		r.Post("/v1/sessions/{id}/turns", s.handleSubmitTurn)
		r.Get("/v1/chat/ws", s.handleChatWS)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"store_mode":      s.cfg.StoreMode(),
		"memory_strategy": s.cfg.MemoryStrategy,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "chat orchestrator not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"store_mode":      s.cfg.StoreMode(),
		"memory_strategy": s.cfg.MemoryStrategy,
		"auth_required":   s.cfg.AuthRequired,
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondChatError maps orchestrator errors onto status codes. Unexpected
// errors are logged and hidden from the caller.
func (s *Server) respondChatError(w http.ResponseWriter, err error) {
	status, code := chatErrorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
		respondError(w, status, code, "internal error")
		return
	}
	respondError(w, status, code, err.Error())
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, chat.ErrUnknownPersona):
		return http.StatusBadRequest, "unknown_persona"
	case errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, chat.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
