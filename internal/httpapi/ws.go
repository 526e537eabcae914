package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/chat"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/policy"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 120 * time.Second
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	userID := userFrom(r.Context())
	if _, err := s.chat.GetSession(r.Context(), userID, sessionID); err != nil {
		s.respondChatError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan protocol.ClientTurn, 16)
	outbound := make(chan any, 16)

	// Turns run one after another in arrival order.
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer close(outbound)
		// outbound is closed only after inbound, so the read loop never
		// sends on a closed channel.
		for msg := range inbound {
			if ctx.Err() != nil {
				continue
			}
			reply := s.runWSTurn(ctx, userID, sessionID, msg)
			select {
			case outbound <- reply:
			case <-ctx.Done():
			}
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}()

	outbound <- protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      "session_ready",
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.queueWSError(ctx, outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			})
			continue
		}
		msg := parsed.(protocol.ClientTurn)
		s.metrics.ObserveWSMessage("inbound", string(msg.Type))
		if msg.SessionID != "" && msg.SessionID != sessionID {
			s.queueWSError(ctx, outbound, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "session_mismatch",
				Source:    "gateway",
				Detail:    "client_turn session_id does not match the connection",
			})
			continue
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- msg:
		}
	}

	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

// queueWSError hands an error event to the writer without blocking the read
// loop for long.
func (s *Server) queueWSError(ctx context.Context, outbound chan<- any, ev protocol.ErrorEvent) {
	select {
	case outbound <- ev:
	case <-ctx.Done():
	case <-time.After(wsWriteTimeout):
		s.log.Warn().Str("session_id", ev.SessionID).Str("code", ev.Code).Msg("dropped websocket error event")
	}
}

func (s *Server) runWSTurn(ctx context.Context, userID, sessionID string, msg protocol.ClientTurn) any {
	result, err := s.submitTurn(ctx, userID, sessionID, msg.PersonaID, msg.Text)
	if err != nil && !errors.Is(err, chat.ErrPersistenceDegraded) {
		status, code := chatErrorStatus(err)
		detail := err.Error()
		if status == http.StatusInternalServerError {
			s.log.Error().Err(err).Str("session_id", sessionID).Msg("websocket turn failed")
			detail = "internal error"
		}
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      code,
			Source:    "chat",
			Retryable: status == http.StatusServiceUnavailable,
			Detail:    detail,
		}
	}
	turn := protocol.AssistantTurn{
		Type:      protocol.TypeAssistantTurn,
		SessionID: result.SessionID,
		TurnID:    result.TurnID,
		PersonaID: result.PersonaID,
		Text:      result.AIResponse,
		Degraded:  result.Degraded,
	}
	if result.Risk.Level != policy.RiskNone {
		turn.Risk = string(result.Risk.Level)
	}
	return turn
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientTurn:
		return m.Type, true
	case protocol.AssistantTurn:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
