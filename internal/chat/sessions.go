package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/persona"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/session"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/store"
)

// Personas lists the selectable personas in catalog order.
func (o *Orchestrator) Personas() []persona.Persona {
	return o.personas.List()
}

func (o *Orchestrator) CreateSession(ctx context.Context, userID string, req session.CreateRequest) (store.Session, error) {
	sess, err := o.sessions.Create(ctx, strings.TrimSpace(userID), req)
	if err != nil {
		return store.Session{}, mapSessionErr(err)
	}
	o.metrics.ObserveSessionEvent("created")
	o.log.Info().Str("user_id", sess.UserID).Str("session_id", sess.ID).Str("persona", sess.PersonaID).Msg("session created")
	return sess, nil
}

func (o *Orchestrator) GetSession(ctx context.Context, userID, sessionID string) (store.Session, error) {
	sess, err := o.sessions.Get(ctx, strings.TrimSpace(userID), sessionID)
	if err != nil {
		return store.Session{}, mapSessionErr(err)
	}
	return sess, nil
}

func (o *Orchestrator) ListSessions(ctx context.Context, userID string) ([]store.Session, error) {
	return o.sessions.List(ctx, strings.TrimSpace(userID))
}

func (o *Orchestrator) RenameSession(ctx context.Context, userID, sessionID, name string) (store.Session, error) {
	sess, err := o.sessions.Rename(ctx, strings.TrimSpace(userID), sessionID, name)
	if err != nil {
		return store.Session{}, mapSessionErr(err)
	}
	o.metrics.ObserveSessionEvent("renamed")
	return sess, nil
}

// DeleteSession removes the session, its transcript and summary, and its
// in-process memory.
func (o *Orchestrator) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if err := o.sessions.Delete(ctx, strings.TrimSpace(userID), sessionID); err != nil {
		return mapSessionErr(err)
	}
	o.metrics.ObserveSessionEvent("deleted")
	o.log.Info().Str("user_id", userID).Str("session_id", sessionID).Msg("session deleted")
	return nil
}

// ListTurns returns the stored transcript of a session the user owns.
func (o *Orchestrator) ListTurns(ctx context.Context, userID, sessionID string) ([]store.Turn, error) {
	sess, err := o.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return o.transcripts.ListTurns(ctx, sess.UserID, sess.ID)
}

// SessionPersona returns the persona a session was opened with, used when a
// turn does not name one.
func (o *Orchestrator) SessionPersona(ctx context.Context, userID, sessionID string) (string, error) {
	sess, err := o.GetSession(ctx, userID, sessionID)
	if err != nil {
		return "", err
	}
	return sess.PersonaID, nil
}

// mapSessionErr lifts session validation errors into ErrInvalidInput. Not
// found and unknown persona errors already match the chat sentinels.
func mapSessionErr(err error) error {
	if errors.Is(err, session.ErrInvalidInput) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return err
}
