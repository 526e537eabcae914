package chat

import (
	"errors"
	"fmt"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/persona"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/session"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownPersona      = persona.ErrUnknownPersona
	ErrModelUnavailable    = errors.New("model unavailable")
	ErrPersistenceDegraded = errors.New("persistence degraded")
	ErrSessionNotFound     = session.ErrNotFound
)

// Stage names a step of a chat turn.
type Stage string

const (
	StageReceived       Stage = "received"
	StageMemoryLoaded   Stage = "memory_loaded"
	StagePromptComposed Stage = "prompt_composed"
	StageModelInvoked   Stage = "model_invoked"
	StagePersisted      Stage = "persisted"
	StageReturned       Stage = "returned"
	StageFailed         Stage = "failed"
)

// TurnError reports the stage a turn stopped at. Kind is one of the package
// sentinels, or nil for unexpected internal failures.
type TurnError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *TurnError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("chat turn %s: %v", e.Stage, e.Kind)
	case e.Kind == nil || errors.Is(e.Err, e.Kind):
		return fmt.Sprintf("chat turn %s: %v", e.Stage, e.Err)
	default:
		return fmt.Sprintf("chat turn %s: %v: %v", e.Stage, e.Kind, e.Err)
	}
}

func (e *TurnError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}
