// Package chat runs chat turns: memory, prompt, model call, persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/brain"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/memory"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/observability"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/persona"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/policy"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/prompt"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/session"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/store"
)

const (
	defaultModelTimeout = 45 * time.Second
	appendTimeout       = 5 * time.Second
	forgetTimeout       = 10 * time.Second
)

// TurnRequest is one user message for a session.
type TurnRequest struct {
	UserID      string
	SessionID   string
	PersonaName string
	Message     string
}

// TurnResult is what the caller gets back. Degraded is set when the reply was
// produced but memory or the transcript could not be updated.
type TurnResult struct {
	TurnID      string                `json:"turn_id"`
	SessionID   string                `json:"session_id"`
	PersonaID   string                `json:"persona_id"`
	PersonaName string                `json:"persona_name"`
	UserInput   string                `json:"user_input"`
	AIResponse  string                `json:"ai_response"`
	CreatedAt   time.Time             `json:"created_at"`
	Degraded    bool                  `json:"degraded"`
	Risk        policy.RiskAssessment `json:"risk"`
}

// Options wires an Orchestrator.
type Options struct {
	Personas     *persona.Catalog
	Memory       *memory.Manager
	Model        brain.Model
	Transcripts  store.TranscriptStore
	Sessions     *session.Catalog
	Metrics      *observability.Metrics
	Logger       zerolog.Logger
	ModelTimeout time.Duration
	RedactPII    bool
}

// Orchestrator sequences chat turns. Turns on the same (user, session) run one
// at a time; different keys run in parallel.
type Orchestrator struct {
	personas     *persona.Catalog
	memory       *memory.Manager
	model        brain.Model
	transcripts  store.TranscriptStore
	sessions     *session.Catalog
	metrics      *observability.Metrics
	log          zerolog.Logger
	modelTimeout time.Duration
	redactPII    bool
	now          func() time.Time
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Personas == nil:
		return nil, errors.New("chat: persona catalog is required")
	case opts.Memory == nil:
		return nil, errors.New("chat: memory manager is required")
	case opts.Model == nil:
		return nil, errors.New("chat: model is required")
	case opts.Transcripts == nil:
		return nil, errors.New("chat: transcript store is required")
	case opts.Sessions == nil:
		return nil, errors.New("chat: session catalog is required")
	}
	timeout := opts.ModelTimeout
	if timeout <= 0 {
		timeout = defaultModelTimeout
	}
	o := &Orchestrator{
		personas:     opts.Personas,
		memory:       opts.Memory,
		model:        opts.Model,
		transcripts:  opts.Transcripts,
		sessions:     opts.Sessions,
		metrics:      opts.Metrics,
		log:          opts.Logger.With().Str("component", "chat").Logger(),
		modelTimeout: timeout,
		redactPII:    opts.RedactPII,
		now:          time.Now,
	}
	o.sessions.SetDeleteHook(o.forgetSession)
	return o, nil
}

// SubmitTurn runs one chat turn. On ErrPersistenceDegraded the returned result
// is still valid and should be shown to the user.
func (o *Orchestrator) SubmitTurn(ctx context.Context, req TurnRequest) (result TurnResult, err error) {
	received := o.now()
	ctx, span := observability.StartSpan(ctx, "chat.SubmitTurn",
		trace.WithAttributes(attribute.String("chat.session_id", req.SessionID)))
	defer span.End()

	outcome := "ok"
	defer func() {
		if err != nil {
			span.RecordError(err)
			var te *TurnError
			if errors.As(err, &te) {
				span.SetAttributes(attribute.String("chat.stage", string(te.Stage)))
			}
			outcome = outcomeOf(err)
			if outcome != "degraded" {
				span.SetStatus(codes.Error, outcome)
			}
		}
		o.metrics.ObserveTurn(outcome, o.now().Sub(received))
	}()

	// received
	userID := strings.TrimSpace(req.UserID)
	sessionID := strings.TrimSpace(req.SessionID)
	personaName := strings.TrimSpace(req.PersonaName)
	// The message is validated trimmed but composed and stored verbatim.
	message := req.Message
	if userID == "" || sessionID == "" || personaName == "" || strings.TrimSpace(message) == "" {
		return TurnResult{}, &TurnError{Stage: StageReceived, Kind: ErrInvalidInput,
			Err: errors.New("user, session, persona and message are required")}
	}
	p, err := o.personas.Resolve(personaName)
	if err != nil {
		return TurnResult{}, &TurnError{Stage: StageReceived, Kind: ErrUnknownPersona, Err: err}
	}
	if _, err := o.sessions.Get(ctx, userID, sessionID); err != nil {
		return TurnResult{}, &TurnError{Stage: StageReceived, Kind: sessionKind(err), Err: err}
	}
	span.SetAttributes(attribute.String("chat.persona", p.ID))

	risk := policy.AssessRisk(message)
	if risk.Level != policy.RiskNone {
		o.metrics.ObserveRisk(string(risk.Level))
		o.log.Warn().
			Str("user_id", userID).
			Str("session_id", sessionID).
			Str("risk", string(risk.Level)).
			Strs("signals", risk.Signals).
			Msg("risk language in user message")
	}

	key := memory.Key{UserID: userID, SessionID: sessionID}
	handle, release, err := o.memory.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, memory.ErrForgotten) {
			return TurnResult{}, &TurnError{Stage: StageMemoryLoaded, Kind: ErrSessionNotFound, Err: err}
		}
		return TurnResult{}, &TurnError{Stage: StageMemoryLoaded, Err: err}
	}
	defer release()

	// memory_loaded
	if err := o.memory.Load(ctx, handle); err != nil {
		return TurnResult{}, &TurnError{Stage: StageMemoryLoaded, Err: err}
	}
	o.metrics.SetActiveMemoryStates(o.memory.Len())
	history := o.memory.FormatContext(handle)
	o.metrics.ObserveTurnStage(string(StageMemoryLoaded), o.now().Sub(received))

	// prompt_composed
	composed, err := prompt.Compose(p.Template, history, message)
	if err != nil {
		return TurnResult{}, &TurnError{Stage: StagePromptComposed, Err: err}
	}
	o.metrics.ObserveTurnStage(string(StagePromptComposed), o.now().Sub(received))

	// model_invoked
	reply, err := o.invokeModel(ctx, composed, p.Name)
	if err != nil {
		return TurnResult{}, &TurnError{Stage: StageModelInvoked, Kind: ErrModelUnavailable, Err: err}
	}
	o.metrics.ObserveTurnStage(string(StageModelInvoked), o.now().Sub(received))

	// persisted
	result = TurnResult{
		TurnID:      uuid.NewString(),
		SessionID:   sessionID,
		PersonaID:   p.ID,
		PersonaName: p.Name,
		UserInput:   message,
		AIResponse:  reply,
		CreatedAt:   o.now().UTC(),
		Risk:        risk,
	}
	if perr := o.persist(ctx, handle, result, userID); perr != nil {
		result.Degraded = true
		o.log.Warn().
			Err(perr).
			Str("user_id", userID).
			Str("session_id", sessionID).
			Str("turn_id", result.TurnID).
			Msg("turn returned but not fully persisted; memory and transcript may diverge")
		return result, &TurnError{Stage: StagePersisted, Kind: ErrPersistenceDegraded, Err: perr}
	}
	o.metrics.ObserveTurnStage(string(StagePersisted), o.now().Sub(received))

	return result, nil
}

func (o *Orchestrator) invokeModel(ctx context.Context, composed, personaName string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "brain.Invoke",
		trace.WithAttributes(attribute.String("brain.provider", o.model.Name())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	defer cancel()

	started := o.now()
	reply, err := o.model.Invoke(ctx, composed)
	o.metrics.ObserveModelLatency(o.now().Sub(started))
	if err == nil {
		reply = cleanReply(reply, personaName)
		if reply == "" {
			err = brain.ErrEmptyResponse
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		o.metrics.ObserveProviderError(o.model.Name(), errorCode(err))
		o.log.Error().Err(err).Str("provider", o.model.Name()).Msg("model call failed")
		return "", err
	}
	return reply, nil
}

// persist records the turn in memory and then appends it to the transcript.
// Both are attempted even if the first fails, and neither is cut short by
// the caller going away.
func (o *Orchestrator) persist(ctx context.Context, handle *memory.Handle, res TurnResult, userID string) error {
	base := context.WithoutCancel(ctx)
	var errs []error

	rctx, cancel := context.WithTimeout(base, o.modelTimeout)
	err := o.memory.Record(rctx, handle, memory.Turn{
		UserInput:   res.UserInput,
		AIResponse:  res.AIResponse,
		PersonaName: res.PersonaName,
	})
	cancel()
	if err != nil {
		errs = append(errs, fmt.Errorf("record memory: %w", err))
	}

	userMessage, aiResponse := res.UserInput, res.AIResponse
	redacted := false
	if o.redactPII {
		var changedIn, changedOut bool
		userMessage, changedIn = policy.RedactPII(userMessage)
		aiResponse, changedOut = policy.RedactPII(aiResponse)
		redacted = changedIn || changedOut
	}

	actx, cancel := context.WithTimeout(base, appendTimeout)
	_, err = o.transcripts.AppendTurn(actx, store.Turn{
		ID:          res.TurnID,
		UserID:      userID,
		SessionID:   res.SessionID,
		PersonaID:   res.PersonaID,
		UserMessage: userMessage,
		AIResponse:  aiResponse,
		PIIRedacted: redacted,
		CreatedAt:   res.CreatedAt,
	})
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The session was deleted mid-turn; drop the state recorded above.
			o.memory.Forget(memory.Key{UserID: userID, SessionID: res.SessionID})
		}
		errs = append(errs, fmt.Errorf("append transcript: %w", err))
	}
	return errors.Join(errs...)
}

// forgetSession drops the memory of a deleted session once no turn holds it.
func (o *Orchestrator) forgetSession(ctx context.Context, sess store.Session) {
	key := memory.Key{UserID: sess.UserID, SessionID: sess.ID}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forgetTimeout)
	defer cancel()
	_, release, err := o.memory.Acquire(actx, key)
	switch {
	case err == nil:
		defer release()
	case errors.Is(err, memory.ErrForgotten):
		// An in-flight turn already dropped it.
	default:
		o.log.Warn().Err(err).Str("session_id", sess.ID).Msg("forgetting session memory while a turn may still hold it")
	}
	o.memory.Forget(key)
	o.metrics.SetActiveMemoryStates(o.memory.Len())
}

func sessionKind(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return ErrSessionNotFound
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrPersistenceDegraded):
		return "degraded"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownPersona), errors.Is(err, ErrSessionNotFound):
		return "rejected"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	default:
		return "failed"
	}
}

func errorCode(err error) string {
	var status *brain.StatusError
	switch {
	case errors.As(err, &status):
		return strconv.Itoa(status.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, brain.ErrEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}
