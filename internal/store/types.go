// Package store persists users, chat sessions, transcripts and memory summaries.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user, session or summary target does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned by CreateUser for a taken username.
	ErrUserExists = errors.New("user already exists")
)

// User is a registered account. PasswordHash is never serialized.
type User struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Session is one named conversation owned by a user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	PersonaID string    `json:"persona_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is a completed user/assistant exchange. Turns are append-only.
type Turn struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	PersonaID   string    `json:"persona_id"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// TranscriptStore appends and lists turns and keeps per-session summaries.
type TranscriptStore interface {
	// AppendTurn stores turn and returns it with ID and CreatedAt filled in.
	// It returns ErrNotFound when the session does not exist for the user.
	AppendTurn(ctx context.Context, turn Turn) (Turn, error)
	// ListTurns returns the session's turns in the order they were appended.
	ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error)
	GetSummary(ctx context.Context, userID, sessionID string) (string, bool, error)
	PutSummary(ctx context.Context, userID, sessionID, summary string) error
}

// SessionStore manages sessions. DeleteSession also removes the session's
// turns and summary.
type SessionStore interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context, userID string) ([]Session, error)
	RenameSession(ctx context.Context, id, name string) error
	DeleteSession(ctx context.Context, id string) error
}

// UserStore keeps credentials.
type UserStore interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, username string) (User, error)
}

// Store is the full persistence surface.
type Store interface {
	TranscriptStore
	SessionStore
	UserStore
	Mode() string
	Close() error
}

const (
	ModeInMemory = "in-memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)
