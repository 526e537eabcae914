package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists users, sessions, transcripts and summaries in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			persona_id TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions (user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			persona_id TEXT NOT NULL,
			user_message TEXT NOT NULL,
			ai_response TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns (session_id, seq);`,
		`CREATE TABLE IF NOT EXISTS memory_summaries (
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, session_id)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Mode() string { return ModePostgres }

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (username) DO NOTHING`,
		user.Username, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("create user %q: %w", user.Username, ErrUserExists)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT username, email, password_hash, created_at FROM users WHERE username=$1`, username,
	).Scan(&u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, session Session) (Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, user_id, name, persona_id, created_at) VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserID, session.Name, session.PersonaID, session.CreatedAt,
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, name, persona_id, created_at FROM chat_sessions WHERE id=$1`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.PersonaID, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, persona_id, created_at FROM chat_sessions
		 WHERE user_id=$1 ORDER BY created_at, id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.PersonaID, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RenameSession(ctx context.Context, id, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE chat_sessions SET name=$1 WHERE id=$2`, name, id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return requireTag(tag, "session", id)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireTag(tag, "session", id)
}

func (s *PostgresStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO chat_turns (id, user_id, session_id, persona_id, user_message, ai_response, pii_redacted, created_at)
		 SELECT $1::text, $2::text, $3::text, $4::text, $5::text, $6::text, $7::boolean, $8::timestamptz
		 WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id=$3::text AND user_id=$2::text)`,
		turn.ID, turn.UserID, turn.SessionID, turn.PersonaID, turn.UserMessage, turn.AIResponse,
		turn.PIIRedacted, turn.CreatedAt,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("append turn: %w", err)
	}
	if err := requireTag(tag, "session", turn.SessionID); err != nil {
		return Turn{}, err
	}
	return turn, nil
}

func (s *PostgresStore) ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, session_id, persona_id, user_message, ai_response, pii_redacted, created_at
		 FROM chat_turns WHERE user_id=$1 AND session_id=$2 ORDER BY seq`,
		userID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	out := make([]Turn, 0)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.PersonaID, &t.UserMessage, &t.AIResponse, &t.PIIRedacted, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, userID, sessionID string) (string, bool, error) {
	var summary string
	err := s.pool.QueryRow(ctx,
		`SELECT summary FROM memory_summaries WHERE user_id=$1 AND session_id=$2`, userID, sessionID,
	).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get summary: %w", err)
	}
	return summary, true, nil
}

func (s *PostgresStore) PutSummary(ctx context.Context, userID, sessionID, summary string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO memory_summaries (user_id, session_id, summary, updated_at)
		 SELECT $1::text, $2::text, $3::text, now()
		 WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id=$2::text AND user_id=$1::text)
		 ON CONFLICT (user_id, session_id) DO UPDATE SET summary=EXCLUDED.summary, updated_at=EXCLUDED.updated_at`,
		userID, sessionID, summary,
	)
	if err != nil {
		return fmt.Errorf("put summary: %w", err)
	}
	return requireTag(tag, "session", sessionID)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func requireTag(tag pgconn.CommandTag, what, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return nil
}
