package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists everything in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path with WAL journaling
// and foreign keys on, then applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := initSQLiteSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			persona_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions (user_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS chat_turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			persona_id TEXT NOT NULL,
			user_message TEXT NOT NULL,
			ai_response TEXT NOT NULL,
			pii_redacted INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns (session_id, seq);`,
		`CREATE TABLE IF NOT EXISTS memory_summaries (
			user_id TEXT NOT NULL,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			summary TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, session_id)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Mode() string { return ModeSQLite }

func (s *SQLiteStore) CreateUser(ctx context.Context, user User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		user.Username, user.Email, user.PasswordHash, user.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("create user %q: %w", user.Username, ErrUserExists)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (User, error) {
	var (
		u       User
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT username, email, password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.Username, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	u.CreatedAt = fromNanos(created)
	return u, nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session Session) (Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, name, persona_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Name, session.PersonaID, session.CreatedAt.UnixNano(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	var (
		sess    Session
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, persona_id, created_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.PersonaID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.CreatedAt = fromNanos(created)
	return sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, persona_id, created_at FROM chat_sessions
		 WHERE user_id = ? ORDER BY created_at, rowid`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		var (
			sess    Session
			created int64
		)
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.PersonaID, &created); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.CreatedAt = fromNanos(created)
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) RenameSession(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chat_sessions SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	return requireRow(res, "session", id)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(res, "session", id)
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, turn Turn) (Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_turns (id, user_id, session_id, persona_id, user_message, ai_response, pii_redacted, created_at)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id = ? AND user_id = ?)`,
		turn.ID, turn.UserID, turn.SessionID, turn.PersonaID, turn.UserMessage, turn.AIResponse,
		turn.PIIRedacted, turn.CreatedAt.UnixNano(),
		turn.SessionID, turn.UserID,
	)
	if err != nil {
		return Turn{}, fmt.Errorf("append turn: %w", err)
	}
	if err := requireRow(res, "session", turn.SessionID); err != nil {
		return Turn{}, err
	}
	return turn, nil
}

func (s *SQLiteStore) ListTurns(ctx context.Context, userID, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, session_id, persona_id, user_message, ai_response, pii_redacted, created_at
		 FROM chat_turns WHERE user_id = ? AND session_id = ? ORDER BY seq`, userID, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	out := make([]Turn, 0)
	for rows.Next() {
		var (
			t       Turn
			created int64
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.SessionID, &t.PersonaID, &t.UserMessage, &t.AIResponse, &t.PIIRedacted, &created); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.CreatedAt = fromNanos(created)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context, userID, sessionID string) (string, bool, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM memory_summaries WHERE user_id = ? AND session_id = ?`, userID, sessionID,
	).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get summary: %w", err)
	}
	return summary, true, nil
}

func (s *SQLiteStore) PutSummary(ctx context.Context, userID, sessionID, summary string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_summaries (user_id, session_id, summary, updated_at)
		 SELECT ?, ?, ?, ?
		 WHERE EXISTS (SELECT 1 FROM chat_sessions WHERE id = ? AND user_id = ?)
		 ON CONFLICT(user_id, session_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		userID, sessionID, summary, time.Now().UTC().UnixNano(), sessionID, userID,
	)
	if err != nil {
		return fmt.Errorf("put summary: %w", err)
	}
	return requireRow(res, "session", sessionID)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
