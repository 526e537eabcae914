package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type summaryKey struct{ userID, sessionID string }

// InMemoryStore is an in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	users     map[string]User
	sessions  map[string]Session
	order     []string
	turns     map[string][]Turn
	summaries map[summaryKey]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:     make(map[string]User),
		sessions:  make(map[string]Session),
		turns:     make(map[string][]Turn),
		summaries: make(map[summaryKey]string),
	}
}

func (s *InMemoryStore) Mode() string { return ModeInMemory }

func (s *InMemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return fmt.Errorf("create user %q: %w", user.Username, ErrUserExists)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.Username] = user
	return nil
}

func (s *InMemoryStore) GetUser(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return u, nil
}

func (s *InMemoryStore) CreateSession(_ context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if _, ok := s.sessions[session.ID]; ok {
		return Session{}, fmt.Errorf("session %q already exists", session.ID)
	}
	s.sessions[session.ID] = session
	s.order = append(s.order, session.ID)
	return session, nil
}

func (s *InMemoryStore) GetSession(_ context.Context, id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return sess, nil
}

func (s *InMemoryStore) ListSessions(_ context.Context, userID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Session, 0)
	for _, id := range s.order {
		if sess := s.sessions[id]; sess.UserID == userID {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *InMemoryStore) RenameSession(_ context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	sess.Name = name
	s.sessions[id] = sess
	return nil
}

func (s *InMemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	delete(s.sessions, id)
	delete(s.turns, id)
	delete(s.summaries, summaryKey{sess.UserID, id})
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[turn.SessionID]; !ok || sess.UserID != turn.UserID {
		return Turn{}, fmt.Errorf("append turn to session %q: %w", turn.SessionID, ErrNotFound)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	s.turns[turn.SessionID] = append(s.turns[turn.SessionID], turn)
	return turn, nil
}

func (s *InMemoryStore) ListTurns(_ context.Context, userID, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, 0)
	for _, t := range s.turns[sessionID] {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *InMemoryStore) GetSummary(_ context.Context, userID, sessionID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.summaries[summaryKey{userID, sessionID}]
	return v, ok, nil
}

func (s *InMemoryStore) PutSummary(_ context.Context, userID, sessionID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; !ok || sess.UserID != userID {
		return fmt.Errorf("put summary for session %q: %w", sessionID, ErrNotFound)
	}
	s.summaries[summaryKey{userID, sessionID}] = summary
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
