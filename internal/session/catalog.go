// Package session manages the named chat sessions each user keeps.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/persona"
	"github.com/TarikBugraAy/mental-palace-chatbot/internal/store"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidInput = errors.New("invalid session input")
)

const maxNameLength = 120

// Catalog wraps a SessionStore with ownership checks and defaults. Sessions
// owned by another user are reported as not found.
type Catalog struct {
	store    store.SessionStore
	personas *persona.Catalog

	mu       sync.RWMutex
	onDelete func(context.Context, store.Session)
}

func NewCatalog(st store.SessionStore, personas *persona.Catalog) *Catalog {
	return &Catalog{store: st, personas: personas}
}

// SetDeleteHook registers a callback run after a session is deleted.
func (c *Catalog) SetDeleteHook(hook func(context.Context, store.Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDelete = hook
}

// Create opens a session. An empty name becomes "Chat <n>" and an empty
// persona the catalog default.
func (c *Catalog) Create(ctx context.Context, userID string, req CreateRequest) (store.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return store.Session{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	p := c.personas.Default()
	if id := strings.TrimSpace(req.PersonaID); id != "" {
		resolved, err := c.personas.Resolve(id)
		if err != nil {
			return store.Session{}, err
		}
		p = resolved
	}

	name := strings.TrimSpace(req.Name)
	if len(name) > maxNameLength {
		return store.Session{}, fmt.Errorf("%w: name longer than %d characters", ErrInvalidInput, maxNameLength)
	}
	if name == "" {
		existing, err := c.store.ListSessions(ctx, userID)
		if err != nil {
			return store.Session{}, err
		}
		name = fmt.Sprintf("Chat %d", len(existing)+1)
	}

	return c.store.CreateSession(ctx, store.Session{UserID: userID, Name: name, PersonaID: p.ID})
}

func (c *Catalog) Get(ctx context.Context, userID, id string) (store.Session, error) {
	sess, err := c.store.GetSession(ctx, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.UserID != userID) {
		return store.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return store.Session{}, err
	}
	return sess, nil
}

func (c *Catalog) List(ctx context.Context, userID string) ([]store.Session, error) {
	return c.store.ListSessions(ctx, userID)
}

func (c *Catalog) Rename(ctx context.Context, userID, id, name string) (store.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return store.Session{}, fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxNameLength)
	}
	sess, err := c.Get(ctx, userID, id)
	if err != nil {
		return store.Session{}, err
	}
	if err := c.store.RenameSession(ctx, sess.ID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return store.Session{}, err
	}
	sess.Name = name
	return sess, nil
}

// Delete removes the session with its transcript and summary.
func (c *Catalog) Delete(ctx context.Context, userID, id string) error {
	sess, err := c.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := c.store.DeleteSession(ctx, sess.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}

	c.mu.RLock()
	hook := c.onDelete
	c.mu.RUnlock()
	if hook != nil {
		hook(ctx, sess)
	}
	return nil
}
