// Package auth registers users and issues the bearer tokens the API accepts.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/store"
)

const issuer = "mentalpalace"

var (
	ErrInvalidInput       = errors.New("invalid registration input")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{3,32}$`)

// Options configures a Service.
type Options struct {
	// Secret signs tokens. When empty a random per-process secret is used.
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

// Service hashes passwords with bcrypt and signs HS256 JWTs.
type Service struct {
	users     store.UserStore
	secret    []byte
	ephemeral bool
	ttl       time.Duration
	cost      int
	now       func() time.Time
}

func NewService(users store.UserStore, opts Options) (*Service, error) {
	s := &Service{
		users: users,
		ttl:   opts.TokenTTL,
		cost:  opts.BcryptCost,
		now:   time.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 30 * time.Minute
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if opts.Secret != "" {
		s.secret = []byte(opts.Secret)
	} else {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		s.ephemeral = true
	}
	return s, nil
}

// EphemeralSecret reports whether tokens die with the process.
func (s *Service) EphemeralSecret() bool { return s.ephemeral }

func (s *Service) TokenTTL() time.Duration { return s.ttl }

// Register creates an account. Passwords must be 8-72 bytes, the bcrypt limit.
func (s *Service) Register(ctx context.Context, username, password, email string) (store.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	switch {
	case !usernamePattern.MatchString(username):
		return store.User{}, fmt.Errorf("%w: username must be 3-32 letters, digits, '.', '_' or '-'", ErrInvalidInput)
	case len(password) < 8 || len(password) > 72:
		return store.User{}, fmt.Errorf("%w: password must be 8-72 bytes", ErrInvalidInput)
	case email != "" && !strings.Contains(email, "@"):
		return store.User{}, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := store.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return store.User{}, err
	}
	return user, nil
}

// Authenticate checks a username/password pair. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, username, password string) (store.User, error) {
	user, err := s.users.GetUser(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// IssueToken signs a token whose subject is username.
func (s *Service) IssueToken(username string) (string, time.Time, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	tok, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(username).
		IssuedAt(now).
		Expiration(expires).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), s.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return string(signed), expires, nil
}

// VerifyToken validates signature, issuer and expiry and returns the subject.
func (s *Service) VerifyToken(raw string) (string, error) {
	tok, err := jwt.Parse([]byte(strings.TrimSpace(raw)),
		jwt.WithKey(jwa.HS256(), s.secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(issuer),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sub, ok := tok.Subject()
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return sub, nil
}
