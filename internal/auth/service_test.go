package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/TarikBugraAy/mental-palace-chatbot/internal/store"
)

func newTestService(t *testing.T, secret string) *Service {
	t.Helper()
	s, err := NewService(store.NewInMemoryStore(), Options{Secret: secret, TokenTTL: time.Minute, BcryptCost: bcrypt.MinCost})
	require.NoError(t, err)
	return s
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, "0123456789abcdef0123")

	user, err := s.Register(ctx, "alice", "correct horse", "alice@example.com")
	require.NoError(t, err)
	require.NotEqual(t, "correct horse", user.PasswordHash)

	got, err := s.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got.Email)

	_, err = s.Authenticate(ctx, "alice", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Authenticate(ctx, "nobody", "correct horse")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Register(ctx, "alice", "another pass", "")
	require.ErrorIs(t, err, store.ErrUserExists)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, "0123456789abcdef0123")
	cases := []struct{ username, password, email string }{
		{"al", "long enough", ""},
		{"alice smith", "long enough", ""},
		{"alice", "short", ""},
		{"alice", strings.Repeat("x", 73), ""},
		{"alice", "long enough", "not-an-email"},
	}
	for _, tc := range cases {
		_, err := s.Register(ctx, tc.username, tc.password, tc.email)
		require.ErrorIs(t, err, ErrInvalidInput, "register(%q, %q, %q)", tc.username, tc.password, tc.email)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestService(t, "0123456789abcdef0123")
	token, expires, err := s.IssueToken("alice")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	sub, err := s.VerifyToken(token)
	require.NoError(t, err)
	require.Equal(t, "alice", sub)
}

func TestTokenRejectsForeignSecret(t *testing.T) {
	a := newTestService(t, "0123456789abcdef0123")
	b := newTestService(t, "fedcba9876543210fedc")
	token, _, err := a.IssueToken("alice")
	require.NoError(t, err)

	_, err = b.VerifyToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
	_, err = a.VerifyToken("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpires(t *testing.T) {
	s := newTestService(t, "0123456789abcdef0123")
	token, _, err := s.IssueToken("alice")
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.VerifyToken(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("VerifyToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestEphemeralSecret(t *testing.T) {
	s, err := NewService(store.NewInMemoryStore(), Options{})
	require.NoError(t, err)
	require.True(t, s.EphemeralSecret())
	require.Equal(t, 30*time.Minute, s.TokenTTL())
}
