package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/learnhub-auth/internal/metrics"
	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/password"
	"github.com/dtroode/learnhub-auth/internal/repository/memory"
	"github.com/dtroode/learnhub-auth/internal/testutil"
	"github.com/dtroode/learnhub-auth/internal/token"
)

type fixture struct {
	users   *memory.UserRepository
	store   *memory.RefreshTokenRepository
	codec   *token.JWT
	tokens  *TokenService
	auth    *Auth
	metrics *metrics.Auth
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:   memory.NewUserRepository(),
		store:   memory.NewRefreshTokenRepository(),
		codec:   token.NewJWT("test-secret", time.Minute),
		metrics: metrics.NewAuth(),
	}
	log := testutil.MakeNoopLogger()
	f.tokens = NewTokenService(f.codec, f.store, f.users, log, TokenConfig{
		AccessTTL:    time.Minute,
		RefreshTTL:   time.Hour,
		StoreTimeout: time.Second,
		Metrics:      f.metrics,
	})
	f.auth = NewAuth(f.users, f.tokens, password.NewHasher(bcrypt.MinCost), log, AuthConfig{
		StoreTimeout: time.Second,
		Metrics:      f.metrics,
	})
	return f
}

func (f *fixture) register(t *testing.T, email string) Session {
	t.Helper()
	s, err := f.auth.Register(context.Background(), RegisterParams{Email: email, Password: "correct-horse", Name: "Test"})
	require.NoError(t, err)
	return s
}

func (f *fixture) createUser(t *testing.T, email string, role model.Role) model.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), model.User{Email: email, Name: "Seeded", Role: role})
	require.NoError(t, err)
	return u
}
