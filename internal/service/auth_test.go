package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dtroode/learnhub-auth/internal/mocks"
	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/password"
	"github.com/dtroode/learnhub-auth/internal/repository/memory"
	"github.com/dtroode/learnhub-auth/internal/testutil"
	"github.com/dtroode/learnhub-auth/internal/token"
)

func TestAuth_Register(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s, err := f.auth.Register(ctx, RegisterParams{Email: "  A@X.com ", Password: "correct-horse", Name: " Ada "})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", s.User.Email)
	assert.Equal(t, "Ada", s.User.Name)
	assert.Equal(t, model.RoleStudent, s.User.Role)
	assert.NotEqual(t, "correct-horse", string(s.User.PasswordHash))
	assert.NotEmpty(t, s.Tokens.AccessToken)
	assert.NotEmpty(t, s.Tokens.RefreshToken)

	_, err = f.auth.Register(ctx, RegisterParams{Email: "a@x.com", Password: "another-one", Name: "Dup"})
	assert.ErrorIs(t, err, model.ErrEmailTaken)
}

func TestAuth_Register_IssueFailureDiscardsUser(t *testing.T) {
	ctx := context.Background()
	users := memory.NewUserRepository()
	store := mocks.NewRefreshTokenStore(t)
	store.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()
	store.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	log := testutil.MakeNoopLogger()
	tokens := NewTokenService(token.NewJWT("test-secret", time.Minute), store, users, log, TokenConfig{})
	a := NewAuth(users, tokens, password.NewHasher(bcrypt.MinCost), log, AuthConfig{})
	params := RegisterParams{Email: "a@x.com", Password: "correct-horse", Name: "Ada"}

	_, err := a.Register(ctx, params)
	require.ErrorIs(t, err, model.ErrInfrastructure)

	_, err = users.GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, model.ErrNotFound)

	s, err := a.Register(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", s.User.Email)
	assert.NotEmpty(t, s.Tokens.RefreshToken)
}

func TestAuth_Register_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		params RegisterParams
	}{
		{name: "missing email", params: RegisterParams{Password: "correct-horse", Name: "A"}},
		{name: "missing password", params: RegisterParams{Email: "a@x.com", Name: "A"}},
		{name: "missing name", params: RegisterParams{Email: "a@x.com", Password: "correct-horse", Name: "  "}},
		{name: "bad email", params: RegisterParams{Email: "not-an-email", Password: "correct-horse", Name: "A"}},
		{name: "short password", params: RegisterParams{Email: "a@x.com", Password: "short", Name: "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Register(context.Background(), tt.params)
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}

func TestAuth_Login(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registered := f.register(t, "a@x.com")

	s, err := f.auth.Login(ctx, "A@x.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, s.User.ID)

	res, err := f.auth.Resolve(ctx, s.Tokens.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, res.Claims.UserID)
	assert.Equal(t, model.RoleStudent, res.Claims.Role)
	assert.Nil(t, res.Renewed)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "a@x.com", password: "wrong-password"},
		{name: "unknown email", email: "nobody@x.com", password: "correct-horse"},
		{name: "empty", email: "", password: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Login(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, model.ErrInvalidCredentials)
		})
	}
}

func TestAuth_Login_StoreDown(t *testing.T) {
	users := mocks.NewUserStore(t)
	users.On("GetByEmail", mock.Anything, "a@x.com").Return(model.User{}, errors.New("timeout")).Once()

	log := testutil.MakeNoopLogger()
	tokens := NewTokenService(token.NewJWT("s", 0), mocks.NewRefreshTokenStore(t), users, log, TokenConfig{})
	a := NewAuth(users, tokens, password.NewHasher(bcrypt.MinCost), log, AuthConfig{})

	_, err := a.Login(context.Background(), "a@x.com", "pw")
	assert.ErrorIs(t, err, model.ErrInfrastructure)
	assert.NotErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestAuth_Resolve_LazyRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.register(t, "a@x.com")

	expired, err := f.codec.Sign(model.AccessClaims{
		UserID:    s.User.ID,
		Email:     s.User.Email,
		Role:      s.User.Role,
		IssuedAt:  time.Now().Add(-time.Hour),
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	res, err := f.auth.Resolve(ctx, expired, s.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, res.Renewed)
	assert.Equal(t, s.User.ID, res.Claims.UserID)
	assert.NotEqual(t, s.Tokens.RefreshToken, res.Renewed.RefreshToken)

	// The old refresh token was consumed by the lazy refresh.
	_, err = f.auth.Resolve(ctx, "", s.Tokens.RefreshToken)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestAuth_Resolve_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	_, err := f.auth.Resolve(context.Background(), "", "")
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	_, err = f.auth.Resolve(context.Background(), "garbage", "garbage")
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestAuth_Resolve_InfrastructureKeepsSession(t *testing.T) {
	users := mocks.NewUserStore(t)
	store := mocks.NewRefreshTokenStore(t)
	store.On("GetByHash", mock.Anything, mock.Anything).Return(model.RefreshToken{}, errors.New("db down")).Once()

	log := testutil.MakeNoopLogger()
	tokens := NewTokenService(token.NewJWT("s", 0), store, users, log, TokenConfig{})
	a := NewAuth(users, tokens, password.NewHasher(bcrypt.MinCost), log, AuthConfig{})

	_, err := a.Resolve(context.Background(), "", "refresh")
	assert.ErrorIs(t, err, model.ErrInfrastructure)
	assert.NotErrorIs(t, err, model.ErrUnauthenticated)
}

func TestAuth_LogoutAndLogoutAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.register(t, "a@x.com")
	second, err := f.auth.Login(ctx, "a@x.com", "correct-horse")
	require.NoError(t, err)

	f.auth.Logout(ctx, first.Tokens.RefreshToken)
	f.auth.Logout(ctx, first.Tokens.RefreshToken)
	f.auth.Logout(ctx, "")

	_, err = f.auth.Refresh(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)

	claims, err := f.tokens.VerifyAccess(second.Tokens.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.auth.LogoutAll(ctx, claims))

	_, err = f.auth.Refresh(ctx, second.Tokens.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestAuth_Profile(t *testing.T) {
	f := newFixture(t)
	s := f.register(t, "a@x.com")

	u, err := f.auth.Profile(context.Background(), model.AccessClaims{UserID: s.User.ID})
	require.NoError(t, err)
	assert.Equal(t, "Test", u.Name)

	_, err = f.auth.Profile(context.Background(), model.AccessClaims{UserID: uuid.New()})
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestAuth_RevokeUserSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	student := f.register(t, "a@x.com")
	admin := f.createUser(t, "root@x.com", model.RoleAdmin)

	err := f.auth.RevokeUserSessions(ctx, model.AccessClaims{UserID: student.User.ID, Role: model.RoleInstructor}, student.User.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)

	err = f.auth.RevokeUserSessions(ctx, model.AccessClaims{UserID: admin.ID, Role: model.RoleAdmin}, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, f.auth.RevokeUserSessions(ctx, model.AccessClaims{UserID: admin.ID, Role: model.RoleAdmin}, student.User.ID))
	_, err = f.auth.Refresh(ctx, student.Tokens.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}
