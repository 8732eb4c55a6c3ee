package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/learnhub-auth/internal/mocks"
	"github.com/dtroode/learnhub-auth/internal/model"
	"github.com/dtroode/learnhub-auth/internal/testutil"
	"github.com/dtroode/learnhub-auth/internal/token"
)

func TestTokenService_Issue(t *testing.T) {
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", model.RoleStudent)

	pair, err := f.tokens.Issue(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	claims, err := f.tokens.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.RoleStudent, claims.Role)

	rec, err := f.store.GetByHash(context.Background(), token.HashRefreshSecret(pair.RefreshToken))
	require.NoError(t, err)
	assert.Nil(t, rec.ParentID)
	assert.NotEqual(t, pair.RefreshToken, string(rec.TokenHash))
}

func TestTokenService_Refresh_Rotates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", model.RoleInstructor)

	first, err := f.tokens.Issue(ctx, user)
	require.NoError(t, err)

	second, gotUser, err := f.tokens.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, gotUser.ID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	claims, err := f.tokens.VerifyAccess(second.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, model.RoleInstructor, claims.Role)

	child, err := f.store.GetByHash(ctx, token.HashRefreshSecret(second.RefreshToken))
	require.NoError(t, err)
	parent, err := f.store.GetByHash(ctx, token.HashRefreshSecret(first.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.NotNil(t, parent.RevokedAt)
}

func TestTokenService_Refresh_ReplayRevokesChain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", model.RoleStudent)

	first, err := f.tokens.Issue(ctx, user)
	require.NoError(t, err)
	second, _, err := f.tokens.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	third, _, err := f.tokens.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)

	// A stolen copy of the first secret is replayed.
	_, _, err = f.tokens.Refresh(ctx, first.RefreshToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrReplayDetected)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)

	// The newest legitimate secret is now dead too.
	_, _, err = f.tokens.Refresh(ctx, third.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestTokenService_Refresh_Invalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", model.RoleStudent)

	expired, hash, err := token.NewRefreshSecret()
	require.NoError(t, err)
	require.NoError(t, f.store.Create(ctx, model.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hash,
		IssuedAt:  time.Now().Add(-2 * time.Hour),
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	loggedOut, err := f.tokens.Issue(ctx, user)
	require.NoError(t, err)
	_, err = f.tokens.Revoke(ctx, loggedOut.RefreshToken)
	require.NoError(t, err)

	tests := []struct {
		name      string
		presented string
	}{
		{name: "empty", presented: ""},
		{name: "unknown", presented: "never-issued"},
		{name: "expired", presented: expired},
		{name: "revoked by logout", presented: loggedOut.RefreshToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.tokens.Refresh(ctx, tt.presented)
			assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
			assert.NotErrorIs(t, err, model.ErrReplayDetected)
			assert.NotErrorIs(t, err, model.ErrInfrastructure)
		})
	}

	// Expired refresh must not create a child record.
	rec, err := f.store.GetByHash(ctx, hash)
	require.NoError(t, err)
	assert.False(t, rec.Rotated)
}

func TestTokenService_Refresh_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", model.RoleStudent)

	pair, err := f.tokens.Issue(ctx, user)
	require.NoError(t, err)

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := f.tokens.Refresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			if errors.Is(err, model.ErrInvalidRefreshToken) {
				failures++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, failures)
}

func TestTokenService_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", model.RoleStudent)
	other := f.createUser(t, "b@x.com", model.RoleStudent)

	laptop, err := f.tokens.Issue(ctx, user)
	require.NoError(t, err)
	phone, err := f.tokens.Issue(ctx, user)
	require.NoError(t, err)
	phone, _, err = f.tokens.Refresh(ctx, phone.RefreshToken)
	require.NoError(t, err)
	untouched, err := f.tokens.Issue(ctx, other)
	require.NoError(t, err)

	require.NoError(t, f.tokens.RevokeAllForUser(ctx, user.ID))

	for _, rt := range []string{laptop.RefreshToken, phone.RefreshToken} {
		_, _, err := f.tokens.Refresh(ctx, rt)
		assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
	}
	_, _, err = f.tokens.Refresh(ctx, untouched.RefreshToken)
	assert.NoError(t, err)
}

func TestTokenService_Revoke(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	user := f.createUser(t, "a@x.com", model.RoleStudent)

	pair, err := f.tokens.Issue(ctx, user)
	require.NoError(t, err)

	owner, err := f.tokens.Revoke(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner)

	owner, err = f.tokens.Revoke(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner)

	owner, err = f.tokens.Revoke(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, owner)
}

func TestTokenService_InfrastructureErrors(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	dbDown := errors.New("connection refused")
	codec := token.NewJWT("secret", time.Minute)

	t.Run("lookup failure is not an auth failure", func(t *testing.T) {
		store := mocks.NewRefreshTokenStore(t)
		users := mocks.NewUserStore(t)
		store.On("GetByHash", mock.Anything, mock.Anything).Return(model.RefreshToken{}, dbDown).Once()

		svc := NewTokenService(codec, store, users, testutil.MakeNoopLogger(), TokenConfig{})
		_, _, err := svc.Refresh(ctx, "secret")
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrInfrastructure)
		assert.ErrorIs(t, err, dbDown)
		assert.NotErrorIs(t, err, model.ErrInvalidRefreshToken)
	})

	t.Run("rotation failure", func(t *testing.T) {
		store := mocks.NewRefreshTokenStore(t)
		users := mocks.NewUserStore(t)
		store.On("GetByHash", mock.Anything, mock.Anything).Return(model.RefreshToken{
			ID:        uuid.New(),
			UserID:    userID,
			TokenHash: token.HashRefreshSecret("secret"),
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil).Once()
		store.On("Rotate", mock.Anything, mock.Anything, mock.Anything).Return(context.DeadlineExceeded).Once()

		svc := NewTokenService(codec, store, users, testutil.MakeNoopLogger(), TokenConfig{})
		_, _, err := svc.Refresh(ctx, "secret")
		assert.ErrorIs(t, err, model.ErrInfrastructure)
	})

	t.Run("lost race is a replay", func(t *testing.T) {
		store := mocks.NewRefreshTokenStore(t)
		users := mocks.NewUserStore(t)
		recID := uuid.New()
		store.On("GetByHash", mock.Anything, mock.Anything).Return(model.RefreshToken{
			ID:        recID,
			UserID:    userID,
			TokenHash: token.HashRefreshSecret("secret"),
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil).Once()
		store.On("Rotate", mock.Anything, recID, mock.MatchedBy(func(child model.RefreshToken) bool {
			return child.UserID == userID && len(child.TokenHash) > 0
		})).Return(model.ErrRotationConflict).Once()
		store.On("RevokeChain", mock.Anything, recID).Return(nil).Once()

		svc := NewTokenService(codec, store, users, testutil.MakeNoopLogger(), TokenConfig{})
		_, _, err := svc.Refresh(ctx, "secret")
		assert.ErrorIs(t, err, model.ErrReplayDetected)
	})

	t.Run("store returning a different record", func(t *testing.T) {
		store := mocks.NewRefreshTokenStore(t)
		users := mocks.NewUserStore(t)
		store.On("GetByHash", mock.Anything, mock.Anything).Return(model.RefreshToken{
			ID:        uuid.New(),
			UserID:    userID,
			TokenHash: token.HashRefreshSecret("other"),
			ExpiresAt: time.Now().Add(time.Hour),
		}, nil).Once()

		svc := NewTokenService(codec, store, users, testutil.MakeNoopLogger(), TokenConfig{})
		_, _, err := svc.Refresh(ctx, "secret")
		assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
	})

	t.Run("issue failure", func(t *testing.T) {
		store := mocks.NewRefreshTokenStore(t)
		users := mocks.NewUserStore(t)
		store.On("Create", mock.Anything, mock.Anything).Return(dbDown).Once()

		svc := NewTokenService(codec, store, users, testutil.MakeNoopLogger(), TokenConfig{})
		_, err := svc.Issue(ctx, model.User{ID: userID, Role: model.RoleStudent})
		assert.ErrorIs(t, err, model.ErrInfrastructure)
	})
}
