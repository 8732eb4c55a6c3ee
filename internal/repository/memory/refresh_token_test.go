package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/learnhub-auth/internal/model"
)

func record(userID uuid.UUID, hash string, ttl time.Duration) model.RefreshToken {
	now := time.Now()
	return model.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: []byte(hash),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestRefreshTokenRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	r := NewRefreshTokenRepository()
	rec := record(uuid.New(), "h1", time.Hour)

	require.NoError(t, r.Create(ctx, rec))

	got, err := r.GetByHash(ctx, []byte("h1"))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, got.Valid(time.Now()))
	assert.False(t, got.Rotated)

	_, err = r.GetByHash(ctx, []byte("nope"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRefreshTokenRepository_Rotate(t *testing.T) {
	ctx := context.Background()
	r := NewRefreshTokenRepository()
	userID := uuid.New()
	root := record(userID, "root", time.Hour)
	require.NoError(t, r.Create(ctx, root))

	child := record(userID, "child", time.Hour)
	require.NoError(t, r.Rotate(ctx, root.ID, child))

	gotRoot, err := r.GetByHash(ctx, []byte("root"))
	require.NoError(t, err)
	assert.NotNil(t, gotRoot.RevokedAt)
	assert.True(t, gotRoot.Rotated)

	gotChild, err := r.GetByHash(ctx, []byte("child"))
	require.NoError(t, err)
	require.NotNil(t, gotChild.ParentID)
	assert.Equal(t, root.ID, *gotChild.ParentID)

	err = r.Rotate(ctx, root.ID, record(userID, "again", time.Hour))
	assert.ErrorIs(t, err, model.ErrRotationConflict)
}

func TestRefreshTokenRepository_Rotate_Expired(t *testing.T) {
	ctx := context.Background()
	r := NewRefreshTokenRepository()
	userID := uuid.New()
	old := record(userID, "old", -time.Minute)
	require.NoError(t, r.Create(ctx, old))

	err := r.Rotate(ctx, old.ID, record(userID, "new", time.Hour))
	assert.ErrorIs(t, err, model.ErrRotationConflict)

	_, err = r.GetByHash(ctx, []byte("new"))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRefreshTokenRepository_ConcurrentRotate(t *testing.T) {
	ctx := context.Background()
	r := NewRefreshTokenRepository()
	userID := uuid.New()
	root := record(userID, "root", time.Hour)
	require.NoError(t, r.Create(ctx, root))

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		child := record(userID, uuid.NewString(), time.Hour)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := r.Rotate(ctx, root.ID, child); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
}

func TestRefreshTokenRepository_RevokeChain(t *testing.T) {
	ctx := context.Background()
	r := NewRefreshTokenRepository()
	userID := uuid.New()

	root := record(userID, "a", time.Hour)
	require.NoError(t, r.Create(ctx, root))
	b := record(userID, "b", time.Hour)
	require.NoError(t, r.Rotate(ctx, root.ID, b))
	c := record(userID, "c", time.Hour)
	require.NoError(t, r.Rotate(ctx, b.ID, c))

	other := record(userID, "other", time.Hour)
	require.NoError(t, r.Create(ctx, other))

	// Revoking from the middle of the chain reaches the tip.
	require.NoError(t, r.RevokeChain(ctx, b.ID))

	tip, err := r.GetByHash(ctx, []byte("c"))
	require.NoError(t, err)
	assert.NotNil(t, tip.RevokedAt)

	untouched, err := r.GetByHash(ctx, []byte("other"))
	require.NoError(t, err)
	assert.Nil(t, untouched.RevokedAt)

	assert.NoError(t, r.RevokeChain(ctx, uuid.New()))
}

func TestRefreshTokenRepository_RevokeIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewRefreshTokenRepository()
	userID := uuid.New()
	rec := record(userID, "x", time.Hour)
	require.NoError(t, r.Create(ctx, rec))

	require.NoError(t, r.Revoke(ctx, rec.ID))
	first, err := r.GetByHash(ctx, []byte("x"))
	require.NoError(t, err)
	require.NotNil(t, first.RevokedAt)

	require.NoError(t, r.Revoke(ctx, rec.ID))
	second, err := r.GetByHash(ctx, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, *first.RevokedAt, *second.RevokedAt)

	require.NoError(t, r.RevokeAllByUser(ctx, userID))
	require.NoError(t, r.Revoke(ctx, uuid.New()))
}
