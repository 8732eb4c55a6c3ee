package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/learnhub-auth/internal/model"
)

var _ model.RefreshTokenStore = (*RefreshTokenRepository)(nil)

// RefreshTokenRepository keeps refresh token records in process memory.
// A single mutex makes Rotate atomic.
type RefreshTokenRepository struct {
	mu       sync.Mutex
	byID     map[uuid.UUID]*model.RefreshToken
	byHash   map[string]uuid.UUID
	children map[uuid.UUID]uuid.UUID
	now      func() time.Time
}

// NewRefreshTokenRepository returns an empty in-memory refresh token store.
func NewRefreshTokenRepository() *RefreshTokenRepository {
	return &RefreshTokenRepository{
		byID:     make(map[uuid.UUID]*model.RefreshToken),
		byHash:   make(map[string]uuid.UUID),
		children: make(map[uuid.UUID]uuid.UUID),
		now:      time.Now,
	}
}

// Create stores the root record of a new chain.
func (r *RefreshTokenRepository) Create(ctx context.Context, token model.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.insert(token)
	return nil
}

// GetByHash looks a record up by the hash of its secret.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, hash []byte) (model.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return model.RefreshToken{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHash[string(hash)]
	if !ok {
		return model.RefreshToken{}, model.ErrNotFound
	}
	rt := *r.byID[id]
	_, rt.Rotated = r.children[id]
	return rt, nil
}

// Rotate revokes the parent and stores child under the same lock.
func (r *RefreshTokenRepository) Rotate(ctx context.Context, parentID uuid.UUID, child model.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	parent, ok := r.byID[parentID]
	if !ok {
		return model.ErrRotationConflict
	}
	now := r.now()
	if !parent.Valid(now) {
		return model.ErrRotationConflict
	}
	if _, rotated := r.children[parentID]; rotated {
		return model.ErrRotationConflict
	}

	parent.RevokedAt = &now
	child.ParentID = &parentID
	id := r.insert(child)
	r.children[parentID] = id
	return nil
}

// Revoke marks one record revoked.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.revoke(id, r.now())
	return nil
}

// RevokeAllByUser revokes every live record of userID.
func (r *RefreshTokenRepository) RevokeAllByUser(ctx context.Context, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, rt := range r.byID {
		if rt.UserID == userID {
			r.revoke(id, now)
		}
	}
	return nil
}

// RevokeChain walks up to the root of id's chain and revokes it and all descendants.
func (r *RefreshTokenRepository) RevokeChain(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.byID[id]
	if !ok {
		return nil
	}
	for rt.ParentID != nil {
		parent, ok := r.byID[*rt.ParentID]
		if !ok {
			break
		}
		rt = parent
	}

	now := r.now()
	for cur, ok := rt.ID, true; ok; cur, ok = r.children[cur] {
		r.revoke(cur, now)
	}
	return nil
}

func (r *RefreshTokenRepository) insert(token model.RefreshToken) uuid.UUID {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.Rotated = false
	r.byID[token.ID] = &token
	r.byHash[string(token.TokenHash)] = token.ID
	return token.ID
}

func (r *RefreshTokenRepository) revoke(id uuid.UUID, now time.Time) {
	if rt, ok := r.byID[id]; ok && rt.RevokedAt == nil {
		rt.RevokedAt = &now
	}
}
