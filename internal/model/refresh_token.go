package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RefreshTokenStore persists refresh token records and their rotation chains.
// Only hashes of refresh secrets ever reach the store.
type RefreshTokenStore interface {
	Create(ctx context.Context, token RefreshToken) error
	// GetByHash returns the record regardless of its state; ErrNotFound if the hash is unknown.
	GetByHash(ctx context.Context, hash []byte) (RefreshToken, error)
	// Rotate revokes parentID and stores child in one atomic step. It fails with
	// ErrRotationConflict when the parent is no longer valid or already has a child.
	Rotate(ctx context.Context, parentID uuid.UUID, child RefreshToken) error
	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeAllByUser(ctx context.Context, userID uuid.UUID) error
	// RevokeChain revokes every record of the chain that id belongs to, from the root down.
	RevokeChain(ctx context.Context, id uuid.UUID) error
}

// RefreshToken is a stored refresh token record.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash []byte
	ParentID  *uuid.UUID
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	// Rotated is set when a child record exists, i.e. the token was already exchanged.
	Rotated bool
}

// Valid reports whether the record can still be exchanged at now.
func (t RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
