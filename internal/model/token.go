package model

import (
	"time"

	"github.com/google/uuid"
)

// AccessClaims is the content of a signed access credential.
type AccessClaims struct {
	UserID    uuid.UUID
	Email     string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair is what a client receives after login, registration or rotation.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// TokenCodec signs and verifies access credentials.
type TokenCodec interface {
	Sign(claims AccessClaims) (string, error)
	Verify(token string) (AccessClaims, error)
}
