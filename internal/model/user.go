package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, user User) (User, error)
	// Delete removes the user. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}

// User represents a platform account with its login material.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash []byte
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is the coarse authorization level of a user.
type Role string

const (
	// RoleStudent is the default role for self-registered accounts.
	RoleStudent Role = "STUDENT"
	// RoleInstructor can manage courses.
	RoleInstructor Role = "INSTRUCTOR"
	// RoleAdmin can access every area.
	RoleAdmin Role = "ADMIN"
)

var roleRank = map[Role]int{
	RoleStudent:    1,
	RoleInstructor: 2,
	RoleAdmin:      3,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Allows reports whether a holder of r satisfies a requirement of required.
// Higher roles include the lower ones: ADMIN covers INSTRUCTOR covers STUDENT.
func (r Role) Allows(required Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	want, ok := roleRank[required]
	if !ok {
		return false
	}
	return have >= want
}
