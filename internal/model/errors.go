package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidInput is returned for malformed or missing request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRotationConflict is returned by a store when a parent record can no longer be rotated.
	ErrRotationConflict = errors.New("refresh token already rotated")

	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrReplayDetected matches ErrInvalidRefreshToken so callers cannot tell them apart.
	ErrReplayDetected  = fmt.Errorf("%w: replay detected", ErrInvalidRefreshToken)
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInfrastructure  = errors.New("infrastructure error")
)

// InfrastructureError reports a store or I/O failure. It is never an
// authentication failure and must not cause a client to drop its session.
type InfrastructureError struct {
	Op  string
	Err error
}

// NewInfrastructureError wraps err as an infrastructure failure of op.
func NewInfrastructureError(op string, err error) *InfrastructureError {
	return &InfrastructureError{Op: op, Err: err}
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrInfrastructure) true for every InfrastructureError.
func (e *InfrastructureError) Is(target error) bool {
	return target == ErrInfrastructure
}
