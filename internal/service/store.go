package service

import (
	"context"
	"errors"
	"time"

	"github.com/dtroode/learnhub-auth/internal/model"
)

// DefaultStoreTimeout bounds a single store call.
const DefaultStoreTimeout = 3 * time.Second

// callStore runs fn under timeout. Domain errors reported by stores pass
// through unchanged; everything else becomes an InfrastructureError.
func callStore(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrRotationConflict),
		errors.Is(err, model.ErrEmailTaken):
		return err
	default:
		return model.NewInfrastructureError(op, err)
	}
}
