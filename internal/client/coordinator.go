package client

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultExclusiveTimeout bounds a coordinated operation once it has started.
const DefaultExclusiveTimeout = 10 * time.Second

// Coordinator makes concurrent callers share one execution per key.
type Coordinator struct {
	group   singleflight.Group
	timeout time.Duration
}

// NewCoordinator creates a Coordinator. A non-positive timeout uses DefaultExclusiveTimeout.
func NewCoordinator(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultExclusiveTimeout
	}
	return &Coordinator{timeout: timeout}
}

// RunExclusive runs fn unless a call for key is already in flight, in which
// case it waits for that call and returns its result. fn is detached from the
// cancellation of whichever caller started it; a caller whose ctx ends stops
// waiting without affecting the others.
func (c *Coordinator) RunExclusive(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ch := c.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, fn(runCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}
