package model

import (
	"context"
	"io"
)

// ObjectStorage stores opaque blobs under string keys.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
}
