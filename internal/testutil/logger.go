package testutil

import (
	"io"

	"github.com/dtroode/learnhub-auth/internal/logger"
)

func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, 0, false)
}
