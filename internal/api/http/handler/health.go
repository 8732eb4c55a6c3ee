package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/dtroode/learnhub-auth/internal/logger"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health serves the liveness endpoint.
type Health struct {
	pinger  Pinger
	timeout time.Duration
	logger  *logger.Logger
}

// NewHealth creates a Health handler. A nil pinger always reports ok.
func NewHealth(pinger Pinger, timeout time.Duration, logger *logger.Logger) *Health {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Health{pinger: pinger, timeout: timeout, logger: logger}
}

// Check answers 200 when the store responds and 503 otherwise.
func (h *Health) Check(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Error("Health handler: store ping failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
