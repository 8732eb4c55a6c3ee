package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dtroode/learnhub-auth/internal/model"
)

// handleError writes the response for err and reports its status.
func handleError(w http.ResponseWriter, err error) int {
	status, code, message := statusFor(err)
	writeError(w, status, code, message)
	return status
}

func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, model.ErrInfrastructure):
		return http.StatusInternalServerError, "internal", "Service temporarily unavailable"
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", inputMessage(err)
	case errors.Is(err, model.ErrEmailTaken):
		return http.StatusBadRequest, "email_taken", "Email already registered"
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "Invalid email or password"
	case errors.Is(err, model.ErrInvalidRefreshToken), errors.Is(err, model.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "Not authenticated"
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, "forbidden", "Not enough permissions"
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found", "Not found"
	default:
		return http.StatusInternalServerError, "internal", "Internal server error"
	}
}

// inputMessage strips the sentinel prefix from validation errors.
func inputMessage(err error) string {
	msg := strings.TrimPrefix(err.Error(), model.ErrInvalidInput.Error()+": ")
	if msg == "" || msg == model.ErrInvalidInput.Error() {
		return "Invalid input"
	}
	return msg
}
