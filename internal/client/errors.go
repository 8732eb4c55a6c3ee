package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrReauthRequired means the session is gone and the user must log in again.
	ErrReauthRequired = errors.New("re-authentication required")
	// ErrRefreshUnavailable means the session could not be renewed for a
	// reason unrelated to its validity. The session is kept.
	ErrRefreshUnavailable = errors.New("session refresh unavailable")

	errRefreshRejected = errors.New("refresh rejected")
)

// StatusError is a non-2xx API response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// newStatusError reads the error envelope from resp and closes its body.
func newStatusError(resp *http.Response) error {
	defer resp.Body.Close()

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)

	return &StatusError{
		StatusCode: resp.StatusCode,
		Code:       body.Error.Code,
		Message:    body.Error.Message,
	}
}
