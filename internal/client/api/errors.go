package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("service unavailable")

// Error is a non-2xx response from the server. Its message is the
// server's error text, suitable for display.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// IsStatus reports whether err is an *Error with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// retryable reports whether err should count against the circuit breaker.
func retryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}
