package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-proctor/internal/response"
)

var (
	// ErrUnauthorized: the bearer token is missing, invalid or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidRequest: the server rejected the payload shape.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAlreadySubmitted: the exam was graded for this student before joining.
	ErrAlreadySubmitted = errors.New("already submitted")
	// ErrRejected: any other 4xx answer, such as a wrong entry token.
	ErrRejected = errors.New("request rejected")
	// ErrRateLimited: 429, retryable.
	ErrRateLimited = errors.New("rate limited")
	// ErrServer: 5xx, including grading and persistence failures. Retryable.
	ErrServer = errors.New("server error")
)

// APIError is a non-2xx answer from the exam server.
type APIError struct {
	Status  int
	Code    response.ErrCode
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exam server: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("exam server: %d %s", e.Status, http.StatusText(e.Status))
}

// Unwrap maps the status onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusBadRequest:
		return ErrInvalidRequest
	case e.Status == http.StatusConflict:
		return ErrAlreadySubmitted
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status >= 500:
		return ErrServer
	default:
		return ErrRejected
	}
}

// IsRetryable reports whether resending the same request may succeed.
// Transport failures and per-request timeouts are retryable; caller
// cancellation and client errors are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrServer), errors.Is(err, ErrRateLimited):
		return true
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrAlreadySubmitted), errors.Is(err, ErrRejected):
		return false
	default:
		return true
	}
}
