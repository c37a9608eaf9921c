package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized matches any 401 response.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrNotFound matches any 404 response.
	ErrNotFound = errors.New("api: not found")
)

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
	RequestID  string
}

// maxErrorBody bounds how much of the response body is echoed in Error.
const maxErrorBody = 256

// Error implements the error interface.
func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if len(body) > 0 {
		msg += ": " + string(body)
	}
	return msg
}

// Unwrap maps well known statuses to their sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}
