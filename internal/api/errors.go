package api

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse marks a 2xx response whose body could not be used.
var ErrMalformedResponse = errors.New("malformed response")

// APIError represents a non-2xx response from the query service.
type APIError struct {
	StatusCode int
	Detail     string
	RequestID  string
}

func (e *APIError) Error() string {
	switch {
	case e.Detail != "" && e.RequestID != "":
		return fmt.Sprintf("api error: status=%d request_id=%s detail=%s", e.StatusCode, e.RequestID, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("api error: status=%d detail=%s", e.StatusCode, e.Detail)
	case e.RequestID != "":
		return fmt.Sprintf("api error: status=%d request_id=%s", e.StatusCode, e.RequestID)
	default:
		return fmt.Sprintf("api error: status=%d", e.StatusCode)
	}
}

// BadRequestError indicates a 4xx request problem (e.g., unknown upload id
// or a query the backend refused).
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

func (e *BadRequestError) Unwrap() error { return e.APIError }

// ServerError indicates 5xx errors from the backend.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("server error: %s", e.APIError.Error()) }

func (e *ServerError) Unwrap() error { return e.APIError }

// UnreachableError indicates the backend could not be reached at all.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }
