package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrAuthRecoveryFailed is matched (via errors.Is) by the error returned when a request hit a 401
// and the token refresh could not restore the session. The session has been cleared by then.
var ErrAuthRecoveryFailed = errors.New("auth recovery failed")

// NetworkError is a transport failure: unreachable host, DNS, connection reset.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError means the request did not complete within the client timeout.
type TimeoutError struct {
	Method  string
	URL     string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: timed out after %s", e.Method, e.URL, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// HTTPError is a non-2xx response which was not absorbed by the 401 recovery.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	if d := e.Detail(); d != "" {
		return fmt.Sprintf("%s %s: API request failed (HTTP %d): %s", e.Method, e.URL, e.StatusCode, d)
	}
	return fmt.Sprintf("%s %s: API request failed (HTTP %d)", e.Method, e.URL, e.StatusCode)
}

// Detail returns the backend's error message from a {"detail": "..."} or {"error": "..."} body.
// Validation errors with a structured detail come back as their raw JSON.
func (e *HTTPError) Detail() string {
	var eb errorBody
	if len(e.Body) == 0 || json.Unmarshal(e.Body, &eb) != nil {
		return ""
	}
	if len(eb.Detail) > 0 {
		var s string
		if json.Unmarshal(eb.Detail, &s) == nil {
			return s
		}
		return string(eb.Detail)
	}
	if eb.Error != "" {
		if eb.Description != "" {
			return eb.Error + ": " + eb.Description
		}
		return eb.Error
	}
	return ""
}

type errorBody struct {
	Detail      json.RawMessage `json:"detail,omitempty"`
	Error       string          `json:"error,omitempty"`
	Description string          `json:"error_description,omitempty"`
}

// AuthRecoveryError carries the reason a refresh cycle failed. It matches ErrAuthRecoveryFailed.
type AuthRecoveryError struct {
	Err error
}

func (e *AuthRecoveryError) Error() string {
	return fmt.Sprintf("%s: %v", ErrAuthRecoveryFailed, e.Err)
}

func (e *AuthRecoveryError) Unwrap() error {
	return e.Err
}

func (e *AuthRecoveryError) Is(target error) bool {
	return target == ErrAuthRecoveryFailed
}

// StatusCode returns the HTTP status of err when it is an *HTTPError, otherwise 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}
