package auth

import (
	"errors"
	"fmt"
)

// ErrRefreshTokenExpired is returned by RefreshToken when the service answers 401.
// Callers should start a new login instead of retrying the refresh.
var ErrRefreshTokenExpired = errors.New("refresh token expired or invalid")

// TransportError is returned when every attempt failed before an HTTP response
// was received (connection refused, DNS failure, timeout).
type TransportError struct {
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("network request failed: %v (check network connection or proxy settings)", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError is returned when the service responds with a non-2xx status.
// It is never retried.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("auth service %s failed: %s - %s", e.Op, e.Status, e.Body)
}

// DecodeError is returned when a 2xx response body cannot be decoded into the
// caller's response type.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("auth service %s parse failed: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
