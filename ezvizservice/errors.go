package ezvizservice

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxRetries is returned once a call has burned through its whole
	// refresh-and-retry budget without the session coming back.
	ErrMaxRetries = errors.New("max retries exceeded, session could not be restored")

	// ErrCredentialsRequired is returned when a refresh is impossible and
	// no account/password pair was supplied to fall back on.
	ErrCredentialsRequired = errors.New("login with account and password required")
)

// InvalidHostError means the API host could not be reached at all. It is
// never retried, retrying cannot fix an unreachable host.
type InvalidHostError struct {
	Host string
	Err  error
}

func (e *InvalidHostError) Error() string {
	return fmt.Sprintf("invalid host or proxy error for %q: %v", e.Host, e.Err)
}

func (e *InvalidHostError) Unwrap() error { return e.Err }

// HTTPStatusError is a non-401 HTTP failure from the API.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("api returned http %d: %s", e.StatusCode, e.Body)
}

// ResponseError means the body could not be decoded as the expected JSON.
// The raw body is carried for diagnosis.
type ResponseError struct {
	Body string
	Err  error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("impossible to decode response: %v, response was: %s", e.Err, e.Body)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// AuthFailure enumerates the login failure kinds the API reports.
type AuthFailure int

const (
	AuthWrongAccount AuthFailure = iota
	AuthWrongPassword
	AuthAccountLocked
	AuthEmptySession
)

func (f AuthFailure) String() string {
	switch f {
	case AuthWrongAccount:
		return "incorrect username"
	case AuthWrongPassword:
		return "incorrect password"
	case AuthAccountLocked:
		return "the user is locked"
	case AuthEmptySession:
		return "login response carried no session id"
	}
	return "unknown auth failure"
}

// AuthError is a login exchange rejected by the service.
type AuthError struct {
	Reason AuthFailure
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason.String()
}

// OperationRejectedError is an application-level failure code embedded in an
// otherwise successful HTTP response, with no recoverable remedy.
type OperationRejectedError struct {
	Code string
	Body string
}

func (e *OperationRejectedError) Error() string {
	return fmt.Sprintf("operation rejected with code %s: %s", e.Code, e.Body)
}
