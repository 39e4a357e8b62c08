// Package protocol defines the error taxonomy shared by all owners-backend
// connectors, along with the opaque handle used to track asynchronous vehicle
// commands.
package protocol

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ActionHandle identifies an in-flight asynchronous vehicle command. The
// backend issues one handle per command; it carries no state beyond the
// identifier itself.
type ActionHandle string

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the error was triggered by a command that
	// might have been executed. For example, if the client times out waiting for
	// the command-status endpoint, the vehicle may still complete the command.
	MayHaveSucceeded() bool

	// Temporary returns true if the error might be the result of a transient
	// condition, such as a dropped connection or a gateway timeout.
	Temporary() bool
}

var (
	// ErrUnsupported indicates the selected backend does not implement the
	// requested operation for its vendor or region.
	ErrUnsupported = errors.New("operation not supported by this backend")

	// ErrNoSession indicates an authenticated call was attempted with an unset
	// token. Call Login first.
	ErrNoSession = errors.New("no active session; log in first")
)

// TransportError wraps a network-level failure: connection refused, DNS, TLS,
// or a timeout before any response envelope arrived. It is never conflated
// with application-level errors reported inside a well-formed envelope.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) MayHaveSucceeded() bool {
	// The request may have reached the backend even if the response was lost.
	return true
}

func (e *TransportError) Temporary() bool {
	return true
}

// HTTPError indicates the backend answered with a non-200 status instead of a
// response envelope.
type HTTPError struct {
	Code int
	Body string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return http.StatusText(e.Code)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(e.Code), e.Body)
}

func (e *HTTPError) MayHaveSucceeded() bool {
	return e.Code < 400 || e.Code >= 500
}

func (e *HTTPError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout
}

// RequestError reports a non-zero status in the backend's response envelope.
// The (StatusCode, ErrorType, ErrorCode) triple (1, 1, 1003) identifies an
// expired or otherwise invalidated session, which the session guard recovers
// from; every other combination is surfaced to the caller.
type RequestError struct {
	StatusCode int
	ErrorType  int
	ErrorCode  int
	Message    string
}

func (e *RequestError) Error() string {
	if e.SessionInvalid() {
		return "session invalid"
	}
	if e.Message != "" {
		return fmt.Sprintf("request rejected (type %d, code %d): %s", e.ErrorType, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("request rejected (type %d, code %d)", e.ErrorType, e.ErrorCode)
}

// SessionInvalid reports whether the backend rejected the call because the
// session credentials are no longer valid.
func (e *RequestError) SessionInvalid() bool {
	return e.StatusCode == 1 && e.ErrorType == 1 && e.ErrorCode == 1003
}

func (e *RequestError) MayHaveSucceeded() bool {
	return false
}

func (e *RequestError) Temporary() bool {
	return e.SessionInvalid()
}

// AuthenticationError indicates the backend rejected the account credentials
// during login, or violated the login contract (no session identifier in the
// response). Retrying with the same credentials cannot succeed, so callers
// should surface this immediately.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) MayHaveSucceeded() bool {
	return false
}

func (e *AuthenticationError) Temporary() bool {
	return false
}

// TimeoutError indicates the command-status poll exhausted its bound before
// the backend confirmed completion. Distinct from rejection: the vendor never
// confirmed, but the command may still complete.
type TimeoutError struct {
	Handle  ActionHandle
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %s not confirmed after %s", e.Handle, e.Elapsed)
}

func (e *TimeoutError) MayHaveSucceeded() bool {
	return true
}

func (e *TimeoutError) Temporary() bool {
	return false
}

// SessionInvalid returns true if err reports invalidated session credentials.
func SessionInvalid(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.SessionInvalid()
}

// MayHaveSucceeded returns true if err indicates a command that may have been
// executed even though the client did not receive a confirmation.
func MayHaveSucceeded(err error) bool {
	var catErr Error
	return errors.As(err, &catErr) && catErr.MayHaveSucceeded()
}

// Temporary returns true if err indicates a possibly transient condition that
// does not require user action to resolve.
func Temporary(err error) bool {
	var catErr Error
	return errors.As(err, &catErr) && catErr.Temporary()
}
