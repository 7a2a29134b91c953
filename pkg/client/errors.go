package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Configuration and argument errors returned before any request is made.
var (
	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("api key is required")

	// ErrInvalidConfig is returned by New for out-of-range configuration values.
	ErrInvalidConfig = errors.New("invalid client configuration")

	// ErrInvalidArgument is wrapped by every input validation failure of the
	// resource services. Validation errors are never retried.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ErrorKind tags the failure mode of an Error.
type ErrorKind string

const (
	// KindGeneric covers unclassified HTTP statuses, transport failures,
	// cancellation and malformed responses.
	KindGeneric ErrorKind = "generic"

	// KindAuthentication represents HTTP 401.
	KindAuthentication ErrorKind = "authentication"

	// KindRateLimit represents HTTP 429.
	KindRateLimit ErrorKind = "rate_limit"

	// KindNotFound represents HTTP 404.
	KindNotFound ErrorKind = "not_found"

	// KindServer represents HTTP 500, 502, 503 and 504.
	KindServer ErrorKind = "server"

	// KindTimeout represents an attempt that exceeded the configured timeout.
	KindTimeout ErrorKind = "timeout"
)

// Machine-readable error codes carried in Error.Code.
const (
	CodeAuthentication  = "AUTHENTICATION_ERROR"
	CodeRateLimit       = "RATE_LIMIT_ERROR"
	CodeNotFound        = "NOT_FOUND_ERROR"
	CodeServer          = "SERVER_ERROR"
	CodeTimeout         = "TIMEOUT_ERROR"
	CodeHTTP            = "HTTP_ERROR"
	CodeNetwork         = "NETWORK_ERROR"
	CodeCancelled       = "REQUEST_CANCELLED"
	CodeInvalidResponse = "INVALID_RESPONSE"
)

// Sentinels for errors.Is matching by kind.
//
//	if errors.Is(err, client.ErrRateLimit) { ... }
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrRateLimit      = &Error{Kind: KindRateLimit}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrServer         = &Error{Kind: KindServer}
	ErrTimeout        = &Error{Kind: KindTimeout}
)

// Error is the single failure type returned by the request engine. Every
// kind shares Message, StatusCode and Code; RetryAfter is only set for
// KindRateLimit responses carrying a Retry-After header.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Code       string
	RetryAfter time.Duration
	Err        error

	// hasRetryAfter distinguishes "Retry-After: 0" from an absent header.
	hasRetryAfter bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (status %d, %s)", msg, e.StatusCode, e.Code)
	} else if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return "oilpriceapi: " + msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. A target with a
// Code set must also match the code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// errorForStatus builds the taxonomy error for a non-2xx HTTP status.
func errorForStatus(status int, message string, retryAfter time.Duration) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Kind: KindAuthentication, Message: message, StatusCode: status, Code: CodeAuthentication}
	case http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, Message: message, StatusCode: status, Code: CodeRateLimit, RetryAfter: retryAfter}
	case http.StatusNotFound:
		return &Error{Kind: KindNotFound, Message: message, StatusCode: status, Code: CodeNotFound}
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return &Error{Kind: KindServer, Message: message, StatusCode: status, Code: CodeServer}
	default:
		return &Error{Kind: KindGeneric, Message: message, StatusCode: status, Code: CodeHTTP}
	}
}

func timeoutError(timeout time.Duration, cause error) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("request timeout after %s", timeout),
		Code:    CodeTimeout,
		Err:     cause,
	}
}

func networkError(cause error) *Error {
	return &Error{Kind: KindGeneric, Message: "network error", Code: CodeNetwork, Err: cause}
}

func cancelledError(cause error) *Error {
	return &Error{Kind: KindGeneric, Message: "request cancelled", Code: CodeCancelled, Err: cause}
}

func invalidResponseError(msg string, cause error) *Error {
	return &Error{Kind: KindGeneric, Message: msg, Code: CodeInvalidResponse, Err: cause}
}
