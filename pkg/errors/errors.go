// Package errors defines the error taxonomy shared by the gateway's
// transports, middleware, and dispatcher. Every error type carries a stable
// wire code; causes are kept for logs and never serialized to clients.
package errors

import (
	"errors"
	"fmt"
)

// Error types
const (
	// ErrMalformedEnvelope is returned when a payload cannot be decoded into a request envelope
	ErrMalformedEnvelope = "malformed_envelope"

	// ErrMissingToken is returned when no bearer token is present on a request
	ErrMissingToken = "missing_token"

	// ErrInvalidToken is returned when the auth service rejects a token
	ErrInvalidToken = "invalid_token"

	// ErrAuthUnavailable is returned when the auth service cannot be reached
	ErrAuthUnavailable = "auth_unavailable"

	// ErrRateLimited is returned when a user exceeds their hourly request quota
	ErrRateLimited = "rate_limited"

	// ErrPermissionDenied is returned when an authenticated user lacks a required permission
	ErrPermissionDenied = "permission_denied"

	// ErrMethodNotFound is returned when a method matches no workflow or tool
	ErrMethodNotFound = "method_not_found"

	// ErrUpstreamAgent is returned when a workflow step's remote call failed after retry
	ErrUpstreamAgent = "upstream_agent"

	// ErrInternal is returned when there is an unexpected internal error
	ErrInternal = "internal"
)

// wireCodes maps error types to the integer codes carried on error envelopes.
// The HTTP adapter maps these same codes to response statuses.
var wireCodes = map[string]int{
	ErrMalformedEnvelope: 400,
	ErrMissingToken:      401,
	ErrInvalidToken:      401,
	ErrAuthUnavailable:   503,
	ErrRateLimited:       429,
	ErrPermissionDenied:  403,
	ErrMethodNotFound:    404,
	ErrUpstreamAgent:     502,
	ErrInternal:          500,
}

// Error represents an error in the gateway.
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Code returns the wire code for the error type.
func (e *Error) Code() int {
	if code, ok := wireCodes[e.Type]; ok {
		return code
	}
	return wireCodes[ErrInternal]
}

// NewError creates a new error.
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewMalformedEnvelopeError creates a new malformed envelope error.
func NewMalformedEnvelopeError(message string, cause error) *Error {
	return NewError(ErrMalformedEnvelope, message, cause)
}

// NewMissingTokenError creates a new missing token error.
func NewMissingTokenError(message string) *Error {
	return NewError(ErrMissingToken, message, nil)
}

// NewInvalidTokenError creates a new invalid token error.
func NewInvalidTokenError(message string) *Error {
	return NewError(ErrInvalidToken, message, nil)
}

// NewAuthUnavailableError creates a new auth service unavailable error.
func NewAuthUnavailableError(message string, cause error) *Error {
	return NewError(ErrAuthUnavailable, message, cause)
}

// NewRateLimitedError creates a new rate limited error.
func NewRateLimitedError(message string) *Error {
	return NewError(ErrRateLimited, message, nil)
}

// NewPermissionDeniedError creates a new permission denied error.
func NewPermissionDeniedError(message string) *Error {
	return NewError(ErrPermissionDenied, message, nil)
}

// NewMethodNotFoundError creates a new method not found error.
func NewMethodNotFoundError(message string) *Error {
	return NewError(ErrMethodNotFound, message, nil)
}

// NewUpstreamAgentError creates a new upstream agent error.
func NewUpstreamAgentError(message string, cause error) *Error {
	return NewError(ErrUpstreamAgent, message, cause)
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// FromError converts any error into a gateway *Error. Errors that are not
// already typed are wrapped as internal errors with a generic message so no
// upstream detail leaks onto the wire.
func FromError(err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return NewInternalError("internal server error", err)
}

func isType(err error, errorType string) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Type == errorType
}

// IsMalformedEnvelope checks if the error is a malformed envelope error.
func IsMalformedEnvelope(err error) bool {
	return isType(err, ErrMalformedEnvelope)
}

// IsMissingToken checks if the error is a missing token error.
func IsMissingToken(err error) bool {
	return isType(err, ErrMissingToken)
}

// IsInvalidToken checks if the error is an invalid token error.
func IsInvalidToken(err error) bool {
	return isType(err, ErrInvalidToken)
}

// IsAuthUnavailable checks if the error is an auth service unavailable error.
func IsAuthUnavailable(err error) bool {
	return isType(err, ErrAuthUnavailable)
}

// IsRateLimited checks if the error is a rate limited error.
func IsRateLimited(err error) bool {
	return isType(err, ErrRateLimited)
}

// IsPermissionDenied checks if the error is a permission denied error.
func IsPermissionDenied(err error) bool {
	return isType(err, ErrPermissionDenied)
}

// IsMethodNotFound checks if the error is a method not found error.
func IsMethodNotFound(err error) bool {
	return isType(err, ErrMethodNotFound)
}

// IsUpstreamAgent checks if the error is an upstream agent error.
func IsUpstreamAgent(err error) bool {
	return isType(err, ErrUpstreamAgent)
}

// IsInternal checks if the error is an internal error.
func IsInternal(err error) bool {
	return isType(err, ErrInternal)
}
