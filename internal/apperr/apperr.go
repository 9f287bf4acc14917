// Package apperr defines the error taxonomy shared by the stores, the auth
// service and the HTTP layer. Errors carry a machine-readable Code; errors.Is
// compares by Code so a wrapped error still matches its sentinel.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code rendered in the error envelope.
type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeConflict               Code = "CONFLICT"
	CodeInvalidCredentials     Code = "INVALID_CREDENTIALS"
	CodeInvalidToken           Code = "INVALID_TOKEN"
	CodeTokenExpired           Code = "TOKEN_EXPIRED"
	CodeTokenNotYetValid       Code = "TOKEN_NOT_YET_VALID"
	CodeInvalidRefreshToken    Code = "INVALID_REFRESH_TOKEN"
	CodeInvalidResetToken      Code = "INVALID_RESET_TOKEN"
	CodeInvalidCurrentPassword Code = "INVALID_CURRENT_PASSWORD"
	CodeForbidden              Code = "FORBIDDEN"
	CodeNotFound               Code = "NOT_FOUND"
	CodeRateLimited            Code = "RATE_LIMITED"
	CodeDatabase               Code = "DATABASE_ERROR"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// HTTPStatus maps the code to the status the HTTP layer responds with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation, CodeInvalidCurrentPassword, CodeInvalidResetToken:
		return http.StatusBadRequest
	case CodeInvalidCredentials, CodeInvalidToken, CodeTokenExpired,
		CodeTokenNotYetValid, CodeInvalidRefreshToken:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type.
type Error struct {
	Code    Code   // machine-readable code
	Message string // caller-facing message
	Op      string // store operation that failed, if any
	Cause   error  // wrapped underlying error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation reports malformed input.
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Database wraps a storage failure with the name of the operation that hit it.
func Database(op string, cause error) *Error {
	return &Error{Code: CodeDatabase, Message: "storage failure", Op: op, Cause: cause}
}

// CodeOf extracts the code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Sentinels compared with errors.Is.
var (
	ErrConflict               = New(CodeConflict, "email already registered")
	ErrInvalidCredentials     = New(CodeInvalidCredentials, "invalid email or password")
	ErrInvalidToken           = New(CodeInvalidToken, "invalid or expired token")
	ErrTokenExpired           = New(CodeTokenExpired, "token expired")
	ErrTokenNotYetValid       = New(CodeTokenNotYetValid, "token not yet valid")
	ErrInvalidRefreshToken    = New(CodeInvalidRefreshToken, "invalid or expired refresh token")
	ErrInvalidResetToken      = New(CodeInvalidResetToken, "invalid or expired reset token")
	ErrInvalidCurrentPassword = New(CodeInvalidCurrentPassword, "current password is incorrect")
	ErrForbidden              = New(CodeForbidden, "insufficient permissions")
	ErrNotFound               = New(CodeNotFound, "not found")
	ErrRateLimited            = New(CodeRateLimited, "rate limit exceeded")
	ErrInternal               = New(CodeInternal, "internal server error")
)
