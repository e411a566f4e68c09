// Package apperrors defines the service error taxonomy: typed errors with a
// stable wire code that a single HTTP handler maps onto status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable wire codes. Clients key on these, never on messages.
const (
	CodeAuthMissingCredentials = "AUTH_001"
	CodeAuthInvalidCredentials = "AUTH_002"
	CodeAuthTokenExpired       = "AUTH_003"
	CodeAuthTokenInvalid       = "AUTH_004"
	CodeUserNotFound           = "USER_001"
	CodeUserInactive           = "USER_002"
	CodeValidation             = "VAL_001"
	CodeDatabase               = "DB_001"
	CodeExternalService        = "EXT_001"
	CodeRateLimited            = "RATE_001"
	CodeConfiguration          = "CONFIG_001"
	CodeForbidden              = "AUTHZ_001"
	CodeNotFound               = "RES_001"
	CodeConflict               = "RES_002"
)

// Error is a typed service error carrying a stable code and HTTP status.
type Error struct {
	Code    string
	Message string
	Status  int
	Service string // set for external-service failures
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches one detail entry, typically a failing field path.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Authentication returns a 401 with the invalid-credentials code.
func Authentication(message string) *Error {
	return &Error{Code: CodeAuthInvalidCredentials, Message: message, Status: http.StatusUnauthorized}
}

// MissingCredentials returns a 401 for requests without a bearer token.
func MissingCredentials() *Error {
	return &Error{Code: CodeAuthMissingCredentials, Message: "authentication required", Status: http.StatusUnauthorized}
}

// TokenExpired returns a 401 signalling the client should refresh.
func TokenExpired() *Error {
	return &Error{Code: CodeAuthTokenExpired, Message: "token expired", Status: http.StatusUnauthorized}
}

// TokenInvalid returns a 401 for malformed or mis-signed tokens.
func TokenInvalid() *Error {
	return &Error{Code: CodeAuthTokenInvalid, Message: "token invalid", Status: http.StatusUnauthorized}
}

// UserInactive returns a 401 for disabled accounts.
func UserInactive() *Error {
	return &Error{Code: CodeUserInactive, Message: "user is inactive", Status: http.StatusUnauthorized}
}

// Forbidden returns a 403 for missing permissions or roles.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message, Status: http.StatusForbidden}
}

// Validation returns a 422 for shape, strength, uniqueness and state errors.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message, Status: http.StatusUnprocessableEntity}
}

// NotFound returns a 404.
func NotFound(entity string) *Error {
	return &Error{Code: CodeNotFound, Message: entity + " not found", Status: http.StatusNotFound}
}

// Conflict returns a 400 for integrity violations.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Status: http.StatusBadRequest}
}

// Database wraps a storage failure as a 500.
func Database(err error) *Error {
	return &Error{Code: CodeDatabase, Message: "database error", Status: http.StatusInternalServerError, Err: err}
}

// External wraps a back-end failure (directory, cloud identity, email) as a
// 503 tagged with the failing service.
func External(service string, err error) *Error {
	return &Error{
		Code:    CodeExternalService,
		Message: fmt.Sprintf("external service %s unavailable", service),
		Status:  http.StatusServiceUnavailable,
		Service: service,
		Err:     err,
	}
}

// RateLimited returns a 429.
func RateLimited() *Error {
	return &Error{Code: CodeRateLimited, Message: "rate limit exceeded", Status: http.StatusTooManyRequests}
}

// Configuration returns a startup configuration error.
func Configuration(message string) *Error {
	return &Error{Code: CodeConfiguration, Message: message, Status: http.StatusInternalServerError}
}
