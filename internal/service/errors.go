package service

import (
	"fmt"
	"time"
)

type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnauthorized    ErrorKind = "unauthorized"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindExpired         ErrorKind = "expired"
	KindMismatch        ErrorKind = "mismatch"
	KindTooManyRequests ErrorKind = "too_many_requests"
)

// Error is the typed failure every service operation returns for an expected
// outcome. Code is the stable identifier sent to clients.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	ResetAt time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on kind so callers can write errors.Is(err, ErrNotFound) for
// any not-found error regardless of its code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation      = &Error{Kind: KindValidation, Code: "validation_failed", Message: "invalid request"}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized, Code: "unauthorized", Message: "authentication required"}
	ErrForbidden       = &Error{Kind: KindForbidden, Code: "forbidden", Message: "not allowed"}
	ErrNotFound        = &Error{Kind: KindNotFound, Code: "not_found", Message: "not found"}
	ErrConflict        = &Error{Kind: KindConflict, Code: "conflict", Message: "conflict"}
	ErrExpired         = &Error{Kind: KindExpired, Code: "expired", Message: "expired"}
	ErrMismatch        = &Error{Kind: KindMismatch, Code: "mismatch", Message: "does not match"}
	ErrTooManyRequests = &Error{Kind: KindTooManyRequests, Code: "rate_limited", Message: "too many requests"}
)

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func validationError(message string) *Error {
	return newError(KindValidation, "validation_failed", message)
}

var (
	errInvalidCredentials = newError(KindUnauthorized, "invalid_credentials", "invalid username or password")
	errEmailNotVerified   = newError(KindForbidden, "email_not_verified", "verify your email address before logging in")
	errWrongPassword      = newError(KindUnauthorized, "invalid_password", "current password is incorrect")
	errUsernameTaken      = newError(KindConflict, "username_taken", "username is already registered")
	errEmailTaken         = newError(KindConflict, "email_taken", "email is already registered")
	errAccountNotFound    = newError(KindNotFound, "account_not_found", "account not found")
	errTokenInvalid       = newError(KindNotFound, "token_invalid", "token is invalid or has already been used")
	errTokenMismatch      = newError(KindMismatch, "token_mismatch", "token does not belong to this account")
	errTokenExpired       = newError(KindExpired, "token_expired", "token has expired")
	errSlotEmpty          = newError(KindNotFound, "api_key_not_found", "no api key in this slot")
	errInvalidAPIKey      = newError(KindUnauthorized, "invalid_api_key", "api key is invalid or inactive")
	errSessionInvalid     = newError(KindUnauthorized, "session_invalid", "session is invalid or has been revoked")
	errSessionExpired     = newError(KindExpired, "session_expired", "session has expired")
)

func cooldownError(resetAt time.Time) *Error {
	return &Error{
		Kind:    KindTooManyRequests,
		Code:    "api_key_cooldown",
		Message: "a key was generated for this slot recently, try again later",
		ResetAt: resetAt,
	}
}
