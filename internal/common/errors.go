// Package common defines shared constants and sentinel errors used across
// the server and client layers. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Referral code errors. ErrCodeExpired also matches ErrorNotFound.
	ErrCodeNotFound = errors.New("referral code not found")
	ErrCodeExpired  = &codeExpiredError{}
)

type codeExpiredError struct{}

func (e *codeExpiredError) Error() string { return "referral code expired" }

func (e *codeExpiredError) Is(target error) bool { return target == ErrorNotFound }

// Reason codes attached to ValidationError.
const (
	ReasonInvalidInput = "INVALID_INPUT"
	ReasonCodeNotFound = "CODE_NOT_FOUND"
	ReasonCodeExpired  = "CODE_EXPIRED"
)

// ValidationError describes rejected input. It matches ErrorValidation
// and unwraps to the cause, if any.
type ValidationError struct {
	Reason  string
	Message string
	Fields  map[string]string
	Err     error
}

// NewValidationError builds a ValidationError for the given reason.
func NewValidationError(reason, message string, cause error) *ValidationError {
	return &ValidationError{Reason: reason, Message: message, Err: cause}
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrorValidation }

func (e *ValidationError) Unwrap() error { return e.Err }
