package model

import "errors"

// ErrorCode tags a domain error so callers can match on the outcome
// instead of inspecting message strings.
type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "validation"
	ErrCodeNotFound            ErrorCode = "not_found"
	ErrCodePaused              ErrorCode = "campaign_paused"
	ErrCodeCapacityExceeded    ErrorCode = "capacity_exceeded"
	ErrCodeInsufficientBalance ErrorCode = "insufficient_balance"
	ErrCodeInvalidProof        ErrorCode = "invalid_proof"
	ErrCodeUnauthorized        ErrorCode = "unauthorized"
	ErrCodeOversold            ErrorCode = "oversold_anomaly"
	ErrCodeInternal            ErrorCode = "internal"
)

// Error is the tagged domain error returned by the accounting service
// and the stores.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError builds a tagged domain error
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func NewValidationError(message string) *Error {
	return NewError(ErrCodeValidation, message)
}

func NewNotFoundError(message string) *Error {
	return NewError(ErrCodeNotFound, message)
}

func NewPausedError(message string) *Error {
	return NewError(ErrCodePaused, message)
}

func NewCapacityExceededError(message string) *Error {
	return NewError(ErrCodeCapacityExceeded, message)
}

func NewInsufficientBalanceError(message string) *Error {
	return NewError(ErrCodeInsufficientBalance, message)
}

func NewInvalidProofError(message string) *Error {
	return NewError(ErrCodeInvalidProof, message)
}

func NewUnauthorizedError(message string) *Error {
	return NewError(ErrCodeUnauthorized, message)
}

func NewOversoldError(message string) *Error {
	return NewError(ErrCodeOversold, message)
}

// CodeOf extracts the error code from err, unwrapping as needed.
// Non-domain errors map to the internal code.
func CodeOf(err error) ErrorCode {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given domain error code
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
