package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes protocol failures. Callers map codes to operator
// diagnostics or to retry-next-epoch logic; nothing is retried internally.
type ErrorCode string

const (
	// Membership errors.
	ErrCodeNotVerifier      ErrorCode = "NOT_VERIFIER"
	ErrCodeTooManyVerifiers ErrorCode = "TOO_MANY_VERIFIERS"

	// Freshness errors.
	ErrCodeWrongEpoch  ErrorCode = "WRONG_EPOCH"
	ErrCodeBadEpochLen ErrorCode = "BAD_EPOCH_LEN"

	// Evidence threshold errors.
	ErrCodeNotEnoughReceipts    ErrorCode = "NOT_ENOUGH_RECEIPTS"
	ErrCodeNotEnoughStakeWeight ErrorCode = "NOT_ENOUGH_STAKE_WEIGHT"

	// Consistency errors.
	ErrCodeAggregateMismatch ErrorCode = "AGGREGATE_MISMATCH"

	// Policy errors.
	ErrCodeTTLOutOfRange ErrorCode = "TTL_OUT_OF_RANGE"
	ErrCodeBadTTLCaps    ErrorCode = "BAD_TTL_CAPS"

	// Authorization errors.
	ErrCodeUnauthorizedFinalize ErrorCode = "UNAUTHORIZED_FINALIZE"
	ErrCodeUnauthorized         ErrorCode = "UNAUTHORIZED"

	// Record errors.
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists   ErrorCode = "ALREADY_EXISTS"
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeOverflow means checked arithmetic would have wrapped.
	ErrCodeOverflow ErrorCode = "OVERFLOW"
)

// ProtocolError is a categorical, non-recoverable failure of one operation.
// The operation that returned it made no change.
type ProtocolError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context for diagnostics.
	Details map[string]string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a ProtocolError.
func NewError(code ErrorCode, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidArgument creates an INVALID_ARGUMENT error.
func NewInvalidArgument(format string, args ...any) *ProtocolError {
	return NewError(ErrCodeInvalidArgument, format, args...)
}

// WithDetail returns e with an extra detail attached.
func (e *ProtocolError) WithDetail(key, value string) *ProtocolError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// CodeOf extracts the error code, or "" when err is not a ProtocolError.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err is a ProtocolError with the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// CheckedAdd returns a+b, or an OVERFLOW error if the sum wraps.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, NewError(ErrCodeOverflow, "%d + %d overflows uint64", a, b)
	}
	return sum, nil
}

// CheckedMul returns a*b, or an OVERFLOW error if the product wraps.
func CheckedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/b != a {
		return 0, NewError(ErrCodeOverflow, "%d * %d overflows uint64", a, b)
	}
	return p, nil
}
