package subhub

import (
	"errors"
	"fmt"
)

// Error represents a subhub error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for subscription operations.
const (
	// ErrCodeNotFound indicates the requested topic does not exist.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeForbidden indicates the endpoint's ACL denies subscribing
	// to the requested topic.
	ErrCodeForbidden = "FORBIDDEN"

	// ErrCodeAlreadySubscribed indicates a non-transient endpoint already
	// holds an active subscription to the topic.
	ErrCodeAlreadySubscribed = "ALREADY_SUBSCRIBED"

	// ErrCodeLockTimeout indicates the per-topic lock was not acquired
	// within the configured timeout. Retryable.
	ErrCodeLockTimeout = "LOCK_TIMEOUT"

	// ErrCodeConfiguration indicates invalid input or wiring, e.g. an
	// endpoint descriptor that resolves to nothing. A caller bug, not a
	// permission denial, and not retryable.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodePersistence indicates a durable store operation failed.
	// The enclosing transaction is rolled back in full. Retryable.
	ErrCodePersistence = "PERSISTENCE_FAILURE"

	// ErrCodeKeyCollision indicates a subscriber key already exists in the
	// durable store. Fatal: keys are derived to be collision-resistant, a
	// collision means broken key allocation, never a silent overwrite.
	ErrCodeKeyCollision = "KEY_COLLISION"

	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates request validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeDelivery indicates message delivery failed.
	ErrCodeDelivery = "DELIVERY_ERROR"
)

// Common errors.
var (
	// ErrNoData is returned when a query returns no results.
	// This is not necessarily an error condition in all cases.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// Retryable reports whether the operation that produced the error may be
// retried as-is. Lock timeouts and persistence failures are transient;
// everything else requires a different request or operator intervention.
func (e *Error) Retryable() bool {
	return e.Code == ErrCodeLockTimeout || e.Code == ErrCodePersistence
}

func isCode(err error, code string) bool {
	var shErr *Error
	if errors.As(err, &shErr) {
		return shErr.Code == code
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return isCode(err, ErrCodeNoData) || errors.Is(err, ErrNoData)
}

// IsNotFound checks if an error carries ErrCodeNotFound.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsForbidden checks if an error carries ErrCodeForbidden.
func IsForbidden(err error) bool { return isCode(err, ErrCodeForbidden) }

// IsAlreadySubscribed checks if an error carries ErrCodeAlreadySubscribed.
func IsAlreadySubscribed(err error) bool { return isCode(err, ErrCodeAlreadySubscribed) }

// IsLockTimeout checks if an error carries ErrCodeLockTimeout.
func IsLockTimeout(err error) bool { return isCode(err, ErrCodeLockTimeout) }

// IsConfiguration checks if an error carries ErrCodeConfiguration.
func IsConfiguration(err error) bool { return isCode(err, ErrCodeConfiguration) }

// IsKeyCollision checks if an error carries ErrCodeKeyCollision.
func IsKeyCollision(err error) bool { return isCode(err, ErrCodeKeyCollision) }
