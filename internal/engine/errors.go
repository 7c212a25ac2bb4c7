package engine

import (
	"errors"
	"fmt"
)

// Error is a host-level failure: the call never reached a program.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// InstanceID identifies the affected instance, if any.
	InstanceID string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes host-level errors.
type ErrorCode string

const (
	// ErrCodeInstanceNotFound indicates the addressed instance does not exist.
	ErrCodeInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"

	// ErrCodeCodeNotFound indicates a code hash names no stored image.
	ErrCodeCodeNotFound ErrorCode = "CODE_NOT_FOUND"

	// ErrCodeIncompatibleCode indicates no implementation can run the image.
	ErrCodeIncompatibleCode ErrorCode = "INCOMPATIBLE_CODE"

	// ErrCodeStopped indicates the Run loop is no longer accepting calls.
	ErrCodeStopped ErrorCode = "ENGINE_STOPPED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.InstanceID != "" {
		return fmt.Sprintf("%s: %s (instance=%s)", e.Code, e.Message, e.InstanceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCodeOf returns the Code of the first *Error in err's chain.
func ErrorCodeOf(err error) (ErrorCode, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code, true
	}
	return "", false
}

// IsInstanceNotFound returns true if err reports a missing instance.
func IsInstanceNotFound(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == ErrCodeInstanceNotFound
}

// IsCodeNotFound returns true if err reports a missing code image.
func IsCodeNotFound(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == ErrCodeCodeNotFound
}

// IsStopped returns true if err reports a stopped engine.
func IsStopped(err error) bool {
	code, ok := ErrorCodeOf(err)
	return ok && code == ErrCodeStopped
}
