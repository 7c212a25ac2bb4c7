package upgrade

import (
	"errors"
	"fmt"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
)

// ErrUpgradeFailed is the single failure of a code replacement request.
// Any non-zero registry status maps to it; the cause is kept only for
// diagnostics and callers must not branch on it.
var ErrUpgradeFailed = errors.New("UpgradeFailed")

// ErrUnauthorized is returned when the caller may not replace the code.
// The registry was not contacted. It is the host-wide authorization
// failure, so it also matches permission refusals from the engine.
var ErrUnauthorized = program.ErrUnauthorized

// FailedError is the error returned for a refused replacement.
type FailedError struct {
	Target ir.CodeHash
	Cause  error
}

func (e *FailedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("UpgradeFailed: %s", e.Target)
	}
	return fmt.Sprintf("UpgradeFailed: %s: %v", e.Target, e.Cause)
}

// Is reports ErrUpgradeFailed so errors.Is works on wrapped FailedErrors.
func (e *FailedError) Is(target error) bool {
	return target == ErrUpgradeFailed
}

func (e *FailedError) Unwrap() error {
	return e.Cause
}

// IsUpgradeFailed returns true if err is a refused replacement.
// Uses errors.Is to handle wrapped errors.
func IsUpgradeFailed(err error) bool {
	return errors.Is(err, ErrUpgradeFailed)
}

// IsUnauthorized returns true if err is an authorization refusal.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
