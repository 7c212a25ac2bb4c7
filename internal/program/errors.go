package program

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the caller lacks a permission the
// message requires.
var ErrUnauthorized = errors.New("Unauthorized")

// RevertError is a domain failure raised by a handler. Case becomes the
// receipt outcome; the call's effects are rolled back.
type RevertError struct {
	Case    string
	Message string
}

func (e *RevertError) Error() string {
	if e.Message == "" {
		return e.Case
	}
	return fmt.Sprintf("%s: %s", e.Case, e.Message)
}

// Revert returns a RevertError for the given case.
func Revert(outcome, format string, args ...any) error {
	return &RevertError{Case: outcome, Message: fmt.Sprintf(format, args...)}
}

// AsRevert extracts a RevertError from err's chain.
func AsRevert(err error) (*RevertError, bool) {
	var re *RevertError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// ArgError reports a missing or malformed message argument.
type ArgError struct {
	Arg     string
	Message string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Message)
}

// IsArgError reports whether err's chain contains an ArgError.
func IsArgError(err error) bool {
	var ae *ArgError
	return errors.As(err, &ae)
}
