package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/upgrade"
)

// OutcomeFor maps a handler error to its receipt outcome.
// nil maps to OutcomeSuccess; anything unrecognized is OutcomeTrapped.
func OutcomeFor(err error) string {
	if err == nil {
		return ir.OutcomeSuccess
	}
	switch {
	case errors.Is(err, program.ErrUnauthorized):
		return ir.OutcomeUnauthorized
	case upgrade.IsUpgradeFailed(err):
		return ir.OutcomeUpgradeFailed
	case errors.Is(err, program.ErrUnknownMessage):
		return ir.OutcomeUnknownMessage
	case program.IsArgError(err):
		return ir.OutcomeInvalidArgs
	}
	if re, ok := program.AsRevert(err); ok && re.Case != "" && re.Case != ir.OutcomeSuccess {
		return re.Case
	}
	return ir.OutcomeTrapped
}

// TrapError is a handler panic, recovered by the host.
type TrapError struct {
	Value any
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("trapped: %v", e.Value)
}
