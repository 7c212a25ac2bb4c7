package compiler

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/setcode/internal/ir"
)

// UpgradeMessage is the conventional name of the message an upgradeable
// program exposes, and CodeHashArg the argument it takes.
const (
	UpgradeMessage = "upgrade"
	CodeHashArg    = "code_hash"
)

// CompileImage parses code image source into a Manifest.
// filename is used only for error positions and may be empty.
func CompileImage(filename string, src []byte) (*ir.Manifest, error) {
	ctx := cuecontext.New()
	if filename == "" {
		filename = "image.cue"
	}
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	programVal := v.LookupPath(cue.ParsePath("program"))
	if !programVal.Exists() {
		return nil, &CompileError{
			Field:   "program",
			Message: "program is required",
			Pos:     v.Pos(),
		}
	}
	return CompileProgram(programVal)
}

// CompileProgram parses the "program" struct of a code image.
func CompileProgram(v cue.Value) (*ir.Manifest, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &ir.Manifest{}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "name", Message: "name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if strings.TrimSpace(name) == "" || strings.Contains(name, "@") {
		return nil, &CompileError{Field: "name", Message: fmt.Sprintf("invalid program name %q", name), Pos: nameVal.Pos()}
	}
	m.Name = name

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return nil, &CompileError{Field: "version", Message: "version is required", Pos: v.Pos()}
	}
	version, err := versionVal.Int64()
	if err != nil {
		return nil, &CompileError{Field: "version", Message: "version must be an integer", Pos: versionVal.Pos()}
	}
	if version < 1 {
		return nil, &CompileError{Field: "version", Message: fmt.Sprintf("version must be >= 1, got %d", version), Pos: versionVal.Pos()}
	}
	m.Version = version

	if upVal := v.LookupPath(cue.ParsePath("upgradeable")); upVal.Exists() {
		up, err := upVal.Bool()
		if err != nil {
			return nil, &CompileError{Field: "upgradeable", Message: "upgradeable must be a bool", Pos: upVal.Pos()}
		}
		m.Upgradeable = up
	}

	m.Messages, err = parseMessages(v)
	if err != nil {
		return nil, err
	}
	if len(m.Messages) == 0 {
		return nil, &CompileError{Field: "message", Message: "at least one message is required", Pos: v.Pos()}
	}

	if err := validateUpgradeable(m, v); err != nil {
		return nil, err
	}

	return m, nil
}

// parseMessages extracts message signatures, sorted by name.
func parseMessages(v cue.Value) ([]ir.MessageSig, error) {
	var messages []ir.MessageSig

	msgVal := v.LookupPath(cue.ParsePath("message"))
	if !msgVal.Exists() {
		return messages, nil
	}

	iter, err := msgVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		msgName := iter.Label()
		msgValue := iter.Value()

		sig := ir.MessageSig{Name: msgName, Args: []ir.NamedArg{}}

		argsVal := msgValue.LookupPath(cue.ParsePath("args"))
		if argsVal.Exists() {
			argsIter, err := argsVal.Fields(cue.Optional(true))
			if err != nil {
				return nil, formatCUEError(err)
			}
			for argsIter.Next() {
				argType, err := extractTypeName(argsIter.Value())
				if err != nil {
					return nil, err
				}
				sig.Args = append(sig.Args, ir.NamedArg{
					Name: argsIter.Label(),
					Type: argType,
				})
			}
			slices.SortFunc(sig.Args, func(a, b ir.NamedArg) int { return strings.Compare(a.Name, b.Name) })
		}

		requiresVal := msgValue.LookupPath(cue.ParsePath("requires"))
		if requiresVal.Exists() {
			reqIter, err := requiresVal.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for reqIter.Next() {
				req, err := reqIter.Value().String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				sig.Requires = append(sig.Requires, req)
			}
		}

		messages = append(messages, sig)
	}

	slices.SortFunc(messages, func(a, b ir.MessageSig) int { return strings.Compare(a.Name, b.Name) })
	return messages, nil
}

// validateUpgradeable enforces the composition convention: an upgradeable
// program exposes "upgrade" taking a string "code_hash".
func validateUpgradeable(m *ir.Manifest, v cue.Value) error {
	sig, ok := m.Message(UpgradeMessage)
	if !m.Upgradeable {
		if ok {
			return &CompileError{
				Field:   "message.upgrade",
				Message: "upgrade message declared but program is not upgradeable",
				Pos:     v.Pos(),
			}
		}
		return nil
	}
	if !ok {
		return &CompileError{
			Field:   "message.upgrade",
			Message: "upgradeable program must declare an upgrade message",
			Pos:     v.Pos(),
		}
	}
	for _, arg := range sig.Args {
		if arg.Name == CodeHashArg && arg.Type == "string" {
			return nil
		}
	}
	return &CompileError{
		Field:   "message.upgrade.args",
		Message: "upgrade message must take code_hash: string",
		Pos:     v.Pos(),
	}
}

// extractTypeName converts a CUE type to an argument type name.
// Floats are forbidden.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.ListKind:
		return "list", nil
	case cue.StructKind:
		return "object", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
