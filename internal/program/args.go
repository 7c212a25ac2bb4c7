package program

import (
	"fmt"

	"github.com/roach88/setcode/internal/ir"
)

// RequireString returns args[name] as a string.
func RequireString(args ir.Object, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", &ArgError{Arg: name, Message: "required"}
	}
	s, ok := v.(ir.String)
	if !ok {
		return "", &ArgError{Arg: name, Message: fmt.Sprintf("want string, got %s", TypeName(v))}
	}
	return string(s), nil
}

// RequireInt returns args[name] as an int64.
func RequireInt(args ir.Object, name string) (int64, error) {
	v, ok := args[name]
	if !ok {
		return 0, &ArgError{Arg: name, Message: "required"}
	}
	n, ok := v.(ir.Int)
	if !ok {
		return 0, &ArgError{Arg: name, Message: fmt.Sprintf("want int, got %s", TypeName(v))}
	}
	return int64(n), nil
}

// OptionalInt returns args[name] as an int64, or def when absent.
func OptionalInt(args ir.Object, name string, def int64) (int64, error) {
	if _, ok := args[name]; !ok {
		return def, nil
	}
	return RequireInt(args, name)
}

// CheckArgs validates args against a message signature: every declared
// argument must be present with the declared type and nothing else may
// be passed.
func CheckArgs(sig ir.MessageSig, args ir.Object) error {
	declared := make(map[string]string, len(sig.Args))
	for _, a := range sig.Args {
		declared[a.Name] = a.Type
	}
	for _, k := range args.SortedKeys() {
		if _, ok := declared[k]; !ok {
			return &ArgError{Arg: k, Message: fmt.Sprintf("not accepted by %s", sig.Name)}
		}
	}
	for _, a := range sig.Args {
		v, ok := args[a.Name]
		if !ok {
			return &ArgError{Arg: a.Name, Message: "required"}
		}
		if got := TypeName(v); got != a.Type {
			return &ArgError{Arg: a.Name, Message: fmt.Sprintf("want %s, got %s", a.Type, got)}
		}
	}
	return nil
}

// TypeName returns the argument type name of v.
func TypeName(v ir.Value) string {
	switch v.(type) {
	case ir.String:
		return "string"
	case ir.Int:
		return "int"
	case ir.Bool:
		return "bool"
	case ir.List:
		return "list"
	case ir.Object:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
