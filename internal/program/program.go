package program

import (
	"context"

	"github.com/roach88/setcode/internal/ir"
)

// Env is the host environment a handler runs in.
// It is only valid for the duration of one call.
type Env interface {
	// InstanceID returns the instance the call addresses.
	InstanceID() string

	// Owner returns the identity that instantiated the instance.
	Owner() string

	// Caller returns who invoked the current message.
	Caller() ir.Caller

	// CodeHash returns the image executing the current call.
	CodeHash() ir.CodeHash

	// Get reads a state field from the call's working copy.
	Get(key string) (ir.Value, bool)

	// Set writes a state field to the call's working copy.
	Set(key string, v ir.Value)

	// SetCodeHash asks the runtime registry to point the current instance
	// at the image named by raw. Returns nil on success and a non-nil error
	// for any registry refusal.
	SetCodeHash(ctx context.Context, raw []byte) error
}

// Program handles messages addressed to an instance.
type Program interface {
	Handle(ctx context.Context, env Env, message string, args ir.Object) (ir.Object, error)
}

// Initializer is implemented by programs that set up state when an
// instance is created. Init runs in the same transaction as the insert.
type Initializer interface {
	Init(ctx context.Context, env Env, args ir.Object) error
}

// MessageLister is implemented by programs that can enumerate the
// messages they handle. The catalog uses it to check that an image's
// manifest and its implementation agree.
type MessageLister interface {
	Messages() []string
}
