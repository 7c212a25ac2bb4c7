package upgrade

import (
	"context"
	"fmt"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
)

// Message and Arg name the externally callable upgrade message.
const (
	Message = "upgrade"
	Arg     = "code_hash"
)

// Upgradeable is embedded by programs that opt in to code replacement.
// It adds nothing but forwarding: the message's only argument is the
// target hash and its result is empty.
type Upgradeable struct {
	Capability *Capability
}

// Mount registers the upgrade message on mux.
func (u Upgradeable) Mount(mux *program.Mux) {
	if u.Capability == nil {
		panic("upgrade: Upgradeable mounted without a Capability")
	}
	mux.Register(Message, u.handle)
}

func (u Upgradeable) handle(ctx context.Context, env program.Env, args ir.Object) (ir.Object, error) {
	raw, err := program.RequireString(args, Arg)
	if err != nil {
		return nil, err
	}
	target, err := ir.ParseCodeHash(raw)
	if err != nil {
		return nil, &program.ArgError{Arg: Arg, Message: err.Error()}
	}
	if err := u.Capability.RequestCodeReplacement(ctx, env, target); err != nil {
		return nil, fmt.Errorf("upgrade %s: %w", env.InstanceID(), err)
	}
	return ir.Object{}, nil
}
