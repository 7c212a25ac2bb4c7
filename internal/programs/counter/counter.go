// Package counter is an upgradeable example program.
//
// All versions keep the same state layout, {count: int}, so moving an
// instance between them needs no migration.
package counter

import (
	"context"
	"embed"
	"fmt"
	"math"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/upgrade"
)

// Name is the program name declared by every counter image.
const Name = "counter"

// Revert cases.
const (
	Underflow = "Underflow"
	Overflow  = "Overflow"
)

//go:embed images/*.cue
var images embed.FS

// Versions lists the versions with an image and an implementation.
var Versions = []int64{1, 2, 3}

// Image returns the source of the counter image for version.
func Image(version int64) ([]byte, error) {
	return images.ReadFile(fmt.Sprintf("images/v%d.cue", version))
}

// Register adds every counter version to cat. Upgradeable versions use
// capability for their upgrade message.
func Register(cat *program.Catalog, capability *upgrade.Capability) error {
	for _, v := range Versions {
		version := v
		err := cat.Register(Name, version, func(ir.Manifest) (program.Program, error) {
			return New(version, capability)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Counter implements every counter version.
type Counter struct {
	upgrade.Upgradeable

	version int64
	mux     *program.Mux
}

// New builds the counter for version. Versions 1 and 2 need a capability.
func New(version int64, capability *upgrade.Capability) (*Counter, error) {
	c := &Counter{version: version, mux: program.NewMux()}

	c.mux.Register("increment", c.increment)
	c.mux.Register("get", c.get)

	switch version {
	case 1:
		c.mux.Register("decrement", c.decrement)
	case 2:
		c.mux.Register("decrement", c.decrement)
		c.mux.Register("add", c.add)
		c.mux.Register("reset", c.reset)
	case 3:
		return c, nil
	default:
		return nil, fmt.Errorf("counter: no version %d", version)
	}

	if capability == nil {
		return nil, fmt.Errorf("counter v%d: upgradeable version needs a capability", version)
	}
	c.Upgradeable = upgrade.Upgradeable{Capability: capability}
	c.Mount(c.mux)
	return c, nil
}

// Handle implements program.Program.
func (c *Counter) Handle(ctx context.Context, env program.Env, message string, args ir.Object) (ir.Object, error) {
	return c.mux.Handle(ctx, env, message, args)
}

// Messages implements program.MessageLister.
func (c *Counter) Messages() []string {
	return c.mux.Messages()
}

// Init implements program.Initializer. The optional "count" argument sets
// the starting value.
func (c *Counter) Init(_ context.Context, env program.Env, args ir.Object) error {
	for k := range args {
		if k != "count" {
			return &program.ArgError{Arg: k, Message: "not accepted by init"}
		}
	}
	start, err := program.OptionalInt(args, "count", 0)
	if err != nil {
		return err
	}
	if start < 0 {
		return &program.ArgError{Arg: "count", Message: "must not be negative"}
	}
	env.Set("count", ir.Int(start))
	return nil
}

func (c *Counter) increment(_ context.Context, env program.Env, _ ir.Object) (ir.Object, error) {
	return c.adjust(env, 1)
}

func (c *Counter) decrement(_ context.Context, env program.Env, _ ir.Object) (ir.Object, error) {
	return c.adjust(env, -1)
}

func (c *Counter) add(_ context.Context, env program.Env, args ir.Object) (ir.Object, error) {
	by, err := program.RequireInt(args, "by")
	if err != nil {
		return nil, err
	}
	return c.adjust(env, by)
}

func (c *Counter) reset(_ context.Context, env program.Env, _ ir.Object) (ir.Object, error) {
	env.Set("count", ir.Int(0))
	return ir.Object{"count": ir.Int(0)}, nil
}

func (c *Counter) get(_ context.Context, env program.Env, _ ir.Object) (ir.Object, error) {
	n, err := count(env)
	if err != nil {
		return nil, err
	}
	result := ir.Object{"count": ir.Int(n)}
	if c.version > 1 {
		result["version"] = ir.Int(c.version)
	}
	return result, nil
}

func (c *Counter) adjust(env program.Env, delta int64) (ir.Object, error) {
	n, err := count(env)
	if err != nil {
		return nil, err
	}
	if delta > 0 && n > math.MaxInt64-delta {
		return nil, program.Revert(Overflow, "count %d + %d overflows", n, delta)
	}
	if n+delta < 0 {
		return nil, program.Revert(Underflow, "count %d cannot go below zero", n)
	}
	n += delta
	env.Set("count", ir.Int(n))
	return ir.Object{"count": ir.Int(n)}, nil
}

func count(env program.Env) (int64, error) {
	v, ok := env.Get("count")
	if !ok {
		return 0, nil
	}
	n, ok := v.(ir.Int)
	if !ok {
		return 0, fmt.Errorf("counter: state field count is %T, want int", v)
	}
	return int64(n), nil
}
