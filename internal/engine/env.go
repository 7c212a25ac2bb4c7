package engine

import (
	"context"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/store"
	"github.com/roach88/setcode/internal/upgrade"
)

// txEnv is the program.Env of one call. It works on a copy of the
// instance state and writes nothing until the engine commits.
type txEnv struct {
	engine *Engine
	tx     *store.Tx
	seq    int64

	inst      ir.Instance
	caller    ir.Caller
	executing ir.CodeHash
	pointer   ir.CodeHash
	state     ir.Object
	dirty     bool

	// registryErr is the first refusal reported by the registry. A call
	// whose replacement request failed fails as a whole even if the
	// handler swallowed the error.
	registryErr error
}

var _ program.Env = (*txEnv)(nil)

func newTxEnv(e *Engine, tx *store.Tx, inst ir.Instance, caller ir.Caller, seq int64) *txEnv {
	return &txEnv{
		engine:    e,
		tx:        tx,
		seq:       seq,
		inst:      inst,
		caller:    caller,
		executing: inst.CodeHash,
		pointer:   inst.CodeHash,
		state:     inst.State.Clone(),
	}
}

func (env *txEnv) InstanceID() string    { return env.inst.ID }
func (env *txEnv) Owner() string         { return env.inst.Owner }
func (env *txEnv) Caller() ir.Caller     { return env.caller }
func (env *txEnv) CodeHash() ir.CodeHash { return env.executing }

func (env *txEnv) Get(key string) (ir.Value, bool) {
	v, ok := env.state[key]
	return v, ok
}

func (env *txEnv) Set(key string, v ir.Value) {
	env.state[key] = v
	env.dirty = true
}

func (env *txEnv) SetCodeHash(ctx context.Context, raw []byte) error {
	code := env.engine.registry.SetCodeHash(ctx, env.tx, env.inst.ID, raw, env.seq)
	h, _ := ir.CodeHashFromRaw(raw) // zero if raw is malformed; the registry rejects it
	if err := code.Err(); err != nil {
		if env.registryErr == nil {
			env.registryErr = &upgrade.FailedError{Target: h, Cause: err}
		}
		return err
	}
	env.pointer = h
	return nil
}
