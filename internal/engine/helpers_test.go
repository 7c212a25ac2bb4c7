package engine

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/programs/counter"
	"github.com/roach88/setcode/internal/registry"
	"github.com/roach88/setcode/internal/store"
	"github.com/roach88/setcode/internal/testutil"
	"github.com/roach88/setcode/internal/upgrade"
)

// mixerImage is a program that mutates state and requests a replacement
// in the same call, to observe rollback.
var mixerImage = []byte(`
program: {
	name:        "mixer"
	version:     1
	upgradeable: true
	message: {
		bump_then_upgrade: args: {code_hash: string}
		swallow_upgrade: args: {code_hash: string}
		upgrade_then_fail: args: {code_hash: string}
		panic: {}
		upgrade: args: {code_hash: string}
	}
}
`)

type mixer struct {
	upgrade.Upgradeable
	mux *program.Mux
}

func newMixer(c *upgrade.Capability) *mixer {
	m := &mixer{Upgradeable: upgrade.Upgradeable{Capability: c}, mux: program.NewMux()}
	m.mux.Register("bump_then_upgrade", func(ctx context.Context, env program.Env, args ir.Object) (ir.Object, error) {
		env.Set("bumped", ir.Bool(true))
		return m.mux.Handle(ctx, env, upgrade.Message, args)
	})
	m.mux.Register("swallow_upgrade", func(ctx context.Context, env program.Env, args ir.Object) (ir.Object, error) {
		env.Set("bumped", ir.Bool(true))
		_, _ = m.mux.Handle(ctx, env, upgrade.Message, args)
		return nil, nil
	})
	m.mux.Register("upgrade_then_fail", func(ctx context.Context, env program.Env, args ir.Object) (ir.Object, error) {
		if _, err := m.mux.Handle(ctx, env, upgrade.Message, args); err != nil {
			return nil, err
		}
		return nil, program.Revert("LateFailure", "after the upgrade")
	})
	m.mux.Register("panic", func(context.Context, program.Env, ir.Object) (ir.Object, error) {
		panic("boom")
	})
	m.Mount(m.mux)
	return m
}

func (m *mixer) Handle(ctx context.Context, env program.Env, message string, args ir.Object) (ir.Object, error) {
	return m.mux.Handle(ctx, env, message, args)
}

func (m *mixer) Messages() []string { return m.mux.Messages() }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store  *store.Store
	engine *Engine
	images map[string]ir.CodeHash // "counter@1" -> hash
}

var (
	alice = ir.Caller{Identity: "alice", Permissions: []string{}}
	bob   = ir.Caller{Identity: "bob", Permissions: []string{}}
	admin = ir.Caller{Identity: "alice", Permissions: []string{"admin"}}
)

func newFixture(t *testing.T, policy registry.Policy) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	capability := upgrade.MustNew(upgrade.Owner(), upgrade.WithLogger(quietLogger()))
	cat := program.NewCatalog()
	require.NoError(t, counter.Register(cat, capability))
	require.NoError(t, cat.Register("mixer", 1, func(ir.Manifest) (program.Program, error) {
		return newMixer(capability), nil
	}))

	reg := registry.New(s, cat, registry.WithPolicy(policy), registry.WithLogger(quietLogger()))
	e, err := New(ctx, s, reg, cat,
		WithIDGenerator(testutil.NewSequentialIDs("inst")),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	f := &fixture{store: s, engine: e, images: make(map[string]ir.CodeHash)}
	for _, v := range counter.Versions {
		src, err := counter.Image(v)
		require.NoError(t, err)
		img, err := e.Deploy(ctx, "counter.cue", src)
		require.NoError(t, err)
		f.images[img.Manifest.Key()] = img.Hash
	}
	img, err := e.Deploy(ctx, "mixer.cue", mixerImage)
	require.NoError(t, err)
	f.images[img.Manifest.Key()] = img.Hash
	return f
}

func (f *fixture) instantiate(t *testing.T, key string, count int64) string {
	t.Helper()
	args := ir.Object{}
	if key != "mixer@1" {
		args["count"] = ir.Int(count)
	}
	inst, err := f.engine.Instantiate(context.Background(), f.images[key], alice, args)
	require.NoError(t, err)
	return inst.ID
}

func (f *fixture) call(id, message string, args ir.Object, caller ir.Caller) (Result, error) {
	return f.engine.Call(context.Background(), Request{InstanceID: id, Message: message, Args: args, Caller: caller})
}

func (f *fixture) upgradeArgs(key string) ir.Object {
	return ir.Object{"code_hash": ir.String(f.images[key].String())}
}

func (f *fixture) snapshot(t *testing.T, id string) Snapshot {
	t.Helper()
	snap, err := f.engine.Inspect(context.Background(), id)
	require.NoError(t, err)
	return snap
}
