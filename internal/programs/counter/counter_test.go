package counter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/setcode/internal/compiler"
	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/testutil"
	"github.com/roach88/setcode/internal/upgrade"
)

func testCapability() *upgrade.Capability {
	return upgrade.MustNew(upgrade.Owner(), upgrade.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func newCounter(t *testing.T, version int64) *Counter {
	t.Helper()
	c, err := New(version, testCapability())
	require.NoError(t, err)
	return c
}

func call(t *testing.T, c *Counter, env *testutil.Env, message string, args ir.Object) (ir.Object, error) {
	t.Helper()
	return c.Handle(context.Background(), env, message, args)
}

func TestImagesMatchImplementations(t *testing.T) {
	cat := program.NewCatalog()
	require.NoError(t, Register(cat, testCapability()))
	assert.Equal(t, []string{"counter@1", "counter@2", "counter@3"}, cat.Keys())

	for _, v := range Versions {
		src, err := Image(v)
		require.NoError(t, err)

		m, err := compiler.CompileImage("", src)
		require.NoError(t, err)
		assert.Equal(t, Name, m.Name)
		assert.Equal(t, v, m.Version)
		assert.Equal(t, v != 3, m.Upgradeable)

		p, err := cat.Load(*m)
		require.NoError(t, err)
		assert.ElementsMatch(t, messageNames(*m), p.(*Counter).Messages())
	}
}

func messageNames(m ir.Manifest) []string {
	var names []string
	for _, sig := range m.Messages {
		names = append(names, sig.Name)
	}
	return names
}

func TestImagesHaveDistinctHashes(t *testing.T) {
	seen := make(map[ir.CodeHash]int64)
	for _, v := range Versions {
		src, err := Image(v)
		require.NoError(t, err)
		h := ir.HashImage(src)
		_, dup := seen[h]
		assert.False(t, dup)
		seen[h] = v
	}
}

func TestImage_Unknown(t *testing.T) {
	_, err := Image(9)
	assert.Error(t, err)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(4, testCapability())
	assert.Error(t, err)

	_, err = New(1, nil)
	assert.Error(t, err)

	frozen, err := New(3, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"get", "increment"}, frozen.Messages())
}

func TestInit(t *testing.T) {
	c := newCounter(t, 1)

	env := testutil.NewEnv("alice", ir.CodeHash{})
	require.NoError(t, c.Init(context.Background(), env, ir.Object{}))
	assert.Equal(t, ir.Object{"count": ir.Int(0)}, env.State)

	env = testutil.NewEnv("alice", ir.CodeHash{})
	require.NoError(t, c.Init(context.Background(), env, ir.Object{"count": ir.Int(5)}))
	assert.Equal(t, ir.Object{"count": ir.Int(5)}, env.State)

	for _, args := range []ir.Object{
		{"count": ir.Int(-1)},
		{"count": ir.String("5")},
		{"start": ir.Int(1)},
	} {
		err := c.Init(context.Background(), testutil.NewEnv("alice", ir.CodeHash{}), args)
		assert.True(t, program.IsArgError(err), "%v", args)
	}
}

func TestIncrementDecrement(t *testing.T) {
	c := newCounter(t, 1)
	env := testutil.NewEnv("alice", ir.CodeHash{})
	env.State = ir.Object{"count": ir.Int(0)}

	result, err := call(t, c, env, "increment", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"count": ir.Int(1)}, result)

	result, err = call(t, c, env, "decrement", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"count": ir.Int(0)}, result)

	_, err = call(t, c, env, "decrement", nil)
	re, ok := program.AsRevert(err)
	require.True(t, ok)
	assert.Equal(t, Underflow, re.Case)
	assert.Equal(t, ir.Int(0), env.State["count"])
}

func TestIncrementOverflow(t *testing.T) {
	c := newCounter(t, 1)
	env := testutil.NewEnv("alice", ir.CodeHash{})
	env.State = ir.Object{"count": ir.Int(1<<63 - 1)}

	_, err := call(t, c, env, "increment", nil)
	re, ok := program.AsRevert(err)
	require.True(t, ok)
	assert.Equal(t, Overflow, re.Case)
}

func TestGetReportsVersion(t *testing.T) {
	env := testutil.NewEnv("alice", ir.CodeHash{})
	env.State = ir.Object{"count": ir.Int(4)}

	result, err := call(t, newCounter(t, 1), env, "get", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"count": ir.Int(4)}, result)

	result, err = call(t, newCounter(t, 2), env, "get", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"count": ir.Int(4), "version": ir.Int(2)}, result)
}

func TestAddAndReset(t *testing.T) {
	c := newCounter(t, 2)
	env := testutil.NewEnv("alice", ir.CodeHash{})
	env.State = ir.Object{"count": ir.Int(1)}

	result, err := call(t, c, env, "add", ir.Object{"by": ir.Int(10)})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"count": ir.Int(11)}, result)

	_, err = call(t, c, env, "add", ir.Object{"by": ir.Int(-20)})
	re, ok := program.AsRevert(err)
	require.True(t, ok)
	assert.Equal(t, Underflow, re.Case)

	result, err = call(t, c, env, "reset", nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"count": ir.Int(0)}, result)
}

func TestV1HasNoAdd(t *testing.T) {
	_, err := call(t, newCounter(t, 1), testutil.NewEnv("alice", ir.CodeHash{}), "add", ir.Object{"by": ir.Int(1)})
	assert.True(t, errors.Is(err, program.ErrUnknownMessage))
}

func TestFrozenHasNoUpgrade(t *testing.T) {
	frozen, err := New(3, testCapability())
	require.NoError(t, err)

	_, err = call(t, frozen, testutil.NewEnv("alice", ir.CodeHash{}), "upgrade", ir.Object{"code_hash": ir.String(ir.CodeHash{}.String())})
	assert.True(t, errors.Is(err, program.ErrUnknownMessage))
}

func TestUpgradeLeavesCountAlone(t *testing.T) {
	v1src, err := Image(1)
	require.NoError(t, err)
	v2src, err := Image(2)
	require.NoError(t, err)
	v2 := ir.HashImage(v2src)

	c := newCounter(t, 1)
	env := testutil.NewEnv("alice", ir.HashImage(v1src))
	env.State = ir.Object{"count": ir.Int(7)}

	result, err := call(t, c, env, "upgrade", ir.Object{"code_hash": ir.String(v2.String())})
	require.NoError(t, err)
	assert.Equal(t, ir.Object{}, result)
	assert.Equal(t, v2, env.Pointer())
	assert.Equal(t, ir.Object{"count": ir.Int(7)}, env.State)
}

func TestUpgradeRequiresOwner(t *testing.T) {
	c := newCounter(t, 1)
	env := testutil.NewEnv("alice", ir.CodeHash{}).As("bob")

	_, err := call(t, c, env, "upgrade", ir.Object{"code_hash": ir.String(ir.HashImage(nil).String())})
	assert.True(t, upgrade.IsUnauthorized(err))
	assert.Empty(t, env.Requests())
}
