package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/setcode/internal/ir"
	"github.com/roach88/setcode/internal/program"
	"github.com/roach88/setcode/internal/registry"
	"github.com/roach88/setcode/internal/store"
	"github.com/roach88/setcode/internal/upgrade"
)

func TestInstantiate(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 5)
	assert.Equal(t, "inst-1", id)

	snap := f.snapshot(t, id)
	assert.Equal(t, "alice", snap.Instance.Owner)
	assert.Equal(t, f.images["counter@1"], snap.Instance.CodeHash)
	assert.Equal(t, ir.Object{"count": ir.Int(5)}, snap.Instance.State)
	assert.Equal(t, "counter@1", snap.Image.Manifest.Key())
}

func TestInstantiate_Errors(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	ctx := context.Background()

	_, err := f.engine.Instantiate(ctx, ir.HashImage([]byte("missing")), alice, nil)
	assert.True(t, IsCodeNotFound(err))

	_, err = f.engine.Instantiate(ctx, f.images["counter@1"], alice, ir.Object{"count": ir.String("x")})
	assert.True(t, program.IsArgError(err))

	_, err = f.engine.Instantiate(ctx, f.images["mixer@1"], alice, ir.Object{"count": ir.Int(1)})
	assert.True(t, program.IsArgError(err))

	_, err = f.engine.Instantiate(ctx, f.images["counter@1"], ir.Caller{}, nil)
	assert.Error(t, err)

	instances, err := f.engine.Instances(ctx)
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestDeploy_Idempotent(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	again, err := f.engine.Deploy(context.Background(), "mixer.cue", mixerImage)
	require.NoError(t, err)
	assert.Equal(t, f.images["mixer@1"], again.Hash)
}

func TestCall_Success(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 0)

	res, err := f.call(id, "increment", nil, bob)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSuccess, res.Receipt.Outcome)
	assert.Equal(t, ir.Object{"count": ir.Int(1)}, res.Receipt.Result)
	assert.Equal(t, res.Call.ID, res.Receipt.CallID)
	assert.Equal(t, f.images["counter@1"], res.Call.CodeHash)
	assert.Equal(t, f.images["counter@1"], res.Receipt.CodeHash)
	assert.Greater(t, res.Receipt.Seq, res.Call.Seq)

	assert.Equal(t, ir.Int(1), f.snapshot(t, id).Instance.State["count"])
}

func TestCall_RevertRollsBack(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 0)

	res, err := f.call(id, "decrement", nil, alice)
	require.Error(t, err)
	assert.Equal(t, "Underflow", res.Receipt.Outcome)
	assert.Contains(t, res.Receipt.Error, "cannot go below zero")

	re, ok := program.AsRevert(err)
	require.True(t, ok)
	assert.Equal(t, "Underflow", re.Case)
	assert.Equal(t, ir.Int(0), f.snapshot(t, id).Instance.State["count"])
}

func TestCall_HostErrors(t *testing.T) {
	f := newFixture(t, registry.AnyImage)

	_, err := f.call("nope", "get", nil, alice)
	assert.True(t, IsInstanceNotFound(err))

	code, ok := ErrorCodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrCodeInstanceNotFound, code)
}

func TestCall_Outcomes(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@2", 1)
	mixer := f.instantiate(t, "mixer@1", 0)

	tests := []struct {
		name     string
		id       string
		message  string
		args     ir.Object
		caller   ir.Caller
		outcome  string
		sentinel error
	}{
		{"unknown message", id, "explode", nil, alice, ir.OutcomeUnknownMessage, program.ErrUnknownMessage},
		{"missing arg", id, "add", nil, alice, ir.OutcomeInvalidArgs, nil},
		{"wrong arg type", id, "add", ir.Object{"by": ir.String("1")}, alice, ir.OutcomeInvalidArgs, nil},
		{"extra arg", id, "get", ir.Object{"x": ir.Int(1)}, alice, ir.OutcomeInvalidArgs, nil},
		{"missing permission", id, "reset", nil, alice, ir.OutcomeUnauthorized, program.ErrUnauthorized},
		{"not owner", id, "upgrade", f.upgradeArgs("counter@1"), bob, ir.OutcomeUnauthorized, upgrade.ErrUnauthorized},
		{"bad hash", id, "upgrade", ir.Object{"code_hash": ir.String("zz")}, alice, ir.OutcomeInvalidArgs, nil},
		{"unknown image", id, "upgrade", ir.Object{"code_hash": ir.String(ir.HashImage([]byte("x")).String())}, alice, ir.OutcomeUpgradeFailed, upgrade.ErrUpgradeFailed},
		{"panic", mixer, "panic", nil, alice, ir.OutcomeTrapped, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.call(tt.id, tt.message, tt.args, tt.caller)
			require.Error(t, err)
			assert.Equal(t, tt.outcome, res.Receipt.Outcome)
			assert.Equal(t, tt.outcome, OutcomeFor(err))
			if tt.sentinel != nil {
				assert.True(t, errors.Is(err, tt.sentinel))
			}
		})
	}

	res, err := f.call(id, "reset", nil, admin)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"count": ir.Int(0)}, res.Receipt.Result)
}

// Property 1: a refused replacement leaves code pointer and state unchanged,
// including state written earlier in the same call.
func TestAtomicity_FailedUpgradeRollsBackCall(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "mixer@1", 0)
	before := f.snapshot(t, id).Instance

	missing := ir.Object{"code_hash": ir.String(ir.HashImage([]byte("never deployed")).String())}
	res, err := f.call(id, "bump_then_upgrade", missing, alice)
	require.Error(t, err)
	assert.True(t, upgrade.IsUpgradeFailed(err))
	assert.Equal(t, ir.OutcomeUpgradeFailed, res.Receipt.Outcome)
	assert.Equal(t, before.CodeHash, res.Receipt.CodeHash)

	after := f.snapshot(t, id).Instance
	assert.Equal(t, before.CodeHash, after.CodeHash)
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Seq, after.Seq)
}

func TestAtomicity_SwallowedFailureStillAborts(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "mixer@1", 0)

	missing := ir.Object{"code_hash": ir.String(ir.HashImage([]byte("never deployed")).String())}
	res, err := f.call(id, "swallow_upgrade", missing, alice)
	require.Error(t, err)
	assert.True(t, upgrade.IsUpgradeFailed(err))
	assert.Equal(t, ir.OutcomeUpgradeFailed, res.Receipt.Outcome)
	assert.Empty(t, f.snapshot(t, id).Instance.State)
}

func TestAtomicity_LaterFailureDiscardsAcceptedUpgrade(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "mixer@1", 0)

	res, err := f.call(id, "upgrade_then_fail", f.upgradeArgs("counter@1"), alice)
	require.Error(t, err)
	assert.Equal(t, "LateFailure", res.Receipt.Outcome)
	assert.Equal(t, f.images["mixer@1"], f.snapshot(t, id).Instance.CodeHash)
}

// Property 2 and scenario 5: an accepted replacement keeps state and the
// next call runs the new image.
func TestUpgrade_SuccessKeepsStateAndSwitchesCode(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 5)

	res, err := f.call(id, "upgrade", f.upgradeArgs("counter@2"), alice)
	require.NoError(t, err)
	assert.Equal(t, ir.OutcomeSuccess, res.Receipt.Outcome)
	assert.Equal(t, f.images["counter@1"], res.Call.CodeHash)
	assert.Equal(t, f.images["counter@2"], res.Receipt.CodeHash)

	snap := f.snapshot(t, id)
	assert.Equal(t, f.images["counter@2"], snap.Instance.CodeHash)
	assert.Equal(t, ir.Object{"count": ir.Int(5)}, snap.Instance.State)

	res, err = f.call(id, "get", nil, bob)
	require.NoError(t, err)
	assert.Equal(t, f.images["counter@2"], res.Call.CodeHash)
	assert.Equal(t, ir.Object{"count": ir.Int(5), "version": ir.Int(2)}, res.Receipt.Result)

	_, err = f.call(id, "add", ir.Object{"by": ir.Int(3)}, bob)
	require.NoError(t, err)
}

// Property 4: upgrade is transparent to domain state.
func TestUpgrade_NonInterference(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	plain := f.instantiate(t, "counter@1", 0)
	upgraded := f.instantiate(t, "counter@1", 0)

	for _, id := range []string{plain, upgraded} {
		_, err := f.call(id, "increment", nil, alice)
		require.NoError(t, err)
	}
	_, err := f.call(upgraded, "upgrade", f.upgradeArgs("counter@2"), alice)
	require.NoError(t, err)
	for _, id := range []string{plain, upgraded} {
		_, err := f.call(id, "increment", nil, alice)
		require.NoError(t, err)
	}

	assert.Equal(t, f.snapshot(t, plain).Instance.State, f.snapshot(t, upgraded).Instance.State)
	assert.Equal(t, ir.Int(2), f.snapshot(t, upgraded).Instance.State["count"])
}

// Scenario 6: registry refuses with status 1.
func TestUpgrade_RejectedByPolicy(t *testing.T) {
	f := newFixture(t, registry.SameProgram)
	id := f.instantiate(t, "counter@1", 5)

	res, err := f.call(id, "upgrade", f.upgradeArgs("mixer@1"), alice)
	require.Error(t, err)
	assert.True(t, upgrade.IsUpgradeFailed(err))
	assert.Equal(t, ir.OutcomeUpgradeFailed, res.Receipt.Outcome)

	var se *registry.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, registry.CodeRejected, se.Code)

	snap := f.snapshot(t, id)
	assert.Equal(t, f.images["counter@1"], snap.Instance.CodeHash)
	assert.Equal(t, ir.Object{"count": ir.Int(5)}, snap.Instance.State)

	res, err = f.call(id, "get", nil, alice)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"count": ir.Int(5)}, res.Receipt.Result)
}

func TestUpgrade_ToFrozenImage(t *testing.T) {
	f := newFixture(t, registry.SameProgram)
	id := f.instantiate(t, "counter@1", 1)

	_, err := f.call(id, "upgrade", f.upgradeArgs("counter@3"), alice)
	require.NoError(t, err)

	_, err = f.call(id, "upgrade", f.upgradeArgs("counter@2"), alice)
	assert.True(t, errors.Is(err, program.ErrUnknownMessage))
	assert.Equal(t, f.images["counter@3"], f.snapshot(t, id).Instance.CodeHash)
}

func TestUpgrade_SameHash(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 2)

	_, err := f.call(id, "upgrade", f.upgradeArgs("counter@1"), alice)
	require.NoError(t, err)

	snap := f.snapshot(t, id)
	assert.Equal(t, f.images["counter@1"], snap.Instance.CodeHash)
	assert.Equal(t, ir.Int(2), snap.Instance.State["count"])
}

func TestHistory(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 0)

	_, err := f.call(id, "increment", nil, alice)
	require.NoError(t, err)
	_, _ = f.call(id, "decrement", nil, alice)
	_, _ = f.call(id, "decrement", nil, alice)
	_, err = f.call(id, "upgrade", f.upgradeArgs("counter@2"), alice)
	require.NoError(t, err)

	history, err := f.engine.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 4)

	var outcomes []string
	for i, r := range history {
		outcomes = append(outcomes, r.Receipt.Outcome)
		assert.Equal(t, r.Call.ID, r.Receipt.CallID)
		if i > 0 {
			assert.Greater(t, r.Call.Seq, history[i-1].Call.Seq)
		}
	}
	assert.Equal(t, []string{"Success", "Success", "Underflow", "Success"}, outcomes)
	assert.Equal(t, f.images["counter@2"], history[3].Receipt.CodeHash)

	_, err = f.engine.History(context.Background(), "nope")
	assert.True(t, IsInstanceNotFound(err))
}

func TestCallID_IsContentAddressed(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 0)

	res, err := f.call(id, "increment", nil, alice)
	require.NoError(t, err)
	assert.Equal(t, ir.MustCallID(id, "increment", ir.Object{}, res.Call.Seq), res.Call.ID)
}

func TestNew_ResumesClock(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 0)
	_, err := f.call(id, "increment", nil, alice)
	require.NoError(t, err)

	maxSeq, err := f.store.MaxSeq(context.Background())
	require.NoError(t, err)

	e2, err := New(context.Background(), f.store, f.engine.registry, f.engine.catalog, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, maxSeq, e2.Clock().Current())

	lagging := NewClockAt(1)
	e3, err := New(context.Background(), f.store, f.engine.registry, f.engine.catalog, WithClock(lagging), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, maxSeq, e3.Clock().Current())
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, ir.OutcomeSuccess, OutcomeFor(nil))
	assert.Equal(t, ir.OutcomeTrapped, OutcomeFor(errors.New("x")))
	assert.Equal(t, ir.OutcomeTrapped, OutcomeFor(&TrapError{Value: "boom"}))
	assert.Equal(t, ir.OutcomeUpgradeFailed, OutcomeFor(&upgrade.FailedError{Cause: registry.CodeNotFound.Err()}))
	assert.Equal(t, "Underflow", OutcomeFor(program.Revert("Underflow", "x")))
	assert.Equal(t, ir.OutcomeTrapped, OutcomeFor(&program.RevertError{}))
}

func TestStore_IsLeftConsistentAfterFailures(t *testing.T) {
	f := newFixture(t, registry.AnyImage)
	id := f.instantiate(t, "counter@1", 0)
	_, _ = f.call(id, "decrement", nil, alice)

	calls, receipts, err := f.store.ReadHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, calls, 1)
	assert.Len(t, receipts, 1)

	_, err = f.store.ReadInstance(context.Background(), "nope")
	assert.True(t, store.IsNotFound(err))
}
