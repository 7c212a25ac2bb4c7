package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/setcode/internal/ir"
)

func TestDeployAndImages(t *testing.T) {
	db := filepath.Join(t.TempDir(), "setcode.db")

	res := execute(t, "", "deploy", "--db", db, image("1"), image("2"), image("3"))
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "✓ counter@1 0x")
	assert.Contains(t, res.Stdout, "✓ counter@3 0x")
	assert.Contains(t, res.Stdout, "cid: b")

	res = execute(t, "", "images", "--db", db, "--format", "json")
	require.NoError(t, res.Err)
	var images []ImageView
	decode(t, res.Stdout, &images)
	require.Len(t, images, 3)

	byVersion := map[int64]ImageView{}
	for _, img := range images {
		assert.Equal(t, "counter", img.Name)
		byVersion[img.Version] = img
	}
	assert.True(t, byVersion[1].Upgradeable)
	assert.True(t, byVersion[2].Upgradeable)
	assert.False(t, byVersion[3].Upgradeable)
	assert.Contains(t, byVersion[2].Messages, "add")
	assert.NotContains(t, byVersion[3].Messages, "upgrade")

	src, err := os.ReadFile(image("1"))
	require.NoError(t, err)
	assert.Equal(t, ir.HashImage(src), byVersion[1].Hash)

	res = execute(t, "", "images", "--db", db)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "IMAGE")
	assert.Contains(t, res.Stdout, "counter@2")
}

func TestDeploy_Idempotent(t *testing.T) {
	db := filepath.Join(t.TempDir(), "setcode.db")

	first := execute(t, "", "deploy", "--db", db, "--format", "json", image("1"))
	require.NoError(t, first.Err)
	second := execute(t, "", "deploy", "--db", db, "--format", "json", image("1"))
	require.NoError(t, second.Err)

	var a, b []ImageView
	decode(t, first.Stdout, &a)
	decode(t, second.Stdout, &b)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Hash, b[0].Hash)
	assert.Equal(t, a[0].Seq, b[0].Seq, "redeploying returns the original image")
}

func TestDeploy_UnknownProgram(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.cue")
	require.NoError(t, os.WriteFile(path, []byte(`
program: {
	name:    "ledger"
	version: 1
	message: get: {}
}
`), 0o644))

	res := execute(t, "", "deploy", "--db", filepath.Join(dir, "setcode.db"), path)
	require.Error(t, res.Err)
	assert.Equal(t, ExitFailure, GetExitCode(res.Err))
	assert.Contains(t, res.Stdout, "E_DEPLOY")
}

func TestDeploy_MissingFile(t *testing.T) {
	dir := t.TempDir()
	res := execute(t, "", "deploy", "--db", filepath.Join(dir, "setcode.db"), filepath.Join(dir, "nope.cue"))
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.Err))
}

func TestInstantiateAndInspect(t *testing.T) {
	w := newWorld(t, `{"count":1}`)

	res := execute(t, "", "inspect", "--db", w.db, "--format", "json", w.instance)
	require.NoError(t, res.Err)
	var view InstanceView
	decode(t, res.Stdout, &view)
	assert.Equal(t, w.instance, view.ID)
	assert.Equal(t, "alice", view.Owner)
	assert.Equal(t, "counter@1", view.Image)
	assert.True(t, view.Upgradeable)
	assert.Equal(t, ir.Object{"count": ir.Int(1)}, view.State)

	res = execute(t, "", "inspect", "--db", w.db, w.instance)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "image: counter@1")
	assert.Contains(t, res.Stdout, `state: {"count":1}`)
}

func TestInstantiate_Errors(t *testing.T) {
	w := newWorld(t, `{}`)

	res := execute(t, "", "instantiate", "--db", w.db, "counter@9", "--as", "alice")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.Err))
	assert.Contains(t, res.Err.Error(), "no image counter@9")

	res = execute(t, "", "instantiate", "--db", w.db, "counter@1", "--as", "alice", "--args", `{"count":-1}`)
	require.Error(t, res.Err)
	assert.Equal(t, ExitFailure, GetExitCode(res.Err))

	res = execute(t, "", "instantiate", "--db", w.db, "counter@1", "--as", "alice", "--args", `{"count":1.5}`)
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.Err))

	res = execute(t, "", "instantiate", "--db", w.db, "counter@1")
	require.Error(t, res.Err, "--as is required")
}

func TestCall_SuccessAndRevert(t *testing.T) {
	w := newWorld(t, `{"count":1}`)

	res := execute(t, "", "call", "--db", w.db, "--format", "json", w.instance, "increment", "--as", "alice")
	require.NoError(t, res.Err)
	var call CallView
	decode(t, res.Stdout, &call)
	assert.Equal(t, ir.OutcomeSuccess, call.Outcome)
	assert.Equal(t, ir.Object{"count": ir.Int(2)}, call.Result)
	assert.False(t, call.Upgraded())

	for range 2 {
		res = execute(t, "", "call", "--db", w.db, w.instance, "decrement", "--as", "bob")
		require.NoError(t, res.Err)
	}

	res = execute(t, "", "call", "--db", w.db, "--format", "json", w.instance, "decrement", "--as", "bob")
	require.Error(t, res.Err)
	assert.Equal(t, ExitFailure, GetExitCode(res.Err))
	resp := decode(t, res.Stdout, &call)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Underflow", resp.Error.Code)
	assert.Equal(t, "Underflow", call.Outcome)
	assert.Empty(t, call.Result)

	res = execute(t, "", "inspect", "--db", w.db, "--format", "json", w.instance)
	require.NoError(t, res.Err)
	var view InstanceView
	decode(t, res.Stdout, &view)
	assert.Equal(t, ir.Object{"count": ir.Int(0)}, view.State)
}

func TestCall_HostErrors(t *testing.T) {
	w := newWorld(t, `{}`)

	res := execute(t, "", "call", "--db", w.db, "nope", "increment", "--as", "alice")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.Err))
	assert.Contains(t, res.Stdout, "INSTANCE_NOT_FOUND")

	res = execute(t, "", "call", "--db", w.db, w.instance, "increment", "--as", "alice", "--args", "{not json")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.Err))
}

func TestCall_ManifestChecks(t *testing.T) {
	w := newWorld(t, `{}`)

	tests := []struct {
		message string
		args    string
		outcome string
	}{
		{"add", `{"by":1}`, ir.OutcomeUnknownMessage}, // v1 has no add
		{"increment", `{"by":1}`, ir.OutcomeInvalidArgs},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			res := execute(t, "", "call", "--db", w.db, "--format", "json", w.instance, tt.message, "--as", "alice", "--args", tt.args)
			require.Error(t, res.Err)
			var call CallView
			decode(t, res.Stdout, &call)
			assert.Equal(t, tt.outcome, call.Outcome)
		})
	}
}

func TestUpgrade_ByName(t *testing.T) {
	w := newWorld(t, `{"count":4}`)

	res := execute(t, "", "upgrade", "--db", w.db, "--format", "json", w.instance, "counter@2", "--as", "alice")
	require.NoError(t, res.Err, res.Stdout)
	var call CallView
	decode(t, res.Stdout, &call)
	assert.Equal(t, ir.OutcomeSuccess, call.Outcome)
	assert.True(t, call.Upgraded())

	res = execute(t, "", "call", "--db", w.db, "--format", "json", w.instance, "get", "--as", "bob")
	require.NoError(t, res.Err)
	decode(t, res.Stdout, &call)
	assert.Equal(t, ir.Object{"count": ir.Int(4), "version": ir.Int(2)}, call.Result)

	res = execute(t, "", "call", "--db", w.db, w.instance, "reset", "--as", "bob", "--perm", "admin")
	require.NoError(t, res.Err)

	res = execute(t, "", "inspect", "--db", w.db, "--format", "json", w.instance)
	require.NoError(t, res.Err)
	var view InstanceView
	decode(t, res.Stdout, &view)
	assert.Equal(t, "counter@2", view.Image)
	assert.Equal(t, ir.Object{"count": ir.Int(0)}, view.State)
}

func TestUpgrade_ByHashAndCID(t *testing.T) {
	w := newWorld(t, `{}`)

	src, err := os.ReadFile(image("2"))
	require.NoError(t, err)
	v2 := ir.HashImage(src)

	res := execute(t, "", "upgrade", "--db", w.db, w.instance, v2.CID().String(), "--as", "alice")
	require.NoError(t, res.Err, res.Stdout)

	res = execute(t, "", "history", "--db", w.db, "--format", "json", w.instance)
	require.NoError(t, res.Err)
	var calls []CallView
	decode(t, res.Stdout, &calls)
	require.Len(t, calls, 1)
	assert.Equal(t, v2, calls[0].CodeAfter)
	assert.Equal(t, ir.String(v2.CID().String()), calls[0].Args["code_hash"], "the call records what the caller sent")
}

func TestUpgrade_Refusals(t *testing.T) {
	w := newWorld(t, `{}`)
	unknown := "0x" + strings.Repeat("ab", ir.CodeHashSize)

	tests := []struct {
		name    string
		args    []string
		outcome string
	}{
		{"not the owner", []string{w.instance, "counter@2", "--as", "mallory"}, ir.OutcomeUnauthorized},
		{"permission is not ownership", []string{w.instance, "counter@2", "--as", "bob", "--perm", "upgrade"}, ir.OutcomeUnauthorized},
		{"unknown hash", []string{w.instance, unknown, "--as", "alice"}, ir.OutcomeUpgradeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"upgrade", "--db", w.db, "--format", "json"}, tt.args...)
			res := execute(t, "", args...)
			require.Error(t, res.Err)
			assert.Equal(t, ExitFailure, GetExitCode(res.Err))
			var call CallView
			decode(t, res.Stdout, &call)
			assert.Equal(t, tt.outcome, call.Outcome)
			assert.False(t, call.Upgraded())
		})
	}

	res := execute(t, "", "inspect", "--db", w.db, "--format", "json", w.instance)
	require.NoError(t, res.Err)
	var view InstanceView
	decode(t, res.Stdout, &view)
	assert.Equal(t, "counter@1", view.Image)
}

func TestUpgrade_PermissionAuthorizer(t *testing.T) {
	w := newWorld(t, `{}`)
	flags := []string{"--db", w.db, "--authorizer", "permission", "--permission", "ops"}

	res := execute(t, "", append([]string{"upgrade", w.instance, "counter@2", "--as", "alice"}, flags...)...)
	require.Error(t, res.Err)
	assert.Contains(t, res.Stdout, "Unauthorized")

	res = execute(t, "", append([]string{"upgrade", w.instance, "counter@2", "--as", "bob", "--perm", "ops"}, flags...)...)
	require.NoError(t, res.Err, res.Stdout)
}

func TestUpgrade_FrozenImage(t *testing.T) {
	w := newWorld(t, `{}`)

	res := execute(t, "", "upgrade", "--db", w.db, w.instance, "counter@3", "--as", "alice")
	require.NoError(t, res.Err, res.Stdout)

	res = execute(t, "", "upgrade", "--db", w.db, "--format", "json", w.instance, "counter@1", "--as", "alice")
	require.Error(t, res.Err)
	var call CallView
	decode(t, res.Stdout, &call)
	assert.Equal(t, ir.OutcomeUnknownMessage, call.Outcome)
}

func TestHistory(t *testing.T) {
	w := newWorld(t, `{}`)

	require.NoError(t, execute(t, "", "call", "--db", w.db, w.instance, "increment", "--as", "alice").Err)
	require.Error(t, execute(t, "", "upgrade", "--db", w.db, w.instance, "counter@2", "--as", "mallory").Err)
	require.NoError(t, execute(t, "", "upgrade", "--db", w.db, w.instance, "counter@2", "--as", "alice").Err)

	res := execute(t, "", "history", "--db", w.db, "--format", "json", w.instance)
	require.NoError(t, res.Err)
	var calls []CallView
	decode(t, res.Stdout, &calls)
	require.Len(t, calls, 3)

	outcomes := []string{calls[0].Outcome, calls[1].Outcome, calls[2].Outcome}
	assert.Equal(t, []string{ir.OutcomeSuccess, ir.OutcomeUnauthorized, ir.OutcomeSuccess}, outcomes)
	assert.Equal(t, "mallory", calls[1].Caller)
	assert.NotEmpty(t, calls[1].Error)
	assert.Less(t, calls[0].Seq, calls[1].Seq)
	assert.Less(t, calls[1].Seq, calls[2].Seq)
	assert.True(t, calls[2].Upgraded())

	res = execute(t, "", "history", "--db", w.db, w.instance)
	require.NoError(t, res.Err)
	assert.Contains(t, res.Stdout, "upgrade")
	assert.Contains(t, res.Stdout, "-> Unauthorized")
	assert.Contains(t, res.Stdout, "code: ")

	res = execute(t, "", "history", "--db", w.db, "nope")
	require.Error(t, res.Err)
	assert.Equal(t, ExitCommandError, GetExitCode(res.Err))
}
