package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const imageDir = "../programs/counter/images"

func image(version string) string {
	return filepath.Join(imageDir, "v"+version+".cue")
}

type execResult struct {
	Stdout string
	Stderr string
	Err    error
}

// execute runs the root command with args and optional stdin.
func execute(t *testing.T, stdin string, args ...string) execResult {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return execResult{Stdout: stdout.String(), Stderr: stderr.String(), Err: err}
}

type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

// decode parses a JSON envelope and unmarshals its data into out.
func decode(t *testing.T, output string, out any) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal([]byte(output), &resp), "output: %s", output)
	if out != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
	return resp
}

// world is a database with every counter image deployed and one instance
// owned by alice.
type world struct {
	db       string
	instance string
}

func newWorld(t *testing.T, initArgs string) world {
	t.Helper()
	db := filepath.Join(t.TempDir(), "setcode.db")

	res := execute(t, "", "deploy", "--db", db, image("1"), image("2"), image("3"))
	require.NoError(t, res.Err, res.Stdout)

	res = execute(t, "", "instantiate", "--db", db, "--format", "json", "counter@1", "--as", "alice", "--args", initArgs)
	require.NoError(t, res.Err, res.Stdout)
	var inst InstanceView
	decode(t, res.Stdout, &inst)
	require.NotEmpty(t, inst.ID)

	return world{db: db, instance: inst.ID}
}
