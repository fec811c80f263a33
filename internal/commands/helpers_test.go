package commands

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pawject/internal/app"
)

func requireFlagExists(t *testing.T, cmd *cobra.Command, name string) {
	t.Helper()
	f := cmd.Flags().Lookup(name)
	require.NotNil(t, f)
}

func requireSubcommands(t *testing.T, cmd *cobra.Command, names ...string) {
	t.Helper()
	for _, name := range names {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		require.NotNil(t, sub)
		require.Equal(t, name, sub.Name())
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	original := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = original }()

	fn()

	require.NoError(t, w.Close())

	b, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	return string(b)
}

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	ErrorCode string          `json:"error_code"`
}

// isolate points HOME, the workspace root and the database at temp dirs.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Setenv("WORKSPACE_ROOT", filepath.Join(dir, "workspaces"))
	t.Setenv("PAWJECT_SCRIPTS_DIR", filepath.Join(dir, "scripts"))
	t.Setenv("CLAUDE_CLI_PATH", filepath.Join(dir, "no-such-claude"))
	t.Setenv("PAWJECT_PROJECT_ID", "")
	t.Setenv("PAWJECT_PRETTY_JSON", "")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "home"), 0o755))
	app.SetDBPathOverride(filepath.Join(dir, "pawject.db"))
	t.Cleanup(func() { app.SetDBPathOverride("") })
}

// run executes the root command and decodes the single JSON envelope it prints.
func run(t *testing.T, args ...string) (envelope, error) {
	t.Helper()
	var runErr error
	out := captureStdout(t, func() {
		root := newRootCmd("test")
		root.SetArgs(args)
		runErr = root.Execute()
	})

	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), "output: %s", out)
	return env, runErr
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
