package output

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pawject/internal/store"
)

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

func TestSuccessAndError(t *testing.T) {
	s := Success(map[string]string{"k": "v"})
	require.True(t, s.Success)
	require.NotNil(t, s.Data)
	require.Empty(t, s.Error)

	e := Error(errors.New("boom"))
	require.False(t, e.Success)
	require.Nil(t, e.Data)
	require.Equal(t, "boom", e.Error)
	require.Empty(t, e.ErrorCode)
	require.Nil(t, e.ErrorContext)
}

func TestError_WrappedNotFound(t *testing.T) {
	err := fmt.Errorf("load: %w", &store.NotFoundError{Entity: "task", ID: "task_1"})
	resp := Error(err)
	require.Equal(t, "load: task not found: task_1", resp.Error)
	require.Equal(t, "NOT_FOUND", resp.ErrorCode)
	require.Equal(t, map[string]string{"entity": "task", "id": "task_1"}, resp.ErrorContext)
	require.Equal(t, "pawject task list", resp.SuggestedAction)
}

func TestPrintWith_CompactJSON(t *testing.T) {
	var buf bytes.Buffer
	err := PrintWith(Config{Writer: &buf}, map[string]string{"hello": "world"})
	require.NoError(t, err)
	require.Equal(t, "{\"hello\":\"world\"}\n", buf.String())
}

func TestPrintWith_PrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	err := PrintWith(Config{Writer: &buf, Pretty: true}, map[string]string{"hello": "world"})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "\n  \"hello\": \"world\"\n")
	require.True(t, strings.HasPrefix(out, "{\n"))
}

func TestPrintWith_PlainErrorOmitsEnrichedFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintWith(Config{Writer: &buf}, Error(errors.New("plain"))))
	out := buf.String()
	require.NotContains(t, out, "error_code")
	require.NotContains(t, out, "suggested_action")
	require.NotContains(t, out, `"error_context"`)
}

func TestPrintSuccessAndPrintError(t *testing.T) {
	t.Setenv("PAWJECT_PRETTY_JSON", "")

	successOut := captureStdout(t, func() {
		require.NoError(t, PrintSuccess(map[string]int{"count": 2}))
	})
	require.Equal(t, "{\"success\":true,\"data\":{\"count\":2}}\n", successOut)

	errorOut := captureStdout(t, func() {
		require.NoError(t, PrintError(errors.New("bad things")))
	})
	require.Equal(t, "{\"success\":false,\"error\":\"bad things\"}\n", errorOut)
}

func TestDefaultConfig(t *testing.T) {
	for value, pretty := range map[string]bool{"": false, "0": false, "1": true, "true": true} {
		t.Run("value="+value, func(t *testing.T) {
			t.Setenv("PAWJECT_PRETTY_JSON", value)
			cfg := DefaultConfig()
			require.Equal(t, os.Stdout, cfg.Writer)
			require.Equal(t, pretty, cfg.Pretty)
		})
	}
}
