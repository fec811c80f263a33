package claude

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable fake claude binary in a temp dir.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	script := filepath.Join(t.TempDir(), "claude")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body), 0o755))
	return script
}

func testRunner(binary string, extraEnv ...string) *Runner {
	r := NewRunner(binary, "/opt/pawject/scripts", "http://localhost:3000", nil)
	r.KillGrace = 500 * time.Millisecond
	r.Environ = func() []string { return append(os.Environ(), extraEnv...) }
	return r
}

func TestStreamingArgs(t *testing.T) {
	args := StreamingArgs(Request{
		Prompt:   "do it",
		AddDirs:  []string{"/ws/p/context", "/ws/p/draft"},
		Continue: true,
	})
	assert.Equal(t, []string{
		"--print", "--output-format", "stream-json", "--verbose", "--include-partial-messages",
		"--dangerously-skip-permissions",
		"--add-dir", "/ws/p/context", "--add-dir", "/ws/p/draft",
		"-c",
		"-p", "do it",
	}, args)

	args = StreamingArgs(Request{Prompt: "first"})
	assert.Equal(t, "-p", args[len(args)-2])
	assert.NotContains(t, args, "-c")
}

func TestOneShotArgs(t *testing.T) {
	args := OneShotArgs(Request{
		Prompt:               "run",
		AddDirs:              []string{"/ctx"},
		NoSessionPersistence: true,
		Continue:             true,
	})
	assert.Equal(t, []string{
		"--print", "--output-format", "json", "--dangerously-skip-permissions",
		"--add-dir", "/ctx",
		"--no-session-persistence",
		"-c",
		"-p", "run",
	}, args)
}

func TestBuildEnv(t *testing.T) {
	parent := []string{
		"PATH=/usr/bin:/bin",
		"HOME=/home/u",
		"ANTHROPIC_API_KEY=sk-test",
		"ANTHROPIC_MODEL=claude-x",
	}
	env := BuildEnv(parent, "/app/scripts", "http://localhost:4000", "proj_1", "task_1")

	assert.Equal(t, "/app/scripts:/opt/homebrew/bin:/usr/local/bin:/usr/bin:/bin", lookupEnv(env, "PATH"))
	assert.Equal(t, "/home/u", lookupEnv(env, "HOME"))
	assert.Equal(t, "sk-test", lookupEnv(env, "ANTHROPIC_API_KEY"))
	assert.Equal(t, "sk-test", lookupEnv(env, "ANTHROPIC_AUTH_TOKEN"))
	assert.Equal(t, "claude-x", lookupEnv(env, "ANTHROPIC_MODEL"))
	assert.Equal(t, "http://localhost:4000", lookupEnv(env, "PAWJECT_API_URL"))
	assert.Equal(t, "proj_1", lookupEnv(env, "PAWJECT_PROJECT_ID"))
	assert.Equal(t, "task_1", lookupEnv(env, "PAWJECT_TASK_ID"))

	// The parent slice is not modified.
	assert.Equal(t, "PATH=/usr/bin:/bin", parent[0])
}

func TestBuildEnv_HomebrewAlreadyOnPath(t *testing.T) {
	env := BuildEnv([]string{"PATH=/opt/homebrew/bin:/usr/bin"}, "/s", "", "", "")
	assert.Equal(t, "/s:/opt/homebrew/bin:/usr/bin", lookupEnv(env, "PATH"))
	assert.Empty(t, lookupEnv(env, "PAWJECT_TASK_ID"))

	var paths int
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			paths++
		}
	}
	assert.Equal(t, 1, paths)
}

func TestStream_DeliversEventsInOrderAndResult(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"system","subtype":"init"}'
echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"one "}}}'
echo 'not json'
echo '{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"tool_use","name":"Write","input":{"file":"x"}}}}'
echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"two"}}}'
echo '{"type":"result","result":"one two","session_id":"sess-9","total_cost_usd":0.02,"duration_ms":5}'
`)
	r := testRunner(script)

	var (
		tokens   []string
		tools    []string
		inits    int
		resultAt int
		seen     int
	)
	result, err := r.Stream(context.Background(), Request{Prompt: "hi", Dir: t.TempDir()}, func(ev Event) error {
		seen++
		switch ev.Type {
		case EventInit:
			inits++
		case EventTextDelta:
			tokens = append(tokens, ev.Text)
		case EventToolUse:
			tools = append(tools, ev.ToolName)
		case EventResult:
			resultAt = seen
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "one two", result.Result)
	assert.Equal(t, "sess-9", result.SessionID)
	assert.Equal(t, []string{"one ", "two"}, tokens)
	assert.Equal(t, []string{"Write"}, tools)
	assert.Equal(t, 1, inits)
	assert.Equal(t, seen, resultAt, "result must be the last event")
}

func TestStream_ResultWinsOverExitCode(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"result","result":"partial","session_id":"s","is_error":true}'
exit 3
`)
	result, err := testRunner(script).Stream(context.Background(), Request{Prompt: "x", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "partial", result.Result)
	assert.True(t, result.IsError)
}

func TestStream_ExitZeroWithoutResultIsProtocolViolation(t *testing.T) {
	script := writeScript(t, `echo '{"type":"system"}'`)
	_, err := testRunner(script).Stream(context.Background(), Request{Prompt: "x", Dir: t.TempDir()}, nil)
	require.ErrorIs(t, err, ErrProtocolViolation)
	assert.Equal(t, KindProtocolViolation, KindOf(err))
}

func TestStream_NonZeroWithoutResultIsProcessFailed(t *testing.T) {
	long := strings.Repeat("e", 800)
	script := writeScript(t, "echo '"+long+"' >&2\nexit 2\n")
	_, err := testRunner(script).Stream(context.Background(), Request{Prompt: "x", Dir: t.TempDir()}, nil)
	require.ErrorIs(t, err, ErrProcessFailed)

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.ExitCode)
	assert.Len(t, ce.Stderr, maxStderrInError)
}

func TestRunStreaming_SpawnFailure(t *testing.T) {
	r := testRunner("/nonexistent/claude")
	_, err := r.RunStreaming(context.Background(), Request{Prompt: "x"})
	require.ErrorIs(t, err, ErrProcessSpawnFailed)
}

func TestRunStreaming_RejectsEmptyPrompt(t *testing.T) {
	_, err := testRunner("claude").RunStreaming(context.Background(), Request{Prompt: "  "})
	require.Error(t, err)
}

func TestRunStreaming_PassesArgsAndEnv(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := writeScript(t, `
printf '%s\n' "$@" > "$ARGS_FILE"
echo "$PAWJECT_TASK_ID" >> "$ARGS_FILE"
pwd >> "$ARGS_FILE"
echo '{"type":"result","result":"ok"}'
`)
	work := t.TempDir()
	_, err := testRunner(script, "ARGS_FILE="+argsFile).Stream(context.Background(), Request{
		Prompt:   "hello world",
		Dir:      work,
		Continue: true,
		TaskID:   "task_42",
	}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "-c", lines[len(lines)-5])
	assert.Equal(t, "-p", lines[len(lines)-4])
	assert.Equal(t, "hello world", lines[len(lines)-3])
	assert.Equal(t, "task_42", lines[len(lines)-2])
	resolved, _ := filepath.EvalSymlinks(work)
	assert.Contains(t, []string{work, resolved}, lines[len(lines)-1])
}

func TestSession_TerminateStopsLongRunningProcess(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"system"}'
exec sleep 30
`)
	s, err := testRunner(script).RunStreaming(context.Background(), Request{Prompt: "x", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Positive(t, s.PID())

	ev := <-s.Events()
	assert.Equal(t, EventInit, ev.Type)

	s.Terminate()
	for range s.Events() {
	}

	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not exit after Terminate")
	}
	_, err = s.Wait()
	require.ErrorIs(t, err, ErrProcessFailed)
}

func TestSession_ContextCancelTerminates(t *testing.T) {
	script := writeScript(t, "exec sleep 30\n")
	ctx, cancel := context.WithCancel(context.Background())
	s, err := testRunner(script).RunStreaming(ctx, Request{Prompt: "x", Dir: t.TempDir()})
	require.NoError(t, err)

	cancel()
	for range s.Events() {
	}
	_, err = s.Wait()
	require.Error(t, err)
}

func TestStream_HandlerErrorTerminates(t *testing.T) {
	script := writeScript(t, `
echo '{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"a"}}}'
exec sleep 30
`)
	boom := errors.New("client went away")
	start := time.Now()
	_, err := testRunner(script).Stream(context.Background(), Request{Prompt: "x", Dir: t.TempDir()}, func(Event) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunOneShot_Success(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := writeScript(t, `
printf '%s\n' "$@" > "$ARGS_FILE"
echo '{"type":"result","subtype":"success","is_error":false,"result":"report","session_id":"s-1","total_cost_usd":0.1,"duration_ms":10}'
`)
	result, err := testRunner(script, "ARGS_FILE="+argsFile).RunOneShot(context.Background(), Request{Prompt: "go", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "report", result.Result)
	assert.Equal(t, "s-1", result.SessionID)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "json\n")
	assert.NotContains(t, string(data), "stream-json")
}

func TestRunOneShot_MalformedOutput(t *testing.T) {
	script := writeScript(t, "echo 'this is not json'\n")
	_, err := testRunner(script).RunOneShot(context.Background(), Request{Prompt: "go", Dir: t.TempDir()})
	require.ErrorIs(t, err, ErrMalformedOutput)

	script = writeScript(t, `echo '{"type":"assistant"}'`+"\n")
	_, err = testRunner(script).RunOneShot(context.Background(), Request{Prompt: "go", Dir: t.TempDir()})
	require.ErrorIs(t, err, ErrMalformedOutput)
}

func TestRunOneShot_NonZeroExit(t *testing.T) {
	script := writeScript(t, "echo 'auth failed' >&2\nexit 1\n")
	_, err := testRunner(script).RunOneShot(context.Background(), Request{Prompt: "go", Dir: t.TempDir()})
	require.ErrorIs(t, err, ErrProcessFailed)
	assert.Contains(t, err.Error(), "auth failed")
}

func TestRunOneShot_TimeoutSendsSIGTERM(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "terminated")
	script := writeScript(t, `
trap 'echo term > "$MARKER"; exit 143' TERM
sleep 30 &
wait
`)
	r := testRunner(script, "MARKER="+marker)
	r.OneShotTimeout = 300 * time.Millisecond

	start := time.Now()
	_, err := r.RunOneShot(context.Background(), Request{Prompt: "go", Dir: dir})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)

	data, readErr := os.ReadFile(marker)
	require.NoError(t, readErr)
	assert.Equal(t, "term", strings.TrimSpace(string(data)))
}

func TestTruncateStderr_KeepsRuneBoundary(t *testing.T) {
	// "é" is two bytes; the cap lands inside the last one.
	s := strings.Repeat("a", maxStderrInError-1) + "é" + "tail"
	got := truncateStderr(s)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxStderrInError-1), got)

	assert.Equal(t, "short", truncateStderr("  short\n"))
	assert.True(t, utf8.ValidString(truncateStderr("bad \xc3")))
}
