package claude

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies why a claude invocation did not produce a result.
type ErrorKind string

const (
	KindProcessSpawnFailed ErrorKind = "process_spawn_failed"
	KindProtocolViolation  ErrorKind = "protocol_violation"
	KindProcessFailed      ErrorKind = "process_failed"
	KindTimeout            ErrorKind = "timeout"
	KindMalformedOutput    ErrorKind = "malformed_output"
)

// Sentinels for errors.Is matching against an *Error of the same kind.
var (
	ErrProcessSpawnFailed = errors.New("claude: process spawn failed")
	ErrProtocolViolation  = errors.New("claude: exited without result event")
	ErrProcessFailed      = errors.New("claude: process failed")
	ErrTimeout            = errors.New("claude: timed out")
	ErrMalformedOutput    = errors.New("claude: malformed output")
)

var kindSentinels = map[ErrorKind]error{
	KindProcessSpawnFailed: ErrProcessSpawnFailed,
	KindProtocolViolation:  ErrProtocolViolation,
	KindProcessFailed:      ErrProcessFailed,
	KindTimeout:            ErrTimeout,
	KindMalformedOutput:    ErrMalformedOutput,
}

// maxStderrInError bounds the stderr excerpt carried by ProcessFailed errors.
const maxStderrInError = 500

// Error is returned by every Runner entry point when no terminal result was obtained.
type Error struct {
	Kind     ErrorKind
	Message  string
	Stderr   string
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("claude ")
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, " (stderr: %s)", e.Stderr)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

func (e *Error) ErrorCode() string { return strings.ToUpper(string(e.Kind)) }

func (e *Error) Context() map[string]string {
	ctx := map[string]string{"kind": string(e.Kind)}
	if e.ExitCode != 0 {
		ctx["exit_code"] = strconv.Itoa(e.ExitCode)
	}
	if e.Stderr != "" {
		ctx["stderr"] = e.Stderr
	}
	return ctx
}

func (e *Error) SuggestedAction() string {
	switch e.Kind {
	case KindProcessSpawnFailed:
		return "Check that the claude CLI is installed or set CLAUDE_CLI_PATH"
	case KindTimeout:
		return "Raise one_shot_timeout_seconds or split the task into smaller turns"
	default:
		return "Inspect the task messages and retry the turn"
	}
}

// KindOf returns the kind of err when it wraps an *Error, or "" otherwise.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// truncateStderr keeps at most maxStderrInError bytes of s, cut on a rune
// boundary. Invalid UTF-8 from the capped capture buffer is dropped.
func truncateStderr(s string) string {
	s = strings.ToValidUTF8(strings.TrimSpace(s), "")
	if len(s) <= maxStderrInError {
		return s
	}
	cut := maxStderrInError
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
