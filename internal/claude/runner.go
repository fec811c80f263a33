package claude

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	// DefaultOneShotTimeout bounds a json-mode invocation.
	DefaultOneShotTimeout = 300 * time.Second

	// DefaultKillGrace is how long a terminated process gets before SIGKILL.
	DefaultKillGrace = 5 * time.Second

	extraBinPaths = "/opt/homebrew/bin:/usr/local/bin"
	stderrCap     = 4096
)

// Request describes one claude invocation.
type Request struct {
	Prompt string
	// Dir is the working directory; claude reads CLAUDE.md from it and -c
	// resumes the most recent conversation rooted there.
	Dir     string
	AddDirs []string
	// Continue appends -c.
	Continue bool
	// NoSessionPersistence appends --no-session-persistence (one-shot only).
	NoSessionPersistence bool

	ProjectID string
	TaskID    string
}

// Runner spawns the claude CLI.
type Runner struct {
	Binary         string
	ScriptsDir     string
	APIURL         string
	OneShotTimeout time.Duration
	KillGrace      time.Duration
	Logger         *slog.Logger

	// Environ supplies the parent environment; nil means os.Environ.
	Environ func() []string
}

// NewRunner returns a Runner with default timeouts.
func NewRunner(binary, scriptsDir, apiURL string, logger *slog.Logger) *Runner {
	if binary == "" {
		binary = "claude"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Binary:         binary,
		ScriptsDir:     scriptsDir,
		APIURL:         apiURL,
		OneShotTimeout: DefaultOneShotTimeout,
		KillGrace:      DefaultKillGrace,
		Logger:         logger.With("component", "claude"),
	}
}

// validatePrompt rejects prompts that cannot be passed as an argv element.
func validatePrompt(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("empty prompt")
	}
	if strings.ContainsRune(s, 0) {
		return errors.New("prompt contains null byte")
	}
	return nil
}

// StreamingArgs builds the argv for a stream-json invocation.
func StreamingArgs(req Request) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
		"--dangerously-skip-permissions",
	}
	for _, d := range req.AddDirs {
		args = append(args, "--add-dir", d)
	}
	if req.Continue {
		args = append(args, "-c")
	}
	return append(args, "-p", req.Prompt)
}

// OneShotArgs builds the argv for a json-mode invocation.
func OneShotArgs(req Request) []string {
	args := []string{
		"--print",
		"--output-format", "json",
		"--dangerously-skip-permissions",
	}
	for _, d := range req.AddDirs {
		args = append(args, "--add-dir", d)
	}
	if req.NoSessionPersistence {
		args = append(args, "--no-session-persistence")
	}
	if req.Continue {
		args = append(args, "-c")
	}
	return append(args, "-p", req.Prompt)
}

// BuildEnv derives the child environment from parent. The scripts directory
// goes first on PATH so the agent can call back through the pawject CLI.
func BuildEnv(parent []string, scriptsDir, apiURL, projectID, taskID string) []string {
	env := append([]string(nil), parent...)

	currentPath := lookupEnv(env, "PATH")
	var parts []string
	if scriptsDir != "" {
		parts = append(parts, scriptsDir)
	}
	if !strings.Contains(currentPath, "/opt/homebrew/bin") {
		parts = append(parts, extraBinPaths)
	}
	if currentPath != "" {
		parts = append(parts, currentPath)
	}
	env = setEnv(env, "PATH", strings.Join(parts, ":"))

	if key := lookupEnv(env, "ANTHROPIC_API_KEY"); key != "" {
		env = setEnv(env, "ANTHROPIC_AUTH_TOKEN", key)
	}
	if apiURL != "" {
		env = setEnv(env, "PAWJECT_API_URL", apiURL)
	}
	if projectID != "" {
		env = setEnv(env, "PAWJECT_PROJECT_ID", projectID)
	}
	if taskID != "" {
		env = setEnv(env, "PAWJECT_TASK_ID", taskID)
	}
	return env
}

func lookupEnv(env []string, key string) string {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):]
		}
	}
	return ""
}

func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return append(out, prefix+value)
}

func (r *Runner) command(args []string, req Request) *exec.Cmd {
	cmd := exec.Command(r.Binary, args...) //nolint:gosec // G204: binary comes from settings, args are built above
	cmd.Dir = req.Dir
	environ := r.Environ
	if environ == nil {
		environ = os.Environ
	}
	cmd.Env = BuildEnv(environ(), r.ScriptsDir, r.APIURL, req.ProjectID, req.TaskID)
	// Own process group so termination reaches tools the CLI spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = r.killGrace()
	return cmd
}

func (r *Runner) killGrace() time.Duration {
	if r.KillGrace > 0 {
		return r.KillGrace
	}
	return DefaultKillGrace
}

// signalGroup delivers sig to the process group led by p, falling back to p alone.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	if err := syscall.Kill(-p.Pid, sig); err == nil {
		return nil
	}
	return p.Signal(sig)
}

// limitedWriter caps writes at maxBytes, silently discarding overflow.
type limitedWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	maxBytes int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	originalLen := len(p)
	remaining := w.maxBytes - w.buf.Len()
	if remaining <= 0 {
		return originalLen, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	w.buf.Write(p)
	return originalLen, nil
}

func (w *limitedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func spawnError(binary string, err error) error {
	return &Error{Kind: KindProcessSpawnFailed, Message: fmt.Sprintf("failed to start %s", binary), Err: err}
}
