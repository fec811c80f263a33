package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"syscall"
	"time"
)

// RunOneShot runs claude in json mode and parses the single result object it prints.
// The process is sent SIGTERM when OneShotTimeout elapses.
func (r *Runner) RunOneShot(ctx context.Context, req Request) (*Result, error) {
	if err := validatePrompt(req.Prompt); err != nil {
		return nil, &Error{Kind: KindProcessSpawnFailed, Message: "invalid prompt", Err: err}
	}

	timeout := r.OneShotTimeout
	if timeout <= 0 {
		timeout = DefaultOneShotTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := r.command(OneShotArgs(req), req)
	// stdin is left nil so the child reads from the null device and never blocks on input.
	var stdout bytes.Buffer
	stderr := &limitedWriter{maxBytes: stderrCap}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	logger := r.Logger.With("task_id", req.TaskID, "project_id", req.ProjectID)
	start := time.Now()

	if err := cmd.Start(); err != nil {
		return nil, spawnError(r.Binary, err)
	}
	logger.Info("claude one-shot started", "pid", cmd.Process.Pid, "dir", req.Dir, "continue", req.Continue)

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitDone:
	case <-runCtx.Done():
		logger.Warn("claude one-shot deadline reached, terminating", "pid", cmd.Process.Pid, "elapsed", time.Since(start))
		_ = signalGroup(cmd.Process, syscall.SIGTERM)
		select {
		case waitErr = <-waitDone:
		case <-time.After(r.killGrace()):
			_ = signalGroup(cmd.Process, syscall.SIGKILL)
			waitErr = <-waitDone
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &Error{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("no result after %s", timeout),
				Stderr:  truncateStderr(stderr.String()),
				Err:     runCtx.Err(),
			}
		}
		return nil, fmt.Errorf("claude one-shot cancelled: %w", ctx.Err())
	}

	if waitErr != nil {
		return nil, &Error{
			Kind:     KindProcessFailed,
			ExitCode: exitCode(waitErr),
			Stderr:   truncateStderr(stderr.String()),
			Err:      waitErr,
		}
	}

	result, err := parseOneShotOutput(stdout.Bytes())
	if err != nil {
		return nil, err
	}
	logger.Info("claude one-shot completed", "duration_ms", time.Since(start).Milliseconds(), "cost_usd", result.TotalCostUSD)
	return result, nil
}

func parseOneShotOutput(out []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(out)
	var result Result
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, &Error{Kind: KindMalformedOutput, Message: excerpt(trimmed), Err: err}
	}
	if result.Type != "result" {
		return nil, &Error{Kind: KindMalformedOutput, Message: fmt.Sprintf("unexpected object type %q", result.Type)}
	}
	return &result, nil
}

func excerpt(b []byte) string {
	if len(b) > 200 {
		b = b[:200]
	}
	return string(b)
}
