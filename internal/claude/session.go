package claude

import (
	"context"
	"errors"
	"io"
	"sync"
	"syscall"
	"time"
)

// Session is a running stream-json invocation. Events must be drained; the
// channel is closed once the process has exited and the outcome is known.
type Session struct {
	pid    int
	events chan Event
	done   chan struct{}

	terminateOnce sync.Once
	terminate     func()

	result *Result
	err    error
}

// Handler receives stream events in order. Returning an error terminates the
// session and makes Stream return that error.
type Handler func(Event) error

// RunStreaming spawns claude in stream-json mode. Cancelling ctx terminates
// the process; otherwise it runs until it exits or Terminate is called.
func (r *Runner) RunStreaming(ctx context.Context, req Request) (*Session, error) {
	if err := validatePrompt(req.Prompt); err != nil {
		return nil, &Error{Kind: KindProcessSpawnFailed, Message: "invalid prompt", Err: err}
	}

	args := StreamingArgs(req)
	cmd := r.command(args, req)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, spawnError(r.Binary, err)
	}
	stderr := &limitedWriter{maxBytes: stderrCap}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, spawnError(r.Binary, err)
	}

	s := &Session{
		pid:    cmd.Process.Pid,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	grace := r.killGrace()
	s.terminate = func() {
		select {
		case <-s.done:
			return
		default:
		}
		_ = signalGroup(cmd.Process, syscall.SIGTERM)
		go func() {
			select {
			case <-s.done:
			case <-time.After(grace):
				_ = signalGroup(cmd.Process, syscall.SIGKILL)
			}
		}()
	}

	logger := r.Logger.With("pid", s.pid, "task_id", req.TaskID, "project_id", req.ProjectID)
	logger.Info("claude stream started", "dir", req.Dir, "add_dirs", len(req.AddDirs), "continue", req.Continue)

	go func() {
		select {
		case <-ctx.Done():
			s.Terminate()
		case <-s.done:
		}
	}()

	go func() {
		dec := NewDecoder(stdout, logger)
		var result *Result
		for {
			ev, err := dec.Next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Warn("claude stream read failed", "error", err)
				}
				break
			}
			if ev.Type == EventResult {
				result = ev.Result
			}
			s.events <- ev
		}

		waitErr := cmd.Wait()
		switch {
		case result != nil:
			s.result = result
		case waitErr == nil:
			s.err = &Error{Kind: KindProtocolViolation, Message: "process ended without result event"}
		default:
			s.err = &Error{
				Kind:     KindProcessFailed,
				ExitCode: exitCode(waitErr),
				Stderr:   truncateStderr(stderr.String()),
				Err:      waitErr,
			}
		}
		logger.Info("claude stream exited", "result", result != nil, "error", s.err)

		close(s.events)
		close(s.done)
	}()

	return s, nil
}

// PID is the process id of the claude process.
func (s *Session) PID() int { return s.pid }

// Events delivers parsed events in stream order.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed after the process exits and Wait's outcome is fixed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Terminate sends SIGTERM to the process group, then SIGKILL after the grace period.
func (s *Session) Terminate() {
	s.terminateOnce.Do(s.terminate)
}

// Wait blocks until the process exits. A result event wins over the exit status.
func (s *Session) Wait() (*Result, error) {
	<-s.done
	return s.result, s.err
}

// Stream runs a streaming session and calls handler synchronously for every
// event. Work the handler does for the result event has completed when
// Stream returns.
func (r *Runner) Stream(ctx context.Context, req Request, handler Handler) (*Result, error) {
	s, err := r.RunStreaming(ctx, req)
	if err != nil {
		return nil, err
	}

	var handlerErr error
	for ev := range s.Events() {
		if handlerErr != nil || handler == nil {
			continue
		}
		if err := handler(ev); err != nil {
			handlerErr = err
			s.Terminate()
		}
	}

	result, err := s.Wait()
	if handlerErr != nil {
		return result, handlerErr
	}
	return result, err
}
