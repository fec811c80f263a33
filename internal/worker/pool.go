// Package worker runs background agent turns with bounded concurrency.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/dotcommander/pawject/internal/metrics"
)

// Job is one unit of background work. TaskID is carried for failure reporting.
type Job struct {
	Name   string
	TaskID string
	Run    func(ctx context.Context) error
}

// Pool runs jobs on their own goroutines, at most size at a time.
type Pool struct {
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	metrics *metrics.Metrics

	// OnError is called with a job's error or recovered panic. It runs on the
	// job's goroutine with a context that outlives pool cancellation.
	OnError func(ctx context.Context, job Job, err error)
}

// NewPool returns a Pool allowing size concurrent jobs (minimum 1).
func NewPool(size int, logger *slog.Logger, m *metrics.Metrics) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With("component", "worker"),
		metrics: m,
	}
}

// Go schedules job. It never blocks the caller.
func (p *Pool) Go(job Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.fail(job, fmt.Errorf("job %s not started: %w", job.Name, err))
			return
		}
		defer p.sem.Release(1)

		p.metrics.WorkerJobStarted()
		defer p.metrics.WorkerJobFinished()

		if err := p.run(job); err != nil {
			p.fail(job, err)
		}
	}()
}

func (p *Pool) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.IncWorkerPanic()
			p.logger.Error("job panicked", "job", job.Name, "task_id", job.TaskID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	p.logger.Debug("job started", "job", job.Name, "task_id", job.TaskID)
	return job.Run(p.ctx)
}

func (p *Pool) fail(job Job, err error) {
	p.logger.Warn("job failed", "job", job.Name, "task_id", job.TaskID, "error", err)
	if p.OnError != nil {
		p.OnError(context.WithoutCancel(p.ctx), job, err)
	}
}

// Wait blocks until every scheduled job has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown cancels running jobs and waits for them, or until ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
