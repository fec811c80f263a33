// Package scheduler runs due periodic tasks and progress updates for stale
// proactive tasks.
package scheduler

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/agent"
	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/metrics"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
)

// StaleAfter is how long a proactive task may stay quiet before a progress update.
const StaleAfter = 60 * time.Minute

// TurnRunner runs and records one turn. *actions.Service implements it.
type TurnRunner interface {
	RunTurn(ctx context.Context, taskID, message string, mode agent.Mode, handler claude.Handler, userTurn bool) (*actions.TurnRecord, error)
}

// Summary counts the turns a tick ran successfully.
type Summary struct {
	PeriodicRan     int `json:"periodicRan"`
	ProgressUpdates int `json:"progressUpdates"`
}

// Scheduler claims due work from the store and runs it.
type Scheduler struct {
	DB      *sql.DB
	Turns   TurnRunner
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	// Concurrency bounds the turns run in parallel within one tick.
	Concurrency int

	mu sync.Mutex
}

// New returns a Scheduler with a wall clock.
func New(db *sql.DB, turns TurnRunner, m *metrics.Metrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		DB:          db,
		Turns:       turns,
		Metrics:     m,
		Logger:      logger.With("component", "scheduler"),
		Now:         time.Now,
		Concurrency: 4,
	}
}

// Tick runs one scheduling pass. A Tick that overlaps another in the same
// process returns an empty summary immediately.
func (s *Scheduler) Tick(ctx context.Context) (Summary, error) {
	if !s.mu.TryLock() {
		s.Logger.Debug("tick already in progress, skipping")
		return Summary{}, nil
	}
	defer s.mu.Unlock()

	now := s.Now().UTC()
	var summary Summary

	periodic, err := store.ClaimDuePeriodicTasks(ctx, s.DB, now)
	if err != nil {
		return summary, err
	}
	summary.PeriodicRan = s.runAll(ctx, periodic, agent.PeriodicTriggerMessage, "periodic")

	proactive, err := store.ClaimStaleProactiveTasks(ctx, s.DB, now, StaleAfter)
	if err != nil {
		return summary, err
	}
	summary.ProgressUpdates = s.runAll(ctx, proactive, agent.ProgressUpdateMessage, "progress")

	if len(periodic)+len(proactive) > 0 {
		s.Logger.Info("tick completed",
			"periodic_claimed", len(periodic), "periodic_ran", summary.PeriodicRan,
			"proactive_claimed", len(proactive), "progress_updates", summary.ProgressUpdates)
	}
	return summary, nil
}

// runAll runs message against every task and returns the number that succeeded.
// Failures are already recorded by the TurnRunner.
func (s *Scheduler) runAll(ctx context.Context, tasks []*models.Task, message, kind string) int {
	if len(tasks) == 0 {
		return 0
	}
	g, gctx := errgroup.WithContext(ctx)
	if s.Concurrency > 0 {
		g.SetLimit(s.Concurrency)
	}

	var (
		mu sync.Mutex
		ok int
	)
	for _, task := range tasks {
		g.Go(func() error {
			_, err := s.Turns.RunTurn(gctx, task.ID, message, agent.ModeOneShot, nil, false)
			if err != nil {
				s.Logger.Warn("scheduled turn failed", "task_id", task.ID, "kind", kind, "error", err)
				return nil
			}
			s.Metrics.IncSchedulerRun(kind)
			mu.Lock()
			ok++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return ok
}

// Run calls Tick every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.Logger.Error("tick failed", "error", err)
			}
		}
	}
}
