package commands

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/agent"
	"github.com/dotcommander/pawject/internal/app"
	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/metrics"
	"github.com/dotcommander/pawject/internal/scheduler"
	"github.com/dotcommander/pawject/internal/supervisor"
	"github.com/dotcommander/pawject/internal/worker"
	"github.com/dotcommander/pawject/internal/workspace"
)

// stack is the wired runtime shared by serve, tick and the turn-running commands.
type stack struct {
	DB         *DB
	Runtime    app.Runtime
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Workspace  *workspace.Workspace
	Runner     *claude.Runner
	Pool       *worker.Pool
	Service    *actions.Service
	Scheduler  *scheduler.Scheduler
	Supervisor *supervisor.Supervisor
}

// openStack opens the database and wires every component. The returned
// close func waits for background turns before closing the database.
func openStack(logger *slog.Logger) (*stack, func(), error) {
	rt, err := app.ResolveRuntime()
	if err != nil {
		return nil, nil, err
	}
	db, closeDB, err := openDB()
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.MustNewMetrics(reg)
	ws := workspace.New(rt.WorkspaceRoot, logger)

	runner := claude.NewRunner(rt.ClaudeCLI, rt.ScriptsDir, rt.APIURL, logger)
	runner.OneShotTimeout = rt.OneShotTimeout

	pool := worker.NewPool(rt.MaxConcurrentTurns, logger, m)
	orch := agent.NewOrchestrator(db, runner, ws, rt.APIURL, logger)
	svc := actions.NewService(db, orch, ws, pool, m, logger)

	sched := scheduler.New(db, svc, m, logger)
	sched.Concurrency = rt.MaxConcurrentTurns
	sup := supervisor.New(db, ws, supervisor.RunnerLauncher(runner), rt.APIURL, m, logger)

	s := &stack{
		DB:         db,
		Runtime:    rt,
		Registry:   reg,
		Metrics:    m,
		Workspace:  ws,
		Runner:     runner,
		Pool:       pool,
		Service:    svc,
		Scheduler:  sched,
		Supervisor: sup,
	}
	return s, func() {
		pool.Wait()
		closeDB()
	}, nil
}

// withStack is withDB for commands that need the full runtime.
func withStack(fn func(s *stack) error) error {
	s, closeStack, err := openStack(slog.Default())
	if err != nil {
		return cmdErr(err)
	}
	defer closeStack()

	if err := fn(s); err != nil {
		return cmdErr(err)
	}
	return nil
}
