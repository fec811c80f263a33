// Package supervisor keeps one long-lived project agent per project alive.
//
// A project agent moves through not_started, running, stopped and crashed.
// The in-process registry is the authority for which agents are live; the
// agent_registrations table records heartbeats and the last known status so a
// restarted server can reap agents it no longer owns.
package supervisor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dotcommander/pawject/internal/agent"
	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/metrics"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
	"github.com/dotcommander/pawject/internal/workspace"
)

// ErrHeartbeatTimeout is logged when an agent misses its heartbeat window.
var ErrHeartbeatTimeout = errors.New("project agent heartbeat timeout")

const (
	DefaultCheckInterval    = 30 * time.Second
	DefaultHeartbeatTimeout = 90 * time.Second
	DefaultRestartDelay     = 5 * time.Second
)

// Process is a live project agent. *claude.Session implements it.
type Process interface {
	PID() int
	Done() <-chan struct{}
	Terminate()
	Wait() (*claude.Result, error)
}

// Launcher starts a project agent session. ctx bounds the session's lifetime.
type Launcher func(ctx context.Context, req claude.Request) (Process, error)

// RunnerLauncher adapts a *claude.Runner into a Launcher. The session's
// events are drained in the background for the agent's whole lifetime.
func RunnerLauncher(r *claude.Runner) Launcher {
	return func(ctx context.Context, req claude.Request) (Process, error) {
		sess, err := r.RunStreaming(ctx, req)
		if err != nil {
			return nil, err
		}
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		go drainEvents(sess.Events(), logger.With("project_id", req.ProjectID, "pid", sess.PID()))
		return sess, nil
	}
}

// drainEvents consumes project agent output until the session ends. Text and
// tool use are logged at debug level.
func drainEvents(events <-chan claude.Event, logger *slog.Logger) {
	for ev := range events {
		switch ev.Type {
		case claude.EventTextDelta:
			logger.Debug("project agent output", "text", ev.Text)
		case claude.EventToolUse:
			logger.Debug("project agent tool use", "tool", ev.ToolName)
		}
	}
}

type entry struct {
	proc     Process
	stop     chan struct{}
	stopOnce sync.Once
}

func (e *entry) stopCheck() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Status is the externally visible state of a project agent.
type Status struct {
	Running       bool               `json:"running"`
	Status        models.AgentStatus `json:"status"`
	LastHeartbeat *time.Time         `json:"lastHeartbeat"`
	PID           int                `json:"pid,omitempty"`
}

// Supervisor starts, watches and restarts project agents.
type Supervisor struct {
	DB        *sql.DB
	Workspace *workspace.Workspace
	Launch    Launcher
	APIURL    string
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time

	CheckInterval    time.Duration
	HeartbeatTimeout time.Duration
	RestartDelay     time.Duration
	// AfterFunc schedules delayed restarts.
	AfterFunc func(d time.Duration, f func())

	mu     sync.Mutex
	agents map[string]*entry
	starts singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a Supervisor with production timings.
func New(db *sql.DB, ws *workspace.Workspace, launch Launcher, apiURL string, m *metrics.Metrics, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		DB:               db,
		Workspace:        ws,
		Launch:           launch,
		APIURL:           apiURL,
		Metrics:          m,
		Logger:           logger.With("component", "supervisor"),
		Now:              time.Now,
		CheckInterval:    DefaultCheckInterval,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		RestartDelay:     DefaultRestartDelay,
		AfterFunc:        func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		agents:           make(map[string]*entry),
		ctx:              ctx,
		cancel:           cancel,
	}
}

// Start (re)starts the project agent of projectID. Concurrent calls for the
// same project share one start.
func (s *Supervisor) Start(ctx context.Context, projectID string) (*models.AgentRegistration, error) {
	v, err, _ := s.starts.Do(projectID, func() (any, error) {
		return s.start(ctx, projectID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.AgentRegistration), nil
}

func (s *Supervisor) start(ctx context.Context, projectID string) (*models.AgentRegistration, error) {
	if err := s.Stop(ctx, projectID); err != nil {
		return nil, err
	}

	pc, err := store.GetProjectWithContext(ctx, s.DB, projectID)
	if err != nil {
		return nil, err
	}
	if err := s.prepareWorkspace(pc); err != nil {
		return nil, fmt.Errorf("failed to prepare project agent workspace: %w", err)
	}

	proc, err := s.Launch(s.ctx, claude.Request{
		Prompt:    agent.ProjectAgentInitPrompt,
		Dir:       s.Workspace.ProjectDir(projectID),
		AddDirs:   s.Workspace.AddDirs(projectID),
		ProjectID: projectID,
	})
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	reg, err := store.UpsertAgentRegistration(ctx, s.DB, models.AgentRegistration{
		ProjectID:     projectID,
		PID:           proc.PID(),
		Status:        models.AgentStatusRunning,
		LastHeartbeat: &now,
	})
	if err != nil {
		proc.Terminate()
		return nil, err
	}

	e := &entry{proc: proc, stop: make(chan struct{})}
	s.mu.Lock()
	s.agents[projectID] = e
	s.Metrics.SetAgentsRunning(len(s.agents))
	s.mu.Unlock()

	go s.watchHeartbeat(projectID, e)
	go s.watchExit(projectID, e)

	s.event(ctx, models.EventKindAgentStarted, projectID, fmt.Sprintf("Project agent started (pid %d)", proc.PID()))
	s.Logger.Info("project agent started", "project_id", projectID, "pid", proc.PID())
	return reg, nil
}

func (s *Supervisor) prepareWorkspace(pc *models.ProjectWithContext) error {
	if _, err := s.Workspace.CreateWorkspace(pc.ID); err != nil {
		return err
	}
	if err := s.Workspace.WriteFile(pc.ID, "CLAUDE.md", agent.ProjectDocument(pc, s.APIURL)); err != nil {
		return err
	}
	for _, f := range agent.ProjectSkeletons {
		if _, err := s.Workspace.WriteFileIfMissing(pc.ID, f.Path, f.Content); err != nil {
			return err
		}
	}
	return nil
}

// deregister removes projectID from the registry if it still maps to e.
func (s *Supervisor) deregister(projectID string, e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.agents[projectID] != e {
		return false
	}
	delete(s.agents, projectID)
	s.Metrics.SetAgentsRunning(len(s.agents))
	return true
}

func (s *Supervisor) watchExit(projectID string, e *entry) {
	<-e.proc.Done()
	result, err := e.proc.Wait()
	e.stopCheck()
	if !s.deregister(projectID, e) {
		return
	}

	if err != nil {
		s.Logger.Warn("project agent exited", "project_id", projectID, "error", err)
		return
	}
	s.Logger.Info("project agent completed", "project_id", projectID, "cost_usd", result.TotalCostUSD)
	if err := store.SetAgentStatus(context.Background(), s.DB, projectID, models.AgentStatusStopped, false); err != nil {
		s.Logger.Warn("failed to persist agent stop", "project_id", projectID, "error", err)
	}
}

func (s *Supervisor) watchHeartbeat(projectID string, e *entry) {
	ticker := time.NewTicker(s.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if !s.checkHeartbeat(s.ctx, projectID, e) {
				e.stopCheck()
				return
			}
		}
	}
}

// checkHeartbeat reports whether the check ticker should keep running.
func (s *Supervisor) checkHeartbeat(ctx context.Context, projectID string, e *entry) bool {
	reg, err := store.GetAgentRegistration(ctx, s.DB, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	if err != nil {
		s.Logger.Error("heartbeat check failed", "project_id", projectID, "error", err)
		return true
	}
	if reg.Status != models.AgentStatusRunning {
		return false
	}
	if reg.LastHeartbeat == nil || s.Now().Sub(*reg.LastHeartbeat) <= s.HeartbeatTimeout {
		return true
	}

	s.Logger.Warn("restarting project agent", "project_id", projectID, "error", ErrHeartbeatTimeout,
		"last_heartbeat", reg.LastHeartbeat.Format(time.RFC3339))
	if err := store.SetAgentStatus(ctx, s.DB, projectID, models.AgentStatusCrashed, false); err != nil {
		s.Logger.Error("failed to persist crash", "project_id", projectID, "error", err)
	}
	s.deregister(projectID, e)
	e.proc.Terminate()
	s.event(ctx, models.EventKindAgentCrashed, projectID, "Project agent missed its heartbeat")

	s.AfterFunc(s.RestartDelay, func() {
		if s.ctx.Err() != nil {
			return
		}
		if _, err := s.Start(s.ctx, projectID); err != nil {
			s.Logger.Error("project agent restart failed", "project_id", projectID, "error", err)
			return
		}
		s.Metrics.IncAgentRestart()
		s.event(s.ctx, models.EventKindAgentRestarted, projectID, "Project agent restarted after heartbeat timeout")
	})
	return false
}

// Stop terminates the project agent of projectID, if any, and persists stopped.
// Stopping a project that never had an agent is not an error.
func (s *Supervisor) Stop(ctx context.Context, projectID string) error {
	s.mu.Lock()
	e := s.agents[projectID]
	delete(s.agents, projectID)
	s.Metrics.SetAgentsRunning(len(s.agents))
	s.mu.Unlock()

	if e != nil {
		e.stopCheck()
		e.proc.Terminate()
		s.event(ctx, models.EventKindAgentStopped, projectID, "Project agent stopped")
		s.Logger.Info("project agent stopped", "project_id", projectID)
	}

	err := store.SetAgentStatus(ctx, s.DB, projectID, models.AgentStatusStopped, true)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return nil
}

// Status reports whether the agent is live in this process plus its persisted state.
func (s *Supervisor) Status(ctx context.Context, projectID string) (Status, error) {
	s.mu.Lock()
	_, running := s.agents[projectID]
	s.mu.Unlock()

	st := Status{Running: running, Status: models.AgentStatusNotStarted}
	reg, err := store.GetAgentRegistration(ctx, s.DB, projectID)
	if errors.Is(err, store.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Status = reg.Status
	st.LastHeartbeat = reg.LastHeartbeat
	st.PID = reg.PID
	return st, nil
}

// ReapCrashed restarts agents persisted as running whose heartbeat is stale and
// that this process does not own. It returns how many were restarted.
func (s *Supervisor) ReapCrashed(ctx context.Context) (int, error) {
	stale, err := store.ListStaleRunningAgents(ctx, s.DB, s.Now().Add(-s.HeartbeatTimeout))
	if err != nil {
		return 0, err
	}

	restarted := 0
	for _, reg := range stale {
		s.mu.Lock()
		_, owned := s.agents[reg.ProjectID]
		s.mu.Unlock()
		if owned {
			continue
		}
		if _, err := s.Start(ctx, reg.ProjectID); err != nil {
			s.Logger.Error("failed to restart crashed agent", "project_id", reg.ProjectID, "error", err)
			continue
		}
		s.Metrics.IncAgentRestart()
		s.event(ctx, models.EventKindAgentRestarted, reg.ProjectID, "Project agent restarted by reaper")
		restarted++
	}
	return restarted, nil
}

// RunReaper calls ReapCrashed every interval until ctx is done.
func (s *Supervisor) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.ReapCrashed(ctx); err != nil {
				s.Logger.Error("reap failed", "error", err)
			} else if n > 0 {
				s.Logger.Info("reaped crashed agents", "restarted", n)
			}
		}
	}
}

// Running lists the projects with a live agent in this process.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.agents))
	for id := range s.agents {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown stops every registered agent and cancels pending restarts.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.cancel()
	for _, id := range s.Running() {
		if err := s.Stop(ctx, id); err != nil {
			s.Logger.Warn("failed to stop agent on shutdown", "project_id", id, "error", err)
		}
	}
}

func (s *Supervisor) event(ctx context.Context, kind, projectID, message string) {
	if _, err := store.InsertEvent(context.WithoutCancel(ctx), s.DB, kind, projectID, "", message, ""); err != nil {
		s.Logger.Warn("failed to append agent event", "kind", kind, "error", err)
	}
}
