package supervisor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
)

// Register records a project agent announcing itself: running, with its pid
// and session, heartbeat now. It works without a live Supervisor so the CLI
// run by the agent can call it directly.
func Register(ctx context.Context, db *sql.DB, projectID string, pid int, sessionID string, now time.Time) (*models.AgentRegistration, error) {
	if _, err := store.GetProject(ctx, db, projectID); err != nil {
		return nil, err
	}
	now = now.UTC()
	reg, err := store.UpsertAgentRegistration(ctx, db, models.AgentRegistration{
		ProjectID:     projectID,
		PID:           pid,
		SessionID:     sessionID,
		Status:        models.AgentStatusRunning,
		LastHeartbeat: &now,
	})
	if err != nil {
		return nil, err
	}
	if _, err := store.InsertEvent(ctx, db, models.EventKindAgentRegistered, projectID, "",
		fmt.Sprintf("Project agent registered (pid %d)", pid), ""); err != nil {
		return nil, err
	}
	return reg, nil
}

// HeartbeatUpdate carries the optional fields of a heartbeat.
type HeartbeatUpdate struct {
	Status    models.AgentStatus
	PID       int
	SessionID string
}

// Heartbeat stamps the agent's last heartbeat and applies any fields in u.
// It returns a not-found error when the project has no registration.
func Heartbeat(ctx context.Context, db *sql.DB, projectID string, u HeartbeatUpdate, now time.Time) (*models.AgentRegistration, error) {
	now = now.UTC()
	if u == (HeartbeatUpdate{}) {
		if err := store.TouchAgentHeartbeat(ctx, db, projectID, now); err != nil {
			return nil, err
		}
		return store.GetAgentRegistration(ctx, db, projectID)
	}

	current, err := store.GetAgentRegistration(ctx, db, projectID)
	if err != nil {
		return nil, err
	}
	status := current.Status
	if u.Status != "" {
		status = u.Status
	}
	return store.UpsertAgentRegistration(ctx, db, models.AgentRegistration{
		ProjectID:     projectID,
		PID:           u.PID,
		SessionID:     u.SessionID,
		Status:        status,
		LastHeartbeat: &now,
	})
}

// Register is Register bound to the supervisor's store and clock.
func (s *Supervisor) Register(ctx context.Context, projectID string, pid int, sessionID string) (*models.AgentRegistration, error) {
	return Register(ctx, s.DB, projectID, pid, sessionID, s.Now())
}

// Heartbeat is Heartbeat bound to the supervisor's store and clock.
func (s *Supervisor) Heartbeat(ctx context.Context, projectID string, u HeartbeatUpdate) (*models.AgentRegistration, error) {
	return Heartbeat(ctx, s.DB, projectID, u, s.Now())
}
