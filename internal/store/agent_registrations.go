package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dotcommander/pawject/internal/models"
)

// UpsertAgentRegistration creates or updates the persisted record of a project agent.
// On update a zero PID, empty SessionID or nil LastHeartbeat keep the stored value.
func UpsertAgentRegistration(ctx context.Context, db *sql.DB, reg models.AgentRegistration) (*models.AgentRegistration, error) {
	if reg.Status == "" {
		return nil, errors.New("agent status is required")
	}

	var pid any
	if reg.PID > 0 {
		pid = reg.PID
	}

	err := RetryWithBackoff(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO agent_registrations (project_id, pid, session_id, status, last_heartbeat, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id) DO UPDATE SET
				pid = COALESCE(excluded.pid, agent_registrations.pid),
				session_id = COALESCE(excluded.session_id, agent_registrations.session_id),
				status = excluded.status,
				last_heartbeat = COALESCE(excluded.last_heartbeat, agent_registrations.last_heartbeat),
				updated_at = excluded.updated_at
		`, reg.ProjectID, pid, nullableString(reg.SessionID), string(reg.Status), nullableTime(reg.LastHeartbeat), formatTime(time.Now()))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert agent registration: %w", err)
	}
	return GetAgentRegistration(ctx, db, reg.ProjectID)
}

// GetAgentRegistration loads the agent record of a project.
func GetAgentRegistration(ctx context.Context, db *sql.DB, projectID string) (*models.AgentRegistration, error) {
	row := db.QueryRowContext(ctx, `
		SELECT project_id, pid, session_id, status, last_heartbeat, updated_at
		FROM agent_registrations WHERE project_id = ?
	`, projectID)
	reg, err := scanAgentRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "agent", ID: projectID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent registration: %w", err)
	}
	return reg, nil
}

func scanAgentRegistration(row rowScanner) (*models.AgentRegistration, error) {
	var (
		reg       models.AgentRegistration
		pid       sql.NullInt64
		sessionID sql.NullString
		status    string
		heartbeat sql.NullString
		updatedAt string
	)
	if err := row.Scan(&reg.ProjectID, &pid, &sessionID, &status, &heartbeat, &updatedAt); err != nil {
		return nil, err
	}
	if pid.Valid {
		reg.PID = int(pid.Int64)
	}
	reg.SessionID = scanNullString(sessionID)
	reg.Status = models.AgentStatus(status)

	var err error
	if reg.LastHeartbeat, err = scanNullTime(heartbeat); err != nil {
		return nil, err
	}
	if reg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &reg, nil
}

// TouchAgentHeartbeat records a liveness beat for a project agent.
func TouchAgentHeartbeat(ctx context.Context, db *sql.DB, projectID string, now time.Time) error {
	return execAgentUpdate(ctx, db, projectID, `
		UPDATE agent_registrations SET last_heartbeat = ?, updated_at = ? WHERE project_id = ?
	`, formatTime(now), formatTime(time.Now()), projectID)
}

// SetAgentStatus changes the persisted status of a project agent, optionally clearing its pid.
func SetAgentStatus(ctx context.Context, db *sql.DB, projectID string, status models.AgentStatus, clearPID bool) error {
	query := `UPDATE agent_registrations SET status = ?, updated_at = ? WHERE project_id = ?`
	if clearPID {
		query = `UPDATE agent_registrations SET status = ?, pid = NULL, updated_at = ? WHERE project_id = ?`
	}
	return execAgentUpdate(ctx, db, projectID, query, string(status), formatTime(time.Now()), projectID)
}

func execAgentUpdate(ctx context.Context, db *sql.DB, projectID, query string, args ...any) error {
	return RetryWithBackoff(func() error {
		res, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update agent registration: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return &NotFoundError{Entity: "agent", ID: projectID}
		}
		return nil
	})
}

// ListStaleRunningAgents returns agents persisted as running whose last heartbeat
// is missing or older than cutoff.
func ListStaleRunningAgents(ctx context.Context, db *sql.DB, cutoff time.Time) ([]*models.AgentRegistration, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT project_id, pid, session_id, status, last_heartbeat, updated_at
		FROM agent_registrations
		WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)
		ORDER BY project_id ASC
	`, string(models.AgentStatusRunning), formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query stale agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.AgentRegistration
	for rows.Next() {
		reg, err := scanAgentRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent registration: %w", err)
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}
