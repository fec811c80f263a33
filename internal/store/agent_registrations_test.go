package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pawject/internal/models"
)

func TestUpsertAgentRegistration_KeepsPIDWhenOmitted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	reg, err := UpsertAgentRegistration(ctx, db, models.AgentRegistration{
		ProjectID: p.ID, PID: 4242, Status: models.AgentStatusRunning, LastHeartbeat: &now,
	})
	require.NoError(t, err)
	assert.Equal(t, 4242, reg.PID)
	require.NotNil(t, reg.LastHeartbeat)
	assert.True(t, now.Equal(*reg.LastHeartbeat))

	reg, err = UpsertAgentRegistration(ctx, db, models.AgentRegistration{
		ProjectID: p.ID, SessionID: "sess", Status: models.AgentStatusRunning,
	})
	require.NoError(t, err)
	assert.Equal(t, 4242, reg.PID)
	assert.Equal(t, "sess", reg.SessionID)
}

func TestGetAgentRegistration_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := GetAgentRegistration(context.Background(), db, "proj_none")
	require.ErrorIs(t, err, ErrNotFound)

	err = TouchAgentHeartbeat(context.Background(), db, "proj_none", time.Now())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetAgentStatus_ClearsPID(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	_, err := UpsertAgentRegistration(ctx, db, models.AgentRegistration{ProjectID: p.ID, PID: 7, Status: models.AgentStatusRunning})
	require.NoError(t, err)

	require.NoError(t, SetAgentStatus(ctx, db, p.ID, models.AgentStatusStopped, true))

	reg, err := GetAgentRegistration(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusStopped, reg.Status)
	assert.Zero(t, reg.PID)
}

func TestListStaleRunningAgents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	stale := seedProject(t, db)
	fresh := seedProject(t, db)
	stopped := seedProject(t, db)

	now := time.Now().UTC()
	old := now.Add(-2 * time.Minute)

	_, err := UpsertAgentRegistration(ctx, db, models.AgentRegistration{ProjectID: stale.ID, Status: models.AgentStatusRunning, LastHeartbeat: &old})
	require.NoError(t, err)
	_, err = UpsertAgentRegistration(ctx, db, models.AgentRegistration{ProjectID: fresh.ID, Status: models.AgentStatusRunning, LastHeartbeat: &now})
	require.NoError(t, err)
	_, err = UpsertAgentRegistration(ctx, db, models.AgentRegistration{ProjectID: stopped.ID, Status: models.AgentStatusStopped, LastHeartbeat: &old})
	require.NoError(t, err)

	regs, err := ListStaleRunningAgents(ctx, db, now.Add(-90*time.Second))
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, stale.ID, regs[0].ProjectID)

	require.NoError(t, TouchAgentHeartbeat(ctx, db, stale.ID, now))
	regs, err = ListStaleRunningAgents(ctx, db, now.Add(-90*time.Second))
	require.NoError(t, err)
	assert.Empty(t, regs)
}
