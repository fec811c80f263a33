package store

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pawject/internal/models"
)

func createPeriodicTask(t *testing.T, db *sql.DB, projectID string, interval int, nextRunAt time.Time) *models.Task {
	t.Helper()
	task, err := CreateTask(context.Background(), db, CreateTaskParams{
		ProjectID: projectID,
		Name:      "Daily digest",
		Type:      models.TaskTypePeriodic,
		Status:    models.TaskStatusRunning,
		Schedule:  &models.ScheduleConfig{IntervalMinutes: interval},
		NextRunAt: &nextRunAt,
	})
	require.NoError(t, err)
	return task
}

func TestCreateTask_PersistsScheduleAndEmitsEvent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	next := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	task := createPeriodicTask(t, db, p.ID, 60, next)

	assert.Equal(t, models.TaskTypePeriodic, task.Type)
	assert.Equal(t, models.TaskStatusRunning, task.Status)
	require.NotNil(t, task.Schedule)
	assert.Equal(t, 60, task.Schedule.IntervalMinutes)
	require.NotNil(t, task.NextRunAt)
	assert.True(t, next.Equal(*task.NextRunAt))

	events, err := ListEvents(ctx, db, p.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventKindTaskCreated, events[0].Kind)
	assert.Equal(t, task.ID, events[0].TaskID)
}

func TestCreateTask_UnknownProjectIsNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := CreateTask(context.Background(), db, CreateTaskParams{
		ProjectID: "proj_missing",
		Name:      "x",
		Type:      models.TaskTypeOneTime,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetTask_ReadsLegacyLongTermAsProactive(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	task, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "Track", Type: models.TaskTypeProactive, Status: models.TaskStatusRunning})
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE tasks SET type = 'long_term' WHERE id = ?`, task.ID)
	require.NoError(t, err)

	got, err := GetTask(ctx, db, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskTypeProactive, got.Type)
}

func TestUpdateTask_StatusChangeAppendsEvent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)
	task, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "One", Type: models.TaskTypeOneTime, Status: models.TaskStatusRunning})
	require.NoError(t, err)

	awaiting := models.TaskStatusAwaitingInput
	session := "sess-1"
	updated, err := UpdateTask(ctx, db, task.ID, TaskUpdate{Status: &awaiting, SessionID: &session})
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusAwaitingInput, updated.Status)
	assert.Equal(t, "sess-1", updated.SessionID)

	events, err := ListEvents(ctx, db, p.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventKindTaskStatus, events[0].Kind)
}

func TestClaimDuePeriodicTasks_AdvancesNextRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	now := time.Now().UTC().Truncate(time.Microsecond)
	due := createPeriodicTask(t, db, p.ID, 60, now.Add(-5*time.Minute))
	createPeriodicTask(t, db, p.ID, 60, now.Add(5*time.Minute))

	claimed, err := ClaimDuePeriodicTasks(ctx, db, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)

	got, err := GetTask(ctx, db, due.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, now.Add(60*time.Minute).Equal(*got.NextRunAt))
	assert.True(t, now.Equal(*got.LastRunAt))

	again, err := ClaimDuePeriodicTasks(ctx, db, now)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestClaimDuePeriodicTasks_ConcurrentClaimsDoNotOverlap(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		createPeriodicTask(t, db, p.ID, 30, now.Add(-time.Minute))
	}

	var (
		mu    sync.Mutex
		seen  = map[string]int{}
		wg    sync.WaitGroup
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := ClaimDuePeriodicTasks(ctx, db, now)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, c := range claimed {
				seen[c.ID]++
				total++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}

func TestClaimDuePeriodicTasks_IgnoresNonRunning(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	now := time.Now().UTC()
	task := createPeriodicTask(t, db, p.ID, 60, now.Add(-time.Minute))
	completed := models.TaskStatusCompleted
	_, err := UpdateTask(ctx, db, task.ID, TaskUpdate{Status: &completed})
	require.NoError(t, err)

	claimed, err := ClaimDuePeriodicTasks(ctx, db, now)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestClaimStaleProactiveTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)
	now := time.Now().UTC()

	quiet, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "quiet", Type: models.TaskTypeProactive, Status: models.TaskStatusRunning})
	require.NoError(t, err)
	busy, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "busy", Type: models.TaskTypeProactive, Status: models.TaskStatusRunning})
	require.NoError(t, err)

	_, err = AppendMessage(ctx, db, quiet.ID, models.RoleAgent, "old update", nil)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE messages SET created_at = ? WHERE task_id = ?`, formatTime(now.Add(-2*time.Hour)), quiet.ID)
	require.NoError(t, err)
	_, err = AppendMessage(ctx, db, busy.ID, models.RoleAgent, "fresh update", nil)
	require.NoError(t, err)

	claimed, err := ClaimStaleProactiveTasks(ctx, db, now, time.Hour)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, quiet.ID, claimed[0].ID)

	// Claimed tasks are stamped and skipped until the window passes again.
	again, err := ClaimStaleProactiveTasks(ctx, db, now.Add(time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStopTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	task, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "stop me", Type: models.TaskTypeOneTime, Status: models.TaskStatusAwaitingInput})
	require.NoError(t, err)

	stopped, err := StopTask(ctx, db, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, stopped.Status)

	last, err := LatestMessage(ctx, db, task.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, models.RoleSystem, last.Role)

	_, err = StopTask(ctx, db, task.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}
