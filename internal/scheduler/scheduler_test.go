package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/agent"
	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
)

type call struct {
	taskID  string
	message string
}

type fakeTurns struct {
	mu      sync.Mutex
	calls   []call
	fail    map[string]bool
	started chan struct{}
	block   chan struct{}
}

func (f *fakeTurns) RunTurn(_ context.Context, taskID, message string, _ agent.Mode, _ claude.Handler, _ bool) (*actions.TurnRecord, error) {
	if f.block != nil {
		f.started <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{taskID: taskID, message: message})
	if f.fail[taskID] {
		return nil, errors.New("turn failed")
	}
	return &actions.TurnRecord{}, nil
}

var tickTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, turns TurnRunner) (*Scheduler, *sql.DB, string) {
	t.Helper()
	db, err := store.InitDBWithPath(filepath.Join(t.TempDir(), "pawject.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	project, err := store.CreateProject(context.Background(), db, "Market watch", "", "")
	require.NoError(t, err)

	s := New(db, turns, nil, nil)
	s.Now = func() time.Time { return tickTime }
	return s, db, project.ID
}

func createTask(t *testing.T, db *sql.DB, projectID string, typ models.TaskType, status models.TaskStatus, next *time.Time) *models.Task {
	t.Helper()
	p := store.CreateTaskParams{ProjectID: projectID, Name: string(typ) + " task", Type: typ, Status: status, NextRunAt: next}
	if typ == models.TaskTypePeriodic {
		p.Schedule = &models.ScheduleConfig{IntervalMinutes: 60}
	}
	task, err := store.CreateTask(context.Background(), db, p)
	require.NoError(t, err)
	return task
}

func TestTick_NothingDue(t *testing.T) {
	turns := &fakeTurns{}
	s, db, projectID := setup(t, turns)
	future := tickTime.Add(time.Hour)
	createTask(t, db, projectID, models.TaskTypePeriodic, models.TaskStatusRunning, &future)

	summary, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
	assert.Empty(t, turns.calls)
}

func TestTick_RunsDuePeriodicAndAdvancesSchedule(t *testing.T) {
	turns := &fakeTurns{}
	s, db, projectID := setup(t, turns)
	past := tickTime.Add(-time.Minute)
	due := createTask(t, db, projectID, models.TaskTypePeriodic, models.TaskStatusRunning, &past)
	createTask(t, db, projectID, models.TaskTypePeriodic, models.TaskStatusCompleted, &past)

	summary, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PeriodicRan)
	require.Len(t, turns.calls, 1)
	assert.Equal(t, call{taskID: due.ID, message: agent.PeriodicTriggerMessage}, turns.calls[0])

	got, err := store.GetTask(context.Background(), db, due.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(tickTime.Add(time.Hour)))
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(tickTime))

	// The same instant is no longer due.
	summary, err = s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PeriodicRan)
}

func TestTick_ProgressUpdateForQuietProactive(t *testing.T) {
	turns := &fakeTurns{}
	s, db, projectID := setup(t, turns)
	quiet := createTask(t, db, projectID, models.TaskTypeProactive, models.TaskStatusRunning, nil)

	// A task with a fresh message is not stale. Messages are stamped with the
	// wall clock, so move the tick clock close to it.
	busy := createTask(t, db, projectID, models.TaskTypeProactive, models.TaskStatusRunning, nil)
	_, err := store.AppendMessage(context.Background(), db, busy.ID, models.RoleAgent, "fresh", nil)
	require.NoError(t, err)
	s.Now = time.Now

	summary, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProgressUpdates)
	require.Len(t, turns.calls, 1)
	assert.Equal(t, call{taskID: quiet.ID, message: agent.ProgressUpdateMessage}, turns.calls[0])
}

func TestTick_FailedTurnNotCounted(t *testing.T) {
	s, db, projectID := setup(t, nil)
	past := tickTime.Add(-time.Minute)
	a := createTask(t, db, projectID, models.TaskTypePeriodic, models.TaskStatusRunning, &past)
	createTask(t, db, projectID, models.TaskTypePeriodic, models.TaskStatusRunning, &past)
	s.Turns = &fakeTurns{fail: map[string]bool{a.ID: true}}

	summary, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PeriodicRan)
}

func TestTick_OverlappingTickSkipped(t *testing.T) {
	turns := &fakeTurns{started: make(chan struct{}, 1), block: make(chan struct{})}
	s, db, projectID := setup(t, turns)
	past := tickTime.Add(-time.Minute)
	createTask(t, db, projectID, models.TaskTypePeriodic, models.TaskStatusRunning, &past)

	first := make(chan Summary, 1)
	go func() {
		summary, _ := s.Tick(context.Background())
		first <- summary
	}()

	select {
	case <-turns.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick never started its turn")
	}

	summary, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)

	close(turns.block)
	assert.Equal(t, 1, (<-first).PeriodicRan)
}
