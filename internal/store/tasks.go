package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotcommander/pawject/internal/models"
)

// CreateTaskParams are the inputs to CreateTask. Status and NextRunAt are
// decided by the caller; the store only persists them.
type CreateTaskParams struct {
	ProjectID   string
	Name        string
	Description string
	Type        models.TaskType
	Status      models.TaskStatus
	Schedule    *models.ScheduleConfig
	NextRunAt   *time.Time
}

// CreateTask inserts a task and its task_created event atomically.
func CreateTask(ctx context.Context, db *sql.DB, p CreateTaskParams) (*models.Task, error) {
	var task *models.Task
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		created, err := CreateTaskTx(ctx, tx, p)
		if err != nil {
			return err
		}
		task = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// CreateTaskTx inserts and returns a task inside an existing transaction.
func CreateTaskTx(ctx context.Context, tx *sql.Tx, p CreateTaskParams) (*models.Task, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, errors.New("task name is required")
	}
	if p.Status == "" {
		p.Status = models.TaskStatusPending
	}
	if _, err := getProject(ctx, tx, p.ProjectID); err != nil {
		return nil, err
	}

	var schedule any
	if p.Schedule != nil {
		b, err := json.Marshal(p.Schedule)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schedule: %w", err)
		}
		schedule = string(b)
	}

	taskID := generateTaskID()
	now := formatTime(time.Now())
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, name, description, type, status, schedule_config, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, taskID, p.ProjectID, p.Name, p.Description, string(p.Type), string(p.Status), schedule, nullableTime(p.NextRunAt), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	if _, err := InsertEventTx(ctx, tx, models.EventKindTaskCreated, p.ProjectID, taskID,
		fmt.Sprintf("Task created: %s (%s)", p.Name, p.Type), ""); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}

	return getTaskByQuerier(ctx, tx, taskID)
}

// GetTask retrieves a task by ID
func GetTask(ctx context.Context, db *sql.DB, taskID string) (*models.Task, error) {
	return getTaskByQuerier(ctx, db, taskID)
}

// GetTaskTx retrieves a task inside an existing transaction.
func GetTaskTx(ctx context.Context, tx *sql.Tx, taskID string) (*models.Task, error) {
	return getTaskByQuerier(ctx, tx, taskID)
}

func getTaskByQuerier(ctx context.Context, q Querier, taskID string) (*models.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	task, err := scanTaskRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "task", ID: taskID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// ListTasks returns a project's tasks, most recently updated first.
// An empty status returns every status.
func ListTasks(ctx context.Context, db *sql.DB, projectID string, status models.TaskStatus) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return scanTaskRows(rows)
}

// TaskUpdate lists the fields UpdateTask may change. Nil fields are left untouched.
type TaskUpdate struct {
	Status         *models.TaskStatus
	SessionID      *string
	NextRunAt      *time.Time
	ClearNextRunAt bool
	LastRunAt      *time.Time
}

// UpdateTask applies u to a task. A status change also appends a task_status event.
func UpdateTask(ctx context.Context, db *sql.DB, taskID string, u TaskUpdate) (*models.Task, error) {
	var task *models.Task
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		updated, err := UpdateTaskTx(ctx, tx, taskID, u)
		if err != nil {
			return err
		}
		task = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskTx is the in-transaction variant of UpdateTask.
func UpdateTaskTx(ctx context.Context, tx *sql.Tx, taskID string, u TaskUpdate) (*models.Task, error) {
	current, err := getTaskByQuerier(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}

	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.SessionID != nil {
		sets = append(sets, "session_id = ?")
		args = append(args, nullableString(*u.SessionID))
	}
	switch {
	case u.ClearNextRunAt:
		sets = append(sets, "next_run_at = NULL")
	case u.NextRunAt != nil:
		sets = append(sets, "next_run_at = ?")
		args = append(args, formatTime(*u.NextRunAt))
	}
	if u.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, formatTime(*u.LastRunAt))
	}

	args = append(args, taskID)
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if u.Status != nil && *u.Status != current.Status {
		if _, err := InsertEventTx(ctx, tx, models.EventKindTaskStatus, current.ProjectID, taskID,
			fmt.Sprintf("Status changed: %s -> %s", current.Status, *u.Status), ""); err != nil {
			return nil, fmt.Errorf("failed to append event: %w", err)
		}
	}

	return getTaskByQuerier(ctx, tx, taskID)
}

// FindDueTasks returns tasks of the given type and status whose next_run_at is at or before now.
func FindDueTasks(ctx context.Context, db *sql.DB, taskType models.TaskType, status models.TaskStatus, now time.Time) ([]*models.Task, error) {
	return findDueTasks(ctx, db, taskType, status, now)
}

func findDueTasks(ctx context.Context, q Querier, taskType models.TaskType, status models.TaskStatus, now time.Time) ([]*models.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE type = ? AND status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC, id ASC
	`, string(taskType), string(status), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}
	return scanTaskRows(rows)
}

// ClaimDuePeriodicTasks selects running periodic tasks with next_run_at <= now and,
// in the same transaction, advances next_run_at by the task interval and stamps
// last_run_at. A concurrent tick sees the advanced next_run_at and skips the task.
// Tasks without a usable interval are claimed once and left unscheduled.
func ClaimDuePeriodicTasks(ctx context.Context, db *sql.DB, now time.Time) ([]*models.Task, error) {
	var claimed []*models.Task
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		claimed = nil

		due, err := findDueTasks(ctx, tx, models.TaskTypePeriodic, models.TaskStatusRunning, now)
		if err != nil {
			return err
		}

		stamp := formatTime(now)
		for _, t := range due {
			var next *time.Time
			if interval := t.Schedule.Interval(); interval > 0 {
				n := now.Add(interval)
				next = &n
			}

			res, err := tx.ExecContext(ctx, `
				UPDATE tasks SET next_run_at = ?, last_run_at = ?, updated_at = ?
				WHERE id = ? AND next_run_at = ?
			`, nullableTime(next), stamp, stamp, t.ID, formatTime(*t.NextRunAt))
			if err != nil {
				return fmt.Errorf("failed to advance task %s: %w", t.ID, err)
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				continue
			}

			ran := now
			t.NextRunAt = next
			t.LastRunAt = &ran
			claimed = append(claimed, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimStaleProactiveTasks selects running proactive tasks with no message newer
// than now-staleAfter and, in the same transaction, stamps last_run_at = now so
// a second tick during the progress-update turn does not pick them up again.
func ClaimStaleProactiveTasks(ctx context.Context, db *sql.DB, now time.Time, staleAfter time.Duration) ([]*models.Task, error) {
	cutoff := formatTime(now.Add(-staleAfter))
	stamp := formatTime(now)

	var claimed []*models.Task
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		claimed = nil

		rows, err := tx.QueryContext(ctx, `
			SELECT `+taskColumns+` FROM tasks t
			WHERE t.type IN ('proactive', 'long_term') AND t.status = ?
			  AND (t.last_run_at IS NULL OR t.last_run_at <= ?)
			  AND NOT EXISTS (
			      SELECT 1 FROM messages m WHERE m.task_id = t.id AND m.created_at > ?
			  )
			ORDER BY t.id ASC
		`, string(models.TaskStatusRunning), cutoff, cutoff)
		if err != nil {
			return fmt.Errorf("failed to query stale proactive tasks: %w", err)
		}
		stale, err := scanTaskRows(rows)
		if err != nil {
			return err
		}

		for _, t := range stale {
			res, err := tx.ExecContext(ctx, `
				UPDATE tasks SET last_run_at = ?
				WHERE id = ? AND (last_run_at IS NULL OR last_run_at <= ?)
			`, stamp, t.ID, cutoff)
			if err != nil {
				return fmt.Errorf("failed to claim task %s: %w", t.ID, err)
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				continue
			}
			ran := now
			t.LastRunAt = &ran
			claimed = append(claimed, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// StopTask marks a running, awaiting or pending task completed and records a system message.
func StopTask(ctx context.Context, db *sql.DB, taskID string) (*models.Task, error) {
	var task *models.Task
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		current, err := getTaskByQuerier(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !current.Status.Stoppable() {
			return &InvalidTransitionError{TaskID: taskID, From: current.Status, To: models.TaskStatusCompleted}
		}

		completed := models.TaskStatusCompleted
		task, err = UpdateTaskTx(ctx, tx, taskID, TaskUpdate{Status: &completed})
		if err != nil {
			return err
		}
		if _, err := AppendMessageTx(ctx, tx, taskID, models.RoleSystem, "Task stopped and marked as completed.", nil); err != nil {
			return err
		}
		_, err = InsertEventTx(ctx, tx, models.EventKindTaskStopped, current.ProjectID, taskID, "Task stopped by user", "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}
