package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dotcommander/pawject/internal/models"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// scanNullString converts sql.NullString to string (empty if NULL)
func scanNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// scanNullTime converts a nullable text timestamp to *time.Time (nil if NULL)
func scanNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

const taskColumns = `id, project_id, name, description, type, status, session_id,
	schedule_config, next_run_at, last_run_at, created_at, updated_at`

// taskRowScanner encapsulates the common task row scanning logic.
type taskRowScanner struct {
	task      models.Task
	taskType  string
	status    string
	sessionID sql.NullString
	schedule  sql.NullString
	nextRunAt sql.NullString
	lastRunAt sql.NullString
	createdAt string
	updatedAt string
}

func (s *taskRowScanner) scan(row rowScanner) error {
	return row.Scan(
		&s.task.ID,
		&s.task.ProjectID,
		&s.task.Name,
		&s.task.Description,
		&s.taskType,
		&s.status,
		&s.sessionID,
		&s.schedule,
		&s.nextRunAt,
		&s.lastRunAt,
		&s.createdAt,
		&s.updatedAt,
	)
}

func (s *taskRowScanner) hydrate() error {
	taskType, err := models.ParseTaskType(s.taskType)
	if err != nil {
		return err
	}
	s.task.Type = taskType
	s.task.Status = models.TaskStatus(s.status)
	s.task.SessionID = scanNullString(s.sessionID)

	if s.schedule.Valid && s.schedule.String != "" {
		var cfg models.ScheduleConfig
		// A malformed schedule leaves the task unscheduled rather than unreadable.
		if json.Unmarshal([]byte(s.schedule.String), &cfg) == nil {
			s.task.Schedule = &cfg
		}
	}

	if s.task.NextRunAt, err = scanNullTime(s.nextRunAt); err != nil {
		return err
	}
	if s.task.LastRunAt, err = scanNullTime(s.lastRunAt); err != nil {
		return err
	}
	if s.task.CreatedAt, err = parseTime(s.createdAt); err != nil {
		return err
	}
	if s.task.UpdatedAt, err = parseTime(s.updatedAt); err != nil {
		return err
	}
	return nil
}

// scanTaskRow scans and hydrates a task from a single row.
func scanTaskRow(row rowScanner) (*models.Task, error) {
	scanner := &taskRowScanner{}
	if err := scanner.scan(row); err != nil {
		return nil, err
	}
	if err := scanner.hydrate(); err != nil {
		return nil, err
	}
	return &scanner.task, nil
}

// scanTaskRows drains rows into tasks and closes them.
func scanTaskRows(rows *sql.Rows) ([]*models.Task, error) {
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTaskRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
