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

// Event payload size constraints enforced by ValidateEventPayload.
const (
	MaxEventKindLength     = 128
	MaxEventMessageLength  = 4096
	MaxEventMetadataLength = 16384
)

// ValidateEventPayload enforces event payload constraints for durability and safety.
func ValidateEventPayload(kind, message, metadata string) error {
	kind = strings.TrimSpace(kind)
	message = strings.TrimSpace(message)

	if kind == "" {
		return errors.New("event kind is required")
	}
	if len(kind) > MaxEventKindLength {
		return fmt.Errorf("event kind exceeds max length (%d)", MaxEventKindLength)
	}
	if message == "" {
		return errors.New("event message is required")
	}
	if len(message) > MaxEventMessageLength {
		return fmt.Errorf("event message exceeds max length (%d)", MaxEventMessageLength)
	}
	if metadata != "" {
		if len(metadata) > MaxEventMetadataLength {
			return fmt.Errorf("event metadata exceeds max length (%d)", MaxEventMetadataLength)
		}
		if !json.Valid([]byte(metadata)) {
			return errors.New("event metadata must be valid JSON")
		}
	}

	return nil
}

// InsertEventTx appends an audit event inside an existing transaction.
// When projectID is empty and taskID is set, the project is resolved from the task.
//
//nolint:revive // argument-limit: event params are all required
func InsertEventTx(ctx context.Context, tx *sql.Tx, kind, projectID, taskID, message, metadata string) (int64, error) {
	return insertEvent(ctx, tx, kind, projectID, taskID, message, metadata)
}

// InsertEvent appends an audit event outside any transaction.
//
//nolint:revive // argument-limit: event params are all required
func InsertEvent(ctx context.Context, db *sql.DB, kind, projectID, taskID, message, metadata string) (int64, error) {
	var id int64
	err := RetryWithBackoff(func() error {
		var err error
		id, err = insertEvent(ctx, db, kind, projectID, taskID, message, metadata)
		return err
	})
	return id, err
}

//nolint:revive // argument-limit: event params are all required
func insertEvent(ctx context.Context, q Querier, kind, projectID, taskID, message, metadata string) (int64, error) {
	if len(message) > MaxEventMessageLength {
		message = message[:MaxEventMessageLength]
	}
	if err := ValidateEventPayload(kind, message, metadata); err != nil {
		return 0, err
	}

	if projectID == "" && taskID != "" {
		var resolved sql.NullString
		err := q.QueryRowContext(ctx, `SELECT project_id FROM tasks WHERE id = ?`, taskID).Scan(&resolved)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("failed to resolve event project from task: %w", err)
		}
		projectID = scanNullString(resolved)
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO events (kind, project_id, task_id, message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, kind, nullableString(projectID), nullableString(taskID), message, nullableString(metadata), formatTime(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("failed to insert event: %w", err)
	}

	eventID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return eventID, nil
}

// ListEvents returns the most recent events for a project (all projects when empty), newest first.
func ListEvents(ctx context.Context, db *sql.DB, projectID string, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, kind, project_id, task_id, message, metadata, created_at FROM events`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.Event
	for rows.Next() {
		var (
			e              models.Event
			projID, taskID sql.NullString
			metadata       sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &projID, &taskID, &e.Message, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.ProjectID = scanNullString(projID)
		e.TaskID = scanNullString(taskID)
		if metadata.Valid {
			e.Metadata = json.RawMessage(metadata.String)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
