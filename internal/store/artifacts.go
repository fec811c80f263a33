package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dotcommander/pawject/internal/models"
)

var validArtifactTypes = map[string]bool{
	"report":   true,
	"document": true,
	"data":     true,
	"code":     true,
	"other":    true,
}

// CreateArtifact persists an artifact produced by a task turn. taskID may be empty
// for project-level artifacts. Unknown types are stored as "other".
func CreateArtifact(ctx context.Context, db *sql.DB, projectID, taskID string, a models.Artifact) (*models.OutputArtifact, error) {
	var out *models.OutputArtifact
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		created, err := CreateArtifactTx(ctx, tx, projectID, taskID, a)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateArtifactTx is the in-transaction variant of CreateArtifact.
func CreateArtifactTx(ctx context.Context, tx *sql.Tx, projectID, taskID string, a models.Artifact) (*models.OutputArtifact, error) {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return nil, errors.New("artifact name is required")
	}
	artifactType := strings.ToLower(strings.TrimSpace(a.Type))
	if !validArtifactTypes[artifactType] {
		artifactType = "other"
	}

	out := &models.OutputArtifact{
		ID:        generateArtifactID(),
		ProjectID: projectID,
		TaskID:    taskID,
		Name:      name,
		Type:      artifactType,
		Content:   a.Content,
		Summary:   a.Summary,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO artifacts (id, project_id, task_id, name, type, content, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, out.ID, out.ProjectID, nullableString(out.TaskID), out.Name, out.Type, out.Content, out.Summary, formatTime(out.CreatedAt)); err != nil {
		return nil, fmt.Errorf("failed to insert artifact: %w", err)
	}

	if _, err := InsertEventTx(ctx, tx, models.EventKindArtifactAdded, projectID, taskID,
		fmt.Sprintf("Artifact added: %s (%s)", out.Name, out.Type), ""); err != nil {
		return nil, fmt.Errorf("failed to append event: %w", err)
	}
	return out, nil
}

// ListArtifacts returns artifacts newest first with the producing task's name.
// Empty projectID or taskID leave that filter off.
func ListArtifacts(ctx context.Context, db *sql.DB, projectID, taskID string) ([]*models.OutputArtifact, error) {
	query := `
		SELECT a.id, a.project_id, a.task_id, t.name, a.name, a.type, a.content, a.summary, a.created_at
		FROM artifacts a LEFT JOIN tasks t ON t.id = a.task_id
		WHERE (? = '' OR a.project_id = ?) AND (? = '' OR a.task_id = ?)
		ORDER BY a.created_at DESC, a.id DESC`

	rows, err := db.QueryContext(ctx, query, projectID, projectID, taskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.OutputArtifact
	for rows.Next() {
		var (
			a         models.OutputArtifact
			task      sql.NullString
			taskName  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &task, &taskName, &a.Name, &a.Type, &a.Content, &a.Summary, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		a.TaskID = scanNullString(task)
		a.TaskName = scanNullString(taskName)
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// DeleteArtifact removes an artifact and records the deletion.
func DeleteArtifact(ctx context.Context, db *sql.DB, artifactID string) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		var projectID, name string
		var taskID sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT project_id, task_id, name FROM artifacts WHERE id = ?`, artifactID).
			Scan(&projectID, &taskID, &name)
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Entity: "artifact", ID: artifactID}
		}
		if err != nil {
			return fmt.Errorf("failed to get artifact: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, artifactID); err != nil {
			return fmt.Errorf("failed to delete artifact: %w", err)
		}
		_, err = InsertEventTx(ctx, tx, models.EventKindArtifactDeleted, projectID, scanNullString(taskID),
			fmt.Sprintf("Artifact deleted: %s", name), "")
		return err
	})
}
