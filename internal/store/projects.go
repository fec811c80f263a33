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

// CreateProject inserts a project and its project_created event atomically.
func CreateProject(ctx context.Context, db *sql.DB, name, description, instruction string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("project name is required")
	}

	project := &models.Project{
		ID:          generateProjectID(),
		Name:        name,
		Description: description,
		Instruction: instruction,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}

	err := Transact(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, name, description, instruction, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, project.ID, project.Name, project.Description, project.Instruction, formatTime(project.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert project: %w", err)
		}
		_, err := InsertEventTx(ctx, tx, models.EventKindProjectCreated, project.ID, "", fmt.Sprintf("Project created: %s", name), "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// GetProject loads a project by ID.
func GetProject(ctx context.Context, db *sql.DB, projectID string) (*models.Project, error) {
	return getProject(ctx, db, projectID)
}

func getProject(ctx context.Context, q Querier, projectID string) (*models.Project, error) {
	var (
		p         models.Project
		createdAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, description, instruction, created_at FROM projects WHERE id = ?
	`, projectID).Scan(&p.ID, &p.Name, &p.Description, &p.Instruction, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "project", ID: projectID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns every project, newest first.
func ListProjects(ctx context.Context, db *sql.DB) ([]*models.Project, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, instruction, created_at FROM projects ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*models.Project
	for rows.Next() {
		var (
			p         models.Project
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Instruction, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// AddContextItem attaches a shared context item to a project.
func AddContextItem(ctx context.Context, db *sql.DB, projectID, name string, itemType models.ContextItemType, content string) (*models.ContextItem, error) {
	switch itemType {
	case models.ContextItemFile, models.ContextItemURL, models.ContextItemTextNote:
	default:
		return nil, fmt.Errorf("invalid context type %q (valid: file, url, text_note)", itemType)
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("context name is required")
	}

	item := &models.ContextItem{
		ID:        generateContextID(),
		ProjectID: projectID,
		Name:      name,
		Type:      itemType,
		Content:   content,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	err := Transact(ctx, db, func(tx *sql.Tx) error {
		if _, err := getProject(ctx, tx, projectID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO context_items (id, project_id, name, type, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, item.ID, item.ProjectID, item.Name, string(item.Type), item.Content, formatTime(item.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert context item: %w", err)
		}
		_, err := InsertEventTx(ctx, tx, models.EventKindContextAdded, projectID, "", fmt.Sprintf("Context added: %s", name), "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteContextItem removes a shared context item and returns what was removed.
func DeleteContextItem(ctx context.Context, db *sql.DB, itemID string) (*models.ContextItem, error) {
	var item models.ContextItem
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		var itemType, createdAt string
		err := tx.QueryRowContext(ctx, `
			SELECT id, project_id, name, type, content, created_at FROM context_items WHERE id = ?
		`, itemID).Scan(&item.ID, &item.ProjectID, &item.Name, &itemType, &item.Content, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return &NotFoundError{Entity: "context", ID: itemID}
		}
		if err != nil {
			return fmt.Errorf("failed to get context item: %w", err)
		}
		item.Type = models.ContextItemType(itemType)
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM context_items WHERE id = ?`, itemID); err != nil {
			return fmt.Errorf("failed to delete context item: %w", err)
		}
		_, err = InsertEventTx(ctx, tx, models.EventKindContextRemoved, item.ProjectID, "", fmt.Sprintf("Context removed: %s", item.Name), "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetProjectWithContext loads a project together with its shared context items.
func GetProjectWithContext(ctx context.Context, db *sql.DB, projectID string) (*models.ProjectWithContext, error) {
	project, err := getProject(ctx, db, projectID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, project_id, name, type, content, created_at
		FROM context_items WHERE project_id = ? ORDER BY created_at ASC, id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query context items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := &models.ProjectWithContext{Project: *project}
	for rows.Next() {
		var (
			item      models.ContextItem
			itemType  string
			createdAt string
		)
		if err := rows.Scan(&item.ID, &item.ProjectID, &item.Name, &itemType, &item.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan context item: %w", err)
		}
		item.Type = models.ContextItemType(itemType)
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out.ContextItems = append(out.ContextItems, item)
	}
	return out, rows.Err()
}
