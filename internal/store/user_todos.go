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

// CreateUserTodoParams are the fields of a new user todo.
type CreateUserTodoParams struct {
	ProjectID  string
	TaskID     string
	Type       models.UserTodoType
	Query      string
	Suggestion string
	Priority   models.UserTodoPriority
}

const userTodoColumns = `id, project_id, task_id, type, query, suggestion, priority,
	resolved, response, created_at, resolved_at`

// CreateUserTodo files a todo for the user. The task must belong to the project.
func CreateUserTodo(ctx context.Context, db *sql.DB, p CreateUserTodoParams) (*models.UserTodo, error) {
	if !p.Type.Valid() {
		return nil, fmt.Errorf("invalid todo type %q", p.Type)
	}
	if strings.TrimSpace(p.Query) == "" {
		return nil, errors.New("todo query is required")
	}
	if p.Priority == "" {
		p.Priority = models.PriorityMedium
	}

	todo := &models.UserTodo{
		ID:         generateUserTodoID(),
		ProjectID:  p.ProjectID,
		TaskID:     p.TaskID,
		Type:       p.Type,
		Query:      strings.TrimSpace(p.Query),
		Suggestion: strings.TrimSpace(p.Suggestion),
		Priority:   p.Priority,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	err := Transact(ctx, db, func(tx *sql.Tx) error {
		task, err := getTaskByQuerier(ctx, tx, p.TaskID)
		if err != nil {
			return err
		}
		if task.ProjectID != p.ProjectID {
			return &NotFoundError{Entity: "task", ID: p.TaskID}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_todos (id, project_id, task_id, type, query, suggestion, priority, resolved, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
		`, todo.ID, todo.ProjectID, todo.TaskID, string(todo.Type), todo.Query, nullableString(todo.Suggestion),
			string(todo.Priority), formatTime(todo.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert user todo: %w", err)
		}
		_, err = InsertEventTx(ctx, tx, models.EventKindUserTodoAdded, p.ProjectID, p.TaskID,
			fmt.Sprintf("User todo added (%s): %s", todo.Priority, truncateForEvent(todo.Query)), "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// ListUserTodos returns a project's todos, open ones first and newest first
// within each group. A non-nil resolved narrows to that state.
func ListUserTodos(ctx context.Context, db *sql.DB, projectID string, resolved *bool) ([]*models.UserTodo, error) {
	query := `SELECT ` + userTodoColumns + ` FROM user_todos WHERE project_id = ?`
	args := []any{projectID}
	if resolved != nil {
		query += ` AND resolved = ?`
		args = append(args, *resolved)
	}
	query += ` ORDER BY resolved ASC, created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list user todos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.UserTodo
	for rows.Next() {
		todo, err := scanUserTodo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, todo)
	}
	return out, rows.Err()
}

// ResolveUserTodo marks a todo answered. Resolving again replaces the response.
func ResolveUserTodo(ctx context.Context, db *sql.DB, todoID, response string) (*models.UserTodo, error) {
	var out *models.UserTodo
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		now := time.Now().UTC().Truncate(time.Microsecond)
		res, err := tx.ExecContext(ctx, `
			UPDATE user_todos SET resolved = 1, response = ?, resolved_at = ? WHERE id = ?
		`, nullableString(strings.TrimSpace(response)), formatTime(now), todoID)
		if err != nil {
			return fmt.Errorf("failed to resolve user todo: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &NotFoundError{Entity: "user-todo", ID: todoID}
		}

		out, err = scanUserTodo(tx.QueryRowContext(ctx, `SELECT `+userTodoColumns+` FROM user_todos WHERE id = ?`, todoID))
		if err != nil {
			return err
		}
		_, err = InsertEventTx(ctx, tx, models.EventKindUserTodoDone, out.ProjectID, out.TaskID,
			fmt.Sprintf("User todo resolved: %s", truncateForEvent(out.Query)), "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanUserTodo(row rowScanner) (*models.UserTodo, error) {
	var (
		t          models.UserTodo
		todoType   string
		priority   string
		suggestion sql.NullString
		response   sql.NullString
		createdAt  string
		resolvedAt sql.NullString
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.TaskID, &todoType, &t.Query, &suggestion, &priority,
		&t.Resolved, &response, &createdAt, &resolvedAt); err != nil {
		return nil, fmt.Errorf("failed to scan user todo: %w", err)
	}
	t.Type = models.UserTodoType(todoType)
	t.Priority = models.UserTodoPriority(priority)
	t.Suggestion = scanNullString(suggestion)
	t.Response = scanNullString(response)

	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.ResolvedAt, err = scanNullTime(resolvedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// truncateForEvent keeps event messages within MaxEventMessageLength.
func truncateForEvent(s string) string {
	const limit = 200
	if r := []rune(s); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
