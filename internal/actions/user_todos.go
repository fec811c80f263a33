package actions

import (
	"context"
	"strings"

	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
)

// UserTodoInput are the fields the project agent supplies when filing a todo.
type UserTodoInput struct {
	ProjectID  string
	TaskID     string
	Type       string
	Query      string
	Suggestion string
	Priority   string
}

// CreateUserTodo validates and files a todo for the user.
func (s *Service) CreateUserTodo(ctx context.Context, in UserTodoInput) (*models.UserTodo, error) {
	switch {
	case in.ProjectID == "":
		return nil, invalid("projectId", "projectId is required")
	case in.TaskID == "":
		return nil, invalid("taskId", "taskId is required")
	case strings.TrimSpace(in.Query) == "":
		return nil, invalid("query", "query is required")
	}
	todoType := models.UserTodoType(in.Type)
	if !todoType.Valid() {
		return nil, invalid("type", "type must be %s or %s", models.UserTodoContext, models.UserTodoConfirm)
	}
	priority, err := models.ParsePriority(in.Priority)
	if err != nil {
		return nil, invalid("priority", "%s", err.Error())
	}

	return store.CreateUserTodo(ctx, s.DB, store.CreateUserTodoParams{
		ProjectID:  in.ProjectID,
		TaskID:     in.TaskID,
		Type:       todoType,
		Query:      in.Query,
		Suggestion: in.Suggestion,
		Priority:   priority,
	})
}

// ListUserTodos lists a project's todos; resolved narrows by state when set.
func (s *Service) ListUserTodos(ctx context.Context, projectID string, resolved *bool) ([]*models.UserTodo, error) {
	if _, err := store.GetProject(ctx, s.DB, projectID); err != nil {
		return nil, err
	}
	return store.ListUserTodos(ctx, s.DB, projectID, resolved)
}

// ResolveUserTodo records the user's answer to a todo.
func (s *Service) ResolveUserTodo(ctx context.Context, todoID, response string) (*models.UserTodo, error) {
	if todoID == "" {
		return nil, invalid("id", "id is required")
	}
	return store.ResolveUserTodo(ctx, s.DB, todoID, response)
}
