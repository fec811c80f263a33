package actions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dotcommander/pawject/internal/agent"
	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/metrics"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
	"github.com/dotcommander/pawject/internal/worker"
	"github.com/dotcommander/pawject/internal/workspace"
)

// Turner runs one agent turn. *agent.Orchestrator implements it.
type Turner interface {
	ExecuteTurn(ctx context.Context, req agent.TurnRequest, mode agent.Mode, handler claude.Handler) (*models.AgentResponse, error)
}

// Service composes the store, the orchestrator and the background pool into
// the user-facing operations shared by the HTTP API and the CLI.
type Service struct {
	DB        *sql.DB
	Turns     Turner
	Workspace *workspace.Workspace
	Pool      *worker.Pool
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewService wires a Service and routes pool failures to RecordTurnFailure.
func NewService(db *sql.DB, turns Turner, ws *workspace.Workspace, pool *worker.Pool, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		DB:        db,
		Turns:     turns,
		Workspace: ws,
		Pool:      pool,
		Metrics:   m,
		Logger:    logger.With("component", "actions"),
		Now:       time.Now,
	}
	if pool != nil {
		pool.OnError = s.onJobError
	}
	return s
}

func (s *Service) onJobError(ctx context.Context, job worker.Job, err error) {
	if job.TaskID == "" {
		return
	}
	// RunTurn already recorded turn failures; only unrecorded errors land here.
	var recorded *recordedError
	if errors.As(err, &recorded) {
		return
	}
	if _, rerr := RecordTurnFailure(ctx, s.DB, job.TaskID, err); rerr != nil {
		s.Logger.Error("failed to record job failure", "task_id", job.TaskID, "error", rerr)
	}
}

// recordedError marks a turn error that RecordTurnFailure already persisted.
type recordedError struct{ err error }

func (e *recordedError) Error() string { return e.err.Error() }
func (e *recordedError) Unwrap() error { return e.err }

// RunTurn executes one turn for taskID and records its outcome. A failed turn
// is recorded with RecordTurnFailure and its error returned.
func (s *Service) RunTurn(ctx context.Context, taskID, message string, mode agent.Mode, handler claude.Handler, userTurn bool) (*TurnRecord, error) {
	started := s.Now()
	resp, err := s.Turns.ExecuteTurn(ctx, agent.TurnRequest{TaskID: taskID, Message: message}, mode, handler)
	s.Metrics.ObserveTurn(string(mode), err, s.Now().Sub(started))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Record even when the request context is gone.
		if _, rerr := RecordTurnFailure(context.WithoutCancel(ctx), s.DB, taskID, err); rerr != nil {
			s.Logger.Error("failed to record turn failure", "task_id", taskID, "error", rerr)
			return nil, err
		}
		return nil, &recordedError{err: err}
	}

	rec, err := RecordTurn(context.WithoutCancel(ctx), s.DB, taskID, resp, userTurn)
	if err != nil {
		return nil, fmt.Errorf("failed to record turn: %w", err)
	}
	s.snapshot(ctx, rec.Task, "Turn: "+rec.Task.Name)
	return rec, nil
}

// snapshot commits the project workspace. Failures are logged only.
func (s *Service) snapshot(ctx context.Context, task *models.Task, message string) {
	if s.Workspace == nil {
		return
	}
	committed, err := s.Workspace.Commit(ctx, task.ProjectID, message)
	if err != nil {
		s.Logger.Debug("workspace snapshot skipped", "project_id", task.ProjectID, "error", err)
		return
	}
	if committed {
		if _, err := store.InsertEvent(ctx, s.DB, models.EventKindWorkspaceCommit, task.ProjectID, task.ID, message, ""); err != nil {
			s.Logger.Warn("failed to append commit event", "error", err)
		}
	}
}

// CreateProject persists a project and lays out its workspace.
func (s *Service) CreateProject(ctx context.Context, name, description, instruction string) (*models.Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalid("name", "project name is required")
	}
	project, err := store.CreateProject(ctx, s.DB, name, description, instruction)
	if err != nil {
		return nil, err
	}
	if s.Workspace != nil {
		if _, err := s.Workspace.CreateWorkspace(project.ID); err != nil {
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
		if err := s.Workspace.InitRepo(ctx, project.ID); err != nil {
			s.Logger.Warn("workspace git init failed", "project_id", project.ID, "error", err)
		}
	}
	return project, nil
}

// AddContext stores a shared context item. File items are also written under context/.
func (s *Service) AddContext(ctx context.Context, projectID, name string, itemType models.ContextItemType, content string) (*models.ContextItem, error) {
	switch itemType {
	case models.ContextItemFile, models.ContextItemURL, models.ContextItemTextNote:
	default:
		return nil, invalid("type", "invalid context type %q (valid: file, url, text_note)", itemType)
	}
	item, err := store.AddContextItem(ctx, s.DB, projectID, name, itemType, content)
	if err != nil {
		return nil, err
	}
	if itemType == models.ContextItemFile && s.Workspace != nil {
		if err := s.Workspace.WriteFile(projectID, contextFilePath(name), content); err != nil {
			return nil, fmt.Errorf("failed to write context file: %w", err)
		}
	}
	return item, nil
}

// contextFilePath is where a file context item is mirrored in the workspace.
func contextFilePath(name string) string {
	return path.Join("context", filepath.Base(name))
}

// RemoveContext deletes a context item. File items also lose their copy
// under context/; a copy that is already gone is not an error.
func (s *Service) RemoveContext(ctx context.Context, itemID string) (*models.ContextItem, error) {
	item, err := store.DeleteContextItem(ctx, s.DB, itemID)
	if err != nil {
		return nil, err
	}
	if item.Type == models.ContextItemFile && s.Workspace != nil {
		if err := s.Workspace.DeleteFile(item.ProjectID, contextFilePath(item.Name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.Logger.Warn("failed to remove context file", "project_id", item.ProjectID, "name", item.Name, "error", err)
		}
	}
	return item, nil
}

// CreateTaskInput are the user-supplied fields of a new task.
type CreateTaskInput struct {
	ProjectID       string
	Name            string
	Description     string
	Type            string
	IntervalMinutes int
}

func initialPrompt(t models.TaskType, name, description string) string {
	var msg string
	switch t {
	case models.TaskTypePeriodic:
		msg = fmt.Sprintf("The task %q has been created. Confirm its configuration and get ready for the first run.", name)
	case models.TaskTypeProactive:
		msg = fmt.Sprintf("Start tracking the goal %q and give an initial analysis.", name)
	default:
		msg = fmt.Sprintf("Start working on the task %q.", name)
	}
	if d := strings.TrimSpace(description); d != "" && t != models.TaskTypePeriodic {
		msg += " " + d
	}
	return msg
}

// CreateTask validates the input, persists the task, prepares its directory
// and schedules the initial turn on the worker pool.
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	taskType, err := models.ParseTaskType(in.Type)
	if err != nil {
		return nil, invalid("type", "%s", err)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name", "task name is required")
	}

	p := store.CreateTaskParams{
		ProjectID:   in.ProjectID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Type:        taskType,
		Status:      models.TaskStatusRunning,
	}
	if taskType == models.TaskTypePeriodic {
		if in.IntervalMinutes <= 0 {
			return nil, invalid("intervalMinutes", "periodic tasks need a positive interval")
		}
		p.Schedule = &models.ScheduleConfig{IntervalMinutes: in.IntervalMinutes}
		next := s.Now().Add(p.Schedule.Interval())
		p.NextRunAt = &next
	}

	task, err := store.CreateTask(ctx, s.DB, p)
	if err != nil {
		return nil, err
	}
	if s.Workspace != nil {
		if _, err := s.Workspace.CreateTaskDir(task.ProjectID, task.ID); err != nil {
			return nil, fmt.Errorf("failed to create task directory: %w", err)
		}
	}

	if _, err := store.AppendMessage(ctx, s.DB, task.ID, models.RoleSystem,
		fmt.Sprintf("Task created: %s (%s)", task.Name, task.Type), nil); err != nil {
		return nil, err
	}

	prompt := initialPrompt(taskType, task.Name, task.Description)
	if _, err := store.AppendMessage(ctx, s.DB, task.ID, models.RoleUser, prompt, nil); err != nil {
		return nil, err
	}
	s.schedule(task.ID, "initial-turn", prompt, false)
	return task, nil
}

// SendMessage appends a user message and runs a turn synchronously.
func (s *Service) SendMessage(ctx context.Context, taskID, content string, mode agent.Mode, handler claude.Handler) (*TurnRecord, error) {
	if _, err := s.appendUserMessage(ctx, taskID, content); err != nil {
		return nil, err
	}
	return s.RunTurn(ctx, taskID, content, mode, handler, true)
}

// SendMessageAsync appends a user message and runs the turn on the worker pool.
func (s *Service) SendMessageAsync(ctx context.Context, taskID, content string) (*models.Message, error) {
	msg, err := s.appendUserMessage(ctx, taskID, content)
	if err != nil {
		return nil, err
	}
	s.schedule(taskID, "user-turn", content, true)
	return msg, nil
}

func (s *Service) appendUserMessage(ctx context.Context, taskID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, invalid("content", "message content is required")
	}
	if _, err := store.GetTask(ctx, s.DB, taskID); err != nil {
		return nil, err
	}
	return store.AppendMessage(ctx, s.DB, taskID, models.RoleUser, content, nil)
}

func (s *Service) schedule(taskID, name, prompt string, userTurn bool) {
	if s.Pool == nil {
		return
	}
	s.Pool.Go(worker.Job{
		Name:   name,
		TaskID: taskID,
		Run: func(ctx context.Context) error {
			_, err := s.RunTurn(ctx, taskID, prompt, agent.ModeOneShot, nil, userTurn)
			return err
		},
	})
}

// StopTask completes a running, awaiting or pending task.
func (s *Service) StopTask(ctx context.Context, taskID string) (*models.Task, error) {
	return store.StopTask(ctx, s.DB, taskID)
}

// ListAskUserQueries returns the open questions of a project's awaiting tasks.
func (s *Service) ListAskUserQueries(ctx context.Context, projectID string) ([]models.AskUserQuery, error) {
	if _, err := store.GetProject(ctx, s.DB, projectID); err != nil {
		return nil, err
	}
	return store.ListAskUserQueries(ctx, s.DB, projectID)
}
