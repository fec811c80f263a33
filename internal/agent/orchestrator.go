// Package agent runs one conversational turn of a task against the claude CLI.
package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/markers"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
	"github.com/dotcommander/pawject/internal/workspace"
)

// Mode selects how the claude CLI is invoked for a turn.
type Mode string

const (
	ModeStreaming Mode = "streaming"
	ModeOneShot   Mode = "one_shot"
)

// Runner is the subset of *claude.Runner the orchestrator needs.
type Runner interface {
	RunOneShot(ctx context.Context, req claude.Request) (*claude.Result, error)
	Stream(ctx context.Context, req claude.Request, handler claude.Handler) (*claude.Result, error)
}

// TurnRequest identifies the task and the prompt of one turn.
type TurnRequest struct {
	TaskID  string
	Message string
	// ProjectScoped runs the turn from the project root with a single combined
	// CLAUDE.md instead of the task directory.
	ProjectScoped bool
}

// Orchestrator prepares the workspace, runs claude and normalizes the answer.
type Orchestrator struct {
	DB        *sql.DB
	Runner    Runner
	Workspace *workspace.Workspace
	APIURL    string
	Logger    *slog.Logger
	Now       func() time.Time
}

// NewOrchestrator wires an Orchestrator with a wall clock.
func NewOrchestrator(db *sql.DB, runner Runner, ws *workspace.Workspace, apiURL string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		DB:        db,
		Runner:    runner,
		Workspace: ws,
		APIURL:    apiURL,
		Logger:    logger.With("component", "orchestrator"),
		Now:       time.Now,
	}
}

// ExecuteTurn runs one turn. In streaming mode handler (if non-nil) sees every
// event in order; an error from handler aborts the turn. Runner errors are returned as-is.
func (o *Orchestrator) ExecuteTurn(ctx context.Context, req TurnRequest, mode Mode, handler claude.Handler) (*models.AgentResponse, error) {
	task, err := store.GetTask(ctx, o.DB, req.TaskID)
	if err != nil {
		return nil, err
	}
	pc, err := store.GetProjectWithContext(ctx, o.DB, task.ProjectID)
	if err != nil {
		return nil, err
	}
	agentMessages, err := store.CountMessages(ctx, o.DB, task.ID, models.RoleAgent)
	if err != nil {
		return nil, err
	}

	dir, err := o.prepare(pc, task, req.ProjectScoped)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare workspace: %w", err)
	}

	creq := claude.Request{
		Prompt:    req.Message,
		Dir:       dir,
		AddDirs:   o.Workspace.AddDirs(task.ProjectID),
		Continue:  agentMessages > 0,
		ProjectID: task.ProjectID,
		TaskID:    task.ID,
	}

	logger := o.Logger.With("task_id", task.ID, "mode", string(mode), "continue", creq.Continue)
	logger.Info("turn started")
	started := o.Now()

	var (
		result    *claude.Result
		toolCalls []models.ToolCall
	)
	switch mode {
	case ModeOneShot:
		result, err = o.Runner.RunOneShot(ctx, creq)
	case ModeStreaming:
		result, err = o.Runner.Stream(ctx, creq, func(ev claude.Event) error {
			if ev.Type == claude.EventToolUse {
				toolCalls = append(toolCalls, models.ToolCall{Name: ev.ToolName, Input: ev.ToolInput, At: o.Now().UTC()})
			}
			if handler != nil {
				return handler(ev)
			}
			return nil
		})
	default:
		return nil, fmt.Errorf("unknown turn mode %q", mode)
	}
	if err != nil {
		logger.Warn("turn failed", "error", err, "kind", string(claude.KindOf(err)))
		return nil, err
	}
	if result == nil {
		return nil, errors.New("runner returned no result")
	}

	resp := buildResponse(result, toolCalls)
	logger.Info("turn completed",
		"duration", o.Now().Sub(started).String(),
		"session_id", resp.SessionID,
		"ask_user", resp.AskUser != nil,
		"artifacts", len(resp.Artifacts),
	)
	return resp, nil
}

// prepare materializes the role documents and returns the turn's working directory.
func (o *Orchestrator) prepare(pc *models.ProjectWithContext, task *models.Task, projectScoped bool) (string, error) {
	if _, err := o.Workspace.CreateWorkspace(pc.ID); err != nil {
		return "", err
	}
	if projectScoped {
		if err := o.Workspace.WriteFile(pc.ID, "CLAUDE.md", CombinedDocument(pc, task)); err != nil {
			return "", err
		}
		return o.Workspace.ProjectDir(pc.ID), nil
	}

	dir, err := o.Workspace.CreateTaskDir(pc.ID, task.ID)
	if err != nil {
		return "", err
	}
	if err := o.Workspace.WriteFile(pc.ID, "CLAUDE.md", ProjectDocument(pc, o.APIURL)); err != nil {
		return "", err
	}
	if err := o.Workspace.WriteFile(pc.ID, path.Join("tasks", task.ID, "CLAUDE.md"), TaskDocument(task)); err != nil {
		return "", err
	}
	return dir, nil
}

func buildResponse(result *claude.Result, toolCalls []models.ToolCall) *models.AgentResponse {
	extracted := markers.Extract(result.Result)
	resp := &models.AgentResponse{
		Content:   extracted.Content,
		AskUser:   extracted.AskUser,
		Artifacts: extracted.Artifacts,
		SessionID: result.SessionID,
		ToolCalls: toolCalls,
	}
	if result.TotalCostUSD > 0 {
		cost := result.TotalCostUSD
		resp.CostUSD = &cost
	}
	if resp.AskUser != nil {
		resp.TaskStatusChange = models.TaskStatusAwaitingInput
	}
	return resp
}
