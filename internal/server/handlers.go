package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
	"github.com/dotcommander/pawject/internal/supervisor"
)

func (s *Server) handleTick(c *gin.Context) {
	summary, err := s.Scheduler.Tick(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, summary)
}

func requireQuery(c *gin.Context, key string) (string, bool) {
	v := c.Query(key)
	if v == "" {
		badRequest(c, fmt.Errorf("query parameter %s is required", key))
		return "", false
	}
	return v, true
}

func (s *Server) handleAgentStatus(c *gin.Context) {
	projectID, present := requireQuery(c, "projectId")
	if !present {
		return
	}
	st, err := s.Supervisor.Status(c.Request.Context(), projectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

type agentControlRequest struct {
	ProjectID string `json:"projectId" binding:"required"`
	Action    string `json:"action"`
	PID       int    `json:"pid"`
	SessionID string `json:"sessionId"`
}

// handleAgentControl starts or stops a project agent. A body without an
// action is the agent registering itself.
func (s *Server) handleAgentControl(c *gin.Context) {
	var req agentControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	switch req.Action {
	case "start":
		reg, err := s.Supervisor.Start(ctx, req.ProjectID)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, reg)
	case "stop":
		if err := s.Supervisor.Stop(ctx, req.ProjectID); err != nil {
			s.fail(c, err)
			return
		}
		st, err := s.Supervisor.Status(ctx, req.ProjectID)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, st)
	case "":
		reg, err := s.Supervisor.Register(ctx, req.ProjectID, req.PID, req.SessionID)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusOK, reg)
	default:
		badRequest(c, fmt.Errorf("unknown action %q (valid: start, stop)", req.Action))
	}
}

type heartbeatRequest struct {
	ProjectID string             `json:"projectId" binding:"required"`
	Status    models.AgentStatus `json:"status"`
	PID       int                `json:"pid"`
	SessionID string             `json:"sessionId"`
}

func (s *Server) handleAgentHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		badRequest(c, fmt.Errorf("invalid agent status %q", req.Status))
		return
	}
	reg, err := s.Supervisor.Heartbeat(c.Request.Context(), req.ProjectID, supervisor.HeartbeatUpdate{
		Status:    req.Status,
		PID:       req.PID,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, reg)
}

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := store.ListProjects(c.Request.Context(), s.Service.DB)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, projects)
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Instruction string `json:"instruction"`
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	project, err := s.Service.CreateProject(c.Request.Context(), req.Name, req.Description, req.Instruction)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, project)
}

type addContextRequest struct {
	Name    string                 `json:"name" binding:"required"`
	Type    models.ContextItemType `json:"type" binding:"required"`
	Content string                 `json:"content"`
}

func (s *Server) handleAddContext(c *gin.Context) {
	var req addContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := s.Service.AddContext(c.Request.Context(), c.Param("id"), req.Name, req.Type, req.Content)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, item)
}

func (s *Server) handleListDrafts(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := store.GetProject(c.Request.Context(), s.Service.DB, projectID); err != nil {
		s.fail(c, err)
		return
	}
	files, err := s.Service.Workspace.ListDraftFiles(projectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, files)
}

func (s *Server) handleHistory(c *gin.Context) {
	projectID := c.Param("id")
	if _, err := store.GetProject(c.Request.Context(), s.Service.DB, projectID); err != nil {
		s.fail(c, err)
		return
	}
	entries, err := s.Service.Workspace.Log(c.Request.Context(), projectID, queryInt(c, "limit", 20))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, entries)
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := store.ListTasks(c.Request.Context(), s.Service.DB, c.Query("projectId"), models.TaskStatus(c.Query("status")))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, tasks)
}

type createTaskRequest struct {
	ProjectID       string `json:"projectId" binding:"required"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	IntervalMinutes int    `json:"intervalMinutes"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := s.Service.CreateTask(c.Request.Context(), actions.CreateTaskInput{
		ProjectID:       req.ProjectID,
		Name:            req.Name,
		Description:     req.Description,
		Type:            req.Type,
		IntervalMinutes: req.IntervalMinutes,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, task)
}

func (s *Server) handleListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	taskID := c.Param("id")
	if _, err := store.GetTask(ctx, s.Service.DB, taskID); err != nil {
		s.fail(c, err)
		return
	}
	msgs, err := store.ListMessages(ctx, s.Service.DB, taskID, queryInt(c, "limit", 0))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, msgs)
}

type taskControlRequest struct {
	Action string `json:"action" binding:"required"`
}

func (s *Server) handleTaskControl(c *gin.Context) {
	var req taskControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Action != "stop" {
		badRequest(c, fmt.Errorf("unknown action %q (valid: stop)", req.Action))
		return
	}
	task, err := s.Service.StopTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, task)
}

func (s *Server) handleAskUserQueries(c *gin.Context) {
	projectID, present := requireQuery(c, "projectId")
	if !present {
		return
	}
	queries, err := s.Service.ListAskUserQueries(c.Request.Context(), projectID)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, queries)
}

func (s *Server) handleEvents(c *gin.Context) {
	events, err := store.ListEvents(c.Request.Context(), s.Service.DB, c.Query("projectId"), queryInt(c, "limit", 50))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, events)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
