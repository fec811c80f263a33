package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/pawject/internal/actions"
	"github.com/dotcommander/pawject/internal/store"
)

func (s *Server) handleRemoveContext(c *gin.Context) {
	item, err := s.Service.RemoveContext(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, item)
}

// handleListOutputs lists artifacts, optionally filtered by projectId and taskId.
func (s *Server) handleListOutputs(c *gin.Context) {
	artifacts, err := store.ListArtifacts(c.Request.Context(), s.Service.DB, c.Query("projectId"), c.Query("taskId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, artifacts)
}

func (s *Server) handleDeleteOutput(c *gin.Context) {
	id := c.Param("id")
	if err := store.DeleteArtifact(c.Request.Context(), s.Service.DB, id); err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (s *Server) handleListUserTodos(c *gin.Context) {
	projectID, present := requireQuery(c, "projectId")
	if !present {
		return
	}
	var resolved *bool
	if v := c.Query("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, errors.New("resolved must be true or false"))
			return
		}
		resolved = &b
	}
	todos, err := s.Service.ListUserTodos(c.Request.Context(), projectID, resolved)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, todos)
}

type createUserTodoRequest struct {
	ProjectID  string `json:"projectId"`
	TaskID     string `json:"taskId"`
	Type       string `json:"type"`
	Query      string `json:"query"`
	Suggestion string `json:"suggestion"`
	Priority   string `json:"priority"`
}

func (s *Server) handleCreateUserTodo(c *gin.Context) {
	var req createUserTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	todo, err := s.Service.CreateUserTodo(c.Request.Context(), actions.UserTodoInput(req))
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, todo)
}

type resolveUserTodoRequest struct {
	ID       string `json:"id" binding:"required"`
	Response string `json:"response"`
}

func (s *Server) handleResolveUserTodo(c *gin.Context) {
	var req resolveUserTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	todo, err := s.Service.ResolveUserTodo(c.Request.Context(), req.ID, req.Response)
	if err != nil {
		s.fail(c, err)
		return
	}
	ok(c, http.StatusOK, todo)
}
