package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dotcommander/pawject/internal/agent"
	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/output"
	"github.com/dotcommander/pawject/internal/store"
)

var errClientGone = errors.New("client disconnected")

type sendMessageRequest struct {
	TaskID  string `json:"taskId" binding:"required"`
	Content string `json:"content"`
	// Stream defaults to true. false queues the turn and returns 202.
	Stream *bool `json:"stream"`
}

type deltaPayload struct {
	Text string `json:"text"`
}

type toolPayload struct {
	Name  string `json:"name"`
	Input any    `json:"input,omitempty"`
}

type donePayload struct {
	MessageID        int64                    `json:"messageId"`
	TaskStatus       models.TaskStatus        `json:"taskStatus"`
	TaskStatusChange models.TaskStatus        `json:"taskStatusChange,omitempty"`
	AskUser          *models.AskUser          `json:"askUser,omitempty"`
	Artifacts        []*models.OutputArtifact `json:"artifacts,omitempty"`
}

// handleSendMessage runs a user turn and streams it as server-sent events:
// delta and tool while the agent works, then done or error.
func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		badRequest(c, errors.New("content is required"))
		return
	}
	ctx := c.Request.Context()

	if req.Stream != nil && !*req.Stream {
		msg, err := s.Service.SendMessageAsync(ctx, req.TaskID, req.Content)
		if err != nil {
			s.fail(c, err)
			return
		}
		ok(c, http.StatusAccepted, msg)
		return
	}

	// Unknown tasks are rejected before the response commits to a stream.
	if _, err := store.GetTask(ctx, s.Service.DB, req.TaskID); err != nil {
		s.fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	handler := func(ev claude.Event) error {
		if ctx.Err() != nil {
			return errClientGone
		}
		switch ev.Type {
		case claude.EventTextDelta:
			c.SSEvent("delta", deltaPayload{Text: ev.Text})
		case claude.EventToolUse:
			tp := toolPayload{Name: ev.ToolName}
			if len(ev.ToolInput) > 0 {
				tp.Input = ev.ToolInput
			}
			c.SSEvent("tool", tp)
		default:
			return nil
		}
		c.Writer.Flush()
		return nil
	}

	rec, err := s.Service.SendMessage(ctx, req.TaskID, req.Content, agent.ModeStreaming, handler)
	if err != nil {
		s.Logger.Warn("streamed turn failed", "task_id", req.TaskID, "error", err, "request_id", c.GetString(requestIDKey))
		c.SSEvent("error", output.Error(err))
		c.Writer.Flush()
		return
	}

	done := donePayload{
		MessageID:        rec.Message.ID,
		TaskStatus:       rec.Task.Status,
		TaskStatusChange: rec.Response.TaskStatusChange,
		AskUser:          rec.Response.AskUser,
		Artifacts:        rec.Artifacts,
	}
	c.SSEvent("done", done)
	c.Writer.Flush()
}
