package actions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dotcommander/pawject/internal/claude"
	"github.com/dotcommander/pawject/internal/models"
	"github.com/dotcommander/pawject/internal/store"
)

// TurnRecord is what RecordTurn persisted.
type TurnRecord struct {
	Message   *models.Message          `json:"message"`
	Task      *models.Task             `json:"task"`
	Artifacts []*models.OutputArtifact `json:"artifacts,omitempty"`
	Response  *models.AgentResponse    `json:"response"`
}

// turnStatus applies the status policy after a successful turn: an explicit
// change from an ask-user directive wins, and an awaiting task that got its
// answer returns to running. ok is false when the status is unchanged.
func turnStatus(task *models.Task, resp *models.AgentResponse, userTurn bool) (models.TaskStatus, bool) {
	switch {
	case resp.TaskStatusChange != "":
		return resp.TaskStatusChange, resp.TaskStatusChange != task.Status
	case userTurn && task.Status == models.TaskStatusAwaitingInput:
		return models.TaskStatusRunning, true
	}
	return "", false
}

// RecordTurn appends the agent message, persists artifacts and the session id,
// and applies the status policy in one transaction.
func RecordTurn(ctx context.Context, db *sql.DB, taskID string, resp *models.AgentResponse, userTurn bool) (*TurnRecord, error) {
	rec := &TurnRecord{Response: resp}
	err := store.Transact(ctx, db, func(tx *sql.Tx) error {
		// Reset on retry.
		rec.Artifacts = nil

		task, err := store.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}

		meta := &models.MessageMetadata{
			AskUser:   resp.AskUser,
			ToolCalls: resp.ToolCalls,
			CostUSD:   resp.CostUSD,
			SessionID: resp.SessionID,
		}
		rec.Message, err = store.AppendMessageTx(ctx, tx, taskID, models.RoleAgent, resp.Content, meta)
		if err != nil {
			return err
		}

		for _, a := range resp.Artifacts {
			if strings.TrimSpace(a.Name) == "" {
				continue
			}
			out, err := store.CreateArtifactTx(ctx, tx, task.ProjectID, taskID, a)
			if err != nil {
				return err
			}
			rec.Artifacts = append(rec.Artifacts, out)
		}

		var u store.TaskUpdate
		if resp.SessionID != "" {
			u.SessionID = &resp.SessionID
		}
		if status, ok := turnStatus(task, resp, userTurn); ok {
			u.Status = &status
		}
		rec.Task, err = store.UpdateTaskTx(ctx, tx, taskID, u)
		if err != nil {
			return err
		}

		metadata, _ := json.Marshal(map[string]any{
			"message_id": rec.Message.ID,
			"session_id": resp.SessionID,
			"artifacts":  len(rec.Artifacts),
			"ask_user":   resp.AskUser != nil,
		})
		_, err = store.InsertEventTx(ctx, tx, models.EventKindTurnCompleted, task.ProjectID, taskID, "Agent turn completed", string(metadata))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordTurnFailure appends a system error message. one_time tasks are forced
// to completed; periodic and proactive tasks keep their status.
func RecordTurnFailure(ctx context.Context, db *sql.DB, taskID string, turnErr error) (*models.Task, error) {
	var task *models.Task
	err := store.Transact(ctx, db, func(tx *sql.Tx) error {
		current, err := store.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return err
		}

		content := fmt.Sprintf("Agent turn failed: %v", turnErr)
		var u store.TaskUpdate
		if current.Type == models.TaskTypeOneTime && current.Status != models.TaskStatusCompleted {
			completed := models.TaskStatusCompleted
			u.Status = &completed
			content += "\nThe task was marked completed."
		}
		if _, err := store.AppendMessageTx(ctx, tx, taskID, models.RoleSystem, content, &models.MessageMetadata{Error: true}); err != nil {
			return err
		}
		task, err = store.UpdateTaskTx(ctx, tx, taskID, u)
		if err != nil {
			return err
		}

		metadata, _ := json.Marshal(map[string]string{"kind": string(claude.KindOf(turnErr))})
		_, err = store.InsertEventTx(ctx, tx, models.EventKindTurnFailed, current.ProjectID, taskID, truncate(content, store.MaxEventMessageLength), string(metadata))
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
