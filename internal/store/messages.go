package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dotcommander/pawject/internal/models"
)

// AppendMessage adds a message to a task conversation.
func AppendMessage(ctx context.Context, db *sql.DB, taskID string, role models.MessageRole, content string, meta *models.MessageMetadata) (*models.Message, error) {
	var msg *models.Message
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		m, err := AppendMessageTx(ctx, tx, taskID, role, content, meta)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// AppendMessageTx is the in-transaction variant of AppendMessage.
func AppendMessageTx(ctx context.Context, tx *sql.Tx, taskID string, role models.MessageRole, content string, meta *models.MessageMetadata) (*models.Message, error) {
	switch role {
	case models.RoleUser, models.RoleAgent, models.RoleSystem:
	default:
		return nil, fmt.Errorf("invalid message role %q", role)
	}

	var metadata any
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message metadata: %w", err)
		}
		metadata = string(b)
	}

	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (task_id, role, content, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, taskID, string(role), content, metadata, formatTime(createdAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &models.Message{
		ID:        id,
		TaskID:    taskID,
		Role:      role,
		Content:   content,
		Metadata:  meta,
		CreatedAt: createdAt,
	}, nil
}

const messageColumns = `id, task_id, role, content, metadata, created_at`

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m         models.Message
		role      string
		metadata  sql.NullString
		createdAt string
	)
	if err := row.Scan(&m.ID, &m.TaskID, &role, &m.Content, &metadata, &createdAt); err != nil {
		return nil, err
	}
	m.Role = models.MessageRole(role)
	if metadata.Valid && metadata.String != "" {
		var meta models.MessageMetadata
		if err := json.Unmarshal([]byte(metadata.String), &meta); err == nil {
			m.Metadata = &meta
		}
	}
	var err error
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a task conversation in chronological order.
// A positive limit keeps only the most recent messages.
func ListMessages(ctx context.Context, db *sql.DB, taskID string, limit int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE task_id = ? ORDER BY id ASC`
	args := []any{taskID}
	if limit > 0 {
		query = `SELECT * FROM (SELECT ` + messageColumns + ` FROM messages WHERE task_id = ? ORDER BY id DESC LIMIT ?) ORDER BY id ASC`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestMessage returns the newest message of a task, or nil when the task has none.
func LatestMessage(ctx context.Context, db *sql.DB, taskID string) (*models.Message, error) {
	row := db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE task_id = ? ORDER BY id DESC LIMIT 1`, taskID)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest message: %w", err)
	}
	return m, nil
}

// CountMessages counts a task's messages by role.
func CountMessages(ctx context.Context, db *sql.DB, taskID string, role models.MessageRole) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE task_id = ? AND role = ?`, taskID, string(role)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// ListAskUserQueries returns the open question of every awaiting_input task in
// a project, taken from the latest agent message that carried one.
func ListAskUserQueries(ctx context.Context, db *sql.DB, projectID string) ([]models.AskUserQuery, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT t.id, t.name, m.metadata, m.created_at
		FROM tasks t
		JOIN messages m ON m.id = (
			SELECT id FROM messages
			WHERE task_id = t.id AND role = 'agent' AND metadata LIKE '%"askUser"%'
			ORDER BY id DESC LIMIT 1
		)
		WHERE t.project_id = ? AND t.status = ?
		ORDER BY m.id DESC
	`, projectID, string(models.TaskStatusAwaitingInput))
	if err != nil {
		return nil, fmt.Errorf("failed to query ask-user queries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.AskUserQuery
	for rows.Next() {
		var (
			q         models.AskUserQuery
			metadata  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&q.TaskID, &q.TaskName, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ask-user query: %w", err)
		}
		var meta models.MessageMetadata
		if !metadata.Valid || json.Unmarshal([]byte(metadata.String), &meta) != nil || meta.AskUser == nil {
			continue
		}
		q.Question = meta.AskUser.Question
		q.Kind = meta.AskUser.Kind
		if q.AskedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
