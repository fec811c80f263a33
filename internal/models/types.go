package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskType selects the role prompt and scheduling behavior of a task.
type TaskType string

const (
	TaskTypeOneTime   TaskType = "one_time"
	TaskTypePeriodic  TaskType = "periodic"
	TaskTypeProactive TaskType = "proactive"

	// taskTypeLongTerm is the persisted name proactive tasks had before the rename.
	taskTypeLongTerm TaskType = "long_term"
)

// ParseTaskType validates s and folds the legacy long_term spelling into proactive.
func ParseTaskType(s string) (TaskType, error) {
	switch t := TaskType(s); t {
	case TaskTypeOneTime, TaskTypePeriodic, TaskTypeProactive:
		return t, nil
	case taskTypeLongTerm:
		return TaskTypeProactive, nil
	}
	return "", fmt.Errorf("invalid task type %q (valid: one_time, periodic, proactive)", s)
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending       TaskStatus = "pending"
	TaskStatusRunning       TaskStatus = "running"
	TaskStatusCompleted     TaskStatus = "completed"
	TaskStatusAwaitingInput TaskStatus = "awaiting_input"
)

// ParseTaskStatus validates a status string.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch st := TaskStatus(s); st {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusAwaitingInput:
		return st, nil
	}
	return "", fmt.Errorf("invalid task status %q (valid: pending, running, completed, awaiting_input)", s)
}

// Stoppable reports whether a user stop request may complete a task in this state.
func (s TaskStatus) Stoppable() bool {
	switch s {
	case TaskStatusRunning, TaskStatusAwaitingInput, TaskStatusPending:
		return true
	}
	return false
}

// ScheduleConfig holds the cadence of a periodic task.
type ScheduleConfig struct {
	IntervalMinutes int `json:"intervalMinutes"`
}

// Interval returns the configured cadence, or zero when unset.
func (c *ScheduleConfig) Interval() time.Duration {
	if c == nil || c.IntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Task is a unit of agent work owned by a project.
type Task struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        TaskType        `json:"type"`
	Status      TaskStatus      `json:"status"`
	SessionID   string          `json:"session_id,omitempty"`
	Schedule    *ScheduleConfig `json:"schedule,omitempty"`
	NextRunAt   *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt   *time.Time      `json:"last_run_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Project groups tasks around a shared instruction and context.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Instruction string    `json:"instruction"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContextItemType classifies shared project context.
type ContextItemType string

const (
	ContextItemFile     ContextItemType = "file"
	ContextItemURL      ContextItemType = "url"
	ContextItemTextNote ContextItemType = "text_note"
)

// ContextItem is a piece of shared context made available to every task turn.
type ContextItem struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Name      string          `json:"name"`
	Type      ContextItemType `json:"type"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProjectWithContext is a project plus its shared context items.
type ProjectWithContext struct {
	Project
	ContextItems []ContextItem `json:"context_items"`
}

// MessageRole identifies the author of a task message.
type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleAgent  MessageRole = "agent"
	RoleSystem MessageRole = "system"
)

// Message is one entry in a task conversation.
type Message struct {
	ID        int64            `json:"id"`
	TaskID    string           `json:"task_id"`
	Role      MessageRole      `json:"role"`
	Content   string           `json:"content"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// MessageMetadata is stored as JSON next to a message.
type MessageMetadata struct {
	AskUser   *AskUser   `json:"askUser,omitempty"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	CostUSD   *float64   `json:"costUsd,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Error     bool       `json:"error,omitempty"`
}

// AskUserKind distinguishes a request for more information from a request for approval.
type AskUserKind string

const (
	AskUserContext AskUserKind = "CONTEXT"
	AskUserConfirm AskUserKind = "CONFIRM"
)

// AskUser is a question the agent needs answered before it can continue.
type AskUser struct {
	Question string      `json:"question"`
	Kind     AskUserKind `json:"kind"`
}

// Artifact is a named content blob declared by the agent in its answer.
type Artifact struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Summary string `json:"summary"`
}

// OutputArtifact is a persisted artifact.
type OutputArtifact struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	TaskID    string    `json:"task_id,omitempty"`
	TaskName  string    `json:"task_name,omitempty"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCall records one tool invocation observed during a turn.
type ToolCall struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
	At    time.Time       `json:"at"`
}

// AgentResponse is the normalized outcome of one task turn.
type AgentResponse struct {
	Content   string     `json:"content"`
	AskUser   *AskUser   `json:"askUser,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
	// TaskStatusChange is empty when the turn requested no change.
	TaskStatusChange TaskStatus `json:"taskStatusChange,omitempty"`
	SessionID        string     `json:"sessionId,omitempty"`
	CostUSD          *float64   `json:"costUsd,omitempty"`
	ToolCalls        []ToolCall `json:"toolCalls,omitempty"`
}

// AgentStatus is the lifecycle state of a supervised project agent.
type AgentStatus string

const (
	AgentStatusNotStarted AgentStatus = "not_started"
	AgentStatusRunning    AgentStatus = "running"
	AgentStatusStopped    AgentStatus = "stopped"
	AgentStatusCrashed    AgentStatus = "crashed"
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusNotStarted, AgentStatusRunning, AgentStatusStopped, AgentStatusCrashed:
		return true
	}
	return false
}

// AgentRegistration is the persisted record of a project agent.
type AgentRegistration struct {
	ProjectID     string      `json:"project_id"`
	PID           int         `json:"pid,omitempty"`
	SessionID     string      `json:"session_id,omitempty"`
	Status        AgentStatus `json:"status"`
	LastHeartbeat *time.Time  `json:"last_heartbeat,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// AskUserQuery is an open question surfaced from a task awaiting input.
type AskUserQuery struct {
	TaskID   string      `json:"task_id"`
	TaskName string      `json:"task_name"`
	Question string      `json:"question"`
	Kind     AskUserKind `json:"kind"`
	AskedAt  time.Time   `json:"asked_at"`
}

// UserTodoType mirrors the two ask-user directive kinds.
type UserTodoType string

const (
	UserTodoContext UserTodoType = "ASK_USER_CONTEXT"
	UserTodoConfirm UserTodoType = "ASK_USER_CONFIRM"
)

// Valid reports whether t is a known todo type.
func (t UserTodoType) Valid() bool {
	return t == UserTodoContext || t == UserTodoConfirm
}

// UserTodoPriority orders todos for the user.
type UserTodoPriority string

const (
	PriorityHigh   UserTodoPriority = "high"
	PriorityMedium UserTodoPriority = "medium"
	PriorityLow    UserTodoPriority = "low"
)

// ParsePriority validates p; empty means medium.
func ParsePriority(p string) (UserTodoPriority, error) {
	switch v := UserTodoPriority(p); v {
	case "":
		return PriorityMedium, nil
	case PriorityHigh, PriorityMedium, PriorityLow:
		return v, nil
	}
	return "", fmt.Errorf("invalid priority %q (valid: high, medium, low)", p)
}

// UserTodo is a question the project agent collected from a task's todo.md
// and filed for the user.
type UserTodo struct {
	ID         string           `json:"id"`
	ProjectID  string           `json:"project_id"`
	TaskID     string           `json:"task_id"`
	Type       UserTodoType     `json:"type"`
	Query      string           `json:"query"`
	Suggestion string           `json:"suggestion,omitempty"`
	Priority   UserTodoPriority `json:"priority"`
	Resolved   bool             `json:"resolved"`
	Response   string           `json:"response,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}

// Event is an append-only audit log entry.
type Event struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	ProjectID string          `json:"project_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
