package models

// Event kinds written to the audit log by the store and action layers.
const (
	EventKindProjectCreated  = "project_created"
	EventKindContextAdded    = "context_added"
	EventKindContextRemoved  = "context_removed"
	EventKindTaskCreated     = "task_created"
	EventKindTaskStatus      = "task_status"
	EventKindTaskStopped     = "task_stopped"
	EventKindArtifactAdded   = "artifact_added"
	EventKindArtifactDeleted = "artifact_deleted"
	EventKindUserTodoAdded   = "user_todo_added"
	EventKindUserTodoDone    = "user_todo_resolved"
	EventKindTurnCompleted   = "turn_completed"
	EventKindTurnFailed      = "turn_failed"
	EventKindPeriodicRun     = "periodic_run"
	EventKindProgressUpdate  = "progress_update"
	EventKindWorkspaceCommit = "workspace_commit"
)

// Project agent lifecycle kinds.
const (
	EventKindAgentStarted    = "agent_started"
	EventKindAgentStopped    = "agent_stopped"
	EventKindAgentRegistered = "agent_registered"
	EventKindAgentCrashed    = "agent_crashed"
	EventKindAgentRestarted  = "agent_restarted"
)
