package store

import (
	"errors"
	"fmt"

	"github.com/dotcommander/pawject/internal/models"
)

// RecoverableError is an alias for models.RecoverableError.
type RecoverableError = models.RecoverableError

var (
	// ErrNotFound is matched by every NotFoundError.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidTransition is matched by every InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// NotFoundError reports a missing row with the entity and key that were looked up.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string     { return fmt.Sprintf("%s not found: %s", e.Entity, e.ID) }
func (e *NotFoundError) ErrorCode() string { return "NOT_FOUND" }
func (e *NotFoundError) Context() map[string]string {
	return map[string]string{
		"entity": e.Entity,
		"id":     e.ID,
	}
}
func (e *NotFoundError) SuggestedAction() string {
	if e.Entity == "agent" {
		return fmt.Sprintf("pawject agent start --project %s", e.ID)
	}
	return fmt.Sprintf("pawject %s list", e.Entity)
}
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidTransitionError reports a status change the current state does not allow.
type InvalidTransitionError struct {
	TaskID string
	From   models.TaskStatus
	To     models.TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s cannot move from %s to %s", e.TaskID, e.From, e.To)
}
func (e *InvalidTransitionError) ErrorCode() string { return "INVALID_TRANSITION" }
func (e *InvalidTransitionError) Context() map[string]string {
	return map[string]string{
		"task_id": e.TaskID,
		"from":    string(e.From),
		"to":      string(e.To),
	}
}
func (e *InvalidTransitionError) SuggestedAction() string {
	return fmt.Sprintf("pawject task show %s", e.TaskID)
}
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
