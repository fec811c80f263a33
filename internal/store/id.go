package store

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Entity id prefixes. Task and project ids double as workspace directory
// names, so ids never contain path separators.
const (
	projectIDPrefix  = "proj"
	taskIDPrefix     = "task"
	contextIDPrefix  = "ctx"
	artifactIDPrefix = "artifact"
	userTodoIDPrefix = "todo"
)

// newID returns prefix_<32 hex chars> from a UUIDv7, so ids of one kind sort
// by creation time. Falls back to a random v4 if the clock source fails.
func newID(prefix string) string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return prefix + "_" + hex.EncodeToString(u[:])
}

func generateProjectID() string  { return newID(projectIDPrefix) }
func generateTaskID() string     { return newID(taskIDPrefix) }
func generateContextID() string  { return newID(contextIDPrefix) }
func generateArtifactID() string { return newID(artifactIDPrefix) }
func generateUserTodoID() string { return newID(userTodoIDPrefix) }
