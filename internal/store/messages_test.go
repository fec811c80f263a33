package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/pawject/internal/models"
)

func TestAppendAndListMessages(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)
	task, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "chat", Type: models.TaskTypeOneTime, Status: models.TaskStatusRunning})
	require.NoError(t, err)

	latest, err := LatestMessage(ctx, db, task.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)

	cost := 0.12
	_, err = AppendMessage(ctx, db, task.ID, models.RoleUser, "hello", nil)
	require.NoError(t, err)
	_, err = AppendMessage(ctx, db, task.ID, models.RoleAgent, "hi", &models.MessageMetadata{CostUSD: &cost, SessionID: "s1"})
	require.NoError(t, err)
	_, err = AppendMessage(ctx, db, task.ID, models.RoleSystem, "note", nil)
	require.NoError(t, err)

	all, err := ListMessages(ctx, db, task.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "hello", all[0].Content)
	require.NotNil(t, all[1].Metadata)
	assert.Equal(t, "s1", all[1].Metadata.SessionID)

	tail, err := ListMessages(ctx, db, task.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "hi", tail[0].Content)
	assert.Equal(t, "note", tail[1].Content)

	n, err := CountMessages(ctx, db, task.ID, models.RoleAgent)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = AppendMessage(ctx, db, task.ID, models.MessageRole("robot"), "bad", nil)
	require.Error(t, err)
}

func TestListAskUserQueries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	waiting, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "needs input", Type: models.TaskTypeOneTime, Status: models.TaskStatusAwaitingInput})
	require.NoError(t, err)
	running, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "busy", Type: models.TaskTypeOneTime, Status: models.TaskStatusRunning})
	require.NoError(t, err)

	ask := &models.MessageMetadata{AskUser: &models.AskUser{Question: "which city?", Kind: models.AskUserContext}}
	_, err = AppendMessage(ctx, db, waiting.ID, models.RoleAgent, "Done.", ask)
	require.NoError(t, err)
	_, err = AppendMessage(ctx, db, running.ID, models.RoleAgent, "Working.", ask)
	require.NoError(t, err)

	queries, err := ListAskUserQueries(ctx, db, p.ID)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, waiting.ID, queries[0].TaskID)
	assert.Equal(t, "which city?", queries[0].Question)
	assert.Equal(t, models.AskUserContext, queries[0].Kind)
}

func TestCreateAndListArtifacts(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)
	task, err := CreateTask(ctx, db, CreateTaskParams{ProjectID: p.ID, Name: "report", Type: models.TaskTypeOneTime, Status: models.TaskStatusRunning})
	require.NoError(t, err)

	a, err := CreateArtifact(ctx, db, p.ID, task.ID, models.Artifact{Name: "Weekly", Type: "Report", Content: "# hi", Summary: "s"})
	require.NoError(t, err)
	assert.Equal(t, "report", a.Type)

	b, err := CreateArtifact(ctx, db, p.ID, "", models.Artifact{Name: "Blob", Type: "spreadsheet"})
	require.NoError(t, err)
	assert.Equal(t, "other", b.Type)

	all, err := ListArtifacts(ctx, db, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	forTask, err := ListArtifacts(ctx, db, p.ID, task.ID)
	require.NoError(t, err)
	require.Len(t, forTask, 1)
	assert.Equal(t, "Weekly", forTask[0].Name)
	assert.Equal(t, "report", forTask[0].TaskName)

	byTaskOnly, err := ListArtifacts(ctx, db, "", task.ID)
	require.NoError(t, err)
	assert.Len(t, byTaskOnly, 1)

	other := seedProject(t, db)
	_, err = CreateArtifact(ctx, db, other.ID, "", models.Artifact{Name: "Elsewhere", Type: "data"})
	require.NoError(t, err)
	everything, err := ListArtifacts(ctx, db, "", "")
	require.NoError(t, err)
	assert.Len(t, everything, 3)

	require.NoError(t, DeleteArtifact(ctx, db, b.ID))
	require.ErrorIs(t, DeleteArtifact(ctx, db, b.ID), ErrNotFound)
	all, err = ListArtifacts(ctx, db, p.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = CreateArtifact(ctx, db, p.ID, task.ID, models.Artifact{Name: "  "})
	require.Error(t, err)
}

func TestGetProjectWithContext(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	_, err := AddContextItem(ctx, db, p.ID, "brief", models.ContextItemTextNote, "focus on EU")
	require.NoError(t, err)
	_, err = AddContextItem(ctx, db, p.ID, "site", models.ContextItemURL, "https://example.com")
	require.NoError(t, err)
	_, err = AddContextItem(ctx, db, p.ID, "bad", models.ContextItemType("feishu_folder"), "x")
	require.Error(t, err)

	pc, err := GetProjectWithContext(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Be concise.", pc.Instruction)
	require.Len(t, pc.ContextItems, 2)
	assert.Equal(t, "brief", pc.ContextItems[0].Name)

	_, err = GetProjectWithContext(ctx, db, "proj_missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteContextItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db)

	item, err := AddContextItem(ctx, db, p.ID, "notes.md", models.ContextItemFile, "# notes")
	require.NoError(t, err)

	removed, err := DeleteContextItem(ctx, db, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", removed.Name)
	assert.Equal(t, models.ContextItemFile, removed.Type)

	pc, err := GetProjectWithContext(ctx, db, p.ID)
	require.NoError(t, err)
	assert.Empty(t, pc.ContextItems)

	_, err = DeleteContextItem(ctx, db, item.ID)
	require.ErrorIs(t, err, ErrNotFound)

	events, err := ListEvents(ctx, db, p.ID, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventKindContextRemoved, events[0].Kind)
}
