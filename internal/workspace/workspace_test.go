package workspace

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWorkspace_Idempotent(t *testing.T) {
	w := New(t.TempDir(), nil)

	first, err := w.CreateWorkspace("proj_1")
	require.NoError(t, err)
	second, err := w.CreateWorkspace("proj_1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for _, dir := range []string{w.ContextDir("proj_1"), w.DraftDir("proj_1")} {
		_, err := os.Stat(filepath.Join(dir, ".gitkeep"))
		require.NoError(t, err)
	}
}

func TestCreateTaskDir_IdempotentAndKeepsTodo(t *testing.T) {
	w := New(t.TempDir(), nil)

	dir, err := w.CreateTaskDir("proj_1", "task_1")
	require.NoError(t, err)
	assert.Equal(t, w.TaskDir("proj_1", "task_1"), dir)

	todo, ok, err := w.ReadTaskTodo("proj_1", "task_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, todo, "## ASK_USER Items")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "todo.md"), []byte("edited by agent"), 0o644))

	again, err := w.CreateTaskDir("proj_1", "task_1")
	require.NoError(t, err)
	assert.Equal(t, dir, again)

	todo, ok, err = w.ReadTaskTodo("proj_1", "task_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "edited by agent", todo)
}

func TestReadTaskTodo_Missing(t *testing.T) {
	w := New(t.TempDir(), nil)
	_, ok, err := w.ReadTaskTodo("proj_1", "task_x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteReadDelete(t *testing.T) {
	w := New(t.TempDir(), nil)

	require.NoError(t, w.WriteFile("proj_1", "draft/reports/week1.md", "# Week 1"))
	got, err := w.ReadFile("proj_1", "draft/reports/week1.md")
	require.NoError(t, err)
	assert.Equal(t, "# Week 1", got)

	require.NoError(t, w.WriteFile("proj_1", "draft/reports/week1.md", "# Week 1 v2"))
	got, err = w.ReadFile("proj_1", "draft/reports/week1.md")
	require.NoError(t, err)
	assert.Equal(t, "# Week 1 v2", got)

	require.NoError(t, w.DeleteFile("proj_1", "draft/reports/week1.md"))
	_, err = w.ReadFile("proj_1", "draft/reports/week1.md")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteFileIfMissing(t *testing.T) {
	w := New(t.TempDir(), nil)

	created, err := w.WriteFileIfMissing("proj_1", "tasks.md", "skeleton")
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, w.WriteFile("proj_1", "tasks.md", "agent edits"))

	created, err = w.WriteFileIfMissing("proj_1", "tasks.md", "skeleton")
	require.NoError(t, err)
	assert.False(t, created)

	got, err := w.ReadFile("proj_1", "tasks.md")
	require.NoError(t, err)
	assert.Equal(t, "agent edits", got)
}

func TestPathTraversalRejected(t *testing.T) {
	root := t.TempDir()
	w := New(filepath.Join(root, "ws"), nil)

	for _, rel := range []string{"../escape.txt", "draft/../../escape.txt", "..", "."} {
		err := w.WriteFile("proj_1", rel, "x")
		require.ErrorIs(t, err, ErrPathTraversal, rel)
		_, err = w.ReadFile("proj_1", rel)
		require.ErrorIs(t, err, ErrPathTraversal, rel)
		require.ErrorIs(t, w.DeleteFile("proj_1", rel), ErrPathTraversal, rel)
	}

	_, err := os.Stat(filepath.Join(root, "escape.txt"))
	assert.True(t, os.IsNotExist(err))

	// A project id cannot smuggle a path either.
	require.Error(t, w.WriteFile("../other", "a.txt", "x"))
	_, err = w.CreateTaskDir("proj_1", "../../x")
	require.Error(t, err)
}

func TestListDraftFiles(t *testing.T) {
	w := New(t.TempDir(), nil)

	files, err := w.ListDraftFiles("proj_1")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = w.CreateWorkspace("proj_1")
	require.NoError(t, err)
	require.NoError(t, w.WriteFile("proj_1", "draft/b.md", "bb"))
	require.NoError(t, w.WriteFile("proj_1", "draft/nested/a.csv", "a,b"))

	files, err = w.ListDraftFiles("proj_1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "b.md", files[0].RelativePath)
	assert.Equal(t, int64(2), files[0].Size)
	assert.Equal(t, "nested/a.csv", files[1].RelativePath)
	assert.Equal(t, "a.csv", files[1].Name)
}

func TestGitSnapshots(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	w := New(t.TempDir(), nil)

	_, err := w.CreateWorkspace("proj_1")
	require.NoError(t, err)
	require.NoError(t, w.InitRepo(ctx, "proj_1"))

	committed, err := w.Commit(ctx, "proj_1", "nothing changed")
	require.NoError(t, err)
	assert.False(t, committed)

	require.NoError(t, w.WriteFile("proj_1", "draft/report.md", "hello"))
	committed, err = w.Commit(ctx, "proj_1", "Add report")
	require.NoError(t, err)
	assert.True(t, committed)

	entries, err := w.Log(ctx, "proj_1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Add report", entries[0].Message)
	assert.Equal(t, []string{"draft/report.md"}, entries[0].Files)
	assert.Len(t, entries[0].Hash, 40)
	assert.Equal(t, "Initial workspace setup", entries[1].Message)
}

func TestParseLog(t *testing.T) {
	out := "\x1fabc\x1fSecond\x1f2026-01-02T00:00:00Z\n\nfile1\nfile2\n\x1fdef\x1fFirst\x1f2026-01-01T00:00:00Z\n"
	entries := parseLog(out)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"file1", "file2"}, entries[0].Files)
	assert.Empty(t, entries[1].Files)
	assert.Equal(t, "First", entries[1].Message)
}
