package workspace

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrPathTraversal is returned when a relative path resolves outside its project directory.
var ErrPathTraversal = errors.New("path escapes project workspace")

const (
	contextDirName = "context"
	draftDirName   = "draft"
	tasksDirName   = "tasks"
	todoFileName   = "todo.md"
	gitkeep        = ".gitkeep"
)

const taskTodoSkeleton = `# Task Todo

<!-- Agent maintains this file to track execution progress -->

## Plan
- [ ] Analyze task requirements
- [ ] Execute task
- [ ] Generate output

## ASK_USER Items
<!-- Items pending user response -->
`

// Workspace lays out per-project directories under Root:
//
//	<root>/<projectID>/
//	├── CLAUDE.md
//	├── context/
//	├── draft/
//	└── tasks/<taskID>/{CLAUDE.md,todo.md}
type Workspace struct {
	Root   string
	Logger *slog.Logger
}

// New returns a Workspace rooted at root.
func New(root string, logger *slog.Logger) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{Root: root, Logger: logger.With("component", "workspace")}
}

// ProjectDir is the working directory of a project agent.
func (w *Workspace) ProjectDir(projectID string) string {
	return filepath.Join(w.Root, projectID)
}

// ContextDir holds shared files every task may read.
func (w *Workspace) ContextDir(projectID string) string {
	return filepath.Join(w.ProjectDir(projectID), contextDirName)
}

// DraftDir holds files produced by task turns.
func (w *Workspace) DraftDir(projectID string) string {
	return filepath.Join(w.ProjectDir(projectID), draftDirName)
}

// TaskDir is the working directory of a task's turns.
func (w *Workspace) TaskDir(projectID, taskID string) string {
	return filepath.Join(w.ProjectDir(projectID), tasksDirName, taskID)
}

// AddDirs lists the directories a task turn may read outside its own directory.
func (w *Workspace) AddDirs(projectID string) []string {
	return []string{w.ContextDir(projectID), w.DraftDir(projectID)}
}

func validateSegment(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid %s id %q", kind, id)
	}
	return nil
}

// CreateWorkspace creates the project directory with context/ and draft/.
// Calling it again is a no-op.
func (w *Workspace) CreateWorkspace(projectID string) (string, error) {
	if err := validateSegment("project", projectID); err != nil {
		return "", err
	}
	for _, dir := range []string{w.ContextDir(projectID), w.DraftDir(projectID)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		if err := writeIfMissing(filepath.Join(dir, gitkeep), ""); err != nil {
			return "", err
		}
	}
	return w.ProjectDir(projectID), nil
}

// CreateTaskDir creates a task directory and seeds todo.md once.
// Calling it again returns the same path and leaves todo.md alone.
func (w *Workspace) CreateTaskDir(projectID, taskID string) (string, error) {
	if err := validateSegment("project", projectID); err != nil {
		return "", err
	}
	if err := validateSegment("task", taskID); err != nil {
		return "", err
	}
	dir := w.TaskDir(projectID, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create task directory: %w", err)
	}
	if err := writeIfMissing(filepath.Join(dir, todoFileName), taskTodoSkeleton); err != nil {
		return "", err
	}
	return dir, nil
}

// resolve joins rel onto the project directory and rejects results outside it.
func (w *Workspace) resolve(projectID, rel string) (string, error) {
	if err := validateSegment("project", projectID); err != nil {
		return "", err
	}
	base := w.ProjectDir(projectID)
	full := filepath.Join(base, rel)
	r, err := filepath.Rel(base, full)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}
	return full, nil
}

// WriteFile replaces a file under the project directory, creating parents.
func (w *Workspace) WriteFile(projectID, rel, content string) error {
	path, err := w.resolve(projectID, rel)
	if err != nil {
		return err
	}
	return atomicWrite(path, []byte(content))
}

// WriteFileIfMissing writes content only when the file does not exist yet.
// It reports whether the file was created.
func (w *Workspace) WriteFileIfMissing(projectID, rel, content string) (bool, error) {
	path, err := w.resolve(projectID, rel)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := atomicWrite(path, []byte(content)); err != nil {
		return false, err
	}
	return true, nil
}

// ReadFile reads a file under the project directory.
func (w *Workspace) ReadFile(projectID, rel string) (string, error) {
	path, err := w.resolve(projectID, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path confined to the project directory by resolve
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DeleteFile removes a file under the project directory.
func (w *Workspace) DeleteFile(projectID, rel string) error {
	path, err := w.resolve(projectID, rel)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// ReadTaskTodo returns a task's todo.md, or ok=false when it does not exist.
func (w *Workspace) ReadTaskTodo(projectID, taskID string) (content string, ok bool, err error) {
	if err := validateSegment("task", taskID); err != nil {
		return "", false, err
	}
	content, err = w.ReadFile(projectID, filepath.Join(tasksDirName, taskID, todoFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// DraftFile describes one file under draft/.
type DraftFile struct {
	Name         string    `json:"name"`
	RelativePath string    `json:"relative_path"`
	Size         int64     `json:"size"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// ListDraftFiles walks draft/ recursively, skipping .gitkeep. A missing
// draft directory yields an empty list.
func (w *Workspace) ListDraftFiles(projectID string) ([]DraftFile, error) {
	if err := validateSegment("project", projectID); err != nil {
		return nil, err
	}
	root := w.DraftDir(projectID)
	var files []DraftFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || d.Name() == gitkeep {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			w.Logger.Warn("skipping unreadable draft file", "path", path, "error", err)
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		files = append(files, DraftFile{
			Name:         d.Name(),
			RelativePath: filepath.ToSlash(rel),
			Size:         info.Size(),
			ModifiedAt:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files, nil
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return atomicWrite(path, []byte(content))
}

// atomicWrite writes to a sibling temp file and renames it over path.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d.%s", filepath.Base(path), os.Getpid(), hex.EncodeToString(suffix[:])))

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644) //nolint:gosec // G304: temp path derived from a resolved workspace path
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	success := false
	defer func() {
		_ = f.Close()
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}
