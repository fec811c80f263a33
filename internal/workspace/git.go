package workspace

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const (
	gitAuthorName  = "Pawject Agent"
	gitAuthorEmail = "agent@pawject.local"
	logFieldSep    = "\x1f"
)

// LogEntry is one commit of a project workspace.
type LogEntry struct {
	Hash      string   `json:"hash"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Files     []string `json:"files"`
}

func (w *Workspace) git(ctx context.Context, projectID string, args ...string) (string, error) {
	if err := validateSegment("project", projectID); err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = w.ProjectDir(projectID)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME="+gitAuthorName,
		"GIT_AUTHOR_EMAIL="+gitAuthorEmail,
		"GIT_COMMITTER_NAME="+gitAuthorName,
		"GIT_COMMITTER_EMAIL="+gitAuthorEmail,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w (stderr: %s)", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// InitRepo initializes a git repository in the project directory with an initial commit.
func (w *Workspace) InitRepo(ctx context.Context, projectID string) error {
	if _, err := w.git(ctx, projectID, "init", "--quiet"); err != nil {
		return err
	}
	if _, err := w.git(ctx, projectID, "add", "-A"); err != nil {
		return err
	}
	_, err := w.git(ctx, projectID, "commit", "--quiet", "--allow-empty", "-m", "Initial workspace setup")
	return err
}

// Commit stages everything and commits it. It reports false without error
// when the tree is clean.
func (w *Workspace) Commit(ctx context.Context, projectID, message string) (bool, error) {
	if _, err := w.git(ctx, projectID, "add", "-A"); err != nil {
		return false, err
	}
	status, err := w.git(ctx, projectID, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(status) == "" {
		return false, nil
	}
	if _, err := w.git(ctx, projectID, "commit", "--quiet", "-m", message); err != nil {
		return false, err
	}
	w.Logger.Debug("workspace committed", "project_id", projectID, "message", message)
	return true, nil
}

// Log returns up to limit commits, newest first, with the files each touched.
func (w *Workspace) Log(ctx context.Context, projectID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	out, err := w.git(ctx, projectID, "log",
		"--max-count="+strconv.Itoa(limit),
		"--format="+logFieldSep+"%H"+logFieldSep+"%s"+logFieldSep+"%aI",
		"--name-only",
	)
	if err != nil {
		return nil, err
	}
	return parseLog(out), nil
}

// parseLog reads the output of git log with a leading field separator on
// every header line, followed by the file names of that commit.
func parseLog(out string) []LogEntry {
	var entries []LogEntry
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, logFieldSep) {
			parts := strings.SplitN(strings.TrimPrefix(line, logFieldSep), logFieldSep, 3)
			if len(parts) < 3 {
				continue
			}
			entries = append(entries, LogEntry{Hash: parts[0], Message: parts[1], Timestamp: parts[2], Files: []string{}})
			continue
		}
		if strings.TrimSpace(line) == "" || len(entries) == 0 {
			continue
		}
		last := &entries[len(entries)-1]
		last.Files = append(last.Files, strings.TrimSpace(line))
	}
	return entries
}
