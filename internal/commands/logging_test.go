package commands

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "", slog.LevelInfo)
	require.NoError(t, err)
	logger.Debug("hidden")
	logger.Info("hello", "project_id", "p1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.Equal(t, "p1", line["project_id"])

	buf.Reset()
	logger, err = newLogger(&buf, "TEXT", slog.LevelDebug)
	require.NoError(t, err)
	logger.Debug("turn done", "task_id", "t1")
	require.Contains(t, buf.String(), "turn done")
	require.Contains(t, buf.String(), "task_id")
	require.Contains(t, buf.String(), "t1")

	_, err = newLogger(&buf, "xml", slog.LevelInfo)
	require.Error(t, err)
}
