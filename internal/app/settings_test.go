package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	workdir := t.TempDir()
	oldwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workdir))
	t.Cleanup(func() { _ = os.Chdir(oldwd) })
	return workdir
}

func TestLoadSettings_PrefersUserConfigOverLocal(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)
	workdir := chdirTemp(t)

	userConfigPath := filepath.Join(home, ".config", "pawject", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("workspace_root: /srv/from-user\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("workspace_root: /srv/from-local\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/srv/from-user", s.WorkspaceRoot)
}

func TestLoadSettings_FallsBackToLocalConfig(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	t.Setenv("HOME", t.TempDir())
	workdir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(workdir, "config.yaml"), []byte("claude_cli_path: /opt/claude\n"), 0o600))

	s, err := LoadSettings()
	require.NoError(t, err)
	require.Equal(t, "/opt/claude", s.ClaudeCLIPath)
}

func TestLoadSettings_InvalidYAMLReturnsError(t *testing.T) {
	resetSettingsStateForTest()
	t.Cleanup(resetSettingsStateForTest)

	home := t.TempDir()
	t.Setenv("HOME", home)

	userConfigPath := filepath.Join(home, ".config", "pawject", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(userConfigPath), 0o755))
	require.NoError(t, os.WriteFile(userConfigPath, []byte("db_path: ["), 0o600))

	_, err := LoadSettings()
	require.Error(t, err)
}

func TestLoadSettingsFile_ReadsSchedulerFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "tick_interval_seconds: 15\n" +
		"reap_interval_seconds: 45\n" +
		"one_shot_timeout_seconds: 120\n" +
		"max_concurrent_turns: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := loadSettingsFile(path)
	require.NoError(t, err)
	require.Equal(t, 15, s.TickIntervalSeconds)
	require.Equal(t, 45, s.ReapIntervalSeconds)
	require.Equal(t, 120, s.OneShotTimeoutSeconds)
	require.Equal(t, 2, s.MaxConcurrentTurns)
}
