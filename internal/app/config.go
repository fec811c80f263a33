package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// ConfigDir returns ~/.config/pawject/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pawject"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0o600)
	}
	return nil
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments ./.env is tried.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

const defaultConfig = `# pawject configuration
# Run: pawject --help

# Optional: override the SQLite database location.
# Can also be set via PAWJECT_DB_PATH or --db-path.
# db_path: ~/.config/pawject/pawject.db

# Root directory holding one workspace per project (env: WORKSPACE_ROOT).
# workspace_root: ./workspaces

# Agent binary (env: CLAUDE_CLI_PATH).
# claude_cli_path: claude

# Base URL agents use to call back into the API (env: PAWJECT_API_URL).
# api_url: http://localhost:3000

# listen_addr: :3000
# log_format: json   # or text
# tick_interval_seconds: 60
# reap_interval_seconds: 60
# one_shot_timeout_seconds: 300
# max_concurrent_turns: 4
`
