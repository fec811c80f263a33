package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath                string `yaml:"db_path"`
	WorkspaceRoot         string `yaml:"workspace_root"`
	ClaudeCLIPath         string `yaml:"claude_cli_path"`
	ScriptsDir            string `yaml:"scripts_dir"`
	APIURL                string `yaml:"api_url"`
	ListenAddr            string `yaml:"listen_addr"`
	LogFormat             string `yaml:"log_format"`
	TickIntervalSeconds   int    `yaml:"tick_interval_seconds"`
	ReapIntervalSeconds   int    `yaml:"reap_interval_seconds"`
	OneShotTimeoutSeconds int    `yaml:"one_shot_timeout_seconds"`
	MaxConcurrentTurns    int    `yaml:"max_concurrent_turns"`
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride hold the process-wide --db-path override.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/pawject/config.yaml
// 2) /etc/pawject/config.yaml
// 3) ./config.yaml
// Environment variables are applied by Runtime, not here.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		for _, p := range settingsPaths() {
			s, err := loadSettingsFile(p)
			if err == nil {
				settings = s
				return
			}
			if !errors.Is(err, os.ErrNotExist) {
				settingsErr = err
				return
			}
		}
	})

	return settings, settingsErr
}

// settingsPaths lists config files in lookup order. A missing home
// directory drops the user config from the list.
func settingsPaths() []string {
	var paths []string
	if dir, err := ConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "config.yaml"))
	}
	return append(paths,
		filepath.Join(string(os.PathSeparator), "etc", "pawject", "config.yaml"),
		"config.yaml",
	)
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: config paths are fixed lookup locations
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
