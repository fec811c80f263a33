package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Runtime is the effective configuration after merging config.yaml,
// environment variables and built-in defaults.
type Runtime struct {
	WorkspaceRoot      string
	ClaudeCLI          string
	ScriptsDir         string
	APIURL             string
	ListenAddr         string
	LogFormat          string
	TickInterval       time.Duration
	ReapInterval       time.Duration
	OneShotTimeout     time.Duration
	MaxConcurrentTurns int
}

const (
	defaultPort               = "3000"
	defaultTickInterval       = time.Minute
	defaultReapInterval       = time.Minute
	defaultOneShotTimeout     = 300 * time.Second
	defaultMaxConcurrentTurns = 4
)

// ResolveRuntime builds the effective Runtime.
// Environment variables win over config.yaml:
//
//	WORKSPACE_ROOT, CLAUDE_CLI_PATH, PAWJECT_SCRIPTS_DIR, PAWJECT_API_URL, PORT, PAWJECT_LOG_FORMAT
func ResolveRuntime() (Runtime, error) {
	s, err := LoadSettings()
	if err != nil {
		return Runtime{}, fmt.Errorf("failed to load config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Runtime{}, fmt.Errorf("failed to determine working directory: %w", err)
	}

	port := firstNonEmpty(os.Getenv("PORT"), defaultPort)

	rt := Runtime{
		WorkspaceRoot:      firstNonEmpty(os.Getenv("WORKSPACE_ROOT"), s.WorkspaceRoot, filepath.Join(cwd, "workspaces")),
		ClaudeCLI:          firstNonEmpty(os.Getenv("CLAUDE_CLI_PATH"), s.ClaudeCLIPath, "claude"),
		ScriptsDir:         firstNonEmpty(os.Getenv("PAWJECT_SCRIPTS_DIR"), s.ScriptsDir, filepath.Join(cwd, "scripts")),
		APIURL:             firstNonEmpty(os.Getenv("PAWJECT_API_URL"), s.APIURL, "http://localhost:"+port),
		ListenAddr:         firstNonEmpty(s.ListenAddr, ":"+port),
		LogFormat:          strings.ToLower(firstNonEmpty(os.Getenv("PAWJECT_LOG_FORMAT"), s.LogFormat, "json")),
		TickInterval:       secondsOr(s.TickIntervalSeconds, defaultTickInterval),
		ReapInterval:       secondsOr(s.ReapIntervalSeconds, defaultReapInterval),
		OneShotTimeout:     secondsOr(s.OneShotTimeoutSeconds, defaultOneShotTimeout),
		MaxConcurrentTurns: defaultMaxConcurrentTurns,
	}
	if os.Getenv("PORT") != "" {
		rt.ListenAddr = ":" + port
	}
	if s.MaxConcurrentTurns > 0 {
		rt.MaxConcurrentTurns = s.MaxConcurrentTurns
	}
	return rt, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
