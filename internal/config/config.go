// Package config reads the guardian's settings from the environment. HTTP
// listener settings live in server.LoadConfig.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	HistoryJSONL  = "jsonl"
	HistorySQLite = "sqlite"

	PromptHub    = "hub"
	PromptDialog = "dialog"
	PromptAuto   = "auto"
)

type Config struct {
	DecisionTimeout time.Duration
	CacheTTL        time.Duration
	Suppress        time.Duration

	SnapshotAttempts int
	SnapshotRetry    time.Duration
	PreviewMaxChars  int

	HistoryBackend string
	HistoryPath    string
	HistoryQueue   int

	ClipboardPath string
	PolicyDir     string
	ExemptFile    string
	StatePath     string
	PromptMode    string
	SelfActorID   string

	RequireAuth bool
	JWTSecret   string
	// AuthUsers is "name:password:role[,role];..." for POST /login.
	AuthUsers string
}

func Load() (Config, error) {
	cfg := Config{
		DecisionTimeout:  getEnvMillis("DECISION_TIMEOUT_MS", 2500),
		CacheTTL:         getEnvMillis("CACHE_TTL_MS", 1500),
		Suppress:         getEnvMillis("SUPPRESS_MS", 750),
		SnapshotAttempts: getEnvInt("SNAPSHOT_ATTEMPTS", 10),
		SnapshotRetry:    getEnvMillis("SNAPSHOT_RETRY_MS", 25),
		PreviewMaxChars:  getEnvInt("PREVIEW_MAX_CHARS", 400),
		HistoryBackend:   strings.ToLower(getEnv("HISTORY_BACKEND", HistoryJSONL)),
		HistoryPath:      getEnv("HISTORY_PATH", "./logs/clipboard_log.ndjson"),
		HistoryQueue:     getEnvInt("HISTORY_QUEUE", 256),
		ClipboardPath:    getEnv("CLIPBOARD_PATH", "./clipboard.json"),
		PolicyDir:        getEnv("POLICY_DIR", ""),
		ExemptFile:       getEnv("EXEMPT_FILE", ""),
		StatePath:        getEnv("STATE_PATH", "./state.yaml"),
		PromptMode:       strings.ToLower(getEnv("PROMPT_MODE", PromptHub)),
		SelfActorID:      getEnv("SELF_ACTOR_ID", "clipguard"),
		RequireAuth:      getEnv("REQUIRE_AUTH", "false") == "true",
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AuthUsers:        os.Getenv("AUTH_USERS"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.HistoryBackend {
	case HistoryJSONL, HistorySQLite:
	default:
		return fmt.Errorf("HISTORY_BACKEND must be %s or %s, got %q", HistoryJSONL, HistorySQLite, c.HistoryBackend)
	}

	switch c.PromptMode {
	case PromptHub, PromptDialog, PromptAuto:
	default:
		return fmt.Errorf("PROMPT_MODE must be hub, dialog or auto, got %q", c.PromptMode)
	}

	if c.DecisionTimeout <= 0 {
		return fmt.Errorf("DECISION_TIMEOUT_MS must be positive")
	}
	if c.RequireAuth && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when REQUIRE_AUTH=true")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}
