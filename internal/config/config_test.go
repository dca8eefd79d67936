package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		setValue string
		expected string
	}{
		{name: "uses env value", setValue: "custom", expected: "custom"},
		{name: "uses fallback", setValue: "", expected: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CLIPGUARD_TEST_VAR", tt.setValue)
			require.Equal(t, tt.expected, getEnv("CLIPGUARD_TEST_VAR", "default"))
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		setValue string
		expected int
	}{
		{name: "parses int", setValue: "200", expected: 200},
		{name: "uses fallback on invalid", setValue: "invalid", expected: 100},
		{name: "uses fallback when missing", setValue: "", expected: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CLIPGUARD_TEST_INT", tt.setValue)
			require.Equal(t, tt.expected, getEnvInt("CLIPGUARD_TEST_INT", 100))
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"DECISION_TIMEOUT_MS", "CACHE_TTL_MS", "SUPPRESS_MS",
		"HISTORY_BACKEND", "PROMPT_MODE", "REQUIRE_AUTH", "JWT_SECRET",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 2500*time.Millisecond, cfg.DecisionTimeout)
	require.Equal(t, 1500*time.Millisecond, cfg.CacheTTL)
	require.Equal(t, 750*time.Millisecond, cfg.Suppress)
	require.Equal(t, 10, cfg.SnapshotAttempts)
	require.Equal(t, 25*time.Millisecond, cfg.SnapshotRetry)
	require.Equal(t, HistoryJSONL, cfg.HistoryBackend)
	require.Equal(t, PromptHub, cfg.PromptMode)
	require.Equal(t, "clipguard", cfg.SelfActorID)
	require.False(t, cfg.RequireAuth)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DECISION_TIMEOUT_MS", "4000")
	t.Setenv("HISTORY_BACKEND", "SQLite")
	t.Setenv("PROMPT_MODE", "auto")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 4*time.Second, cfg.DecisionTimeout)
	require.Equal(t, HistorySQLite, cfg.HistoryBackend)
	require.Equal(t, PromptAuto, cfg.PromptMode)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"HISTORY_BACKEND": "csv"}},
		{name: "unknown prompt mode", env: map[string]string{"PROMPT_MODE": "email"}},
		{name: "zero timeout", env: map[string]string{"DECISION_TIMEOUT_MS": "0"}},
		{name: "auth without secret", env: map[string]string{"REQUIRE_AUTH": "true", "JWT_SECRET": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}
