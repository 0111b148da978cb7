package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "")
	t.Setenv("HEALTH_CHECK_INTERVAL", "")
	t.Setenv("SERVICE_TOKEN", "")

	cfg := Load()

	assert.Equal(t, "8000", cfg.Port)
	assert.Empty(t, cfg.ServiceToken)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.Equal(t, 15*time.Minute, cfg.LockoutWindow)
	assert.Equal(t, 24*time.Hour, cfg.MaxSessionAge)
	assert.Equal(t, 2*time.Hour, cfg.SessionRenewThreshold)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.HealthCheckInterval)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("HEALTH_CHECK_INTERVAL", "30s")
	t.Setenv("SERVICE_TOKEN", "s3cret")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, 3, cfg.MaxLoginAttempts)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, "s3cret", cfg.ServiceToken)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_LOGIN_ATTEMPTS", "many")
	t.Setenv("DEBUG", "sometimes")
	t.Setenv("LOCKOUT_WINDOW", "-5m")

	cfg := Load()

	assert.Equal(t, 5, cfg.MaxLoginAttempts)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 15*time.Minute, cfg.LockoutWindow)
}

func TestLoadPatterns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
patterns:
  - name: rapid_requests
    threshold: 10
    window: 60s
  - name: failed_logins
    threshold: 5
    window: 5m
    actions: [login_failed]
`), 0o600))

	patterns, err := LoadPatterns(path)
	require.NoError(t, err)
	require.Len(t, patterns, 2)

	assert.Equal(t, "rapid_requests", patterns[0].Name)
	assert.Equal(t, 10, patterns[0].Threshold)
	assert.Equal(t, time.Minute, patterns[0].Window)
	assert.Empty(t, patterns[0].Actions)
	assert.Equal(t, []string{"login_failed"}, patterns[1].Actions)
	assert.Equal(t, 5*time.Minute, patterns[1].Window)
}

func TestLoadPatternsRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "patterns:\n  - threshold: 1\n    window: 1m\n"},
		{"zero threshold", "patterns:\n  - name: x\n    threshold: 0\n    window: 1m\n"},
		{"not yaml", "patterns: [\n"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, string(rune('a'+i))+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := LoadPatterns(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadPatterns(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
