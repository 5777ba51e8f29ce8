package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/core-view/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 60, cfg.IPLimitPerMin)
	assert.Equal(t, 1024, cfg.ProfileCacheSize)
	assert.Equal(t, 15*time.Minute, cfg.ProfileCacheTTL)
	assert.Equal(t, 365, cfg.SessionRetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.CleanupInterval)
	assert.False(t, cfg.SignShareTokens())
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("IP_LIMIT_PER_MIN", "5")
	t.Setenv("PROFILE_CACHE_TTL", "90s")
	t.Setenv("ENABLE_HSTS", "true")
	t.Setenv("SHARE_TOKEN_SECRET", strings.Repeat("s", 32))
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.IPLimitPerMin)
	assert.Equal(t, 90*time.Second, cfg.ProfileCacheTTL)
	assert.True(t, cfg.EnableHSTS)
	assert.True(t, cfg.SignShareTokens())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core-view.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7000\"\nsession_retention_days: 30\n"), 0o600))
	t.Setenv("SESSION_RETENTION_DAYS", "45")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, 45, cfg.SessionRetentionDays)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "zero rate limit", key: "IP_LIMIT_PER_MIN", value: "0"},
		{name: "negative retention", key: "SESSION_RETENTION_DAYS", value: "-1"},
		{name: "short secret", key: "SHARE_TOKEN_SECRET", value: "short"},
		{name: "zero cache", key: "PROFILE_CACHE_SIZE", value: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperrors.CategoryConfiguration, appErr.Category)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
