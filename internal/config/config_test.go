package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "vexguard", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 60, cfg.RateLimit.AnalyzePerMinute)
	assert.Equal(t, 10, cfg.RateLimit.PatchPerMinute)
	assert.Equal(t, 30, cfg.RateLimit.FPPatternsPerMinute)
	assert.Equal(t, 10*time.Minute, cfg.Analyzer.BatchTimeout)
	assert.False(t, cfg.LLM.IsConfigured())
	assert.False(t, cfg.GitHub.IsConfigured())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("RATE_LIMIT_ANALYZE_PER_MINUTE", "5")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5, cfg.RateLimit.AnalyzePerMinute)
	assert.True(t, cfg.LLM.IsConfigured())
}

func TestValidateEncryptionKeyLength(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "tooshort")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}

func TestValidateGitHubAppNeedsKey(t *testing.T) {
	t.Setenv("GITHUB_APP_ID", "1234")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_APP_PRIVATE_KEY_PATH")
}

func TestValidateProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("a", 64))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_JWT_SECRET")

	t.Setenv("AUTH_JWT_SECRET", strings.Repeat("s", 32))
	t.Setenv("DB_PASSWORD", "real-password")
	t.Setenv("APP_PUBLIC_BASE_URL", "https://vexguard.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Name: "vexguard", SSLMode: "require",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=vexguard sslmode=require", cfg.DSN())
}
