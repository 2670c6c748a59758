package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: "9090"
database:
  driver: sqlite
  path: studybuddy.db
jwt:
  secret: dev-secret
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "studybuddy.db", cfg.Database.Path)
	assert.Equal(t, 72*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, MaxScoreAtFinalize, cfg.Grading.MaxScorePolicy)
	assert.Equal(t, 5*time.Second, cfg.Grading.StartLockTTL)
	assert.Equal(t, time.Minute, cfg.Grading.StatsCacheTTL)
	assert.Equal(t, 6000, cfg.RateLimit.MaxRequests)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: sqlite
  path: studybuddy.db
jwt:
  secret: dev-secret
grading:
  max_score_policy: finalize
`)
	t.Setenv("STUDYBUDDY_GRADING_MAX_SCORE_POLICY", MaxScoreSnapshot)
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, MaxScoreSnapshot, cfg.Grading.MaxScorePolicy)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestLoadConfigRejectsUnknownPolicy(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: sqlite
grading:
  max_score_policy: whenever
`)
	_, err := LoadConfig(dir)
	assert.ErrorContains(t, err, "max_score_policy")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Mode: "release"},
		Database: DatabaseConfig{Driver: "postgres"},
		JWT:      JWTConfig{Secret: "short"},
		Grading:  GradingConfig{MaxScorePolicy: MaxScoreAtFinalize},
	}
	assert.ErrorContains(t, cfg.Validate(), "JWT secret is too short")

	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())

	cfg.Database.Driver = "oracle"
	assert.ErrorContains(t, cfg.Validate(), "unsupported database driver")
}
