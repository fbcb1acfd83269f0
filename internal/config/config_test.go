package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Port, cfg.Port)
	assert.Equal(t, time.Hour, cfg.SuggestTTL)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 9000
suggestTtl: 30m
llm:
  model: mistral
optimizer:
  maxPasses: 50
allowOrigins: ["https://a.example"]
webhooks:
  urls: ["https://hooks.example/x"]
`), 0o600))

	t.Setenv("PORT", "9100")
	t.Setenv("OPT_TIME_BUDGET_MS", "40")
	t.Setenv("WEBHOOK_URLS", "https://one, https://two ,")
	t.Setenv("DB_MIGRATE", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port, "env wins over file")
	assert.Equal(t, 30*time.Minute, cfg.SuggestTTL)
	assert.Equal(t, "mistral", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.Endpoint, "unset keys keep defaults")
	assert.Equal(t, 50, cfg.Optimizer.MaxPasses)
	assert.Equal(t, 40*time.Millisecond, cfg.OptimizerBudget())
	assert.Equal(t, []string{"https://a.example"}, cfg.AllowOrigins)
	assert.Equal(t, []string{"https://one", "https://two"}, cfg.Webhooks.URLs)
	assert.False(t, cfg.DBMigrate)
}

func TestLoad_BadValues(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.yaml"))

	t.Setenv("PORT", "eighty")
	_, err := Load("")
	assert.ErrorContains(t, err, "PORT")

	t.Setenv("PORT", "")
	t.Setenv("AUTH_MODE", "hmac")
	_, err = Load("")
	assert.ErrorContains(t, err, "AUTH_HMAC_SECRET")

	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("SUGGEST_TTL", "soon")
	_, err = Load("")
	assert.ErrorContains(t, err, "SUGGEST_TTL")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [1"), 0o600))
	t.Setenv("SUGGEST_TTL", "")
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TRIPPLANNER_TEST_KEY=from-dotenv\n"), 0o600))
	t.Setenv("TRIPPLANNER_TEST_KEY", "")
	os.Unsetenv("TRIPPLANNER_TEST_KEY")
	LoadDotEnv(path, filepath.Join(t.TempDir(), "absent.env"))
	assert.Equal(t, "from-dotenv", os.Getenv("TRIPPLANNER_TEST_KEY"))
}
