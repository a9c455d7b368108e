package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "accountsync.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.BaseURL)
	assert.Equal(t, "github", cfg.Tracker.Backend)
	assert.InDelta(t, 5.0, cfg.Tracker.RPS, 0.001)
	assert.Equal(t, 500, cfg.Rebuild.MaxEmailsPerAccount)
	assert.Equal(t, 50, cfg.Rebuild.MaxPastEvents)
	assert.Equal(t, 50, cfg.Rebuild.MaxFutureEvents)
	assert.Equal(t, 4, cfg.Rebuild.Workers)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/accountsync
recap:
  internal_domain: sellsadvisors.com
log:
  level: debug
  format: console
server:
  port: 9090
rebuild:
  max_emails_per_account: 100
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "sellsadvisors.com", cfg.Recap.InternalDomain)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Rebuild.MaxEmailsPerAccount)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Rebuild.MaxPastEvents)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ACCOUNTSYNC_STORE_DRIVER", "postgres")
	t.Setenv("ACCOUNTSYNC_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.DatabaseURL = "accountsync.db"
	cfg.Recap.InternalDomain = "sellsadvisors.com"
	cfg.Server.Port = 8080
	cfg.Tracker.Backend = "github"
	cfg.Rebuild.Workers = 4
	return cfg
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	cfg.Server.Port = 8080
	cfg.Recap.InternalDomain = ""
	err = cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "recap.internal_domain is required")
}

func TestValidateFeeds(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("feeds")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id is required")

	cfg.Salesforce.ClientID = "client"
	cfg.Salesforce.Username = "user@sellsadvisors.com"
	cfg.Salesforce.KeyPath = "/tmp/key.pem"
	assert.NoError(t, cfg.Validate("feeds"))
}

func TestValidateTasks(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("tasks")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "github.token is required")

	cfg.Tracker.Backend = "notion"
	err = cfg.Validate("tasks")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")

	cfg.Notion.Token = "ntn_token"
	cfg.Notion.TaskDB = "task-db-id"
	assert.NoError(t, cfg.Validate("tasks"))

	cfg.Tracker.Backend = "jira"
	err = cfg.Validate("tasks")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tracker.backend must be github or notion")
}

func TestValidateWorkerBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Rebuild.Workers = 0
	err := cfg.Validate("rebuild")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rebuild.workers must be between 1 and 32")

	cfg.Rebuild.Workers = 33
	err = cfg.Validate("rebuild")
	assert.Error(t, err)

	cfg.Rebuild.Workers = 32
	assert.NoError(t, cfg.Validate("rebuild"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
