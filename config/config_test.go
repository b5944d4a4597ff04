package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(DSNEnv, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	t.Setenv(DSNEnv, "")
	path := writeConfig(t, `
database:
  driver: sqlite3
  dsn: club.db
server:
  session_ttl: 12h
ledger:
  batch_size: 50
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "club.db", cfg.Database.DSN)
	assert.Equal(t, 50, cfg.Ledger.BatchSize)
	assert.Equal(t, "system", cfg.Ledger.SystemUsername, "unset keys keep their default")
	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 12*time.Hour, cfg.Server.SessionTTL)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_DSNFromEnvironment(t *testing.T) {
	t.Setenv(DSNEnv, "postgres://ledger@db/club")
	cfg, err := Load(writeConfig(t, "database:\n  dsn: ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://ledger@db/club", cfg.Database.DSN)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv(DSNEnv, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config")

	_, err = Load(writeConfig(t, "database: [\n"))
	assert.ErrorContains(t, err, "parsing config")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "mysql"
	cfg.Ledger.BatchSize = 0
	cfg.Server.SessionTTL = 0
	cfg.Ledger.AndeoUsername = "system"
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown driver "mysql"`)
	assert.ErrorContains(t, err, "batch_size")
	assert.ErrorContains(t, err, "session_ttl")
	assert.ErrorContains(t, err, "must differ")
	assert.ErrorContains(t, err, `unknown level "loud"`)

	assert.NoError(t, Default().Validate())
}
