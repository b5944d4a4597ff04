package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"serve", "migrate", "rebuild", "check", "user"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	for _, path := range [][]string{{"rebuild", "event"}, {"rebuild", "balances"}, {"rebuild", "users"}, {"rebuild", "all"}, {"user", "add"}, {"user", "exempt"}, {"user", "list"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[1], sub.Name())
	}

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestParseFrom(t *testing.T) {
	start, err := parseFrom("")
	require.NoError(t, err)
	assert.True(t, start.IsZero())

	start, err = parseFrom("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", start.Format("2006-01-02"))

	_, err = parseFrom("01.03.2024")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

// run executes the CLI against a fresh SQLite database and returns stdout.
func run(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands_SQLite(t *testing.T) {
	t.Setenv("CLUBLEDGER_DSN", "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	config := fmt.Sprintf("database:\n  driver: sqlite3\n  dsn: %s\nlog:\n  level: error\n", filepath.Join(dir, "club.db"))
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	_, err := run(t, configPath, "migrate")
	require.NoError(t, err)

	out, err := run(t, configPath, "user", "add", "--username", "alice", "--email", "alice@example.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "registered alice")

	_, err = run(t, configPath, "user", "exempt", "3")
	require.NoError(t, err)

	out, err = run(t, configPath, "user", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "system")

	out, err = run(t, configPath, "rebuild", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "inserted 0, updated 0, deleted 0")

	out, err = run(t, configPath, "rebuild", "balances", "--from", "2024-01-01")
	require.NoError(t, err)
	assert.Contains(t, out, "updated 0 balances")

	out, err = run(t, configPath, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "POINTS\t0")

	_, err = run(t, configPath, "rebuild", "event", "1")
	assert.Error(t, err, "no events exist")

	_, err = run(t, configPath, "rebuild", "event", "x")
	assert.ErrorContains(t, err, "invalid event id")
}
