package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billbatista/clubledger/database"
	"github.com/billbatista/clubledger/database/dbtest"
)

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := database.Open("mysql", "whatever")
	assert.ErrorIs(t, err, database.ErrUnknownDriver)
}

func TestMigrate_Idempotent(t *testing.T) {
	db, err := database.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))

	for _, table := range []string{"users", "sessions", "events", "cost_details", "participations", "transfers", "transactions", "audit_events"} {
		var name string
		err := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = $1`, table).Scan(&name)
		assert.NoError(t, err, "table %s should exist", table)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		dbtest.CreateUser(t, tx, "alice")
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestWithTx_Commits(t *testing.T) {
	db := dbtest.New(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		dbtest.CreateUser(t, tx, "alice")
		return nil
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestForUpdate(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", database.Postgres.ForUpdate())
	assert.Equal(t, "", database.SQLite.ForUpdate())
}
